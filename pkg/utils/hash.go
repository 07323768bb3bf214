package utils

import (
	"crypto/sha256"
	"fmt"
)

// Checksum returns the hex-encoded SHA-256 digest of the input.
func Checksum(input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", sum)
}
