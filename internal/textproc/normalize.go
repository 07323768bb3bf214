package textproc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	lineEndings     = regexp.MustCompile(`\r\n?`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankLineRuns   = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans arbitrary document text: null bytes become spaces, line
// endings are unified to \n, runs of horizontal whitespace collapse to one
// space, three or more consecutive blank lines collapse to two, and the
// result is trimmed. Normalize is idempotent.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = lineEndings.ReplaceAllString(text, "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Truncate cuts text to at most maxBytes bytes without splitting a rune. The
// cut point backs up to the nearest rune boundary, so the result can be a few
// bytes shorter than maxBytes but is always valid UTF-8 when the input is.
func Truncate(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Snippet normalizes text and truncates it for display.
func Snippet(text string, maxLen int) string {
	t := Normalize(text)
	if len(t) <= maxLen {
		return t
	}
	return Truncate(t, maxLen) + "..."
}

// TokenEstimate approximates the token count of text as ceil(len/4) with a
// floor of one. Good enough for telemetry, not billing.
func TokenEstimate(text string) int {
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}
