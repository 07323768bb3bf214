package textproc

import "strings"

const (
	// MinChunkSize and MinChunkOverlap are the clamping floors for chunking
	// parameters. The overlap is additionally capped at size-1 so the window
	// always advances and chunking terminates.
	MinChunkSize    = 300
	MinChunkOverlap = 50
)

// Chunk splits normalized text into overlapping fixed-size windows. Each
// window is [start, start+size) clipped to the text length; start then
// advances by size-overlap. Empty windows (after trimming) are skipped.
// Text shorter than size yields exactly one chunk.
func Chunk(text string, size, overlap int) []string {
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if overlap < MinChunkOverlap {
		overlap = MinChunkOverlap
	}
	if overlap > size-1 {
		overlap = size - 1
	}

	var chunks []string
	n := len(text)

	for start := 0; start < n; {
		end := start + size
		if end > n {
			end = n
		}
		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= n {
			break
		}
		start = end - overlap
	}

	return chunks
}
