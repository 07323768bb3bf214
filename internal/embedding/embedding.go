package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable signals that no embedding provider is configured or the
// provider call failed. Callers degrade to keyword retrieval instead of
// surfacing this to the client.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder converts a batch of texts into vectors. Implementations own
// batching limits, timeouts, and retries; the retrieval core never retries.
type Embedder interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ModelName identifies the embedding model, recorded on indexed chunks.
	ModelName() string
}
