package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/autoaid/backend/pkg/circuitbreaker"
	"github.com/autoaid/backend/pkg/logger"
	"github.com/autoaid/backend/pkg/retry"
)

const providerBatchLimit = 100

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API with
// retry and a circuit breaker around each provider call.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	cb := circuitbreaker.New("embedding", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Embedding client initialized", zap.String("model", model))

	return &OpenAIEmbedder{
		client:      openai.NewClient(apiKey),
		model:       model,
		cb:          cb,
		retryConfig: retry.DefaultConfig(),
	}
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += providerBatchLimit {
		end := i + providerBatchLimit
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		err := e.cb.Execute(ctx, func() error {
			return retry.Do(ctx, e.retryConfig, func() error {
				resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
					Input: batch,
					Model: openai.EmbeddingModel(e.model),
				})
				if err != nil {
					return fmt.Errorf("failed to create embeddings: %w", err)
				}
				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}
				for _, data := range resp.Data {
					vector := make([]float32, len(data.Embedding))
					copy(vector, data.Embedding)
					embeddings = append(embeddings, vector)
				}
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}
