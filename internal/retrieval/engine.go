package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/embedding"
	"github.com/autoaid/backend/internal/metrics"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
	"github.com/autoaid/backend/internal/vector"
	"github.com/autoaid/backend/pkg/logger"
	"github.com/autoaid/backend/pkg/utils"
)

// Retrieval modes reported to callers and recorded in logs.
const (
	ModeVector  = "vector"
	ModeKeyword = "keyword"
)

const (
	MaxTopK           = 10
	snippetLength     = 220
	contextChunkSize  = 500
	embeddingCacheTTL = time.Hour
)

// Store is the persistence surface the engine needs: a bounded chunk scan for
// keyword fallback and an append-only retrieval log.
type Store interface {
	SearchableChunks(ctx context.Context, filter *models.VehicleFilter) ([]models.ChunkWithDocument, error)
	InsertRetrievalLog(ctx context.Context, log *models.RetrievalLog) error
}

// EmbeddingCache is an optional cache for query embeddings.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Request describes one retrieval call. Vehicle is nil when the query is not
// tied to a case; a non-nil Vehicle enables the applicability filter and the
// vehicle rerank.
type Request struct {
	Query   string
	TopK    int
	CaseID  string
	Vehicle *models.VehicleFilter
}

// Result is the outcome of a retrieval call. Query and TopK echo the values
// actually used after trimming and clamping. Mode tells the caller which path
// produced the citations, so degraded service is visible rather than silent.
type Result struct {
	Query       string            `json:"query"`
	TopK        int               `json:"top_k"`
	Mode        string            `json:"retrieval_mode"`
	Citations   []models.Citation `json:"citations"`
	ContextText string            `json:"context_text"`
	LatencyMS   int               `json:"latency_ms"`
}

// Engine runs dual-mode retrieval: vector search with vehicle rerank when the
// embedding and vector clients are available, keyword term-frequency scoring
// otherwise. Either client may be nil; the engine then serves keyword-only.
type Engine struct {
	store       Store
	embedder    embedding.Embedder
	index       vector.Index
	cache       EmbeddingCache
	defaultTopK int
}

func NewEngine(store Store, embedder embedding.Embedder, index vector.Index, cache EmbeddingCache, defaultTopK int) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Engine{
		store:       store,
		embedder:    embedder,
		index:       index,
		cache:       cache,
		defaultTopK: defaultTopK,
	}
}

// Retrieve answers a query with ranked citations and a prompt-ready context
// block. Any failure on the vector path degrades to the keyword path instead
// of failing the call, and every call is logged regardless of outcome.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()

	query := strings.TrimSpace(req.Query)
	topK := req.TopK
	if topK == 0 {
		topK = e.defaultTopK
	}
	if topK < 1 {
		topK = 1
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}

	var (
		citations    []models.Citation
		contextParts []string
		usedVector   bool
	)

	if e.embedder != nil && e.index != nil {
		var err error
		citations, contextParts, err = e.vectorRetrieve(ctx, query, topK, req.Vehicle)
		if err != nil {
			logger.Warn("Vector retrieval failed, falling back to keyword",
				zap.String("query", query), zap.Error(err))
		}
		usedVector = err == nil && len(citations) > 0
	}

	if !usedVector {
		var err error
		citations, contextParts, err = e.keywordRetrieve(ctx, query, topK, req.Vehicle)
		if err != nil {
			return nil, fmt.Errorf("keyword retrieval failed: %w", err)
		}
	}

	mode := ModeKeyword
	if usedVector {
		mode = ModeVector
	}
	latencyMS := int(time.Since(started).Milliseconds())

	log := &models.RetrievalLog{
		ID:        uuid.New().String(),
		CaseID:    req.CaseID,
		QueryText: query,
		TopK:      topK,
		Citations: citations,
		Reranked:  req.Vehicle != nil,
		LatencyMS: latencyMS,
		CreatedAt: time.Now(),
	}
	if err := e.store.InsertRetrievalLog(ctx, log); err != nil {
		logger.Warn("Failed to write retrieval log", zap.Error(err))
	}

	metrics.RetrievalTotal.WithLabelValues(mode).Inc()
	metrics.RetrievalDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	metrics.RetrievalResultsCount.Observe(float64(len(citations)))

	logger.Debug("Retrieval completed",
		zap.String("mode", mode),
		zap.Int("citations", len(citations)),
		zap.Int("latency_ms", latencyMS))

	return &Result{
		Query:       query,
		TopK:        topK,
		Mode:        mode,
		Citations:   citations,
		ContextText: strings.Join(contextParts, "\n\n"),
		LatencyMS:   latencyMS,
	}, nil
}

func (e *Engine) vectorRetrieve(ctx context.Context, query string, topK int, vehicle *models.VehicleFilter) ([]models.Citation, []string, error) {
	emb, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	matches, err := e.index.Query(ctx, emb, topK)
	if err != nil {
		return nil, nil, fmt.Errorf("vector search failed: %w", err)
	}

	if vehicle != nil {
		matches = rerankByVehicle(matches, vehicle.Make, vehicle.Model)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}

	citations := make([]models.Citation, 0, len(matches))
	contextParts := make([]string, 0, len(matches))
	for i, m := range matches {
		dist := m.Distance
		c := models.Citation{
			Rank:       i + 1,
			VectorID:   m.ID,
			DocumentID: m.DocumentID,
			Title:      m.Title,
			SourceType: m.SourceType,
			ChunkIndex: int(m.ChunkIndex),
			Distance:   &dist,
			Snippet:    textproc.Snippet(m.Content, snippetLength),
		}
		citations = append(citations, c)
		contextParts = append(contextParts, contextLine(c.Rank, c.Title, c.ChunkIndex, m.Content))
	}
	return citations, contextParts, nil
}

func (e *Engine) keywordRetrieve(ctx context.Context, query string, topK int, vehicle *models.VehicleFilter) ([]models.Citation, []string, error) {
	chunks, err := e.store.SearchableChunks(ctx, vehicle)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	scored := scoreChunks(chunks, queryTerms(query))
	if len(scored) > topK {
		scored = scored[:topK]
	}

	citations := make([]models.Citation, 0, len(scored))
	contextParts := make([]string, 0, len(scored))
	for i, s := range scored {
		score := s.score
		c := models.Citation{
			Rank:       i + 1,
			VectorID:   s.chunk.VectorID,
			DocumentID: s.chunk.DocumentID,
			Title:      s.chunk.Title,
			SourceType: s.chunk.SourceType,
			ChunkIndex: s.chunk.ChunkIndex,
			Score:      &score,
			Snippet:    textproc.Snippet(s.chunk.Content, snippetLength),
		}
		citations = append(citations, c)
		contextParts = append(contextParts, contextLine(c.Rank, c.Title, c.ChunkIndex, s.chunk.Content))
	}
	return citations, contextParts, nil
}

// embedQuery returns the query embedding, consulting the cache when one is
// configured. Cache errors are treated as misses.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	cacheKey := ""
	if e.cache != nil {
		cacheKey = utils.Checksum(e.embedder.ModelName() + ":" + query)
		if emb, ok, err := e.cache.GetEmbedding(ctx, cacheKey); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return emb, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	if e.cache != nil {
		if err := e.cache.SetEmbedding(ctx, cacheKey, embs[0], embeddingCacheTTL); err != nil {
			logger.Debug("Failed to cache query embedding", zap.Error(err))
		}
	}
	return embs[0], nil
}

func contextLine(rank int, title string, chunkIndex int, content string) string {
	content = textproc.Truncate(content, contextChunkSize)
	return fmt.Sprintf("[%d] %s (chunk %d): %s", rank, title, chunkIndex, content)
}
