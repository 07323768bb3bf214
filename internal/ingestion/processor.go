package ingestion

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

// Embedding modes reported in ingestion results.
const (
	ModeVectorWithFallback = "vector+keyword_fallback"
	ModeKeywordOnly        = "keyword_only"
)

const (
	minDocumentChars = 50
	maxStoredRawText = 200000
	embedBatchSize   = 64
)

// Store is the persistence surface ingestion needs.
type Store interface {
	UpsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error
	ChunksByDocument(ctx context.Context, docID string) ([]models.DocumentChunk, error)
	ReplaceChunks(ctx context.Context, doc *models.KnowledgeDocument, chunks []models.DocumentChunk) error
	SetChunkVectorIDs(ctx context.Context, chunks []models.DocumentChunk) error
}

// Result summarizes one ingestion run.
type Result struct {
	DocumentID     string `json:"document_id"`
	Title          string `json:"title"`
	ChunksCreated  int    `json:"chunks_created"`
	VectorsIndexed int    `json:"vectors_indexed"`
	EmbeddingMode  string `json:"embedding_mode"`
}

// Processor turns a knowledge document into stored chunks and, when the
// embedding and vector clients are available, indexed vectors. Either client
// may be nil; ingestion then completes in keyword-only mode.
type Processor struct {
	store        Store
	embedder     embedding.Embedder
	index        vector.Index
	chunkSize    int
	chunkOverlap int
}

func NewProcessor(store Store, embedder embedding.Embedder, index vector.Index, chunkSize, chunkOverlap int) *Processor {
	return &Processor{
		store:        store,
		embedder:     embedder,
		index:        index,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest normalizes, chunks, stores, and indexes a document. Re-ingesting an
// existing document id replaces its chunk set and removes its old vectors.
// Vector indexing failures never fail the ingestion; the result reports
// keyword_only instead.
func (p *Processor) Ingest(ctx context.Context, doc *models.KnowledgeDocument, fileData []byte, fileName string) (*Result, error) {
	combined, err := ExtractText(doc.RawText, fileData, fileName)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	text := textproc.Normalize(combined)
	if len(text) < minDocumentChars {
		return nil, &ValidationError{Message: "document text is too short to index"}
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	// Drop vectors left over from a previous ingest of this document. The
	// delete is best effort: a stale vector store entry loses to a fresh
	// chunk set.
	oldChunks, err := p.store.ChunksByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing chunks: %w", err)
	}
	if p.index != nil {
		var oldVectorIDs []string
		for _, ch := range oldChunks {
			if ch.VectorID != "" {
				oldVectorIDs = append(oldVectorIDs, ch.VectorID)
			}
		}
		if len(oldVectorIDs) > 0 {
			if err := p.index.Delete(ctx, oldVectorIDs); err != nil {
				logger.Warn("Failed to delete old vectors",
					zap.String("document_id", doc.ID), zap.Error(err))
			}
		}
	}

	pieces := textproc.Chunk(text, p.chunkSize, p.chunkOverlap)
	if len(pieces) == 0 {
		return nil, &ValidationError{Message: "no chunks generated from document text"}
	}

	embeddingModel := ""
	if p.embedder != nil {
		embeddingModel = p.embedder.ModelName()
	}

	chunks := make([]models.DocumentChunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = models.DocumentChunk{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			ChunkIndex:     i,
			Content:        content,
			TokenCount:     textproc.TokenEstimate(content),
			EmbeddingModel: embeddingModel,
			CreatedAt:      now,
		}
	}

	doc.Checksum = utils.Checksum(text)
	if doc.RawText == "" {
		doc.RawText = textproc.Truncate(text, maxStoredRawText)
	}
	if err := p.store.ReplaceChunks(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to replace chunks: %w", err)
	}

	vectorsIndexed := 0
	embeddingMode := ModeKeywordOnly
	if p.embedder != nil && p.index != nil {
		vectorsIndexed, err = p.indexChunks(ctx, doc, chunks)
		if err != nil {
			logger.Warn("Vector indexing failed, document remains keyword searchable",
				zap.String("document_id", doc.ID), zap.Error(err))
		} else {
			embeddingMode = ModeVectorWithFallback
		}
	}

	metrics.DocumentsIngested.WithLabelValues(embeddingMode).Inc()
	metrics.ChunksIndexed.Add(float64(vectorsIndexed))

	logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("title", doc.Title),
		zap.Int("chunks", len(chunks)),
		zap.Int("vectors", vectorsIndexed),
		zap.String("mode", embeddingMode))

	return &Result{
		DocumentID:     doc.ID,
		Title:          doc.Title,
		ChunksCreated:  len(chunks),
		VectorsIndexed: vectorsIndexed,
		EmbeddingMode:  embeddingMode,
	}, nil
}

// indexChunks embeds and upserts chunks in batches, recording assigned vector
// ids after each batch so a mid-run failure leaves earlier batches searchable.
func (p *Processor) indexChunks(ctx context.Context, doc *models.KnowledgeDocument, chunks []models.DocumentChunk) (int, error) {
	indexed := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Content
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return indexed, fmt.Errorf("failed to embed batch: %w", err)
		}

		entries := make([]vector.Entry, len(batch))
		for i := range batch {
			ch := &batch[i]
			ch.VectorID = vectorID(doc.ID, ch.ChunkIndex)
			entries[i] = vector.Entry{
				ID:           ch.VectorID,
				Vector:       embeddings[i],
				Content:      ch.Content,
				DocumentID:   doc.ID,
				Title:        doc.Title,
				SourceType:   doc.SourceType,
				VehicleMake:  strings.ToLower(doc.VehicleMake),
				VehicleModel: strings.ToLower(doc.VehicleModel),
				YearFrom:     yearBound(doc.YearFrom),
				YearTo:       yearBound(doc.YearTo),
				ChunkIndex:   int64(ch.ChunkIndex),
			}
		}

		if err := p.index.Upsert(ctx, entries); err != nil {
			return indexed, fmt.Errorf("failed to upsert vectors: %w", err)
		}
		if err := p.store.SetChunkVectorIDs(ctx, batch); err != nil {
			return indexed, fmt.Errorf("failed to record vector ids: %w", err)
		}
		indexed += len(batch)
	}
	return indexed, nil
}

func vectorID(docID string, chunkIndex int) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s:%d:%s", docID, chunkIndex, suffix)
}

func yearBound(v *int) int64 {
	if v == nil {
		return -1
	}
	return int64(*v)
}
