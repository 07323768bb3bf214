package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autoaid/backend/internal/storage/models"
)

const maxKeywordScan = 2000

// UpsertDocument inserts a document or, when a row with the same id already
// exists, refreshes its mutable fields.
func (c *Client) UpsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	query := `
	INSERT INTO knowledge_documents
		(id, title, source_type, vehicle_make, vehicle_model, year_from, year_to,
		 raw_text, is_active, checksum, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		source_type = excluded.source_type,
		vehicle_make = excluded.vehicle_make,
		vehicle_model = excluded.vehicle_model,
		year_from = excluded.year_from,
		year_to = excluded.year_to,
		raw_text = excluded.raw_text,
		is_active = excluded.is_active,
		checksum = excluded.checksum,
		updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.SourceType, doc.VehicleMake, doc.VehicleModel,
		nullableInt(doc.YearFrom), nullableInt(doc.YearTo),
		doc.RawText, boolToInt(doc.IsActive), doc.Checksum,
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.KnowledgeDocument, error) {
	query := `
	SELECT id, title, source_type, vehicle_make, vehicle_model, year_from, year_to,
	       raw_text, is_active, checksum, created_at, updated_at
	FROM knowledge_documents WHERE id = ?
	`

	var (
		doc              models.KnowledgeDocument
		yearFrom, yearTo sql.NullInt64
		active           int
		created, updated int64
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Title, &doc.SourceType, &doc.VehicleMake, &doc.VehicleModel,
		&yearFrom, &yearTo, &doc.RawText, &active, &doc.Checksum, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.YearFrom = intPtr(yearFrom)
	doc.YearTo = intPtr(yearTo)
	doc.IsActive = active != 0
	doc.CreatedAt = time.Unix(created, 0)
	doc.UpdatedAt = time.Unix(updated, 0)
	return &doc, nil
}

func (c *Client) ChunksByDocument(ctx context.Context, docID string) ([]models.DocumentChunk, error) {
	query := `
	SELECT id, document_id, chunk_index, content, token_count, vector_id, embedding_model, created_at
	FROM document_chunks WHERE document_id = ? ORDER BY chunk_index
	`

	rows, err := c.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.DocumentChunk
	for rows.Next() {
		var (
			chunk   models.DocumentChunk
			created int64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
			&chunk.TokenCount, &chunk.VectorID, &chunk.EmbeddingModel, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk.CreatedAt = time.Unix(created, 0)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// ReplaceChunks swaps a document's chunk set and its checksum and raw text in
// one transaction, so readers never observe the old checksum with new chunks
// or a partially written sequence.
func (c *Client) ReplaceChunks(ctx context.Context, doc *models.KnowledgeDocument, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM document_chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}

	insert := `
	INSERT INTO document_chunks
		(id, document_id, chunk_index, content, token_count, vector_id, embedding_model, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range chunks {
		ch := &chunks[i]
		if _, err := tx.ExecContext(ctx, insert,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Content, ch.TokenCount,
			ch.VectorID, ch.EmbeddingModel, ch.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", ch.ChunkIndex, err)
		}
	}

	update := `
	UPDATE knowledge_documents SET raw_text = ?, checksum = ?, updated_at = ? WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, update, doc.RawText, doc.Checksum, doc.UpdatedAt.Unix(), doc.ID); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}
	return nil
}

// SetChunkVectorIDs records the vector store ids assigned during indexing.
func (c *Client) SetChunkVectorIDs(ctx context.Context, chunks []models.DocumentChunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range chunks {
		ch := &chunks[i]
		_, err := tx.ExecContext(ctx,
			"UPDATE document_chunks SET vector_id = ?, embedding_model = ? WHERE id = ?",
			ch.VectorID, ch.EmbeddingModel, ch.ID)
		if err != nil {
			return fmt.Errorf("failed to update chunk vector id: %w", err)
		}
	}
	return tx.Commit()
}

// SearchableChunks returns chunks from active documents applicable to the
// given vehicle, joined with document attribution. The scan is capped to keep
// keyword fallback bounded on large corpora.
func (c *Client) SearchableChunks(ctx context.Context, filter *models.VehicleFilter) ([]models.ChunkWithDocument, error) {
	query := `
	SELECT ch.id, ch.document_id, ch.chunk_index, ch.content, ch.token_count,
	       ch.vector_id, ch.embedding_model, ch.created_at, d.title, d.source_type
	FROM document_chunks ch
	JOIN knowledge_documents d ON d.id = ch.document_id
	WHERE d.is_active = 1
	`
	args := []interface{}{}

	if filter != nil {
		// An empty make or model still filters: only documents that leave
		// the field unset apply to every vehicle.
		query += " AND (d.vehicle_make = '' OR LOWER(d.vehicle_make) = LOWER(?))"
		args = append(args, filter.Make)
		query += " AND (d.vehicle_model = '' OR LOWER(d.vehicle_model) = LOWER(?))"
		args = append(args, filter.Model)
		if filter.Year > 0 {
			query += " AND (d.year_from IS NULL OR d.year_from <= ?)"
			query += " AND (d.year_to IS NULL OR d.year_to >= ?)"
			args = append(args, filter.Year, filter.Year)
		}
	}

	query += " ORDER BY d.updated_at DESC, ch.chunk_index LIMIT ?"
	args = append(args, maxKeywordScan)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query searchable chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ChunkWithDocument
	for rows.Next() {
		var (
			chunk   models.ChunkWithDocument
			created int64
		)
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.ChunkIndex, &chunk.Content,
			&chunk.TokenCount, &chunk.VectorID, &chunk.EmbeddingModel, &created,
			&chunk.Title, &chunk.SourceType); err != nil {
			return nil, fmt.Errorf("failed to scan searchable chunk: %w", err)
		}
		chunk.CreatedAt = time.Unix(created, 0)
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (c *Client) InsertRetrievalLog(ctx context.Context, log *models.RetrievalLog) error {
	citations, err := json.Marshal(log.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
	INSERT INTO retrieval_logs (id, case_id, query_text, top_k, citations, reranked, latency_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = c.db.ExecContext(ctx, query,
		log.ID, nullableString(log.CaseID), log.QueryText, log.TopK,
		string(citations), boolToInt(log.Reranked), log.LatencyMS, log.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert retrieval log: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
