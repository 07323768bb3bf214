package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/autoaid/backend/internal/storage/models"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return c
}

func intp(v int) *int { return &v }

func testDocument(id string) *models.KnowledgeDocument {
	now := time.Now()
	return &models.KnowledgeDocument{
		ID:         id,
		Title:      "Owner Manual",
		SourceType: models.SourceOwnerManual,
		RawText:    "Check tire pressure monthly.",
		IsActive:   true,
		Checksum:   "abc123",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testChunks(docID string, n int) []models.DocumentChunk {
	now := time.Now()
	chunks := make([]models.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = models.DocumentChunk{
			ID:         docID + "-chunk-" + string(rune('a'+i)),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    "chunk content number " + string(rune('a'+i)),
			TokenCount: 5,
			CreatedAt:  now,
		}
	}
	return chunks
}

func TestUpsertAndGetDocument(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	doc := testDocument("doc-1")
	doc.VehicleMake = "Toyota"
	doc.YearFrom = intp(2015)
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	got, err := c.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Owner Manual" || got.VehicleMake != "Toyota" {
		t.Errorf("got %+v", got)
	}
	if got.YearFrom == nil || *got.YearFrom != 2015 {
		t.Errorf("year_from = %v, want 2015", got.YearFrom)
	}
	if got.YearTo != nil {
		t.Errorf("year_to = %v, want nil", got.YearTo)
	}
	if !got.IsActive {
		t.Error("document should be active")
	}
}

func TestUpsertDocumentUpdatesExisting(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	doc := testDocument("doc-1")
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	doc.Title = "Owner Manual v2"
	doc.IsActive = false
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := c.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "Owner Manual v2" {
		t.Errorf("title = %q, want updated title", got.Title)
	}
	if got.IsActive {
		t.Error("document should be inactive after update")
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	c := testClient(t)

	_, err := c.GetDocument(context.Background(), "missing")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReplaceChunks(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	doc := testDocument("doc-1")
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := c.ReplaceChunks(ctx, doc, testChunks("doc-1", 3)); err != nil {
		t.Fatalf("first ReplaceChunks: %v", err)
	}

	doc.Checksum = "def456"
	replacement := testChunks("doc-1", 2)
	replacement[0].ID = "doc-1-new-a"
	replacement[1].ID = "doc-1-new-b"
	if err := c.ReplaceChunks(ctx, doc, replacement); err != nil {
		t.Fatalf("second ReplaceChunks: %v", err)
	}

	chunks, err := c.ChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
	}

	got, err := c.GetDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Checksum != "def456" {
		t.Errorf("checksum = %q, want def456", got.Checksum)
	}
}

func TestSetChunkVectorIDs(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	doc := testDocument("doc-1")
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	chunks := testChunks("doc-1", 2)
	if err := c.ReplaceChunks(ctx, doc, chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	chunks[0].VectorID = "doc-1:0:aaaa"
	chunks[0].EmbeddingModel = "text-embedding-3-small"
	chunks[1].VectorID = "doc-1:1:bbbb"
	chunks[1].EmbeddingModel = "text-embedding-3-small"
	if err := c.SetChunkVectorIDs(ctx, chunks); err != nil {
		t.Fatalf("SetChunkVectorIDs: %v", err)
	}

	got, err := c.ChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if got[0].VectorID != "doc-1:0:aaaa" || got[1].VectorID != "doc-1:1:bbbb" {
		t.Errorf("vector ids = %q, %q", got[0].VectorID, got[1].VectorID)
	}
}

func insertSearchableDoc(t *testing.T, c *Client, id, vMake, vModel string, yearFrom, yearTo *int, active bool) {
	t.Helper()
	ctx := context.Background()

	doc := testDocument(id)
	doc.VehicleMake = vMake
	doc.VehicleModel = vModel
	doc.YearFrom = yearFrom
	doc.YearTo = yearTo
	doc.IsActive = active
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument %s: %v", id, err)
	}
	if err := c.ReplaceChunks(ctx, doc, testChunks(id, 1)); err != nil {
		t.Fatalf("ReplaceChunks %s: %v", id, err)
	}
}

func searchableDocIDs(t *testing.T, c *Client, filter *models.VehicleFilter) map[string]bool {
	t.Helper()
	chunks, err := c.SearchableChunks(context.Background(), filter)
	if err != nil {
		t.Fatalf("SearchableChunks: %v", err)
	}
	ids := make(map[string]bool)
	for _, ch := range chunks {
		ids[ch.DocumentID] = true
	}
	return ids
}

func TestSearchableChunksVehicleFilter(t *testing.T) {
	c := testClient(t)

	insertSearchableDoc(t, c, "generic", "", "", nil, nil, true)
	insertSearchableDoc(t, c, "toyota", "Toyota", "", nil, nil, true)
	insertSearchableDoc(t, c, "corolla", "Toyota", "Corolla", intp(2015), intp(2020), true)
	insertSearchableDoc(t, c, "honda", "Honda", "", nil, nil, true)
	insertSearchableDoc(t, c, "inactive", "", "", nil, nil, false)

	tests := []struct {
		name   string
		filter *models.VehicleFilter
		want   []string
		reject []string
	}{
		{
			name:   "nil filter returns all active",
			filter: nil,
			want:   []string{"generic", "toyota", "corolla", "honda"},
			reject: []string{"inactive"},
		},
		{
			name:   "make-only filter keeps generic and drops model-specific",
			filter: &models.VehicleFilter{Make: "toyota"},
			want:   []string{"generic", "toyota"},
			reject: []string{"corolla", "honda", "inactive"},
		},
		{
			name:   "empty make admits only make-agnostic docs",
			filter: &models.VehicleFilter{},
			want:   []string{"generic"},
			reject: []string{"toyota", "corolla", "honda", "inactive"},
		},
		{
			name:   "model filter drops other models",
			filter: &models.VehicleFilter{Make: "Toyota", Model: "Camry"},
			want:   []string{"generic", "toyota"},
			reject: []string{"corolla", "honda"},
		},
		{
			name:   "year inside range matches",
			filter: &models.VehicleFilter{Make: "Toyota", Model: "Corolla", Year: 2018},
			want:   []string{"generic", "toyota", "corolla"},
			reject: []string{"honda"},
		},
		{
			name:   "year outside range excludes bounded doc",
			filter: &models.VehicleFilter{Make: "Toyota", Model: "Corolla", Year: 2022},
			want:   []string{"generic", "toyota"},
			reject: []string{"corolla"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := searchableDocIDs(t, c, tt.filter)
			for _, id := range tt.want {
				if !ids[id] {
					t.Errorf("expected doc %s in results, got %v", id, ids)
				}
			}
			for _, id := range tt.reject {
				if ids[id] {
					t.Errorf("doc %s should be filtered out, got %v", id, ids)
				}
			}
		})
	}
}

func TestInsertRetrievalLog(t *testing.T) {
	c := testClient(t)

	dist := 0.42
	log := &models.RetrievalLog{
		ID:        "log-1",
		CaseID:    "",
		QueryText: "brake noise",
		TopK:      5,
		Citations: []models.Citation{
			{Rank: 1, DocumentID: "doc-1", Title: "Manual", ChunkIndex: 0, Distance: &dist, Snippet: "..."},
		},
		Reranked:  true,
		LatencyMS: 12,
		CreatedAt: time.Now(),
	}
	if err := c.InsertRetrievalLog(context.Background(), log); err != nil {
		t.Fatalf("InsertRetrievalLog: %v", err)
	}
}

func TestDeleteDocumentCascadesToChunks(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	doc := testDocument("doc-1")
	if err := c.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if err := c.ReplaceChunks(ctx, doc, testChunks("doc-1", 2)); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	if _, err := c.db.ExecContext(ctx, "DELETE FROM knowledge_documents WHERE id = ?", "doc-1"); err != nil {
		t.Fatalf("delete document: %v", err)
	}

	chunks, err := c.ChunksByDocument(ctx, "doc-1")
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("chunks = %d, want 0 after cascade", len(chunks))
	}
}
