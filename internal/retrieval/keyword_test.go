package retrieval

import (
	"reflect"
	"testing"

	"github.com/autoaid/backend/internal/storage/models"
)

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "keeps terms of three or more characters lowercased",
			query: "Brake NOISE when turning",
			want:  []string{"brake", "noise", "when", "turning"},
		},
		{
			name:  "drops short terms",
			query: "my AC is hot",
			want:  []string{"hot"},
		},
		{
			name:  "splits on punctuation",
			query: "engine-light: flashing!",
			want:  []string{"engine", "light", "flashing"},
		},
		{
			name:  "falls back to whitespace split for short queries",
			query: "AC on",
			want:  []string{"ac", "on"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := queryTerms(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("queryTerms(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}

func chunkWithContent(id, title, content string) models.ChunkWithDocument {
	return models.ChunkWithDocument{
		DocumentChunk: models.DocumentChunk{
			ID:         id,
			DocumentID: "doc-" + id,
			Content:    content,
		},
		Title:      title,
		SourceType: models.SourceOwnerManual,
	}
}

func TestScoreChunksRanksByTermFrequency(t *testing.T) {
	chunks := []models.ChunkWithDocument{
		chunkWithContent("a", "Cooling", "Coolant system flush procedure."),
		chunkWithContent("b", "Brakes", "Brake pads and brake fluid. Inspect brake lines."),
		chunkWithContent("c", "General", "If the brake warning light comes on, stop."),
	}

	scored := scoreChunks(chunks, []string{"brake"})
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored chunks, got %d", len(scored))
	}
	if scored[0].chunk.ID != "b" || scored[0].score != 3 {
		t.Errorf("top chunk = %s score %d, want b score 3", scored[0].chunk.ID, scored[0].score)
	}
	if scored[1].chunk.ID != "c" || scored[1].score != 1 {
		t.Errorf("second chunk = %s score %d, want c score 1", scored[1].chunk.ID, scored[1].score)
	}
}

func TestScoreChunksDropsZeroScores(t *testing.T) {
	chunks := []models.ChunkWithDocument{
		chunkWithContent("a", "Cooling", "Radiator and coolant only."),
	}
	if scored := scoreChunks(chunks, []string{"brake"}); len(scored) != 0 {
		t.Errorf("expected no results, got %d", len(scored))
	}
}

func TestScoreChunksMatchesCaseInsensitively(t *testing.T) {
	chunks := []models.ChunkWithDocument{
		chunkWithContent("a", "Brakes", "BRAKE system overview."),
	}
	scored := scoreChunks(chunks, []string{"brake"})
	if len(scored) != 1 || scored[0].score != 1 {
		t.Fatalf("expected one match with score 1, got %v", scored)
	}
}

func TestScoreChunksStableOrderOnTies(t *testing.T) {
	chunks := []models.ChunkWithDocument{
		chunkWithContent("first", "Doc A", "brake once here"),
		chunkWithContent("second", "Doc B", "brake once there"),
	}
	scored := scoreChunks(chunks, []string{"brake"})
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].chunk.ID != "first" {
		t.Errorf("tie order changed: got %s first", scored[0].chunk.ID)
	}
}
