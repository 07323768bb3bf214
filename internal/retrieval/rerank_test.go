package retrieval

import (
	"testing"

	"github.com/autoaid/backend/internal/vector"
)

func match(id, mMake, mModel string, distance float64) vector.Match {
	return vector.Match{
		ID:           id,
		Content:      "content " + id,
		DocumentID:   "doc-" + id,
		Title:        "Title " + id,
		VehicleMake:  mMake,
		VehicleModel: mModel,
		Distance:     distance,
	}
}

func ids(matches []vector.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func TestRerankByVehicleModelBeatsMake(t *testing.T) {
	matches := []vector.Match{
		match("generic", "", "", 0.1),
		match("make-only", "toyota", "", 0.1),
		match("make-and-model", "toyota", "corolla", 0.1),
	}

	got := ids(rerankByVehicle(matches, "Toyota", "Corolla"))
	want := []string{"make-and-model", "make-only", "generic"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRerankByVehicleDistanceBreaksTies(t *testing.T) {
	matches := []vector.Match{
		match("far", "toyota", "corolla", 0.9),
		match("near", "toyota", "corolla", 0.2),
	}

	got := ids(rerankByVehicle(matches, "toyota", "corolla"))
	if got[0] != "near" {
		t.Errorf("order = %v, want near first", got)
	}
}

func TestRerankByVehicleIsCaseInsensitive(t *testing.T) {
	matches := []vector.Match{
		match("generic", "", "", 0.1),
		match("tagged", "TOYOTA", "COROLLA", 0.5),
	}

	got := ids(rerankByVehicle(matches, "toyota", "corolla"))
	if got[0] != "tagged" {
		t.Errorf("order = %v, want tagged first", got)
	}
}

func TestRerankByVehicleEmptyTagsNeverScore(t *testing.T) {
	matches := []vector.Match{
		match("near-generic", "", "", 0.1),
		match("far-generic", "", "", 0.3),
	}

	got := ids(rerankByVehicle(matches, "", ""))
	want := []string{"near-generic", "far-generic"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestRerankByVehicleWrongModelOnlyScoresMake(t *testing.T) {
	matches := []vector.Match{
		match("other-model", "toyota", "camry", 0.1),
		match("right-model", "toyota", "corolla", 0.8),
	}

	got := ids(rerankByVehicle(matches, "toyota", "corolla"))
	if got[0] != "right-model" {
		t.Errorf("order = %v, want right-model first", got)
	}
}
