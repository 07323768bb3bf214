package vector

import "context"

// Entry is one chunk embedding plus the attribution metadata carried into
// the vector store so that query hits can be cited without a second lookup.
type Entry struct {
	ID           string
	Vector       []float32
	Content      string
	DocumentID   string
	Title        string
	SourceType   string
	VehicleMake  string
	VehicleModel string
	YearFrom     int64
	YearTo       int64
	ChunkIndex   int64
}

// Match is a nearest-neighbor hit. Distance is the store's raw metric
// (L2 here), smaller is closer.
type Match struct {
	ID           string
	Content      string
	DocumentID   string
	Title        string
	SourceType   string
	VehicleMake  string
	VehicleModel string
	ChunkIndex   int64
	Distance     float64
}

// Index is the narrow contract to an external nearest-neighbor store. The
// store may be entirely unreachable; callers treat every error as a signal
// to continue in keyword-only mode.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Close() error
}
