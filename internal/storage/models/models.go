package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage lookups for missing records.
var ErrNotFound = errors.New("record not found")

// Knowledge document source categories.
const (
	SourceOwnerManual  = "owner_manual"
	SourceServiceGuide = "service_guide"
	SourceTroubleCode  = "trouble_code"
	SourceInternalNote = "internal_note"
	SourceOther        = "other"
)

// Case lifecycle states.
const (
	CaseOpen          = "open"
	CaseNeedsFollowup = "needs_followup"
	CaseResolved      = "resolved"
	CaseEscalated     = "escalated"
	CaseClosed        = "closed"
)

// Triage / risk levels.
const (
	RiskUnknown = "unknown"
	RiskGreen   = "green"
	RiskYellow  = "yellow"
	RiskRed     = "red"
)

// Symptom report sources.
const (
	SymptomFromUser      = "user"
	SymptomFromAssistant = "assistant"
	SymptomFromSystem    = "system"
)

// Agent action types and statuses.
const (
	ActionSaveNote        = "save_note"
	ActionCreateChecklist = "create_checklist"
	ActionEscalateCase    = "escalate_case"
	ActionResolveCase     = "resolve_case"

	ActionExecuted = "executed"
	ActionSkipped  = "skipped"
	ActionFailed   = "failed"
)

// KnowledgeDocument is an ingestable manual, guide, or note. The vehicle
// fields form the applicability filter: an empty make/model or nil year bound
// means "applies to all".
type KnowledgeDocument struct {
	ID           string
	Title        string
	SourceType   string
	VehicleMake  string
	VehicleModel string
	YearFrom     *int
	YearTo       *int
	RawText      string
	IsActive     bool
	Checksum     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DocumentChunk is the atomic retrieval unit. ChunkIndex values are a dense
// 0-based sequence per document; VectorID is empty until the chunk has been
// indexed in the vector store.
type DocumentChunk struct {
	ID             string
	DocumentID     string
	ChunkIndex     int
	Content        string
	TokenCount     int
	VectorID       string
	EmbeddingModel string
	CreatedAt      time.Time
}

// ChunkWithDocument joins a chunk with the owning document's attribution
// fields for keyword scoring and citation assembly.
type ChunkWithDocument struct {
	DocumentChunk
	Title      string
	SourceType string
}

// Citation is a ranked retrieval result. Distance is set only on the vector
// path and Score only on the keyword path, never both.
type Citation struct {
	Rank       int      `json:"rank"`
	VectorID   string   `json:"vector_id,omitempty"`
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	SourceType string   `json:"source_type"`
	ChunkIndex int      `json:"chunk_index"`
	Distance   *float64 `json:"distance,omitempty"`
	Score      *int     `json:"score,omitempty"`
	Snippet    string   `json:"snippet"`
}

// RetrievalLog is an append-only record of one retrieval call. Citations are
// persisted as data, not references.
type RetrievalLog struct {
	ID        string
	CaseID    string
	QueryText string
	TopK      int
	Citations []Citation
	Reranked  bool
	LatencyMS int
	CreatedAt time.Time
}

type VehicleProfile struct {
	OwnerRef     string `json:"owner_ref"`
	Nickname     string `json:"nickname"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Trim         string `json:"trim"`
	Year         int    `json:"year"`
	EngineCC     int    `json:"engine_cc"`
	Transmission string `json:"transmission"`
	FuelType     string `json:"fuel_type"`
	MileageKM    int    `json:"mileage_km"`

	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseSession ties a conversation to a vehicle. Metadata is free-form state
// owned by the chat flow (follow-up budgets, last checklist).
type CaseSession struct {
	ID                  string                 `json:"id"`
	VehicleID           string                 `json:"vehicle_id"`
	Channel             string                 `json:"channel"`
	Status              string                 `json:"status"`
	CurrentRiskLevel    string                 `json:"current_risk_level"`
	InitialProblemTitle string                 `json:"initial_problem_title"`
	LatestUserMessage   string                 `json:"latest_user_message"`
	FinalSummary        string                 `json:"final_summary"`
	Metadata            map[string]interface{} `json:"metadata"`
	OpenedAt            time.Time              `json:"opened_at"`
	ClosedAt            *time.Time             `json:"closed_at"`
	LastActivityAt      time.Time              `json:"last_activity_at"`
}

type SymptomReport struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Source    string    `json:"source"`
	RawText   string    `json:"raw_text"`
	CreatedAt time.Time `json:"created_at"`
}

type DiagnosisResult struct {
	ID                 string    `json:"id"`
	CaseID             string    `json:"case_id"`
	Version            int       `json:"version"`
	TriageLevel        string    `json:"triage_level"`
	Confidence         float64   `json:"confidence"`
	LikelyCauses       []string  `json:"likely_causes"`
	RecommendedActions []string  `json:"recommended_actions"`
	StopDrivingReasons []string  `json:"stop_driving_reasons"`
	ModelName          string    `json:"model_name"`
	LatencyMS          int       `json:"latency_ms"`
	TokensInput        int       `json:"tokens_input"`
	TokensOutput       int       `json:"tokens_output"`
	CreatedAt          time.Time `json:"created_at"`
}

type CaseNote struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"case_id"`
	Source    string    `json:"source"`
	NoteText  string    `json:"note_text"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

type CaseAction struct {
	ID            string                 `json:"id"`
	CaseID        string                 `json:"case_id"`
	ActionType    string                 `json:"action_type"`
	Status        string                 `json:"status"`
	Reason        string                 `json:"reason"`
	InputPayload  map[string]interface{} `json:"input_payload"`
	OutputPayload map[string]interface{} `json:"output_payload"`
	CreatedAt     time.Time              `json:"created_at"`
}

// VehicleFilter restricts keyword retrieval to documents applicable to a
// case's vehicle. The zero value matches everything.
type VehicleFilter struct {
	Make  string
	Model string
	Year  int
}
