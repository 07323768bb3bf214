package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/agent"
	"github.com/autoaid/backend/internal/llm"
	"github.com/autoaid/backend/internal/retrieval"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/pkg/logger"
)

const (
	defaultTopK       = 5
	historyLimit      = 6
	maxFollowupRounds = 2
	maxSourceLines    = 5
)

// Store is the persistence surface one chat turn needs.
type Store interface {
	GetCase(ctx context.Context, id string) (*models.CaseSession, error)
	GetVehicle(ctx context.Context, id string) (*models.VehicleProfile, error)
	UpdateCase(ctx context.Context, cs *models.CaseSession) error
	InsertSymptom(ctx context.Context, s *models.SymptomReport) error
	RecentSymptoms(ctx context.Context, caseID string, limit int) ([]models.SymptomReport, error)
	InsertDiagnosis(ctx context.Context, d *models.DiagnosisResult) error
	LatestDiagnosis(ctx context.Context, caseID string) (*models.DiagnosisResult, error)
}

// Response is the full outcome of one chat turn.
type Response struct {
	CaseID             string                 `json:"case_id"`
	DiagnosisVersion   int                    `json:"diagnosis_version"`
	TriageLevel        string                 `json:"triage_level"`
	Confidence         float64                `json:"confidence"`
	AssistantReply     string                 `json:"assistant_reply"`
	LikelyCauses       []string               `json:"likely_causes"`
	RecommendedActions []string               `json:"recommended_actions"`
	StopDrivingReasons []string               `json:"stop_driving_reasons"`
	FollowUpQuestions  []string               `json:"follow_up_questions"`
	ModelName          string                 `json:"model_name"`
	LatencyMS          int                    `json:"latency_ms"`
	Citations          []models.Citation      `json:"citations"`
	RetrievalMode      string                 `json:"retrieval_mode"`
	AgentActions       []agent.ExecutedAction `json:"agent_actions"`
	AgentReasonTrace   []string               `json:"agent_reason_trace"`
}

// Service orchestrates one chat turn: persist the user message, retrieve
// knowledge, diagnose, apply the follow-up budget, persist the versioned
// result, update case state, and run the agent.
type Service struct {
	store     Store
	engine    *retrieval.Engine
	diagnoser *llm.Service
	agent     *agent.Agent
}

func NewService(store Store, engine *retrieval.Engine, diagnoser *llm.Service, caseAgent *agent.Agent) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		diagnoser: diagnoser,
		agent:     caseAgent,
	}
}

// HandleTurn processes one user message for a case.
func (s *Service) HandleTurn(ctx context.Context, caseID, userMessage string) (*Response, error) {
	userMessage = strings.TrimSpace(userMessage)

	cs, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.store.GetVehicle(ctx, cs.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case vehicle: %w", err)
	}

	now := time.Now()
	if err := s.store.InsertSymptom(ctx, &models.SymptomReport{
		ID:        uuid.New().String(),
		CaseID:    cs.ID,
		Source:    models.SymptomFromUser,
		RawText:   userMessage,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	// Retrieval is best effort: a broken knowledge layer must not block
	// triage.
	ragContext := ""
	var citations []models.Citation
	retrievalMode := retrieval.ModeKeyword
	retrieved, err := s.engine.Retrieve(ctx, retrieval.Request{
		Query:  userMessage,
		TopK:   defaultTopK,
		CaseID: cs.ID,
		Vehicle: &models.VehicleFilter{
			Make:  vehicle.Make,
			Model: vehicle.Model,
			Year:  vehicle.Year,
		},
	})
	if err != nil {
		logger.Warn("Retrieval failed during chat turn",
			zap.String("case_id", cs.ID), zap.Error(err))
	} else {
		ragContext = strings.TrimSpace(retrieved.ContextText)
		citations = retrieved.Citations
		retrievalMode = retrieved.Mode
	}

	history, err := s.store.RecentSymptoms(ctx, cs.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load case history: %w", err)
	}

	d := s.diagnoser.Generate(ctx, vehicle, history, userMessage, ragContext)

	// Follow-up budget: at most one question per turn and two rounds per
	// case, so the chat converges instead of interrogating the user.
	if cs.Metadata == nil {
		cs.Metadata = map[string]interface{}{}
	}
	askedRounds := metaInt(cs.Metadata, "asked_followup_rounds")
	followups := d.FollowUpQuestions
	if askedRounds >= maxFollowupRounds {
		followups = nil
	} else if len(followups) > 1 {
		followups = followups[:1]
	}
	if len(followups) > 0 {
		askedRounds++
	}
	d.FollowUpQuestions = followups
	cs.Metadata["asked_followup_rounds"] = askedRounds
	cs.Metadata["max_followup_rounds"] = maxFollowupRounds
	cs.Metadata["last_retrieval_mode"] = retrievalMode
	cs.Metadata["last_citations_count"] = len(citations)

	reply := d.AssistantReply
	if len(citations) > 0 {
		reply = reply + "\n\n" + sourcesAppendix(citations)
	}

	version := 1
	if latest, err := s.store.LatestDiagnosis(ctx, cs.ID); err == nil {
		version = latest.Version + 1
	} else if err != models.ErrNotFound {
		return nil, fmt.Errorf("failed to load latest diagnosis: %w", err)
	}

	diagnosis := &models.DiagnosisResult{
		ID:                 uuid.New().String(),
		CaseID:             cs.ID,
		Version:            version,
		TriageLevel:        d.TriageLevel,
		Confidence:         d.Confidence,
		LikelyCauses:       d.LikelyCauses,
		RecommendedActions: d.RecommendedActions,
		StopDrivingReasons: d.StopDrivingReasons,
		ModelName:          d.ModelName,
		LatencyMS:          d.LatencyMS,
		TokensInput:        d.TokensInput,
		TokensOutput:       d.TokensOutput,
		CreatedAt:          time.Now(),
	}
	if err := s.store.InsertDiagnosis(ctx, diagnosis); err != nil {
		return nil, fmt.Errorf("failed to save diagnosis: %w", err)
	}

	if err := s.store.InsertSymptom(ctx, &models.SymptomReport{
		ID:        uuid.New().String(),
		CaseID:    cs.ID,
		Source:    models.SymptomFromAssistant,
		RawText:   reply,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save assistant reply: %w", err)
	}

	// Baseline status first; the agent run may override it.
	cs.LatestUserMessage = userMessage
	cs.CurrentRiskLevel = d.TriageLevel
	switch {
	case d.TriageLevel == models.RiskRed:
		cs.Status = models.CaseEscalated
	case len(d.FollowUpQuestions) > 0:
		cs.Status = models.CaseNeedsFollowup
	default:
		cs.Status = models.CaseResolved
	}
	cs.LastActivityAt = time.Now()
	if err := s.store.UpdateCase(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to update case: %w", err)
	}

	agentOut, err := s.agent.Run(ctx, agent.Input{
		Case:           cs,
		Diagnosis:      diagnosis,
		UserMessage:    userMessage,
		AssistantReply: reply,
		ForceAction:    agent.ForceAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("agent run failed: %w", err)
	}

	return &Response{
		CaseID:             cs.ID,
		DiagnosisVersion:   version,
		TriageLevel:        d.TriageLevel,
		Confidence:         d.Confidence,
		AssistantReply:     reply,
		LikelyCauses:       d.LikelyCauses,
		RecommendedActions: d.RecommendedActions,
		StopDrivingReasons: d.StopDrivingReasons,
		FollowUpQuestions:  d.FollowUpQuestions,
		ModelName:          d.ModelName,
		LatencyMS:          d.LatencyMS,
		Citations:          citations,
		RetrievalMode:      retrievalMode,
		AgentActions:       agentOut.ExecutedActions,
		AgentReasonTrace:   agentOut.ReasonTrace,
	}, nil
}

func sourcesAppendix(citations []models.Citation) string {
	lines := []string{"Sources used:"}
	for i, c := range citations {
		if i >= maxSourceLines {
			break
		}
		lines = append(lines, fmt.Sprintf("[%d] %s (chunk %d)", c.Rank, c.Title, c.ChunkIndex))
	}
	return strings.Join(lines, "\n")
}

// metaInt reads an integer out of case metadata, which round-trips through
// JSON and so may hold float64.
func metaInt(meta map[string]interface{}, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
