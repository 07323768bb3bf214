package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
	"github.com/autoaid/backend/pkg/logger"
)

// Force actions accepted by Run. Anything else is treated as auto.
const (
	ForceAuto      = "auto"
	ForceEscalate  = "escalate"
	ForceResolve   = "resolve"
	ForceChecklist = "checklist"
)

const (
	maxNoteLength    = 3000
	maxReasonLength  = 300
	maxSummaryLength = 2000
)

var resolvedKeywords = []string{
	"resolved", "fixed", "problem solved", "issue solved", "works now", "it is fine now",
}

// Store is the persistence surface the agent needs.
type Store interface {
	InsertCaseNote(ctx context.Context, note *models.CaseNote) error
	InsertCaseAction(ctx context.Context, action *models.CaseAction) error
	UpdateCase(ctx context.Context, cs *models.CaseSession) error
}

// ExecutedAction describes one tool call the agent made during a run.
type ExecutedAction struct {
	Tool    string                 `json:"tool"`
	Details map[string]interface{} `json:"details"`
}

// RunResult reports what the agent did and why, in order.
type RunResult struct {
	CaseID          string           `json:"case_id"`
	CaseStatus      string           `json:"case_status"`
	RiskLevel       string           `json:"risk_level"`
	ExecutedActions []ExecutedAction `json:"executed_actions"`
	ReasonTrace     []string         `json:"reason_trace"`
}

// Agent closes out a chat turn with rule-based case management: it logs the
// assistant reply as a note, then escalates, resolves, or produces a
// next-steps checklist depending on triage and the user's own words.
type Agent struct {
	store Store
}

func New(store Store) *Agent {
	return &Agent{store: store}
}

// Input is one agent run request. ForceAction overrides the auto policy;
// Diagnosis may be nil when no diagnosis exists yet.
type Input struct {
	Case              *models.CaseSession
	Diagnosis         *models.DiagnosisResult
	UserMessage       string
	AssistantReply    string
	ForceAction       string
	ResolutionSummary string
}

// Run executes the agent policy and persists every tool call as a CaseAction
// row. The case passed in is mutated to its post-run state.
func (a *Agent) Run(ctx context.Context, in Input) (*RunResult, error) {
	var (
		executed []ExecutedAction
		trace    []string
	)

	msg := strings.ToLower(strings.TrimSpace(in.UserMessage))
	force := strings.ToLower(strings.TrimSpace(in.ForceAction))
	if force == "" {
		force = ForceAuto
	}

	if strings.TrimSpace(in.AssistantReply) != "" {
		out, err := a.saveNote(ctx, in.Case, textproc.Truncate(in.AssistantReply, maxNoteLength), []string{"assistant_reply", "auto_log"})
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "save_case_note", Details: out})
		trace = append(trace, "Saved assistant reply as agent note.")
	}

	switch force {
	case ForceEscalate:
		reasons := stopReasons(in.Diagnosis)
		if len(reasons) == 0 {
			reasons = []string{"Manual escalation requested."}
		}
		out, err := a.escalate(ctx, in.Case, reasons)
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "escalate_case", Details: out})
		trace = append(trace, "Force action: escalate.")
		return a.result(in.Case, executed, trace), nil

	case ForceResolve:
		summary := in.ResolutionSummary
		if summary == "" {
			summary = "Manually resolved by operator."
		}
		out, err := a.resolve(ctx, in.Case, summary)
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "resolve_case", Details: out})
		trace = append(trace, "Force action: resolve.")
		return a.result(in.Case, executed, trace), nil

	case ForceChecklist:
		out, err := a.createChecklist(ctx, in.Case, in.Diagnosis)
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "create_action_checklist", Details: out})
		trace = append(trace, "Force action: checklist.")
		return a.result(in.Case, executed, trace), nil
	}

	// Auto policy: a red triage or any stop-driving reason escalates, a user
	// saying the problem is gone resolves, everything else gets a checklist.
	isRed := in.Diagnosis != nil && in.Diagnosis.TriageLevel == models.RiskRed
	hasStopReasons := in.Diagnosis != nil && len(in.Diagnosis.StopDrivingReasons) > 0
	userReportsResolved := false
	for _, k := range resolvedKeywords {
		if strings.Contains(msg, k) {
			userReportsResolved = true
			break
		}
	}

	if isRed || hasStopReasons {
		reasons := stopReasons(in.Diagnosis)
		if len(reasons) == 0 {
			reasons = []string{"RED triage auto-escalation"}
		}
		out, err := a.escalate(ctx, in.Case, reasons)
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "escalate_case", Details: out})
		trace = append(trace, "Auto policy escalated due to RED/high-risk signal.")
		return a.result(in.Case, executed, trace), nil
	}

	if userReportsResolved && in.Case.Status != models.CaseEscalated {
		summary := in.ResolutionSummary
		if summary == "" {
			summary = "User indicated issue is resolved."
		}
		out, err := a.resolve(ctx, in.Case, summary)
		if err != nil {
			return nil, err
		}
		executed = append(executed, ExecutedAction{Tool: "resolve_case", Details: out})
		trace = append(trace, "Auto policy resolved case based on user message.")
		return a.result(in.Case, executed, trace), nil
	}

	out, err := a.createChecklist(ctx, in.Case, in.Diagnosis)
	if err != nil {
		return nil, err
	}
	executed = append(executed, ExecutedAction{Tool: "create_action_checklist", Details: out})
	trace = append(trace, "Auto policy generated checklist for next steps.")

	return a.result(in.Case, executed, trace), nil
}

func (a *Agent) result(cs *models.CaseSession, executed []ExecutedAction, trace []string) *RunResult {
	logger.Debug("Agent run completed",
		zap.String("case_id", cs.ID),
		zap.String("status", cs.Status),
		zap.Int("actions", len(executed)))

	return &RunResult{
		CaseID:          cs.ID,
		CaseStatus:      cs.Status,
		RiskLevel:       cs.CurrentRiskLevel,
		ExecutedActions: executed,
		ReasonTrace:     trace,
	}
}

func stopReasons(d *models.DiagnosisResult) []string {
	if d == nil {
		return nil
	}
	reasons := d.StopDrivingReasons
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}
