package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/autoaid/backend/internal/metrics"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
)

// Checklist buckets recommended actions by urgency.
type Checklist struct {
	Immediate []string `json:"immediate"`
	Soon      []string `json:"soon"`
	Monitor   []string `json:"monitor"`
}

func (a *Agent) recordAction(ctx context.Context, cs *models.CaseSession, actionType, reason string, input, output map[string]interface{}) (string, error) {
	action := &models.CaseAction{
		ID:            uuid.New().String(),
		CaseID:        cs.ID,
		ActionType:    actionType,
		Status:        models.ActionExecuted,
		Reason:        textproc.Truncate(reason, maxReasonLength),
		InputPayload:  input,
		OutputPayload: output,
		CreatedAt:     time.Now(),
	}
	if err := a.store.InsertCaseAction(ctx, action); err != nil {
		return "", fmt.Errorf("failed to record %s action: %w", actionType, err)
	}

	metrics.AgentActionsExecuted.WithLabelValues(actionType, action.Status).Inc()
	return action.ID, nil
}

func (a *Agent) saveNote(ctx context.Context, cs *models.CaseSession, noteText string, tags []string) (map[string]interface{}, error) {
	note := &models.CaseNote{
		ID:        uuid.New().String(),
		CaseID:    cs.ID,
		Source:    "agent",
		NoteText:  strings.TrimSpace(noteText),
		Tags:      tags,
		CreatedAt: time.Now(),
	}
	if err := a.store.InsertCaseNote(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save case note: %w", err)
	}

	actionID, err := a.recordAction(ctx, cs, models.ActionSaveNote,
		"Agent saved a case note.",
		map[string]interface{}{"tags": tags, "source": note.Source},
		map[string]interface{}{"note_id": note.ID})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"note_id": note.ID, "action_id": actionID}, nil
}

func (a *Agent) createChecklist(ctx context.Context, cs *models.CaseSession, d *models.DiagnosisResult) (map[string]interface{}, error) {
	checklist := buildChecklist(d)

	if cs.Metadata == nil {
		cs.Metadata = map[string]interface{}{}
	}
	cs.Metadata["latest_checklist"] = checklist
	cs.Metadata["latest_checklist_at"] = time.Now().Format(time.RFC3339)
	cs.LastActivityAt = time.Now()
	if err := a.store.UpdateCase(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to store checklist: %w", err)
	}

	input := map[string]interface{}{"diagnosis_id": nil}
	if d != nil {
		input["diagnosis_id"] = d.ID
	}
	actionID, err := a.recordAction(ctx, cs, models.ActionCreateChecklist,
		"Agent generated action checklist.",
		input,
		map[string]interface{}{"checklist": checklist})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"checklist": checklist, "action_id": actionID}, nil
}

func (a *Agent) escalate(ctx context.Context, cs *models.CaseSession, reasons []string) (map[string]interface{}, error) {
	cs.Status = models.CaseEscalated
	cs.CurrentRiskLevel = models.RiskRed
	cs.LastActivityAt = time.Now()
	if err := a.store.UpdateCase(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to escalate case: %w", err)
	}

	actionID, err := a.recordAction(ctx, cs, models.ActionEscalateCase,
		"Case escalated by agent.",
		map[string]interface{}{"reasons": reasons},
		map[string]interface{}{"status": cs.Status, "risk": cs.CurrentRiskLevel})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"escalated": true, "reasons": reasons, "action_id": actionID}, nil
}

func (a *Agent) resolve(ctx context.Context, cs *models.CaseSession, resolutionSummary string) (map[string]interface{}, error) {
	now := time.Now()
	cs.Status = models.CaseResolved
	cs.FinalSummary = textproc.Truncate(strings.TrimSpace(resolutionSummary), maxSummaryLength)
	cs.ClosedAt = &now
	cs.LastActivityAt = now
	if err := a.store.UpdateCase(ctx, cs); err != nil {
		return nil, fmt.Errorf("failed to resolve case: %w", err)
	}

	actionID, err := a.recordAction(ctx, cs, models.ActionResolveCase,
		"Case resolved by agent.",
		map[string]interface{}{"resolution_summary": resolutionSummary},
		map[string]interface{}{"status": cs.Status, "closed_at": now.Format(time.RFC3339)})
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"resolved": true, "action_id": actionID}, nil
}

// buildChecklist buckets diagnosis actions: red goes to immediate with its
// stop reasons, yellow and unknown to soon, green to monitor. Each bucket is
// deduplicated and capped at ten entries.
func buildChecklist(d *models.DiagnosisResult) *Checklist {
	c := &Checklist{
		Immediate: []string{},
		Soon:      []string{},
		Monitor:   []string{},
	}
	if d == nil {
		return c
	}

	if d.TriageLevel == models.RiskRed {
		c.Immediate = append(c.Immediate,
			"Do not continue driving.",
			"Park in a safe location.",
			"Contact roadside assistance or certified mechanic.")
		reasons := d.StopDrivingReasons
		if len(reasons) > 4 {
			reasons = reasons[:4]
		}
		for _, r := range reasons {
			c.Immediate = append(c.Immediate, "Reason: "+r)
		}
	}

	actions := d.RecommendedActions
	if len(actions) > 8 {
		actions = actions[:8]
	}
	for _, item := range actions {
		text := strings.TrimSpace(item)
		if text == "" {
			continue
		}
		switch d.TriageLevel {
		case models.RiskGreen:
			c.Monitor = append(c.Monitor, text)
		default:
			c.Soon = append(c.Soon, text)
		}
	}

	c.Immediate = dedupe(c.Immediate)
	c.Soon = dedupe(c.Soon)
	c.Monitor = dedupe(c.Monitor)
	return c
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return out
}
