package llm

import (
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
)

const (
	maxListItems  = 8
	maxItemLength = 220
	maxSummaryLen = 500
)

// payload is the JSON shape the model is asked to produce.
type payload struct {
	Summary            string   `json:"summary"`
	TriageLevel        string   `json:"triage_level"`
	Confidence         float64  `json:"confidence"`
	LikelyCauses       []string `json:"likely_causes"`
	RecommendedActions []string `json:"recommended_actions"`
	StopDrivingReasons []string `json:"stop_driving_reasons"`
	FollowUpQuestions  []string `json:"follow_up_questions"`
}

// normalize coerces a model response into bounds: unknown triage for invalid
// levels, confidence clamped to [0,1], list items trimmed, truncated, and
// capped.
func (p *payload) normalize() {
	switch p.TriageLevel {
	case models.RiskGreen, models.RiskYellow, models.RiskRed, models.RiskUnknown:
	default:
		p.TriageLevel = models.RiskUnknown
	}

	if p.Confidence < 0 {
		p.Confidence = 0
	}
	if p.Confidence > 1 {
		p.Confidence = 1
	}

	p.Summary = textproc.Truncate(p.Summary, maxSummaryLen)

	p.LikelyCauses = cleanList(p.LikelyCauses)
	p.RecommendedActions = cleanList(p.RecommendedActions)
	p.StopDrivingReasons = cleanList(p.StopDrivingReasons)
	p.FollowUpQuestions = cleanList(p.FollowUpQuestions)
}
