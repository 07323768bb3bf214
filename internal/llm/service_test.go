package llm

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/autoaid/backend/internal/storage/models"
)

func TestParsePayloadPlainJSON(t *testing.T) {
	raw := `{"summary":"Worn pads.","triage_level":"yellow","confidence":0.7,
		"likely_causes":["worn brake pads"],"recommended_actions":["inspect pads"],
		"stop_driving_reasons":[],"follow_up_questions":["Any vibration?"]}`

	p, err := parsePayload(raw)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if p.TriageLevel != models.RiskYellow || p.Confidence != 0.7 {
		t.Errorf("got %+v", p)
	}
	if len(p.LikelyCauses) != 1 || p.LikelyCauses[0] != "worn brake pads" {
		t.Errorf("likely causes = %v", p.LikelyCauses)
	}
}

func TestParsePayloadSalvagesWrappedJSON(t *testing.T) {
	raw := "Here is my assessment:\n```json\n" +
		`{"summary":"Worn pads.","triage_level":"green","confidence":0.9}` +
		"\n```\nLet me know if you need more."

	p, err := parsePayload(raw)
	if err != nil {
		t.Fatalf("parsePayload: %v", err)
	}
	if p.TriageLevel != models.RiskGreen {
		t.Errorf("triage = %s, want green", p.TriageLevel)
	}
}

func TestParsePayloadRejectsNonJSON(t *testing.T) {
	if _, err := parsePayload("I cannot answer that."); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestPayloadNormalize(t *testing.T) {
	long := strings.Repeat("x", 600)
	p := &payload{
		Summary:     long,
		TriageLevel: "purple",
		Confidence:  1.7,
		LikelyCauses: []string{
			"  padded cause  ",
			"",
			strings.Repeat("y", 300),
		},
	}
	p.normalize()

	if p.TriageLevel != models.RiskUnknown {
		t.Errorf("triage = %s, want unknown", p.TriageLevel)
	}
	if p.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", p.Confidence)
	}
	if len(p.Summary) != maxSummaryLen {
		t.Errorf("summary length = %d, want %d", len(p.Summary), maxSummaryLen)
	}
	if len(p.LikelyCauses) != 2 {
		t.Fatalf("likely causes = %v", p.LikelyCauses)
	}
	if p.LikelyCauses[0] != "padded cause" {
		t.Errorf("first cause = %q, want trimmed", p.LikelyCauses[0])
	}
	if len(p.LikelyCauses[1]) != maxItemLength {
		t.Errorf("second cause length = %d, want %d", len(p.LikelyCauses[1]), maxItemLength)
	}
}

func TestPayloadNormalizeKeepsRunesWhole(t *testing.T) {
	p := &payload{
		TriageLevel:  models.RiskYellow,
		Summary:      strings.Repeat("a", maxSummaryLen-1) + "über",
		LikelyCauses: []string{strings.Repeat("b", maxItemLength-1) + "ähnliches"},
	}
	p.normalize()

	if !utf8.ValidString(p.Summary) {
		t.Errorf("summary is not valid UTF-8: %q", p.Summary)
	}
	if want := strings.Repeat("a", maxSummaryLen-1); p.Summary != want {
		t.Errorf("summary length = %d, want %d", len(p.Summary), len(want))
	}
	if !utf8.ValidString(p.LikelyCauses[0]) {
		t.Errorf("cause is not valid UTF-8: %q", p.LikelyCauses[0])
	}
	if want := strings.Repeat("b", maxItemLength-1); p.LikelyCauses[0] != want {
		t.Errorf("cause length = %d, want %d", len(p.LikelyCauses[0]), len(want))
	}
}

func TestPayloadNormalizeNegativeConfidence(t *testing.T) {
	p := &payload{TriageLevel: models.RiskGreen, Confidence: -0.5}
	p.normalize()
	if p.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", p.Confidence)
	}
}

func TestPayloadNormalizeCapsListLength(t *testing.T) {
	items := make([]string, maxListItems+4)
	for i := range items {
		items[i] = "action"
	}
	p := &payload{TriageLevel: models.RiskGreen, RecommendedActions: items}
	p.normalize()
	if len(p.RecommendedActions) != maxListItems {
		t.Errorf("actions = %d, want %d", len(p.RecommendedActions), maxListItems)
	}
}

func TestKeywordRiskOverride(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"brake failure", "My BRAKE FAILED on the highway", "Possible brake failure reported."},
		{"smoke", "there is smoke under the hood", "Smoke detected, possible fire/mechanical hazard."},
		{"first flag wins", "brake failed and fuel leak", "Possible brake failure reported."},
		{"no flag", "slight rattle at idle", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keywordRiskOverride(tt.message); got != tt.want {
				t.Errorf("keywordRiskOverride(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestSanitizeActions(t *testing.T) {
	actions := []string{
		"Check tire pressure.",
		"Disassemble brakes to inspect the pads.",
		"Open fuel line and check flow.",
	}
	got := sanitizeActions(actions)

	if got[0] != "Check tire pressure." {
		t.Errorf("safe action altered: %q", got[0])
	}
	if got[1] != safeActionReplacement || got[2] != safeActionReplacement {
		t.Errorf("unsafe actions not replaced: %v", got[1:])
	}
}

func TestGenerateFallbackWithoutClient(t *testing.T) {
	s := NewService(nil, "gpt-4o-mini")

	d := s.Generate(context.Background(), nil, nil, "car makes a clicking noise", "")
	if d.ModelName != FallbackModelName {
		t.Errorf("model = %s, want %s", d.ModelName, FallbackModelName)
	}
	if d.TriageLevel != models.RiskYellow {
		t.Errorf("triage = %s, want yellow", d.TriageLevel)
	}
	if d.Confidence != 0.35 {
		t.Errorf("confidence = %v, want 0.35", d.Confidence)
	}
	if len(d.FollowUpQuestions) == 0 {
		t.Error("fallback should carry follow-up questions")
	}
	if !strings.Contains(d.AssistantReply, "not a substitute for a certified mechanic") {
		t.Error("reply missing disclaimer")
	}
}

func TestGenerateRedOverrideOnFallback(t *testing.T) {
	s := NewService(nil, "gpt-4o-mini")

	d := s.Generate(context.Background(), nil, nil, "I see smoke from the engine bay", "")
	if d.TriageLevel != models.RiskRed {
		t.Fatalf("triage = %s, want red", d.TriageLevel)
	}
	if len(d.StopDrivingReasons) == 0 || !strings.Contains(d.StopDrivingReasons[0], "Smoke detected") {
		t.Errorf("stop reasons = %v", d.StopDrivingReasons)
	}
	if len(d.RecommendedActions) != len(redOverrideActions) {
		t.Fatalf("actions = %v, want red override set", d.RecommendedActions)
	}
	if d.RecommendedActions[0] != "Do not continue driving." {
		t.Errorf("first action = %q", d.RecommendedActions[0])
	}
}

func TestRenderReplySections(t *testing.T) {
	p := &payload{
		Summary:            "Likely worn pads.",
		TriageLevel:        models.RiskYellow,
		Confidence:         0.72,
		LikelyCauses:       []string{"worn brake pads"},
		RecommendedActions: []string{"inspect pads"},
		FollowUpQuestions:  []string{"Any grinding noise?"},
	}

	reply := renderReply(p)
	for _, want := range []string{
		"Assessment: Likely worn pads.",
		"Triage level: YELLOW (confidence 0.72)",
		"Likely causes:",
		"- worn brake pads",
		"Recommended safe actions:",
		"Follow-up questions:",
		"Note: This is informational guidance, not a substitute for a certified mechanic.",
	} {
		if !strings.Contains(reply, want) {
			t.Errorf("reply missing %q:\n%s", want, reply)
		}
	}
	if strings.Contains(reply, "Stop driving reasons:") {
		t.Error("empty section should be omitted")
	}
}

func TestRenderReplyCapsSectionItems(t *testing.T) {
	causes := make([]string, 8)
	for i := range causes {
		causes[i] = "cause"
	}
	p := &payload{Summary: "s", TriageLevel: models.RiskGreen, LikelyCauses: causes}

	reply := renderReply(p)
	if n := strings.Count(reply, "- cause"); n != 5 {
		t.Errorf("rendered causes = %d, want 5", n)
	}
}

func TestVehicleText(t *testing.T) {
	v := &models.VehicleProfile{Make: "Toyota", Model: "Corolla", Year: 2019}
	got := vehicleText(v)
	if !strings.Contains(got, "Toyota") || !strings.Contains(got, "2019") {
		t.Errorf("vehicleText = %q", got)
	}
	if !strings.Contains(got, "unknown") {
		t.Errorf("zero engine/mileage should render as unknown: %q", got)
	}

	if got := vehicleText(nil); got == "" {
		t.Error("nil vehicle should still produce a line")
	}
}

func TestPrepareContextCapsLength(t *testing.T) {
	long := strings.Repeat("k", maxContextChars+500)
	got := prepareContext(long)
	if len(got) > maxContextChars+200 {
		t.Errorf("context block length = %d, want capped near %d", len(got), maxContextChars)
	}
	if empty := prepareContext(""); !strings.Contains(empty, "none") {
		t.Errorf("empty context should state that none was retrieved: %q", empty)
	}
}
