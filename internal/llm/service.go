package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/metrics"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
	"github.com/autoaid/backend/pkg/circuitbreaker"
	"github.com/autoaid/backend/pkg/logger"
	"github.com/autoaid/backend/pkg/retry"
)

// FallbackModelName marks diagnoses produced by the rule-based fallback
// rather than the LLM.
const FallbackModelName = "rule_based_fallback"

const (
	completionTimeout = 60 * time.Second
	historyLimit      = 6
)

// redFlag pairs a symptom keyword with the stop-driving reason it forces.
// Matching is substring, case-insensitive, first hit wins.
type redFlag struct {
	keyword string
	reason  string
}

var redFlags = []redFlag{
	{"brake failed", "Possible brake failure reported."},
	{"can't stop", "Vehicle may not stop safely."},
	{"cannot stop", "Vehicle may not stop safely."},
	{"burning smell", "Possible overheating or electrical/fire risk."},
	{"smoke", "Smoke detected, possible fire/mechanical hazard."},
	{"engine overheating", "Engine overheating can cause severe damage."},
	{"temperature red", "Engine temperature in red zone."},
	{"fuel leak", "Possible fuel leak and fire risk."},
	{"steering locked", "Steering control issue may be dangerous."},
	{"check engine blinking", "Flashing check-engine may indicate severe misfire."},
}

var forbiddenActionKeywords = []string{
	"disassemble brakes",
	"open fuel line",
	"bypass",
	"disable airbag",
	"high-voltage battery",
	"remove brake caliper",
	"bleed brakes yourself",
}

const safeActionReplacement = "Have a certified mechanic inspect this safely."

var redOverrideActions = []string{
	"Do not continue driving.",
	"Park in a safe place away from traffic.",
	"Contact roadside assistance or a certified mechanic immediately.",
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Diagnosis is a finalized triage result, ready to persist and render.
type Diagnosis struct {
	AssistantReply     string   `json:"assistant_reply"`
	TriageLevel        string   `json:"triage_level"`
	Confidence         float64  `json:"confidence"`
	LikelyCauses       []string `json:"likely_causes"`
	RecommendedActions []string `json:"recommended_actions"`
	StopDrivingReasons []string `json:"stop_driving_reasons"`
	FollowUpQuestions  []string `json:"follow_up_questions"`
	ModelName          string   `json:"model_name"`
	LatencyMS          int      `json:"latency_ms"`
	TokensInput        int      `json:"tokens_input"`
	TokensOutput       int      `json:"tokens_output"`
}

// Service generates diagnoses. A nil OpenAI client is allowed; every call
// then takes the rule-based fallback path, so triage keeps working without an
// API key.
type Service struct {
	client   *openai.Client
	model    string
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
}

func NewService(client *openai.Client, model string) *Service {
	breaker := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	return &Service{
		client:   client,
		model:    model,
		breaker:  breaker,
		retryCfg: retry.DefaultConfig(),
	}
}

// Generate produces a diagnosis for the latest user message. LLM failures
// never surface as errors: the fallback payload is returned instead, and the
// deterministic red-flag override and action sanitizer run on every path.
func (s *Service) Generate(ctx context.Context, vehicle *models.VehicleProfile, history []models.SymptomReport, userMessage, ragContext string) *Diagnosis {
	started := time.Now()

	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	if s.client == nil {
		return s.finalize(fallbackPayload("API key missing"), userMessage, started, FallbackModelName, 0, 0)
	}

	userPrompt := buildUserPrompt(
		vehicleText(vehicle),
		userMessage,
		caseHistoryText(history),
		prepareContext(ragContext),
	)

	p, tokensIn, tokensOut, err := s.complete(ctx, userPrompt)
	if err != nil {
		logger.Warn("LLM generation failed, using rule-based fallback", zap.Error(err))
		return s.finalize(fallbackPayload("LLM generation error"), userMessage, started, FallbackModelName, 0, 0)
	}

	return s.finalize(p, userMessage, started, s.model, tokensIn, tokensOut)
}

func (s *Service) complete(ctx context.Context, userPrompt string) (*payload, int, int, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	var resp openai.ChatCompletionResponse
	err := s.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, s.retryCfg, func() error {
			var err error
			resp, err = s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       s.model,
				Temperature: 0.2,
				ResponseFormat: &openai.ChatCompletionResponseFormat{
					Type: openai.ChatCompletionResponseFormatTypeJSONObject,
				},
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
			})
			return err
		})
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, 0, 0, fmt.Errorf("chat completion returned no choices")
	}

	p, err := parsePayload(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, 0, 0, err
	}
	return p, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil
}

// parsePayload decodes the model's JSON, salvaging the outermost JSON object
// when the response carries stray text around it.
func parsePayload(raw string) (*payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		match := jsonObjectPattern.FindString(raw)
		if match == "" {
			return nil, fmt.Errorf("failed to parse diagnosis payload: %w", err)
		}
		if err := json.Unmarshal([]byte(match), &p); err != nil {
			return nil, fmt.Errorf("failed to parse diagnosis payload: %w", err)
		}
	}
	p.normalize()
	return &p, nil
}

func (s *Service) finalize(p *payload, userMessage string, started time.Time, modelName string, tokensIn, tokensOut int) *Diagnosis {
	if reason := keywordRiskOverride(userMessage); reason != "" {
		p.TriageLevel = models.RiskRed
		if !contains(p.StopDrivingReasons, reason) {
			p.StopDrivingReasons = append([]string{reason}, p.StopDrivingReasons...)
		}
		p.RecommendedActions = append([]string(nil), redOverrideActions...)
	}

	p.RecommendedActions = sanitizeActions(p.RecommendedActions)

	d := &Diagnosis{
		AssistantReply:     renderReply(p),
		TriageLevel:        p.TriageLevel,
		Confidence:         p.Confidence,
		LikelyCauses:       p.LikelyCauses,
		RecommendedActions: p.RecommendedActions,
		StopDrivingReasons: p.StopDrivingReasons,
		FollowUpQuestions:  p.FollowUpQuestions,
		ModelName:          modelName,
		LatencyMS:          int(time.Since(started).Milliseconds()),
		TokensInput:        tokensIn,
		TokensOutput:       tokensOut,
	}

	source := "llm"
	if modelName == FallbackModelName {
		source = "fallback"
	}
	metrics.DiagnosisTotal.WithLabelValues(d.TriageLevel, source).Inc()
	metrics.DiagnosisConfidence.Observe(d.Confidence)
	if tokensIn > 0 {
		metrics.LLMTokensUsed.WithLabelValues(modelName, "input").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		metrics.LLMTokensUsed.WithLabelValues(modelName, "output").Add(float64(tokensOut))
	}

	return d
}

func keywordRiskOverride(text string) string {
	msg := strings.ToLower(text)
	for _, rf := range redFlags {
		if strings.Contains(msg, rf.keyword) {
			return rf.reason
		}
	}
	return ""
}

// sanitizeActions replaces any action that suggests an unsafe repair with a
// referral to a mechanic.
func sanitizeActions(actions []string) []string {
	safe := make([]string, 0, len(actions))
	for _, a := range actions {
		low := strings.ToLower(a)
		replaced := false
		for _, bad := range forbiddenActionKeywords {
			if strings.Contains(low, bad) {
				safe = append(safe, safeActionReplacement)
				replaced = true
				break
			}
		}
		if !replaced {
			safe = append(safe, a)
		}
	}
	if len(safe) > maxListItems {
		safe = safe[:maxListItems]
	}
	return safe
}

func renderReply(p *payload) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Assessment: %s", p.Summary))
	lines = append(lines, fmt.Sprintf("Triage level: %s (confidence %.2f)", strings.ToUpper(p.TriageLevel), p.Confidence))

	appendSection := func(header string, items []string, limit int) {
		if len(items) == 0 {
			return
		}
		if len(items) > limit {
			items = items[:limit]
		}
		lines = append(lines, header)
		for _, it := range items {
			lines = append(lines, "- "+it)
		}
	}

	appendSection("Likely causes:", p.LikelyCauses, 5)
	appendSection("Recommended safe actions:", p.RecommendedActions, 6)
	appendSection("Stop driving reasons:", p.StopDrivingReasons, 4)
	appendSection("Follow-up questions:", p.FollowUpQuestions, 5)

	lines = append(lines, "Note: This is informational guidance, not a substitute for a certified mechanic.")
	return strings.Join(lines, "\n")
}

func fallbackPayload(reason string) *payload {
	return &payload{
		Summary:     fmt.Sprintf("Initial safe assessment generated by fallback mode (%s).", reason),
		TriageLevel: models.RiskYellow,
		Confidence:  0.35,
		LikelyCauses: []string{
			"Insufficient data for precise diagnosis yet.",
		},
		RecommendedActions: []string{
			"Avoid long/high-speed driving until inspected.",
			"Check dashboard warning lights and note exact behavior.",
			"Book a certified mechanic inspection soon.",
		},
		FollowUpQuestions: []string{
			"When did the issue start?",
			"Any dashboard warning lights currently on?",
			"Does the problem get worse with speed, braking, or AC?",
		},
	}
}

func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, it := range items {
		t := strings.TrimSpace(it)
		if t == "" {
			continue
		}
		t = textproc.Truncate(t, maxItemLength)
		cleaned = append(cleaned, t)
	}
	if len(cleaned) > maxListItems {
		cleaned = cleaned[:maxListItems]
	}
	return cleaned
}

func contains(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}
