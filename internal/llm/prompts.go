package llm

import (
	"fmt"
	"strings"

	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/textproc"
)

const systemPrompt = `You are AutoAid Pro, a cautious automotive troubleshooting advisor.

Rules:
1) Return ONLY valid JSON (no markdown, no extra text).
2) Be safety-first. If there is any potential danger, raise triage level.
3) Never give risky repair instructions (no brake disassembly, fuel system opening, high-voltage EV handling, or bypassing safety systems).
4) Prefer safe checks only:
   - visual inspection from outside
   - dashboard warning lights
   - unusual smell/smoke/noise observations
   - parking and calling a certified mechanic
5) If symptoms suggest immediate risk, triage_level must be "red" and include stop_driving_reasons.
6) Keep output practical and concise.

Required JSON shape:
{
  "summary": "string",
  "triage_level": "green|yellow|red|unknown",
  "confidence": 0.0,
  "likely_causes": ["..."],
  "recommended_actions": ["..."],
  "stop_driving_reasons": ["..."],
  "follow_up_questions": ["..."]
}`

const maxContextChars = 7000

func buildUserPrompt(vehicleText, latestUserMessage, caseHistoryText, ragContext string) string {
	ragBlock := strings.TrimSpace(ragContext)
	if ragBlock == "" {
		ragBlock = "None"
	}

	return fmt.Sprintf(`Vehicle Profile:
%s

Recent Case History:
%s

Latest User Message:
%s

Retrieved Knowledge Context (optional):
%s

Task:
- Provide cautious troubleshooting guidance.
- Output STRICT JSON only using the required schema.`,
		vehicleText, caseHistoryText, latestUserMessage, ragBlock)
}

func vehicleText(v *models.VehicleProfile) string {
	if v == nil {
		return "Unknown vehicle."
	}
	engine := "unknown"
	if v.EngineCC > 0 {
		engine = fmt.Sprintf("%d", v.EngineCC)
	}
	mileage := "unknown"
	if v.MileageKM > 0 {
		mileage = fmt.Sprintf("%d", v.MileageKM)
	}
	return fmt.Sprintf("Make: %s, Model: %s, Year: %d, Engine CC: %s, Transmission: %s, Fuel: %s, Mileage KM: %s",
		v.Make, v.Model, v.Year, engine, v.Transmission, v.FuelType, mileage)
}

func caseHistoryText(symptoms []models.SymptomReport) string {
	if len(symptoms) == 0 {
		return "No previous symptom reports."
	}
	lines := make([]string, len(symptoms))
	for i, s := range symptoms {
		lines[i] = fmt.Sprintf("- [%s] %s", s.Source, s.RawText)
	}
	return strings.Join(lines, "\n")
}

// prepareContext gives the prompt a deterministic knowledge block: retrieved
// snippets when there are any, an explicit "none" otherwise.
func prepareContext(ragContext string) string {
	clean := strings.TrimSpace(ragContext)
	if clean == "" {
		return "Retrieved knowledge context: none.\n" +
			"Proceed with normal safe troubleshooting based on vehicle profile and user symptoms."
	}
	clean = textproc.Truncate(clean, maxContextChars)
	return "Retrieved knowledge context (use only if relevant and do not hallucinate):\n" + clean
}
