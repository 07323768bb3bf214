package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/agent"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/storage/sqlite"
	"github.com/autoaid/backend/pkg/logger"
)

type CaseHandler struct {
	store     *sqlite.Client
	caseAgent *agent.Agent
}

func NewCaseHandler(store *sqlite.Client, caseAgent *agent.Agent) *CaseHandler {
	return &CaseHandler{
		store:     store,
		caseAgent: caseAgent,
	}
}

func (h *CaseHandler) CreateCase(c *fiber.Ctx) error {
	var req struct {
		VehicleID           string `json:"vehicle_id"`
		Channel             string `json:"channel"`
		InitialProblemTitle string `json:"initial_problem_title"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.VehicleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "vehicle_id is required",
		})
	}
	if _, err := h.store.GetVehicle(c.Context(), req.VehicleID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Vehicle not found",
			})
		}
		logger.Error("Failed to load vehicle", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load vehicle",
		})
	}

	if req.Channel == "" {
		req.Channel = "api"
	}

	now := time.Now()
	cs := &models.CaseSession{
		ID:                  uuid.New().String(),
		VehicleID:           req.VehicleID,
		Channel:             req.Channel,
		Status:              models.CaseOpen,
		CurrentRiskLevel:    models.RiskUnknown,
		InitialProblemTitle: req.InitialProblemTitle,
		Metadata:            map[string]interface{}{},
		OpenedAt:            now,
		LastActivityAt:      now,
	}

	if err := h.store.InsertCase(c.Context(), cs); err != nil {
		logger.Error("Failed to create case", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create case",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(cs)
}

// GetCase returns a case snapshot including its latest diagnosis, when one
// exists.
func (h *CaseHandler) GetCase(c *fiber.Ctx) error {
	cs, err := h.store.GetCase(c.Context(), c.Params("case_id"))
	if err != nil {
		return caseError(c, err)
	}

	snapshot := fiber.Map{
		"id":                    cs.ID,
		"vehicle_id":            cs.VehicleID,
		"channel":               cs.Channel,
		"status":                cs.Status,
		"current_risk_level":    cs.CurrentRiskLevel,
		"initial_problem_title": cs.InitialProblemTitle,
		"latest_user_message":   cs.LatestUserMessage,
		"final_summary":         cs.FinalSummary,
		"metadata":              cs.Metadata,
		"opened_at":             cs.OpenedAt,
		"closed_at":             cs.ClosedAt,
		"last_activity_at":      cs.LastActivityAt,
	}

	if latest, err := h.store.LatestDiagnosis(c.Context(), cs.ID); err == nil {
		snapshot["latest_diagnosis"] = latest
	} else if !errors.Is(err, models.ErrNotFound) {
		logger.Error("Failed to load latest diagnosis", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load latest diagnosis",
		})
	}

	return c.JSON(snapshot)
}

func (h *CaseHandler) AddSymptom(c *fiber.Ctx) error {
	cs, err := h.store.GetCase(c.Context(), c.Params("case_id"))
	if err != nil {
		return caseError(c, err)
	}

	var req struct {
		Source  string `json:"source"`
		RawText string `json:"raw_text"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.RawText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "raw_text is required",
		})
	}
	switch req.Source {
	case "":
		req.Source = models.SymptomFromUser
	case models.SymptomFromUser, models.SymptomFromAssistant, models.SymptomFromSystem:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid symptom source",
		})
	}

	symptom := &models.SymptomReport{
		ID:        uuid.New().String(),
		CaseID:    cs.ID,
		Source:    req.Source,
		RawText:   req.RawText,
		CreatedAt: time.Now(),
	}
	if err := h.store.InsertSymptom(c.Context(), symptom); err != nil {
		logger.Error("Failed to save symptom", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save symptom",
		})
	}

	if symptom.Source == models.SymptomFromUser {
		cs.LatestUserMessage = symptom.RawText
		cs.LastActivityAt = time.Now()
		if err := h.store.UpdateCase(c.Context(), cs); err != nil {
			logger.Error("Failed to update case", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update case",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(symptom)
}

// RunAgent triggers the case agent manually, optionally forcing an action.
func (h *CaseHandler) RunAgent(c *fiber.Ctx) error {
	cs, err := h.store.GetCase(c.Context(), c.Params("case_id"))
	if err != nil {
		return caseError(c, err)
	}

	var req struct {
		Message           string `json:"message"`
		ForceAction       string `json:"force_action"`
		ResolutionSummary string `json:"resolution_summary"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	var latest *models.DiagnosisResult
	if d, err := h.store.LatestDiagnosis(c.Context(), cs.ID); err == nil {
		latest = d
	} else if !errors.Is(err, models.ErrNotFound) {
		logger.Error("Failed to load latest diagnosis", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load latest diagnosis",
		})
	}

	out, err := h.caseAgent.Run(c.Context(), agent.Input{
		Case:              cs,
		Diagnosis:         latest,
		UserMessage:       req.Message,
		ForceAction:       req.ForceAction,
		ResolutionSummary: req.ResolutionSummary,
	})
	if err != nil {
		logger.Error("Agent run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Agent run failed",
		})
	}

	return c.JSON(out)
}

func (h *CaseHandler) ListActions(c *fiber.Ctx) error {
	cs, err := h.store.GetCase(c.Context(), c.Params("case_id"))
	if err != nil {
		return caseError(c, err)
	}

	actions, err := h.store.ListCaseActions(c.Context(), cs.ID, 100)
	if err != nil {
		logger.Error("Failed to list case actions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list case actions",
		})
	}

	if actions == nil {
		actions = []models.CaseAction{}
	}
	return c.JSON(fiber.Map{"actions": actions})
}

func (h *CaseHandler) ListNotes(c *fiber.Ctx) error {
	cs, err := h.store.GetCase(c.Context(), c.Params("case_id"))
	if err != nil {
		return caseError(c, err)
	}

	notes, err := h.store.ListCaseNotes(c.Context(), cs.ID, 100)
	if err != nil {
		logger.Error("Failed to list case notes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list case notes",
		})
	}

	if notes == nil {
		notes = []models.CaseNote{}
	}
	return c.JSON(fiber.Map{"notes": notes})
}

// caseError maps storage errors from case lookups onto HTTP responses.
func caseError(c *fiber.Ctx, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Case not found",
		})
	}
	logger.Error("Failed to load case", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to load case",
	})
}
