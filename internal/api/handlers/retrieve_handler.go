package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/retrieval"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/storage/sqlite"
	"github.com/autoaid/backend/pkg/logger"
)

type RetrieveHandler struct {
	engine *retrieval.Engine
	store  *sqlite.Client
}

func NewRetrieveHandler(engine *retrieval.Engine, store *sqlite.Client) *RetrieveHandler {
	return &RetrieveHandler{
		engine: engine,
		store:  store,
	}
}

// Retrieve answers a standalone retrieval query. When case_id is set, the
// case's vehicle narrows and reranks the results.
func (h *RetrieveHandler) Retrieve(c *fiber.Ctx) error {
	var req struct {
		Query  string `json:"query"`
		TopK   int    `json:"top_k"`
		CaseID string `json:"case_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	var filter *models.VehicleFilter
	if req.CaseID != "" {
		cs, err := h.store.GetCase(c.Context(), req.CaseID)
		if err != nil {
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

		vehicle, err := h.store.GetVehicle(c.Context(), cs.VehicleID)
		if err != nil {
			logger.Error("Failed to load case vehicle", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load case vehicle",
			})
		}
		filter = &models.VehicleFilter{
			Make:  vehicle.Make,
			Model: vehicle.Model,
			Year:  vehicle.Year,
		}
	}

	result, err := h.engine.Retrieve(c.Context(), retrieval.Request{
		Query:   req.Query,
		TopK:    req.TopK,
		CaseID:  req.CaseID,
		Vehicle: filter,
	})
	if err != nil {
		logger.Error("Retrieval failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Retrieval failed",
		})
	}

	return c.JSON(result)
}
