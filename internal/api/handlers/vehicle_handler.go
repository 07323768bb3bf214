package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/storage/sqlite"
	"github.com/autoaid/backend/pkg/logger"
)

type VehicleHandler struct {
	store *sqlite.Client
}

func NewVehicleHandler(store *sqlite.Client) *VehicleHandler {
	return &VehicleHandler{store: store}
}

func (h *VehicleHandler) CreateVehicle(c *fiber.Ctx) error {
	var req models.VehicleProfile

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Make == "" || req.Model == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Make and model are required",
		})
	}
	if req.Year < 1950 || req.Year > time.Now().Year()+1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Year is out of range",
		})
	}
	if req.Transmission == "" {
		req.Transmission = "automatic"
	}
	if req.FuelType == "" {
		req.FuelType = "gasoline"
	}

	now := time.Now()
	req.ID = uuid.New().String()
	req.CreatedAt = now
	req.UpdatedAt = now

	if err := h.store.InsertVehicle(c.Context(), &req); err != nil {
		logger.Error("Failed to create vehicle", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create vehicle",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(req)
}

func (h *VehicleHandler) GetVehicle(c *fiber.Ctx) error {
	vehicle, err := h.store.GetVehicle(c.Context(), c.Params("vehicle_id"))
	if err != nil {
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

	return c.JSON(vehicle)
}

func (h *VehicleHandler) ListVehicles(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	vehicles, err := h.store.ListVehicles(c.Context(), c.Query("owner_ref"), limit)
	if err != nil {
		logger.Error("Failed to list vehicles", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list vehicles",
		})
	}

	if vehicles == nil {
		vehicles = []models.VehicleProfile{}
	}
	return c.JSON(fiber.Map{"vehicles": vehicles})
}
