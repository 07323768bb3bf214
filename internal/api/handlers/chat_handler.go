package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/chat"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/pkg/logger"
)

type ChatHandler struct {
	service *chat.Service
}

func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// Chat runs one full diagnostic turn for a case.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req struct {
		CaseID  string `json:"case_id"`
		Message string `json:"message"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.CaseID == "" || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "case_id and message are required",
		})
	}

	resp, err := h.service.HandleTurn(c.Context(), req.CaseID, req.Message)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Case not found",
			})
		}
		logger.Error("Chat turn failed", zap.String("case_id", req.CaseID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process chat message",
		})
	}

	return c.JSON(resp)
}
