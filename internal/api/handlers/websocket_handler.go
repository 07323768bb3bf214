package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/chat"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/pkg/logger"
)

type WebSocketHandler struct {
	service *chat.Service
}

func NewWebSocketHandler(service *chat.Service) *WebSocketHandler {
	return &WebSocketHandler{service: service}
}

// HandleConnection serves a chat session over one websocket. Each incoming
// chat message runs a full diagnostic turn; the assistant reply is streamed
// word by word before the structured result.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			CaseID  string `json:"case_id"`
			Message string `json:"message"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}
		if msg.CaseID == "" || msg.Message == "" {
			h.sendError(c, "case_id and message are required")
			continue
		}

		logger.Info("Processing WebSocket chat turn", zap.String("case_id", msg.CaseID))

		if err := h.streamTurn(c, msg.CaseID, msg.Message); err != nil {
			logger.Error("Failed to stream chat turn", zap.Error(err))
			if errors.Is(err, models.ErrNotFound) {
				h.sendError(c, "Case not found")
			} else {
				h.sendError(c, "Failed to process chat message")
			}
		}
	}
}

func (h *WebSocketHandler) streamTurn(c *websocket.Conn, caseID, message string) error {
	ctx := context.Background()

	if err := h.sendChunk(c, "status", "Analyzing symptoms..."); err != nil {
		return err
	}

	resp, err := h.service.HandleTurn(ctx, caseID, message)
	if err != nil {
		return err
	}

	words := splitIntoWords(resp.AssistantReply)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":                "complete",
		"case_id":             resp.CaseID,
		"diagnosis_version":   resp.DiagnosisVersion,
		"triage_level":        resp.TriageLevel,
		"confidence":          resp.Confidence,
		"follow_up_questions": resp.FollowUpQuestions,
		"citations":           resp.Citations,
		"retrieval_mode":      resp.RetrievalMode,
		"latency_ms":          resp.LatencyMS,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
