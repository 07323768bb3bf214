package handlers

import (
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoaid/backend/internal/ingestion"
	"github.com/autoaid/backend/internal/storage/models"
	"github.com/autoaid/backend/internal/storage/sqlite"
	"github.com/autoaid/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	store     *sqlite.Client
}

func NewDocumentHandler(processor *ingestion.Processor, store *sqlite.Client) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		store:     store,
	}
}

// UploadDocument ingests a knowledge document submitted either as JSON with
// inline raw_text or as a multipart form with an attached file. Posting an
// existing document_id re-ingests that document.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	var req struct {
		DocumentID   string `json:"document_id"`
		Title        string `json:"title"`
		SourceType   string `json:"source_type"`
		VehicleMake  string `json:"vehicle_make"`
		VehicleModel string `json:"vehicle_model"`
		YearFrom     *int   `json:"year_from"`
		YearTo       *int   `json:"year_to"`
		RawText      string `json:"raw_text"`
	}

	var (
		fileData []byte
		fileName string
	)

	if form, err := c.MultipartForm(); err == nil && form != nil {
		req.DocumentID = c.FormValue("document_id")
		req.Title = c.FormValue("title")
		req.SourceType = c.FormValue("source_type")
		req.VehicleMake = c.FormValue("vehicle_make")
		req.VehicleModel = c.FormValue("vehicle_model")
		req.YearFrom = parseOptionalInt(c.FormValue("year_from"))
		req.YearTo = parseOptionalInt(c.FormValue("year_to"))
		req.RawText = c.FormValue("raw_text")

		if files := form.File["file"]; len(files) > 0 {
			fh := files[0]
			f, err := fh.Open()
			if err != nil {
				logger.Error("Failed to open uploaded file", zap.Error(err))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Failed to read uploaded file",
				})
			}
			defer f.Close()
			fileData, err = io.ReadAll(f)
			if err != nil {
				logger.Error("Failed to read uploaded file", zap.Error(err))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Failed to read uploaded file",
				})
			}
			fileName = fh.Filename
		}
	} else if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}
	if req.SourceType == "" {
		req.SourceType = models.SourceOther
	}

	doc := &models.KnowledgeDocument{
		ID:           req.DocumentID,
		Title:        req.Title,
		SourceType:   req.SourceType,
		VehicleMake:  req.VehicleMake,
		VehicleModel: req.VehicleModel,
		YearFrom:     req.YearFrom,
		YearTo:       req.YearTo,
		RawText:      req.RawText,
		IsActive:     true,
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	} else if existing, err := h.store.GetDocument(c.Context(), doc.ID); err == nil {
		doc.CreatedAt = existing.CreatedAt
	}

	result, err := h.processor.Ingest(c.Context(), doc, fileData, fileName)
	if err != nil {
		var vErr *ingestion.ValidationError
		if errors.As(err, &vErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": vErr.Message,
			})
		}
		logger.Error("Failed to ingest document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetDocument returns document metadata and its chunk count.
func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	id := c.Params("document_id")

	doc, err := h.store.GetDocument(c.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to load document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document",
		})
	}

	chunks, err := h.store.ChunksByDocument(c.Context(), id)
	if err != nil {
		logger.Error("Failed to load document chunks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document chunks",
		})
	}

	indexed := 0
	for _, ch := range chunks {
		if ch.VectorID != "" {
			indexed++
		}
	}

	return c.JSON(fiber.Map{
		"id":              doc.ID,
		"title":           doc.Title,
		"source_type":     doc.SourceType,
		"vehicle_make":    doc.VehicleMake,
		"vehicle_model":   doc.VehicleModel,
		"year_from":       doc.YearFrom,
		"year_to":         doc.YearTo,
		"is_active":       doc.IsActive,
		"checksum":        doc.Checksum,
		"chunks":          len(chunks),
		"vectors_indexed": indexed,
		"created_at":      doc.CreatedAt.Format(time.RFC3339),
		"updated_at":      doc.UpdatedAt.Format(time.RFC3339),
	})
}

func parseOptionalInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
