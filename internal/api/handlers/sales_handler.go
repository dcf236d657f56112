package handlers

import (
	"saleschat/internal/dto"
	"saleschat/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type SalesHandler struct {
	ingest *service.IngestService
	logger *zap.Logger
}

func NewSalesHandler(ingest *service.IngestService, logger *zap.Logger) *SalesHandler {
	return &SalesHandler{
		ingest: ingest,
		logger: logger,
	}
}

// Upload ingests a CSV of sales transactions. Re-uploading the same file is
// safe; existing rows are reported as skipped.
func (h *SalesHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file upload")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "failed to open uploaded file")
	}
	defer file.Close()

	report, err := h.ingest.ImportCSV(c.Context(), file)
	if err != nil {
		h.logger.Error("CSV import failed", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "failed to import sales data")
	}

	return c.JSON(dto.IngestReportResponse{
		Rows:     report.Rows,
		Inserted: report.Inserted,
		Skipped:  report.Skipped,
		Embedded: report.Embedded,
	})
}
