package handler

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/service"
)

// ExportHandler streams marks sheets.
type ExportHandler struct {
	service service.ExportService
	logger  zerolog.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(service service.ExportService, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger.With().Str("component", "export_handler").Logger(),
	}
}

// Register attaches export endpoints to the router group.
func (h *ExportHandler) Register(router fiber.Router) {
	router.Get("/marks-sheet/:id", h.marksSheet(service.ExportCSV))
	router.Get("/marks-sheet-excel/:id", h.marksSheet(service.ExportXLSX))
}

func (h *ExportHandler) marksSheet(format service.ExportFormat) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		name, err := h.service.MarksSheet(c.UserContext(), c.Params("id"), format, &buf)
		if err != nil {
			return respondError(c, h.logger, err)
		}

		c.Set(fiber.HeaderContentType, format.ContentType())
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
		return c.Status(fiber.StatusOK).Send(buf.Bytes())
	}
}
