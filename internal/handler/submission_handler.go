package handler

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/service"
	"github.com/noah-isme/gema-evalsync/internal/utils"
)

// UploadField is the multipart field carrying submission files.
const UploadField = "files"

// maxUploadFileBytes bounds a single uploaded file.
const maxUploadFileBytes = 20 << 20

// SubmissionHandler exposes submission upload and lookup.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches submission endpoints to the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/upload/:assignmentId", h.upload)
	router.Get("/:id", h.get)
}

func (h *SubmissionHandler) upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Expected a multipart upload")
	}

	headers := form.File[UploadField]
	files := make([]service.UploadedFile, 0, len(headers))
	for _, header := range headers {
		if header.Size > maxUploadFileBytes {
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("%s is larger than 20MB", header.Filename))
		}

		file, err := header.Open()
		if err != nil {
			return respondError(c, h.logger, fmt.Errorf("open upload %s: %w", header.Filename, err))
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			return respondError(c, h.logger, fmt.Errorf("read upload %s: %w", header.Filename, err))
		}

		files = append(files, service.UploadedFile{Name: header.Filename, Data: data})
	}

	response, err := h.service.Upload(c.UserContext(), c.Params("assignmentId"), files)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendJSON(c, fiber.StatusCreated, response)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendJSON(c, fiber.StatusOK, submission)
}
