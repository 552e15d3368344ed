package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/service"
	"github.com/noah-isme/gema-evalsync/internal/utils"
)

// EvaluationHandler exposes grade overrides and single re-evaluation.
type EvaluationHandler struct {
	evaluations service.EvaluationService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(evaluations service.EvaluationService, submissions service.SubmissionService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		evaluations: evaluations,
		submissions: submissions,
		logger:      logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register attaches evaluation endpoints to the router group.
func (h *EvaluationHandler) Register(router fiber.Router) {
	router.Post("/re-evaluate/:submissionId", h.reEvaluate)
	router.Patch("/:id", h.updateGrade)
}

func (h *EvaluationHandler) reEvaluate(c *fiber.Ctx) error {
	response, err := h.submissions.ReEvaluate(c.UserContext(), c.Params("submissionId"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendJSON(c, fiber.StatusOK, response)
}

func (h *EvaluationHandler) updateGrade(c *fiber.Ctx) error {
	var payload dto.GradeUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	evaluation, err := h.evaluations.UpdateGrade(c.UserContext(), c.Params("id"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendJSON(c, fiber.StatusOK, evaluation)
}
