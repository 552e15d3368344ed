package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/middleware"
	"github.com/noah-isme/gema-evalsync/internal/service"
	"github.com/noah-isme/gema-evalsync/internal/utils"
)

// errorResponses maps service sentinels onto status codes and client-facing messages.
var errorResponses = []struct {
	err     error
	status  int
	message string
}{
	{service.ErrAssignmentNotFound, fiber.StatusNotFound, "Assignment not found"},
	{service.ErrSubmissionNotFound, fiber.StatusNotFound, "Submission not found"},
	{service.ErrEvaluationNotFound, fiber.StatusNotFound, "Evaluation not found"},
	{service.ErrInvalidCredentials, fiber.StatusUnauthorized, "Invalid email or password"},
	{service.ErrEmailTaken, fiber.StatusConflict, "An account with this email already exists"},
	{service.ErrScoreOutOfRange, fiber.StatusBadRequest, "Score must be between 0 and the assignment total marks"},
	{service.ErrNoFiles, fiber.StatusBadRequest, "No files uploaded"},
	{service.ErrUnknownFormat, fiber.StatusBadRequest, "Unsupported export format"},
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError translates a service error into the {message} error body.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return utils.SendError(c, fiber.StatusBadRequest, validationMessage(validationErrors))
	}

	for _, candidate := range errorResponses {
		if errors.Is(err, candidate.err) {
			return utils.SendError(c, candidate.status, candidate.message)
		}
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return utils.SendError(c, fiber.StatusInternalServerError, "Internal server error")
}

func validationMessage(errs validator.ValidationErrors) string {
	messages := make([]string, 0, len(errs))
	for _, fieldErr := range errs {
		field := lowerFirst(fieldErr.Field())
		switch fieldErr.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email", field))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param()))
		case "min", "gte", "gt", "lte", "max":
			messages = append(messages, fmt.Sprintf("%s fails %s=%s", field, fieldErr.Tag(), fieldErr.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", field))
		}
	}
	return strings.Join(messages, "; ")
}

func lowerFirst(value string) string {
	if value == "" {
		return value
	}
	return strings.ToLower(value[:1]) + value[1:]
}
