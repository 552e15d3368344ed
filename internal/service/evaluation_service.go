package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/repository"
)

// EvaluationService applies manual grade overrides.
type EvaluationService interface {
	UpdateGrade(ctx context.Context, evaluationID string, payload dto.GradeUpdateRequest) (models.Evaluation, error)
}

type evaluationService struct {
	evaluations repository.EvaluationRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewEvaluationService builds the evaluation service.
func NewEvaluationService(evaluations repository.EvaluationRepository, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		evaluations: evaluations,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
	}
}

// UpdateGrade overrides score and remarks. Percentage and pass flag are recomputed here from
// the owning assignment, never taken from the caller.
func (s *evaluationService) UpdateGrade(ctx context.Context, evaluationID string, payload dto.GradeUpdateRequest) (models.Evaluation, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-evalsync/internal/service/evaluation")
	ctx, span := tracer.Start(ctx, "evaluation.update_grade")
	span.SetAttributes(attribute.String("evaluation.id", evaluationID))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return models.Evaluation{}, err
	}

	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation_lookup_failed")
		return models.Evaluation{}, notFound(err, ErrEvaluationNotFound)
	}

	assignment, err := s.evaluations.AssignmentFor(ctx, evaluationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment_lookup_failed")
		return models.Evaluation{}, notFound(err, ErrAssignmentNotFound)
	}

	if payload.Score < 0 || payload.Score > assignment.TotalMarks {
		span.SetStatus(codes.Error, "score_out_of_range")
		return models.Evaluation{}, ErrScoreOutOfRange
	}

	percentage, passed := Outcome(payload.Score, assignment.TotalMarks, assignment.PassPercentage)
	evaluation.Score = payload.Score
	evaluation.PercentageScore = percentage
	evaluation.Passed = passed
	evaluation.Remarks = strings.TrimSpace(s.sanitizer.Sanitize(payload.Remarks))

	feedback := evaluation.DetailedFeedback.Data()
	feedback.Recommendation = models.RecommendationFail
	if passed {
		feedback.Recommendation = models.RecommendationPass
	}
	evaluation.DetailedFeedback = datatypes.NewJSONType(feedback)

	if err := s.evaluations.Update(ctx, &evaluation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation_update_failed")
		return models.Evaluation{}, err
	}

	s.logger.Info().
		Str("evaluation_id", evaluationID).
		Float64("score", payload.Score).
		Bool("passed", passed).
		Msg("grade updated")

	return evaluation.ToModel(), nil
}
