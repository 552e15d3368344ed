package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/observability"
	"github.com/noah-isme/gema-evalsync/internal/repository"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
)

// Outcome derives the percentage and pass flag from a score. An exact hit on the pass mark passes.
func Outcome(score, totalMarks, passPercentage float64) (float64, bool) {
	if totalMarks <= 0 {
		return 0, false
	}
	percentage := math.Round(score/totalMarks*100*100) / 100
	threshold := math.Round(passPercentage*100*100) / 100
	return percentage, percentage >= threshold
}

// Grader runs one submission through the evaluator and records the result.
type Grader struct {
	submissions repository.SubmissionRepository
	evaluator   ai.Evaluator
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewGrader builds a grader around the configured evaluator.
func NewGrader(submissions repository.SubmissionRepository, evaluator ai.Evaluator, logger zerolog.Logger) *Grader {
	return &Grader{
		submissions: submissions,
		evaluator:   evaluator,
		logger:      logger.With().Str("component", "grader").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-evalsync/internal/service/grading"),
	}
}

// Grade evaluates the submission. Pipeline failures become submission states rather than
// errors; only storage failures are returned.
func (g *Grader) Grade(ctx context.Context, submissionID string) (models.SubmissionStatus, error) {
	ctx, span := g.tracer.Start(ctx, "grading.grade", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
	))
	defer span.End()

	submission, err := g.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = ErrSubmissionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if submission.Assignment == nil {
		return "", fmt.Errorf("submission %s has no assignment", submissionID)
	}
	assignment := submission.Assignment

	if submission.FileContent == "" {
		return g.settle(ctx, submissionID, models.SubmissionStatusUnreadable)
	}

	result, err := g.evaluator.Evaluate(ctx, ai.EssayInput{
		Title:        assignment.Title,
		Instructions: assignment.Instructions,
		MinWords:     assignment.MinWords,
		Strict:       assignment.MarkingMode == string(models.MarkingModeStrict),
		TotalMarks:   assignment.TotalMarks,
		Content:      submission.FileContent,
	})
	switch {
	case errors.Is(err, ai.ErrEmptyContent):
		return g.settle(ctx, submissionID, models.SubmissionStatusUnreadable)
	case err != nil:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn().Err(err).Str("submission_id", submissionID).Msg("evaluation failed")
		span.RecordError(err)
		return g.settle(ctx, submissionID, models.SubmissionStatusEvaluationError)
	}

	score := math.Max(0, math.Min(result.Score, assignment.TotalMarks))
	percentage, passed := Outcome(score, assignment.TotalMarks, assignment.PassPercentage)
	recommendation := models.RecommendationFail
	if passed {
		recommendation = models.RecommendationPass
	}

	evaluation := repository.EvaluationRecord{
		SubmissionID:    submissionID,
		Score:           score,
		PercentageScore: percentage,
		Remarks:         result.Remarks,
		Passed:          passed,
		DetailedFeedback: datatypes.NewJSONType(models.DetailedFeedback{
			TopicRelevance: result.Feedback.TopicRelevance,
			Structure:      result.Feedback.Structure,
			ContentQuality: result.Feedback.ContentQuality,
			WordCount:      result.Feedback.WordCount,
			Recommendation: recommendation,
		}),
	}
	if err := g.submissions.SaveEvaluation(ctx, &evaluation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("save evaluation: %w", err)
	}

	observability.EvaluationsProcessed().WithLabelValues(string(models.SubmissionStatusEvaluated)).Inc()
	g.logger.Info().
		Str("submission_id", submissionID).
		Float64("score", score).
		Bool("passed", passed).
		Msg("submission evaluated")

	return models.SubmissionStatusEvaluated, nil
}

func (g *Grader) settle(ctx context.Context, submissionID string, status models.SubmissionStatus) (models.SubmissionStatus, error) {
	if err := g.submissions.UpdateStatus(ctx, submissionID, string(status)); err != nil {
		return "", fmt.Errorf("update submission status: %w", err)
	}
	observability.EvaluationsProcessed().WithLabelValues(string(status)).Inc()
	return status, nil
}
