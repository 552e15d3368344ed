package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/repository"
)

// ReEvaluationStartedFormat is the message returned by a bulk re-evaluation.
const ReEvaluationStartedFormat = "Re-evaluation started for %d submissions"

// GradingQueue accepts submissions for asynchronous grading.
type GradingQueue interface {
	Enqueue(ctx context.Context, submissionIDs ...string) error
}

// AssignmentService exposes assignment use cases of the development server.
type AssignmentService interface {
	List(ctx context.Context) ([]models.Assignment, error)
	Get(ctx context.Context, id string) (models.Assignment, error)
	Create(ctx context.Context, ownerID string, payload dto.AssignmentCreateRequest) (models.Assignment, error)
	Delete(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, payload dto.StatusChangeRequest) error
	ReEvaluateAll(ctx context.Context, id string) (dto.MessageResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	queue       GradingQueue
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, queue GradingQueue, validate *validator.Validate, logger zerolog.Logger) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		submissions: submissions,
		queue:       queue,
		validator:   validate,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-evalsync/internal/service/assignment"),
	}
}

func (s *assignmentService) List(ctx context.Context) ([]models.Assignment, error) {
	records, err := s.assignments.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.Assignment, 0, len(records))
	for _, record := range records {
		result = append(result, record.ToModel())
	}

	return result, nil
}

func (s *assignmentService) Get(ctx context.Context, id string) (models.Assignment, error) {
	record, err := s.assignments.GetWithSubmissions(ctx, id)
	if err != nil {
		return models.Assignment{}, notFound(err, ErrAssignmentNotFound)
	}

	assignment := record.ToModel()
	if assignment.Submissions == nil {
		assignment.Submissions = []models.Submission{}
	}
	return assignment, nil
}

func (s *assignmentService) Create(ctx context.Context, ownerID string, payload dto.AssignmentCreateRequest) (models.Assignment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Assignment{}, err
	}

	record := repository.AssignmentRecord{
		Title:          payload.Title,
		Instructions:   payload.Instructions,
		MinWords:       payload.MinWords,
		MarkingMode:    payload.MarkingMode,
		TotalMarks:     payload.TotalMarks,
		PassPercentage: payload.PassPercentage,
		Status:         string(models.AssignmentStatusActive),
		Deadline:       payload.Deadline,
		OwnerID:        ownerID,
	}
	if err := s.assignments.Create(ctx, &record); err != nil {
		return models.Assignment{}, err
	}

	s.logger.Info().Str("assignment_id", record.ID).Msg("assignment created")

	return record.ToModel(), nil
}

func (s *assignmentService) Delete(ctx context.Context, id string) error {
	if err := s.assignments.Delete(ctx, id); err != nil {
		return notFound(err, ErrAssignmentNotFound)
	}

	s.logger.Info().Str("assignment_id", id).Msg("assignment deleted")
	return nil
}

// ChangeStatus applies any transition between known statuses.
func (s *assignmentService) ChangeStatus(ctx context.Context, id string, payload dto.StatusChangeRequest) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	if err := s.assignments.UpdateStatus(ctx, id, payload.Status); err != nil {
		return notFound(err, ErrAssignmentNotFound)
	}

	s.logger.Info().Str("assignment_id", id).Str("status", payload.Status).Msg("assignment status changed")
	return nil
}

// ReEvaluateAll queues every readable submission of the assignment again. Unreadable files
// have no text to grade and are left as they are.
func (s *assignmentService) ReEvaluateAll(ctx context.Context, id string) (dto.MessageResponse, error) {
	ctx, span := s.tracer.Start(ctx, "assignment.re_evaluate_all", trace.WithAttributes(
		attribute.String("assignment.id", id),
	))
	defer span.End()

	if _, err := s.assignments.GetByID(ctx, id); err != nil {
		return dto.MessageResponse{}, notFound(err, ErrAssignmentNotFound)
	}

	submissions, err := s.submissions.ListByAssignment(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.MessageResponse{}, err
	}

	ids := make([]string, 0, len(submissions))
	for _, submission := range submissions {
		if submission.FileContent != "" {
			ids = append(ids, submission.ID)
		}
	}

	if err := s.submissions.MarkPending(ctx, ids); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.MessageResponse{}, err
	}
	if err := s.queue.Enqueue(ctx, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.MessageResponse{}, fmt.Errorf("queue re-evaluation: %w", err)
	}

	span.SetAttributes(attribute.Int("submissions.queued", len(ids)))
	s.logger.Info().Str("assignment_id", id).Int("count", len(ids)).Msg("re-evaluation queued")

	return dto.MessageResponse{Message: fmt.Sprintf(ReEvaluationStartedFormat, len(ids))}, nil
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
