package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/repository"
)

// UploadedFile is one file of a multipart upload.
type UploadedFile struct {
	Name string
	Data []byte
}

// FileArchive keeps a copy of the original upload and returns where it lives.
type FileArchive interface {
	Store(ctx context.Context, assignmentID, fileName string, data []byte) (string, error)
}

// SubmissionService handles uploads, lookups and single re-evaluations.
type SubmissionService interface {
	Upload(ctx context.Context, assignmentID string, files []UploadedFile) (dto.UploadResponse, error)
	Get(ctx context.Context, id string) (models.Submission, error)
	ReEvaluate(ctx context.Context, id string) (dto.MessageResponse, error)
}

type submissionService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	grader      *Grader
	queue       GradingQueue
	archive     FileArchive
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService builds the submission service. archive may be nil.
func NewSubmissionService(assignments repository.AssignmentRepository, submissions repository.SubmissionRepository, grader *Grader, queue GradingQueue, archive FileArchive, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		assignments: assignments,
		submissions: submissions,
		grader:      grader,
		queue:       queue,
		archive:     archive,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-evalsync/internal/service/submission"),
		now:         time.Now,
	}
}

// Upload stores one submission per file. Files that are not PDFs, or PDFs without
// extractable text, are stored as unreadable; the rest are queued for grading.
func (s *submissionService) Upload(ctx context.Context, assignmentID string, files []UploadedFile) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.upload", trace.WithAttributes(
		attribute.String("assignment.id", assignmentID),
		attribute.Int("upload.files", len(files)),
	))
	defer span.End()

	if len(files) == 0 {
		return dto.UploadResponse{}, ErrNoFiles
	}

	if _, err := s.assignments.GetByID(ctx, assignmentID); err != nil {
		return dto.UploadResponse{}, notFound(err, ErrAssignmentNotFound)
	}

	uploadedAt := s.now().UTC()
	records := make([]*repository.SubmissionRecord, 0, len(files))
	for _, file := range files {
		name, roll := ParseStudentFromFilename(file.Name)
		record := &repository.SubmissionRecord{
			AssignmentID:      assignmentID,
			StudentName:       name,
			StudentRollNumber: roll,
			FileName:          file.Name,
			Status:            string(models.SubmissionStatusUnreadable),
			UploadedAt:        uploadedAt,
		}

		if mimetype.Detect(file.Data).Is("application/pdf") {
			if text := ExtractPDFText(file.Data); text != "" {
				record.FileContent = text
				record.Status = string(models.SubmissionStatusPending)
			}
		}

		if s.archive != nil {
			url, err := s.archive.Store(ctx, assignmentID, file.Name, file.Data)
			if err != nil {
				s.logger.Warn().Err(err).Str("file_name", file.Name).Msg("failed to archive submission file")
			} else {
				record.FileURL = url
			}
		}

		records = append(records, record)
	}

	if err := s.submissions.CreateBatch(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.UploadResponse{}, err
	}

	ids := make([]string, 0, len(records))
	pending := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
		if record.Status == string(models.SubmissionStatusPending) {
			pending = append(pending, record.ID)
		}
	}

	if err := s.queue.Enqueue(ctx, pending...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.UploadResponse{}, fmt.Errorf("queue uploads: %w", err)
	}

	s.logger.Info().
		Str("assignment_id", assignmentID).
		Int("files", len(records)).
		Int("queued", len(pending)).
		Msg("submissions uploaded")

	return dto.UploadResponse{
		Message:     fmt.Sprintf("%d %s uploaded successfully", len(records), plural(len(records), "file", "files")),
		Submissions: ids,
	}, nil
}

func (s *submissionService) Get(ctx context.Context, id string) (models.Submission, error) {
	record, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return models.Submission{}, notFound(err, ErrSubmissionNotFound)
	}
	return record.ToModel(), nil
}

// ReEvaluate grades the submission again before returning.
func (s *submissionService) ReEvaluate(ctx context.Context, id string) (dto.MessageResponse, error) {
	if _, err := s.submissions.GetByID(ctx, id); err != nil {
		return dto.MessageResponse{}, notFound(err, ErrSubmissionNotFound)
	}

	if err := s.submissions.UpdateStatus(ctx, id, string(models.SubmissionStatusPending)); err != nil {
		return dto.MessageResponse{}, err
	}

	status, err := s.grader.Grade(ctx, id)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	return dto.MessageResponse{Message: "Re-evaluation finished: " + strings.ReplaceAll(string(status), "_", " ")}, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
