package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/loader"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

const noticeSource = "lifecycle"

// Notice texts.
const (
	MessageStatusFailed = "Failed to change status"
	MessageGradeFailed  = "Failed to update grade. Please try again."
	MessageDeleted      = "Assignment deleted successfully"
	MessageDeleteFailed = "Failed to delete assignment"
	MessageUploaded     = "Files uploaded successfully! Processing evaluations..."
	MessageOnlyPDF      = "Only PDF files are allowed"
	MessageSelectPDF    = "Please select at least one PDF file"
	createFailedFormat  = "Failed to create assignment: %s"
)

var (
	ErrUnknownStatus       = errors.New("unknown assignment status")
	ErrScoreOutOfRange     = errors.New("score outside the assignment's mark range")
	ErrAssignmentNotLoaded = errors.New("assignment not loaded")
	ErrEvaluationNotFound  = errors.New("evaluation not found on assignment")
	ErrNoFiles             = errors.New("no files selected")
	ErrNotPDF              = errors.New("only PDF files are allowed")
	ErrUnknownFormat       = errors.New("unknown export format")
)

// Backend is the subset of the API the controller drives.
type Backend interface {
	loader.AssignmentFetcher
	CreateAssignment(ctx context.Context, req dto.AssignmentCreateRequest) (models.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status models.AssignmentStatus) error
	UpdateGrade(ctx context.Context, evaluationID string, req dto.GradeUpdateRequest) (models.Evaluation, error)
	Upload(ctx context.Context, assignmentID string, files []apiclient.File) (dto.UploadResponse, error)
	ExportMarks(ctx context.Context, assignmentID string, format apiclient.ExportFormat, w io.Writer) error
}

// Controller performs assignment writes. The server decides validity; after every
// acknowledged write the affected data is refetched instead of patched locally.
type Controller struct {
	backend  Backend
	loader   *loader.Loader
	store    *store.Store
	notifier notify.Notifier
	validate *validator.Validate
	logger   zerolog.Logger
}

// New constructs a controller.
func New(backend Backend, ld *loader.Loader, st *store.Store, notifier notify.Notifier, validate *validator.Validate, logger zerolog.Logger) *Controller {
	if notifier == nil {
		notifier = notify.Discard
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Controller{
		backend:  backend,
		loader:   ld,
		store:    st,
		notifier: notifier,
		validate: validate,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}
}

// LoadAssignments refreshes the assignment list.
func (c *Controller) LoadAssignments(ctx context.Context, tok *store.Token) ([]models.Assignment, error) {
	return c.loader.Assignments(ctx, tok)
}

// LoadAssignment refreshes one assignment with its submissions.
func (c *Controller) LoadAssignment(ctx context.Context, tok *store.Token, id string) (models.Assignment, error) {
	return c.loader.Assignment(ctx, tok, id)
}

// RequestTransition asks the server to move the assignment to status. Any enum member may be
// requested from any state; legality is the server's call. The store is refreshed only after
// the server accepts the change.
func (c *Controller) RequestTransition(ctx context.Context, tok *store.Token, assignmentID string, status models.AssignmentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	if err := c.backend.ChangeStatus(reqCtx, assignmentID, status); err != nil {
		c.logger.Error().Err(err).Str("assignment_id", assignmentID).Str("status", string(status)).Msg("status change failed")
		c.notifyIfAlive(tok, notify.Error(noticeSource, MessageStatusFailed))
		return fmt.Errorf("change status of %s: %w", assignmentID, err)
	}

	_, err := c.loader.Assignment(ctx, tok, assignmentID)
	return err
}

// UpdateGrade overrides the score and remarks of an evaluation. The score must fall inside
// [0, totalMarks] of the assignment as currently loaded. Percentage and pass state come back
// from the server on the refetch.
func (c *Controller) UpdateGrade(ctx context.Context, tok *store.Token, assignmentID, evaluationID string, score float64, remarks string) error {
	assignment, ok := c.store.Snapshot().Assignment(assignmentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssignmentNotLoaded, assignmentID)
	}
	if _, found := assignment.FindEvaluation(evaluationID); !found {
		return fmt.Errorf("%w: %s", ErrEvaluationNotFound, evaluationID)
	}
	if score < 0 || score > assignment.TotalMarks {
		return fmt.Errorf("%w: %v not in [0, %v]", ErrScoreOutOfRange, score, assignment.TotalMarks)
	}

	payload := dto.GradeUpdateRequest{Score: score, Remarks: remarks}
	if err := c.validate.Struct(payload); err != nil {
		return err
	}

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	if _, err := c.backend.UpdateGrade(reqCtx, evaluationID, payload); err != nil {
		c.logger.Error().Err(err).Str("evaluation_id", evaluationID).Msg("grade update failed")
		c.notifyIfAlive(tok, notify.Error(noticeSource, MessageGradeFailed))
		return fmt.Errorf("update grade %s: %w", evaluationID, err)
	}

	_, err := c.loader.Assignment(ctx, tok, assignmentID)
	return err
}

// CreateAssignment validates the form, sends it with the pass mark as a fraction and
// refreshes the assignment list.
func (c *Controller) CreateAssignment(ctx context.Context, tok *store.Token, form dto.AssignmentForm) (models.Assignment, error) {
	payload := form.Request()
	if err := c.validate.Struct(payload); err != nil {
		return models.Assignment{}, err
	}

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	created, err := c.backend.CreateAssignment(reqCtx, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("title", payload.Title).Msg("create assignment failed")
		c.notifyIfAlive(tok, notify.Error(noticeSource, fmt.Sprintf(createFailedFormat, failureReason(err))))
		return models.Assignment{}, fmt.Errorf("create assignment: %w", err)
	}

	if _, err := c.loader.Assignments(ctx, tok); err != nil {
		return created, err
	}
	return created, nil
}

// DeleteAssignment removes the assignment on the server, drops it from the store and
// refreshes the list.
func (c *Controller) DeleteAssignment(ctx context.Context, tok *store.Token, assignmentID string) error {
	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	if err := c.backend.DeleteAssignment(reqCtx, assignmentID); err != nil {
		c.logger.Error().Err(err).Str("assignment_id", assignmentID).Msg("delete assignment failed")
		c.notifyIfAlive(tok, notify.Error(noticeSource, MessageDeleteFailed))
		return fmt.Errorf("delete assignment %s: %w", assignmentID, err)
	}

	c.store.ApplyForget(tok, assignmentID)
	c.notifyIfAlive(tok, notify.Success(noticeSource, MessageDeleted))

	_, err := c.loader.Assignments(ctx, tok)
	return err
}

// Upload sends a batch of PDF submissions and refreshes the assignment so the new pending
// entries appear.
func (c *Controller) Upload(ctx context.Context, tok *store.Token, assignmentID string, files []apiclient.File) (dto.UploadResponse, error) {
	if len(files) == 0 {
		c.notifyIfAlive(tok, notify.Error(noticeSource, MessageSelectPDF))
		return dto.UploadResponse{}, ErrNoFiles
	}
	for _, file := range files {
		if !IsPDF(file.Data) {
			c.notifyIfAlive(tok, notify.Error(noticeSource, MessageOnlyPDF))
			return dto.UploadResponse{}, fmt.Errorf("%w: %s", ErrNotPDF, file.Name)
		}
	}

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	resp, err := c.backend.Upload(reqCtx, assignmentID, files)
	if err != nil {
		c.logger.Error().Err(err).Str("assignment_id", assignmentID).Int("files", len(files)).Msg("upload failed")
		return dto.UploadResponse{}, fmt.Errorf("upload submissions: %w", err)
	}

	c.notifyIfAlive(tok, notify.Success(noticeSource, MessageUploaded))

	if _, err := c.loader.Assignment(ctx, tok, assignmentID); err != nil {
		return resp, err
	}
	return resp, nil
}

// Export streams the marks sheet of the assignment into w.
func (c *Controller) Export(ctx context.Context, assignmentID string, format apiclient.ExportFormat, w io.Writer) error {
	if !format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err := c.backend.ExportMarks(ctx, assignmentID, format, w); err != nil {
		return fmt.Errorf("export marks of %s: %w", assignmentID, err)
	}
	return nil
}

// IsPDF sniffs the content rather than trusting the file name.
func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}

func (c *Controller) notifyIfAlive(tok *store.Token, notice notify.Notice) {
	if tok.Alive() {
		c.notifier.Notify(notice)
	}
}

func failureReason(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
