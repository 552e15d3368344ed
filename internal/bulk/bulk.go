package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/loader"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/observability"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

const (
	noticeSource = "re_evaluation"

	MessageFailed    = "Failed to re-evaluate"
	MessageCompleted = "Re-evaluation completed"
)

var (
	// ErrBusy is returned when the same re-evaluation is already in flight.
	ErrBusy = errors.New("re-evaluation already in progress")
	// ErrProcessing is returned when the server reports the assignment is still grading.
	ErrProcessing = errors.New("assignment is still processing")
)

// Backend triggers re-evaluation on the server.
type Backend interface {
	ReEvaluateAll(ctx context.Context, assignmentID string) (dto.MessageResponse, error)
	ReEvaluate(ctx context.Context, submissionID string) error
}

// Coordinator prevents duplicate re-evaluation requests and refreshes the store once the
// server acknowledges them. Per-item progress is not tracked: partial failures show up only
// through submissionStatus after the refresh.
type Coordinator struct {
	backend  Backend
	loader   *loader.Loader
	store    *store.Store
	notifier notify.Notifier
	logger   zerolog.Logger

	mu          sync.Mutex
	assignments map[string]struct{}
	submissions map[string]struct{}
}

// New constructs a coordinator.
func New(backend Backend, ld *loader.Loader, st *store.Store, notifier notify.Notifier, logger zerolog.Logger) *Coordinator {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Coordinator{
		backend:     backend,
		loader:      ld,
		store:       st,
		notifier:    notifier,
		logger:      logger.With().Str("component", "bulk_coordinator").Logger(),
		assignments: make(map[string]struct{}),
		submissions: make(map[string]struct{}),
	}
}

// Busy reports whether a bulk re-evaluation of the assignment is in flight.
func (c *Coordinator) Busy(assignmentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.assignments[assignmentID]
	return ok
}

// SubmissionBusy reports whether a single re-evaluation of the submission is in flight.
func (c *Coordinator) SubmissionBusy(submissionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.submissions[submissionID]
	return ok
}

// ReEvaluateAll asks the server to re-grade every submission of the assignment. It returns the
// server's message, which is also surfaced verbatim as a notice.
func (c *Coordinator) ReEvaluateAll(ctx context.Context, tok *store.Token, assignmentID string) (string, error) {
	if err := c.acquireAssignment(assignmentID); err != nil {
		observability.BusyRejections().WithLabelValues("re_evaluate_all").Inc()
		return "", err
	}
	defer c.release(c.assignments, assignmentID)

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	resp, err := c.backend.ReEvaluateAll(reqCtx, assignmentID)
	if err != nil {
		c.fail(tok, err, "bulk re-evaluation failed", assignmentID)
		return "", fmt.Errorf("re-evaluate assignment %s: %w", assignmentID, err)
	}

	if tok.Alive() {
		c.notifier.Notify(notify.Success(noticeSource, resp.Message))
	}

	if _, err := c.loader.Assignment(ctx, tok, assignmentID); err != nil {
		c.logger.Warn().Err(err).Str("assignment_id", assignmentID).Msg("refresh after bulk re-evaluation failed")
		return resp.Message, err
	}

	return resp.Message, nil
}

// ReEvaluate re-grades one submission, then refreshes the whole assignment. Different
// submissions may be re-evaluated concurrently.
func (c *Coordinator) ReEvaluate(ctx context.Context, tok *store.Token, assignmentID, submissionID string) error {
	if err := c.acquireSubmission(submissionID); err != nil {
		observability.BusyRejections().WithLabelValues("re_evaluate").Inc()
		return err
	}
	defer c.release(c.submissions, submissionID)

	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	if err := c.backend.ReEvaluate(reqCtx, submissionID); err != nil {
		c.fail(tok, err, "re-evaluation failed", submissionID)
		return fmt.Errorf("re-evaluate submission %s: %w", submissionID, err)
	}

	if _, err := c.loader.Assignment(ctx, tok, assignmentID); err != nil {
		c.fail(tok, err, "refresh after re-evaluation failed", submissionID)
		return err
	}

	if tok.Alive() {
		c.notifier.Notify(notify.Success(noticeSource, MessageCompleted))
	}
	return nil
}

func (c *Coordinator) acquireAssignment(assignmentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.assignments[assignmentID]; busy {
		return ErrBusy
	}
	if assignment, ok := c.store.Snapshot().Assignment(assignmentID); ok && assignment.IsProcessing {
		return ErrProcessing
	}

	c.assignments[assignmentID] = struct{}{}
	return nil
}

func (c *Coordinator) acquireSubmission(submissionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.submissions[submissionID]; busy {
		return ErrBusy
	}
	c.submissions[submissionID] = struct{}{}
	return nil
}

func (c *Coordinator) release(flags map[string]struct{}, id string) {
	c.mu.Lock()
	delete(flags, id)
	c.mu.Unlock()
}

func (c *Coordinator) fail(tok *store.Token, err error, msg, id string) {
	c.logger.Error().Err(err).Str("id", id).Msg(msg)
	if tok.Alive() {
		c.notifier.Notify(notify.Error(noticeSource, MessageFailed))
	}
}
