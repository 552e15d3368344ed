package engine

import (
	"context"
	"io"
	"sync"

	"github.com/noah-isme/gema-evalsync/internal/aggregate"
	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/poller"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

// AssignmentView is an open assignment detail screen. Every write it issues is tied to its
// token, so nothing it started can touch the store after Close.
type AssignmentView struct {
	engine *Engine
	id     string
	tok    *store.Token

	mu    sync.RWMutex
	stats aggregate.Stats

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenAssignment loads the assignment and starts following its statistics.
func (e *Engine) OpenAssignment(ctx context.Context, assignmentID string) (*AssignmentView, error) {
	view := &AssignmentView{
		engine: e,
		id:     assignmentID,
		tok:    store.NewToken(),
		done:   make(chan struct{}),
	}

	if _, err := e.Lifecycle.LoadAssignment(ctx, view.tok, assignmentID); err != nil {
		view.tok.Cancel()
		return nil, err
	}

	followCtx, cancel := view.tok.Bind(context.Background())
	view.cancel = cancel

	ready := make(chan struct{})
	var readyOnce sync.Once
	go func() {
		defer close(view.done)
		aggregate.Follow(followCtx, e.Store, assignmentID, func(stats aggregate.Stats) {
			view.mu.Lock()
			view.stats = stats
			view.mu.Unlock()
			readyOnce.Do(func() { close(ready) })
		})
	}()
	<-ready

	e.track(view)
	return view, nil
}

// ID returns the assignment id.
func (v *AssignmentView) ID() string {
	return v.id
}

// Assignment returns the latest snapshot of the assignment.
func (v *AssignmentView) Assignment() (models.Assignment, bool) {
	return v.engine.Store.Snapshot().Assignment(v.id)
}

// Stats returns the most recently computed statistics.
func (v *AssignmentView) Stats() aggregate.Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stats
}

// BulkBusy reports whether "re-evaluate all" should be disabled.
func (v *AssignmentView) BulkBusy() bool {
	if v.engine.Bulk.Busy(v.id) {
		return true
	}
	assignment, ok := v.Assignment()
	return ok && assignment.IsProcessing
}

// Refresh refetches the assignment.
func (v *AssignmentView) Refresh(ctx context.Context) error {
	_, err := v.engine.Lifecycle.LoadAssignment(ctx, v.tok, v.id)
	return err
}

func (v *AssignmentView) ReEvaluateAll(ctx context.Context) (string, error) {
	return v.engine.Bulk.ReEvaluateAll(ctx, v.tok, v.id)
}

func (v *AssignmentView) ReEvaluate(ctx context.Context, submissionID string) error {
	return v.engine.Bulk.ReEvaluate(ctx, v.tok, v.id, submissionID)
}

func (v *AssignmentView) ChangeStatus(ctx context.Context, status models.AssignmentStatus) error {
	return v.engine.Lifecycle.RequestTransition(ctx, v.tok, v.id, status)
}

func (v *AssignmentView) UpdateGrade(ctx context.Context, evaluationID string, score float64, remarks string) error {
	return v.engine.Lifecycle.UpdateGrade(ctx, v.tok, v.id, evaluationID, score, remarks)
}

func (v *AssignmentView) Upload(ctx context.Context, files []apiclient.File) (dto.UploadResponse, error) {
	return v.engine.Lifecycle.Upload(ctx, v.tok, v.id, files)
}

func (v *AssignmentView) Delete(ctx context.Context) error {
	return v.engine.Lifecycle.DeleteAssignment(ctx, v.tok, v.id)
}

func (v *AssignmentView) Export(ctx context.Context, format apiclient.ExportFormat, w io.Writer) error {
	return v.engine.Lifecycle.Export(ctx, v.id, format, w)
}

// Close cancels the view's token and stops the statistics follower. Safe to call twice.
func (v *AssignmentView) Close() {
	v.closeOnce.Do(func() {
		v.tok.Cancel()
		v.cancel()
		<-v.done
		v.engine.untrack(v)
	})
}

// SubmissionView is an open submission detail screen backed by a poller handle.
type SubmissionView struct {
	engine    *Engine
	handle    *poller.Handle
	closeOnce sync.Once
}

// OpenSubmission fetches the submission and keeps polling it until it is evaluated.
func (e *Engine) OpenSubmission(ctx context.Context, submissionID string) (*SubmissionView, error) {
	handle, err := e.Poller.Watch(context.WithoutCancel(ctx), store.NewToken(), submissionID)
	if err != nil {
		return nil, err
	}

	view := &SubmissionView{engine: e, handle: handle}
	e.track(view)
	return view, nil
}

// Submission returns the latest snapshot of the watched submission.
func (v *SubmissionView) Submission() (models.Submission, bool) {
	return v.engine.Store.Snapshot().Submission(v.handle.SubmissionID())
}

// State exposes the poller state.
func (v *SubmissionView) State() poller.State {
	return v.handle.State()
}

// Settled is closed once polling ends.
func (v *SubmissionView) Settled() <-chan struct{} {
	return v.handle.Done()
}

// Close stops polling and discards any response still in flight.
func (v *SubmissionView) Close() {
	v.closeOnce.Do(func() {
		v.handle.Stop()
		v.engine.untrack(v)
	})
}
