package engine_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/engine"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/poller"
	"github.com/noah-isme/gema-evalsync/internal/server/servertest"
	"github.com/noah-isme/gema-evalsync/internal/store"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(notice notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *recordingNotifier) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]string, 0, len(r.notices))
	for _, notice := range r.notices {
		messages = append(messages, notice.Message)
	}
	return messages
}

// fixedEvaluator grades every essay with the same score.
type fixedEvaluator struct {
	mu    sync.Mutex
	score float64
}

func (f *fixedEvaluator) Evaluate(_ context.Context, input ai.EssayInput) (ai.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ai.EvaluationResult{
		Score:    f.score,
		Remarks:  "graded",
		Feedback: ai.Feedback{WordCount: len(strings.Fields(input.Content))},
	}, nil
}

func (f *fixedEvaluator) set(score float64) {
	f.mu.Lock()
	f.score = score
	f.mu.Unlock()
}

func newEngine(t *testing.T, url string) (*engine.Engine, *recordingNotifier) {
	t.Helper()

	notices := &recordingNotifier{}
	cfg := config.Config{
		AppName:      "evalsync-test",
		APIBaseURL:   url,
		PollInterval: 25 * time.Millisecond,
		HTTPTimeout:  5 * time.Second,
	}

	eng, err := engine.New(context.Background(), cfg, zerolog.Nop(), engine.Options{Notifiers: []notify.Notifier{notices}})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, eng.Close()) })

	return eng, notices
}

func signUp(t *testing.T, eng *engine.Engine) {
	t.Helper()
	_, err := eng.Client.Register(context.Background(), dto.LoginRequest{Email: "teacher@example.com", Password: "secret123", Name: "Teacher"})
	require.NoError(t, err)
	require.True(t, eng.Session.Authenticated())
}

func pdfBytes(lines ...string) []byte {
	var builder strings.Builder
	builder.WriteString("%PDF-1.4\n1 0 obj\n<< /Length 0 >>\nstream\nBT /F1 12 Tf\n")
	for i, line := range lines {
		fmt.Fprintf(&builder, "72 %d Td (%s) Tj\n", 720-i*14, line)
	}
	builder.WriteString("ET\nendstream\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return []byte(builder.String())
}

func createAssignment(t *testing.T, eng *engine.Engine) models.Assignment {
	t.Helper()

	form := dto.DefaultAssignmentForm()
	form.Title = "Climate essay"
	form.Instructions = "Discuss climate change and coastal communities"
	form.MinWords = 5

	created, err := eng.Lifecycle.CreateAssignment(context.Background(), store.NewToken(), form)
	require.NoError(t, err)
	require.InDelta(t, 0.6, created.PassPercentage, 0.0001)

	listed, ok := eng.Store.Snapshot().Assignment(created.ID)
	require.True(t, ok, "create refreshes the assignment list")
	require.Equal(t, created.Title, listed.Title)
	return created
}

func TestAssignmentViewFollowsGrading(t *testing.T) {
	evaluator := &fixedEvaluator{score: 85}
	srv := servertest.Start(t, servertest.Options{Evaluator: evaluator, GradingDelay: 50 * time.Millisecond})
	eng, notices := newEngine(t, srv.URL)
	signUp(t, eng)
	ctx := context.Background()

	created := createAssignment(t, eng)

	view, err := eng.OpenAssignment(ctx, created.ID)
	require.NoError(t, err)
	defer view.Close()
	require.Zero(t, view.Stats().EvaluatedCount)

	resp, err := view.Upload(ctx, []apiclient.File{
		{Name: "Ann_Lee_42.pdf", Data: pdfBytes("Climate change floods coastal towns")},
		{Name: "Bo_Chen_7.pdf", Data: pdfBytes("Coastal communities need sea walls")},
	})
	require.NoError(t, err)
	require.Equal(t, "2 files uploaded successfully", resp.Message)
	require.Len(t, resp.Submissions, 2)
	require.Contains(t, notices.Messages(), "Files uploaded successfully! Processing evaluations...")

	assignment, ok := view.Assignment()
	require.True(t, ok)
	require.Len(t, assignment.Submissions, 2)

	for _, id := range resp.Submissions {
		submissionView, err := eng.OpenSubmission(ctx, id)
		require.NoError(t, err)
		select {
		case <-submissionView.Settled():
		case <-time.After(5 * time.Second):
			t.Fatalf("submission %s never settled", id)
		}
		require.Equal(t, poller.StateSettled, submissionView.State())
		submission, ok := submissionView.Submission()
		require.True(t, ok)
		require.True(t, submission.IsEvaluated)
		submissionView.Close()
	}

	require.NoError(t, view.Refresh(ctx))
	require.Eventually(t, func() bool {
		stats := view.Stats()
		return stats.EvaluatedCount == 2 && stats.PassedCount == 2 && stats.PassRate == 100
	}, 2*time.Second, 10*time.Millisecond)
	require.False(t, view.BulkBusy())

	err = view.ReEvaluate(ctx, "missing")
	require.True(t, apiclient.IsNotFound(err))

	message, err := view.ReEvaluateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "Re-evaluation started for 2 submissions", message)
	require.Contains(t, notices.Messages(), message)
}

func TestGradeEditRefetchesServerOutcome(t *testing.T) {
	evaluator := &fixedEvaluator{score: 90}
	srv := servertest.Start(t, servertest.Options{Evaluator: evaluator})
	eng, _ := newEngine(t, srv.URL)
	signUp(t, eng)
	ctx := context.Background()

	created := createAssignment(t, eng)
	view, err := eng.OpenAssignment(ctx, created.ID)
	require.NoError(t, err)
	defer view.Close()

	resp, err := view.Upload(ctx, []apiclient.File{{Name: "Ann_Lee_42.pdf", Data: pdfBytes("Climate change floods coastal towns")}})
	require.NoError(t, err)

	submissionView, err := eng.OpenSubmission(ctx, resp.Submissions[0])
	require.NoError(t, err)
	<-submissionView.Settled()
	submissionView.Close()

	require.NoError(t, view.Refresh(ctx))
	assignment, _ := view.Assignment()
	evaluationID := assignment.Submissions[0].Evaluation.ID

	err = view.UpdateGrade(ctx, evaluationID, 150, "too high")
	require.Error(t, err)

	require.NoError(t, view.UpdateGrade(ctx, evaluationID, 60, "exactly on the mark"))
	assignment, _ = view.Assignment()
	submission, ok := assignment.FindEvaluation(evaluationID)
	require.True(t, ok)
	require.InDelta(t, 60, submission.Evaluation.PercentageScore, 0.001)
	require.True(t, submission.Evaluation.Passed)
	require.Equal(t, "exactly on the mark", submission.Evaluation.Remarks)

	require.NoError(t, view.UpdateGrade(ctx, evaluationID, 59, ""))
	require.Eventually(t, func() bool {
		stats := view.Stats()
		return stats.EvaluatedCount == 1 && stats.PassedCount == 0
	}, 2*time.Second, 10*time.Millisecond)

	evaluator.set(95)
	require.NoError(t, view.ReEvaluate(ctx, submission.ID))
	assignment, _ = view.Assignment()
	require.InDelta(t, 95, assignment.Submissions[0].Evaluation.Score, 0.001)

	var buf bytes.Buffer
	require.NoError(t, view.Export(ctx, apiclient.ExportCSV, &buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "95", rows[1][4])
}

func TestStatusTransitionsAndDelete(t *testing.T) {
	srv := servertest.Start(t, servertest.Options{})
	eng, notices := newEngine(t, srv.URL)
	signUp(t, eng)
	ctx := context.Background()

	created := createAssignment(t, eng)
	view, err := eng.OpenAssignment(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, view.ChangeStatus(ctx, models.AssignmentStatusClosed))
	assignment, _ := view.Assignment()
	require.Equal(t, models.AssignmentStatusClosed, assignment.Status)

	require.NoError(t, view.ChangeStatus(ctx, models.AssignmentStatusActive))
	assignment, _ = view.Assignment()
	require.Equal(t, models.AssignmentStatusActive, assignment.Status)

	require.Error(t, view.ChangeStatus(ctx, models.AssignmentStatus("published")))

	require.NoError(t, view.Delete(ctx))
	view.Close()

	_, ok := eng.Store.Snapshot().Assignment(created.ID)
	require.False(t, ok)
	require.Contains(t, notices.Messages(), "Assignment deleted successfully")

	_, err = eng.OpenAssignment(ctx, created.ID)
	require.True(t, apiclient.IsNotFound(err))
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := servertest.Start(t, servertest.Options{})
	eng, notices := newEngine(t, srv.URL)

	require.NoError(t, eng.Session.Set(context.Background(), models.User{ID: "u1", Email: "x@example.com"}, "forged-token"))

	_, err := eng.Lifecycle.LoadAssignments(context.Background(), store.NewToken())
	require.True(t, apiclient.IsUnauthorized(err))
	require.False(t, eng.Session.Authenticated())
	require.Contains(t, notices.Messages(), apiclient.MessageSessionExpired)
}

func TestClosedViewIgnoresLateResponses(t *testing.T) {
	srv := servertest.Start(t, servertest.Options{GradingDelay: 500 * time.Millisecond})
	eng, _ := newEngine(t, srv.URL)
	signUp(t, eng)
	ctx := context.Background()

	created := createAssignment(t, eng)
	view, err := eng.OpenAssignment(ctx, created.ID)
	require.NoError(t, err)
	resp, err := view.Upload(ctx, []apiclient.File{{Name: "Ann_Lee_42.pdf", Data: pdfBytes("Climate change floods coastal towns")}})
	require.NoError(t, err)
	view.Close()

	submissionView, err := eng.OpenSubmission(ctx, resp.Submissions[0])
	require.NoError(t, err)
	require.Equal(t, poller.StateActive, submissionView.State())

	pending, ok := submissionView.Submission()
	require.True(t, ok)
	require.False(t, pending.IsEvaluated)

	submissionView.Close()
	require.Equal(t, poller.StateStopped, submissionView.State())

	time.Sleep(800 * time.Millisecond)
	stale, ok := eng.Store.Snapshot().Submission(resp.Submissions[0])
	require.True(t, ok)
	require.False(t, stale.IsEvaluated, "no poll may land after the view closed")
}
