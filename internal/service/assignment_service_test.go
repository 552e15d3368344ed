package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/repository"
)

func newAssignmentServiceForTest(env testEnv, queue GradingQueue) AssignmentService {
	return NewAssignmentService(env.assignments, env.submissions, queue, env.validate, env.logger)
}

func TestAssignmentServiceCreateStoresFraction(t *testing.T) {
	env := newTestEnv(t)
	svc := newAssignmentServiceForTest(env, &recordingQueue{})

	form := dto.DefaultAssignmentForm()
	form.Title = "Climate essay"
	form.Instructions = "Discuss the effects of climate change."

	created, err := svc.Create(context.Background(), "teacher-1", form.Request())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, 0.6, created.PassPercentage)
	require.Equal(t, 60, created.PassPercentDisplay())
	require.Equal(t, models.AssignmentStatusActive, created.Status)

	_, err = svc.Create(context.Background(), "teacher-1", dto.AssignmentCreateRequest{Title: "x"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestAssignmentServiceListAndGet(t *testing.T) {
	env := newTestEnv(t)
	svc := newAssignmentServiceForTest(env, &recordingQueue{})

	assignment := env.seedAssignment(t, 100, 0.6)
	env.seedSubmission(t, assignment.ID, "essay", "pending")
	env.seedSubmission(t, assignment.ID, "", "unreadable")
	graded := env.seedSubmission(t, assignment.ID, "essay", "pending")
	require.NoError(t, env.submissions.SaveEvaluation(context.Background(), &repository.EvaluationRecord{
		SubmissionID: graded.ID, Score: 72, PercentageScore: 72, Passed: true,
	}))

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].IsProcessing)
	require.Len(t, list[0].Submissions, 3, "list responses carry submission statuses")
	statuses := map[models.SubmissionStatus]int{}
	for _, submission := range list[0].Submissions {
		statuses[submission.SubmissionStatus]++
		require.Empty(t, submission.FileContent)
		require.Nil(t, submission.Evaluation, "list responses leave evaluations out")
		require.Equal(t, "Ann Lee", submission.StudentName)
	}
	require.Equal(t, map[models.SubmissionStatus]int{"pending": 1, "unreadable": 1, "evaluated": 1}, statuses)

	detail, err := svc.Get(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.True(t, detail.IsProcessing)
	require.Len(t, detail.Submissions, 3)
	for _, submission := range detail.Submissions {
		require.Empty(t, submission.FileContent)
	}

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentServiceChangeStatusIsPermissive(t *testing.T) {
	env := newTestEnv(t)
	svc := newAssignmentServiceForTest(env, &recordingQueue{})
	assignment := env.seedAssignment(t, 100, 0.6)

	for _, status := range []string{"closed", "active", "archived", "draft"} {
		require.NoError(t, svc.ChangeStatus(context.Background(), assignment.ID, dto.StatusChangeRequest{Status: status}))
		detail, err := svc.Get(context.Background(), assignment.ID)
		require.NoError(t, err)
		require.Equal(t, models.AssignmentStatus(status), detail.Status)
	}

	err := svc.ChangeStatus(context.Background(), assignment.ID, dto.StatusChangeRequest{Status: "published"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	err = svc.ChangeStatus(context.Background(), "missing", dto.StatusChangeRequest{Status: "closed"})
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentServiceReEvaluateAllQueuesReadable(t *testing.T) {
	env := newTestEnv(t)
	queue := &recordingQueue{}
	svc := newAssignmentServiceForTest(env, queue)

	assignment := env.seedAssignment(t, 100, 0.6)
	evaluated := env.seedSubmission(t, assignment.ID, "essay one", "evaluated")
	failed := env.seedSubmission(t, assignment.ID, "essay two", "evaluation_error")
	env.seedSubmission(t, assignment.ID, "", "unreadable")

	response, err := svc.ReEvaluateAll(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.Equal(t, "Re-evaluation started for 2 submissions", response.Message)
	require.ElementsMatch(t, []string{evaluated.ID, failed.ID}, queue.Queued())

	detail, err := svc.Get(context.Background(), assignment.ID)
	require.NoError(t, err)
	require.True(t, detail.IsProcessing)

	_, err = svc.ReEvaluateAll(context.Background(), "missing")
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestAssignmentServiceDelete(t *testing.T) {
	env := newTestEnv(t)
	svc := newAssignmentServiceForTest(env, &recordingQueue{})
	assignment := env.seedAssignment(t, 100, 0.6)

	require.NoError(t, svc.Delete(context.Background(), assignment.ID))
	require.ErrorIs(t, svc.Delete(context.Background(), assignment.ID), ErrAssignmentNotFound)
}
