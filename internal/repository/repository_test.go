package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&UserRecord{}, &AssignmentRecord{}, &SubmissionRecord{}, &EvaluationRecord{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB) AssignmentRecord {
	t.Helper()
	assignment := AssignmentRecord{
		Title:          "Climate essay",
		Instructions:   "Write about climate change",
		MinWords:       300,
		MarkingMode:    "strict",
		TotalMarks:     100,
		PassPercentage: 0.6,
		Status:         "active",
	}
	require.NoError(t, NewAssignmentRepository(db).Create(context.Background(), &assignment))
	require.NotEmpty(t, assignment.ID)
	return assignment
}

func TestAssignmentRepositoryListDerivesProcessing(t *testing.T) {
	db := setupTestDB(t)
	assignments := NewAssignmentRepository(db)
	submissions := NewSubmissionRepository(db)
	ctx := context.Background()

	busy := seedAssignment(t, db)
	idle := seedAssignment(t, db)

	require.NoError(t, submissions.CreateBatch(ctx, []*SubmissionRecord{
		{AssignmentID: busy.ID, StudentName: "Ann", Status: "pending", UploadedAt: time.Now()},
		{AssignmentID: idle.ID, StudentName: "Bob", Status: "unreadable", UploadedAt: time.Now()},
	}))

	records, err := assignments.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	processing := map[string]bool{}
	for _, record := range records {
		processing[record.ID] = record.ToModel().IsProcessing
	}
	require.True(t, processing[busy.ID])
	require.False(t, processing[idle.ID])
}

func TestAssignmentRepositoryUpdateStatusMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssignmentRepository(db)

	err := repo.UpdateStatus(context.Background(), "missing", "closed")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAssignmentRepositoryDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	assignments := NewAssignmentRepository(db)
	submissions := NewSubmissionRepository(db)
	ctx := context.Background()

	assignment := seedAssignment(t, db)
	submission := &SubmissionRecord{AssignmentID: assignment.ID, StudentName: "Ann", Status: "pending", UploadedAt: time.Now()}
	require.NoError(t, submissions.CreateBatch(ctx, []*SubmissionRecord{submission}))
	require.NoError(t, submissions.SaveEvaluation(ctx, &EvaluationRecord{SubmissionID: submission.ID, Score: 70}))

	require.NoError(t, assignments.Delete(ctx, assignment.ID))

	var count int64
	require.NoError(t, db.Model(&SubmissionRecord{}).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&EvaluationRecord{}).Count(&count).Error)
	require.Zero(t, count)

	require.ErrorIs(t, assignments.Delete(ctx, assignment.ID), gorm.ErrRecordNotFound)
}

func TestSubmissionRepositorySaveEvaluationKeepsID(t *testing.T) {
	db := setupTestDB(t)
	submissions := NewSubmissionRepository(db)
	ctx := context.Background()

	assignment := seedAssignment(t, db)
	submission := &SubmissionRecord{AssignmentID: assignment.ID, StudentName: "Ann", Status: "pending", UploadedAt: time.Now()}
	require.NoError(t, submissions.CreateBatch(ctx, []*SubmissionRecord{submission}))

	first := &EvaluationRecord{
		SubmissionID:    submission.ID,
		Score:           65,
		PercentageScore: 65,
		DetailedFeedback: datatypes.NewJSONType(models.DetailedFeedback{
			WordCount:      320,
			Recommendation: models.RecommendationPass,
		}),
	}
	require.NoError(t, submissions.SaveEvaluation(ctx, first))

	second := &EvaluationRecord{SubmissionID: submission.ID, Score: 40, PercentageScore: 40}
	require.NoError(t, submissions.SaveEvaluation(ctx, second))
	require.Equal(t, first.ID, second.ID)

	stored, err := submissions.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, "evaluated", stored.Status)
	require.NotNil(t, stored.Evaluation)
	require.Equal(t, 40.0, stored.Evaluation.Score)
	require.NotNil(t, stored.Assignment)

	model := stored.ToModel()
	require.True(t, model.IsEvaluated)
	require.Equal(t, assignment.Title, model.Assignment.Title)
}

func TestSubmissionRepositoryMarkPending(t *testing.T) {
	db := setupTestDB(t)
	submissions := NewSubmissionRepository(db)
	ctx := context.Background()

	assignment := seedAssignment(t, db)
	batch := []*SubmissionRecord{
		{AssignmentID: assignment.ID, StudentName: "Ann", StudentRollNumber: "1", Status: "evaluated", UploadedAt: time.Now()},
		{AssignmentID: assignment.ID, StudentName: "Bob", StudentRollNumber: "2", Status: "evaluation_error", UploadedAt: time.Now()},
	}
	require.NoError(t, submissions.CreateBatch(ctx, batch))
	require.NoError(t, submissions.MarkPending(ctx, []string{batch[0].ID, batch[1].ID}))

	listed, err := submissions.ListByAssignment(ctx, assignment.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	for _, submission := range listed {
		require.Equal(t, "pending", submission.Status)
	}
}

func TestEvaluationRepositoryUpdateAndOwner(t *testing.T) {
	db := setupTestDB(t)
	submissions := NewSubmissionRepository(db)
	evaluations := NewEvaluationRepository(db)
	ctx := context.Background()

	assignment := seedAssignment(t, db)
	submission := &SubmissionRecord{AssignmentID: assignment.ID, StudentName: "Ann", Status: "pending", UploadedAt: time.Now()}
	require.NoError(t, submissions.CreateBatch(ctx, []*SubmissionRecord{submission}))
	evaluation := &EvaluationRecord{SubmissionID: submission.ID, Score: 65, PercentageScore: 65}
	require.NoError(t, submissions.SaveEvaluation(ctx, evaluation))

	owner, err := evaluations.AssignmentFor(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, assignment.ID, owner.ID)

	evaluation.Score = 90
	evaluation.PercentageScore = 90
	evaluation.Passed = true
	evaluation.Remarks = "Much better"
	require.NoError(t, evaluations.Update(ctx, evaluation))

	stored, err := evaluations.GetByID(ctx, evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, 90.0, stored.Score)
	require.True(t, stored.Passed)
	require.Equal(t, "Much better", stored.Remarks)

	_, err = evaluations.GetByID(ctx, "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepositoryNormalisesEmail(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, &UserRecord{Email: " Teacher@School.test ", Name: "T", PasswordHash: "hash"}))

	user, err := users.GetByEmail(ctx, "teacher@school.test")
	require.NoError(t, err)
	require.Equal(t, "teacher@school.test", user.Email)
	require.NotEmpty(t, user.ID)

	require.Error(t, users.Create(ctx, &UserRecord{Email: "teacher@school.test", PasswordHash: "x"}))
}
