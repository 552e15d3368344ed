package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-evalsync/internal/repository"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
)

type testEnv struct {
	db          *gorm.DB
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	evaluations repository.EvaluationRepository
	users       repository.UserRepository
	validate    *validator.Validate
	logger      zerolog.Logger
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&repository.UserRecord{},
		&repository.AssignmentRecord{},
		&repository.SubmissionRecord{},
		&repository.EvaluationRecord{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return testEnv{
		db:          db,
		assignments: repository.NewAssignmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		evaluations: repository.NewEvaluationRepository(db),
		users:       repository.NewUserRepository(db),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      zerolog.Nop(),
	}
}

func (e testEnv) seedAssignment(t *testing.T, totalMarks, pass float64) repository.AssignmentRecord {
	t.Helper()
	record := repository.AssignmentRecord{
		Title:          "Climate essay",
		Instructions:   "Discuss climate change and coastal communities",
		MinWords:       10,
		MarkingMode:    "strict",
		TotalMarks:     totalMarks,
		PassPercentage: pass,
		Status:         "active",
	}
	require.NoError(t, e.assignments.Create(context.Background(), &record))
	return record
}

func (e testEnv) seedSubmission(t *testing.T, assignmentID, content, status string) repository.SubmissionRecord {
	t.Helper()
	record := &repository.SubmissionRecord{
		AssignmentID:      assignmentID,
		StudentName:       "Ann Lee",
		StudentRollNumber: "42",
		FileName:          "Ann_Lee_42.pdf",
		FileContent:       content,
		Status:            status,
		UploadedAt:        time.Now(),
	}
	require.NoError(t, e.submissions.CreateBatch(context.Background(), []*repository.SubmissionRecord{record}))
	return *record
}

// scriptedEvaluator returns a fixed score, or err when set.
type scriptedEvaluator struct {
	mu    sync.Mutex
	score float64
	err   error
	calls int
}

func (s *scriptedEvaluator) Evaluate(_ context.Context, input ai.EssayInput) (ai.EvaluationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return ai.EvaluationResult{}, s.err
	}
	return ai.EvaluationResult{
		Score:    s.score,
		Remarks:  "scripted",
		Feedback: ai.Feedback{WordCount: len(strings.Fields(input.Content))},
	}, nil
}

func (s *scriptedEvaluator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingQueue captures queued ids instead of grading them.
type recordingQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *recordingQueue) Enqueue(_ context.Context, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, ids...)
	return nil
}

func (q *recordingQueue) Queued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

// pdfBytes builds a minimal uncompressed PDF that draws each line with Tj.
func pdfBytes(lines ...string) []byte {
	var builder strings.Builder
	builder.WriteString("%PDF-1.4\n1 0 obj\n<< /Length 0 >>\nstream\nBT /F1 12 Tf\n")
	for i, line := range lines {
		fmt.Fprintf(&builder, "72 %d Td (%s) Tj\n", 720-i*14, line)
	}
	builder.WriteString("ET\nendstream\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return []byte(builder.String())
}
