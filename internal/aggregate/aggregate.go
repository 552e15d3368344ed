package aggregate

import (
	"context"
	"math"

	"github.com/samber/lo"

	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

// Grade is a letter bucket of the distribution histogram.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Grades is the fixed presentation order of the histogram.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeF}

// Bucket is one bar of the grade distribution.
type Bucket struct {
	Grade Grade `json:"grade"`
	Count int   `json:"count"`
}

// Stats is derived from a submission collection and never stored.
type Stats struct {
	EvaluatedCount int      `json:"evaluatedCount"`
	PassedCount    int      `json:"passedCount"`
	PassRate       int      `json:"passRate"`
	Distribution   []Bucket `json:"distribution"`
}

// GradeFor maps a percentage score onto its letter grade.
func GradeFor(percentage float64) Grade {
	switch {
	case percentage >= 90:
		return GradeA
	case percentage >= 80:
		return GradeB
	case percentage >= 70:
		return GradeC
	case percentage >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Compute summarises the evaluated submissions. Pending, unreadable and failed submissions
// are excluded from every figure.
func Compute(submissions []models.Submission) Stats {
	evaluated := lo.Filter(submissions, func(submission models.Submission, _ int) bool {
		return submission.IsEvaluated && submission.Evaluation != nil
	})

	passed := lo.CountBy(evaluated, func(submission models.Submission) bool {
		return submission.Evaluation.Passed
	})

	counts := lo.CountValuesBy(evaluated, func(submission models.Submission) Grade {
		return GradeFor(submission.Evaluation.PercentageScore)
	})

	distribution := lo.Map(Grades, func(grade Grade, _ int) Bucket {
		return Bucket{Grade: grade, Count: counts[grade]}
	})

	stats := Stats{
		EvaluatedCount: len(evaluated),
		PassedCount:    passed,
		Distribution:   distribution,
	}
	if stats.EvaluatedCount > 0 {
		stats.PassRate = int(math.Round(float64(passed) / float64(stats.EvaluatedCount) * 100))
	}

	return stats
}

// Summary totals an assignment list for the dashboard.
type Summary struct {
	TotalAssignments int `json:"totalAssignments"`
	TotalSubmissions int `json:"totalSubmissions"`
	TotalEvaluated   int `json:"totalEvaluated"`
}

// Progress returns how many of the assignment's submissions are evaluated, out of all of them.
// List responses carry submissions without evaluations, so the status decides.
func Progress(assignment models.Assignment) (evaluated, total int) {
	evaluated = lo.CountBy(assignment.Submissions, func(submission models.Submission) bool {
		return submission.IsEvaluated || submission.SubmissionStatus == models.SubmissionStatusEvaluated
	})
	return evaluated, len(assignment.Submissions)
}

// Summarize totals assignments, submissions and evaluated submissions across the list.
func Summarize(assignments []models.Assignment) Summary {
	summary := Summary{TotalAssignments: len(assignments)}
	for _, assignment := range assignments {
		evaluated, total := Progress(assignment)
		summary.TotalEvaluated += evaluated
		summary.TotalSubmissions += total
	}
	return summary
}

// Follow calls fn with fresh statistics for the assignment now and after every store change,
// until ctx is done. Changes that leave the assignment untouched still trigger a recompute.
func Follow(ctx context.Context, st *store.Store, assignmentID string, fn func(Stats)) {
	changes, cancel := st.Subscribe()
	defer cancel()

	emit := func() {
		assignment, _ := st.Snapshot().Assignment(assignmentID)
		fn(Compute(assignment.Submissions))
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			emit()
		}
	}
}
