package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/noah-isme/gema-evalsync/internal/aggregate"
	"github.com/noah-isme/gema-evalsync/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func renderAssignments(w io.Writer, assignments []models.Assignment) error {
	if len(assignments) == 0 {
		_, err := fmt.Fprintln(w, "no assignments")
		return err
	}

	summary := aggregate.Summarize(assignments)
	fmt.Fprintf(w, "assignments: %d  submissions: %d  evaluated: %d\n\n",
		summary.TotalAssignments, summary.TotalSubmissions, summary.TotalEvaluated)

	table := newTable(w)
	fmt.Fprintln(table, "ID\tTITLE\tSTATUS\tMARKS\tPASS\tEVALUATED")
	for _, assignment := range assignments {
		status := string(assignment.Status)
		if assignment.IsProcessing {
			status = "processing..."
		}
		evaluated, total := aggregate.Progress(assignment)
		fmt.Fprintf(table, "%s\t%s\t%s\t%g\t%d%%\t%d/%d\n",
			assignment.ID,
			assignment.Title,
			status,
			assignment.TotalMarks,
			assignment.PassPercentDisplay(),
			evaluated, total,
		)
	}
	return table.Flush()
}

func renderAssignment(w io.Writer, assignment models.Assignment, stats aggregate.Stats, busy bool) error {
	fmt.Fprintf(w, "%s (%s)\n", assignment.Title, assignment.ID)
	fmt.Fprintf(w, "status: %s  marking: %s  min words: %d  total marks: %g  pass: %d%%\n",
		assignment.Status, assignment.MarkingMode, assignment.MinWords, assignment.TotalMarks, assignment.PassPercentDisplay())
	if assignment.Deadline != nil {
		fmt.Fprintf(w, "deadline: %s\n", assignment.Deadline.Format("2006-01-02 15:04 MST"))
	}
	if busy {
		fmt.Fprintln(w, "processing: re-evaluate all is unavailable")
	}

	fmt.Fprintf(w, "\nevaluated: %d  passed: %d  pass rate: %d%%\n", stats.EvaluatedCount, stats.PassedCount, stats.PassRate)
	bars := make([]string, 0, len(stats.Distribution))
	for _, bucket := range stats.Distribution {
		bars = append(bars, fmt.Sprintf("%s=%d", bucket.Grade, bucket.Count))
	}
	fmt.Fprintf(w, "distribution: %s\n\n", strings.Join(bars, " "))

	if len(assignment.Submissions) == 0 {
		_, err := fmt.Fprintln(w, "no submissions")
		return err
	}
	return renderSubmissions(w, assignment.Submissions)
}

func renderSubmissions(w io.Writer, submissions []models.Submission) error {
	table := newTable(w)
	fmt.Fprintln(table, "ID\tSTUDENT\tROLL\tSTATUS\tSCORE\tPERCENT\tRESULT\tEVALUATION")
	for _, submission := range submissions {
		score, percent, result, evaluationID := "-", "-", "-", "-"
		if evaluation := submission.Evaluation; evaluation != nil {
			score = fmt.Sprintf("%g", evaluation.Score)
			percent = fmt.Sprintf("%.2f%%", evaluation.PercentageScore)
			result = string(evaluation.DetailedFeedback.Recommendation)
			if result == "" {
				result = "FAIL"
				if evaluation.Passed {
					result = "PASS"
				}
			}
			evaluationID = evaluation.ID
		}
		status := string(submission.SubmissionStatus)
		if submission.NeedsRetry() {
			status += " (retry)"
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			submission.ID,
			submission.StudentName,
			submission.StudentRollNumber,
			status,
			score,
			percent,
			result,
			evaluationID,
		)
	}
	return table.Flush()
}
