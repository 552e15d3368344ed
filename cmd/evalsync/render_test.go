package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/models"
)

func TestRenderAssignmentsShowsTotalsAndProgress(t *testing.T) {
	assignments := []models.Assignment{
		{
			ID: "a1", Title: "Climate essay", Status: models.AssignmentStatusActive,
			TotalMarks: 100, PassPercentage: 0.6,
			Submissions: []models.Submission{
				{ID: "s1", SubmissionStatus: models.SubmissionStatusEvaluated},
				{ID: "s2", SubmissionStatus: models.SubmissionStatusUnreadable},
			},
		},
		{
			ID: "a2", Title: "Poetry", Status: models.AssignmentStatusActive, IsProcessing: true,
			TotalMarks: 20, PassPercentage: 0.5,
			Submissions: []models.Submission{
				{ID: "s3", SubmissionStatus: models.SubmissionStatusPending},
			},
		},
	}

	var out bytes.Buffer
	require.NoError(t, renderAssignments(&out, assignments))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, "assignments: 2  submissions: 3  evaluated: 1", lines[0])
	require.Contains(t, lines[2], "EVALUATED")
	require.Regexp(t, `^a1\s+Climate essay\s+active\s+100\s+60%\s+1/2$`, lines[3])
	require.Regexp(t, `^a2\s+Poetry\s+processing\.\.\.\s+20\s+50%\s+0/1$`, lines[4])
}

func TestRenderAssignmentsEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderAssignments(&out, nil))
	require.Equal(t, "no assignments\n", out.String())
}
