package handler_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
)

func TestUploadGradesReadablePDFs(t *testing.T) {
	app := newTestApp(t, &fixedEvaluator{score: 45})
	created := app.createAssignment(t, 50, 0.6)

	resp := app.upload(t, created.ID, map[string][]byte{
		"Ann_Lee_42.pdf": pdfBytes("Climate change floods coastal towns", "Sea walls are expensive"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := readBody(t, resp)
	assertContract(t, "upload", body)

	var uploaded dto.UploadResponse
	require.NoError(t, jsonUnmarshal(body, &uploaded))
	require.Equal(t, "1 file uploaded successfully", uploaded.Message)
	require.Len(t, uploaded.Submissions, 1)

	require.Eventually(t, func() bool {
		var current models.Submission
		return app.tryGet("/submissions/"+uploaded.Submissions[0], &current) && current.IsEvaluated
	}, 5*time.Second, 20*time.Millisecond)

	resp = app.do(t, http.MethodGet, "/submissions/"+uploaded.Submissions[0], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = readBody(t, resp)
	assertContract(t, "submission", body)

	var submission models.Submission
	require.NoError(t, jsonUnmarshal(body, &submission))

	require.Equal(t, "Ann Lee", submission.StudentName)
	require.Equal(t, "42", submission.StudentRollNumber)
	require.Equal(t, models.SubmissionStatusEvaluated, submission.SubmissionStatus)
	require.NotNil(t, submission.Assignment)
	require.Equal(t, created.ID, submission.Assignment.ID)
	require.NotNil(t, submission.Evaluation)
	require.InDelta(t, 45, submission.Evaluation.Score, 0.001)
	require.InDelta(t, 90, submission.Evaluation.PercentageScore, 0.001)
	require.True(t, submission.Evaluation.Passed)
	require.Equal(t, models.RecommendationPass, submission.Evaluation.DetailedFeedback.Recommendation)
}

func TestUploadMarksNonPDFUnreadable(t *testing.T) {
	evaluator := &fixedEvaluator{score: 80}
	app := newTestApp(t, evaluator)
	created := app.createAssignment(t, 100, 0.6)

	resp := app.upload(t, created.ID, map[string][]byte{
		"Bo_Chen_7.docx": []byte("not a pdf at all"),
		"Cy_Dee_8.pdf":   []byte("%PDF-1.4\nstream\nx\x9c\x01\x02\x03endstream\n%%EOF\n"),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var uploaded dto.UploadResponse
	decode(t, resp, &uploaded)
	require.Equal(t, "2 files uploaded successfully", uploaded.Message)

	assignment := app.getAssignment(t, created.ID)
	require.False(t, assignment.IsProcessing)
	require.Len(t, assignment.Submissions, 2)
	for _, submission := range assignment.Submissions {
		require.Equal(t, models.SubmissionStatusUnreadable, submission.SubmissionStatus)
		require.False(t, submission.IsEvaluated)
		require.Nil(t, submission.Evaluation)
		require.True(t, submission.NeedsRetry())
	}
	require.Zero(t, evaluator.Calls())
}

func TestUploadRequiresFiles(t *testing.T) {
	app := newTestApp(t, nil)
	created := app.createAssignment(t, 100, 0.6)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("note", "nothing attached"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/upload/"+created.ID, &buf)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	resp := app.send(t, req)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "No files uploaded", errorMessage(t, resp))
}

func TestUploadUnknownAssignment(t *testing.T) {
	app := newTestApp(t, nil)

	resp := app.upload(t, "missing", map[string][]byte{"Ann_Lee_42.pdf": pdfBytes("text")})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Assignment not found", errorMessage(t, resp))
}

func TestGetSubmissionNotFound(t *testing.T) {
	app := newTestApp(t, nil)

	resp := app.do(t, http.MethodGet, "/submissions/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Submission not found", errorMessage(t, resp))
}
