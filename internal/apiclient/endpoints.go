package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
)

// UploadField is the multipart field the backend reads submission files from.
const UploadField = "files"

// File is one document queued for upload.
type File struct {
	Name string
	Data []byte
}

// ExportFormat selects the marks sheet encoding.
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportExcel ExportFormat = "xlsx"
)

// Valid reports whether the format is supported by the backend.
func (f ExportFormat) Valid() bool {
	return f == ExportCSV || f == ExportExcel
}

func escape(id string) string {
	return url.PathEscape(id)
}

func (c *client) Login(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error) {
	return c.authenticate(ctx, "login", "/auth/login", req)
}

func (c *client) Register(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error) {
	return c.authenticate(ctx, "register", "/auth/register", req)
}

func (c *client) authenticate(ctx context.Context, operation, path string, payload dto.LoginRequest) (dto.AuthResponse, error) {
	req, err := jsonRequest(operation, http.MethodPost, path, payload)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	req.anonymous = true

	var resp dto.AuthResponse
	if err := c.call(ctx, req, &resp); err != nil {
		return dto.AuthResponse{}, err
	}

	if err := c.session.Set(ctx, resp.User, resp.Token); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist session")
	}
	return resp, nil
}

func (c *client) ListAssignments(ctx context.Context) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := c.call(ctx, request{operation: "list_assignments", method: http.MethodGet, path: "/assignments"}, &assignments)
	return assignments, err
}

func (c *client) GetAssignment(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	err := c.call(ctx, request{operation: "get_assignment", method: http.MethodGet, path: "/assignments/" + escape(id)}, &assignment)
	return assignment, err
}

func (c *client) CreateAssignment(ctx context.Context, payload dto.AssignmentCreateRequest) (models.Assignment, error) {
	req, err := jsonRequest("create_assignment", http.MethodPost, "/assignments", payload)
	if err != nil {
		return models.Assignment{}, err
	}

	var assignment models.Assignment
	err = c.call(ctx, req, &assignment)
	return assignment, err
}

func (c *client) DeleteAssignment(ctx context.Context, id string) error {
	return c.call(ctx, request{operation: "delete_assignment", method: http.MethodDelete, path: "/assignments/" + escape(id)}, nil)
}

func (c *client) ChangeStatus(ctx context.Context, id string, status models.AssignmentStatus) error {
	req, err := jsonRequest("change_status", http.MethodPatch, "/assignments/"+escape(id)+"/status", dto.StatusChangeRequest{Status: string(status)})
	if err != nil {
		return err
	}
	return c.call(ctx, req, nil)
}

func (c *client) ReEvaluateAll(ctx context.Context, assignmentID string) (dto.MessageResponse, error) {
	var resp dto.MessageResponse
	err := c.call(ctx, request{
		operation: "re_evaluate_all",
		method:    http.MethodPost,
		path:      "/assignments/" + escape(assignmentID) + "/re-evaluate-all",
	}, &resp)
	return resp, err
}

func (c *client) Upload(ctx context.Context, assignmentID string, files []File) (dto.UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, file.Name))
		header.Set("Content-Type", mimetype.Detect(file.Data).String())

		part, err := writer.CreatePart(header)
		if err != nil {
			return dto.UploadResponse{}, fmt.Errorf("create upload part: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return dto.UploadResponse{}, fmt.Errorf("write upload part: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return dto.UploadResponse{}, fmt.Errorf("close upload body: %w", err)
	}

	var resp dto.UploadResponse
	err := c.call(ctx, request{
		operation:   "upload_submissions",
		method:      http.MethodPost,
		path:        "/submissions/upload/" + escape(assignmentID),
		body:        &buf,
		contentType: writer.FormDataContentType(),
	}, &resp)
	return resp, err
}

func (c *client) GetSubmission(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	err := c.call(ctx, request{operation: "get_submission", method: http.MethodGet, path: "/submissions/" + escape(id)}, &submission)
	return submission, err
}

func (c *client) ReEvaluate(ctx context.Context, submissionID string) error {
	return c.call(ctx, request{
		operation: "re_evaluate",
		method:    http.MethodPost,
		path:      "/evaluations/re-evaluate/" + escape(submissionID),
	}, nil)
}

func (c *client) UpdateGrade(ctx context.Context, evaluationID string, payload dto.GradeUpdateRequest) (models.Evaluation, error) {
	req, err := jsonRequest("update_grade", http.MethodPatch, "/evaluations/"+escape(evaluationID), payload)
	if err != nil {
		return models.Evaluation{}, err
	}

	var evaluation models.Evaluation
	err = c.call(ctx, req, &evaluation)
	return evaluation, err
}

func (c *client) ExportMarks(ctx context.Context, assignmentID string, format ExportFormat, w io.Writer) error {
	path := "/export/marks-sheet/"
	if format == ExportExcel {
		path = "/export/marks-sheet-excel/"
	}

	return c.exchange(ctx, request{
		operation: "export_marks",
		method:    http.MethodGet,
		path:      path + escape(assignmentID),
	}, func(body io.Reader) error {
		if _, err := io.Copy(w, body); err != nil {
			return fmt.Errorf("stream marks sheet: %w", err)
		}
		return nil
	})
}
