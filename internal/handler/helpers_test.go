package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/database"
	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/server"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
)

const testSecret = "handler-test-secret"

type testApp struct {
	app   *fiber.App
	token string
}

func newTestApp(t *testing.T, evaluator ai.Evaluator) *testApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	if evaluator == nil {
		evaluator = &fixedEvaluator{score: 80}
	}

	srv, err := server.New(config.Config{AppName: "Test", JWTSecret: testSecret, GradingWorkers: 1}, db, server.Options{
		Evaluator: evaluator,
		Logger:    zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		srv.Pipeline.Stop()
		cancel()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	ta := &testApp{app: srv.App}

	resp := ta.do(t, http.MethodPost, "/auth/register", dto.LoginRequest{Email: "teacher@example.com", Password: "secret123", Name: "Teacher"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var auth dto.AuthResponse
	decode(t, resp, &auth)
	ta.token = auth.Token

	return ta
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return a.send(t, req)
}

func (a *testApp) send(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	if a.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+a.token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testApp) upload(t *testing.T, assignmentID string, files map[string][]byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions/upload/"+assignmentID, &buf)
	req.Header.Set(fiber.HeaderContentType, writer.FormDataContentType())
	return a.send(t, req)
}

func (a *testApp) createAssignment(t *testing.T, totalMarks, pass float64) models.Assignment {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/assignments", dto.AssignmentCreateRequest{
		Title:          "Climate essay",
		Instructions:   "Discuss climate change and coastal communities",
		MinWords:       5,
		MarkingMode:    "strict",
		TotalMarks:     totalMarks,
		PassPercentage: pass,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var assignment models.Assignment
	decode(t, resp, &assignment)
	return assignment
}

func (a *testApp) getAssignment(t *testing.T, id string) models.Assignment {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/assignments/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var assignment models.Assignment
	decode(t, resp, &assignment)
	return assignment
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return body
}

func decode(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(readBody(t, resp), target))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body dto.MessageResponse
	decode(t, resp, &body)
	return body.Message
}

// assertContract validates body against testdata/contracts/<name>.schema.json.
func assertContract(t *testing.T, name string, body []byte) {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "contracts", name+".schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

type fixedEvaluator struct {
	mu    sync.Mutex
	score float64
	calls int
}

func (f *fixedEvaluator) Evaluate(_ context.Context, input ai.EssayInput) (ai.EvaluationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return ai.EvaluationResult{
		Score:   f.score,
		Remarks: "Well argued",
		Feedback: ai.Feedback{
			TopicRelevance: "High",
			Structure:      "Clear",
			ContentQuality: "Good",
			WordCount:      len(strings.Fields(input.Content)),
		},
	}, nil
}

func (f *fixedEvaluator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
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

func jsonUnmarshal(body []byte, target interface{}) error {
	return json.Unmarshal(body, target)
}

// tryGet fetches path into target without failing the test, for use inside Eventually.
func (a *testApp) tryGet(path string, target interface{}) bool {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+a.token)
	resp, err := a.app.Test(req, -1)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	return json.NewDecoder(resp.Body).Decode(target) == nil
}
