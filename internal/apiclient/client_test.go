package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/session"
)

type noticeRecorder struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *noticeRecorder) Notify(notice notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

func (r *noticeRecorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notices))
	for _, notice := range r.notices {
		out = append(out, notice.Message)
	}
	return out
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (Client, *session.Manager, *noticeRecorder) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := session.NewManager(nil, zerolog.Nop())
	recorder := &noticeRecorder{}
	client := New(Options{
		BaseURL:  server.URL + "/",
		Session:  sess,
		Notifier: recorder,
		Logger:   zerolog.Nop(),
	})
	return client, sess, recorder
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func TestAttachesBearerTokenAndCorrelationID(t *testing.T) {
	var gotAuth, gotCorrelation string
	client, sess, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get("X-Correlation-ID")
		writeJSON(w, http.StatusOK, []models.Assignment{{ID: "a1", Title: "Essay"}})
	})
	require.NoError(t, sess.Set(context.Background(), models.User{ID: "u1"}, "secret-token"))

	assignments, err := client.ListAssignments(context.Background())
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.NotEmpty(t, gotCorrelation)
}

func TestLoginStoresSessionWithoutSendingToken(t *testing.T) {
	var gotAuth string
	client, sess, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, dto.AuthResponse{User: models.User{ID: "u1", Email: "t@example.com"}, Token: "jwt"})
	})
	require.NoError(t, sess.Set(context.Background(), models.User{}, "stale"))

	resp, err := client.Login(context.Background(), dto.LoginRequest{Email: "t@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "jwt", resp.Token)
	require.Empty(t, gotAuth)
	require.Equal(t, "jwt", sess.Token())
}

func TestUnauthorizedClearsSession(t *testing.T) {
	client, sess, recorder := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, dto.MessageResponse{Message: "token expired"})
	})
	require.NoError(t, sess.Set(context.Background(), models.User{ID: "u1"}, "jwt"))

	_, err := client.GetAssignment(context.Background(), "a1")
	require.Error(t, err)
	require.True(t, IsUnauthorized(err))
	require.True(t, errors.Is(err, ErrUnauthorized))
	require.False(t, sess.Authenticated())
	require.Equal(t, []string{MessageSessionExpired}, recorder.messages())
}

func TestInterceptorNoticeTexts(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    []string
	}{
		{name: "forbidden", status: http.StatusForbidden, message: "nope", want: []string{MessageForbidden}},
		{name: "not found suppressed", status: http.StatusNotFound, message: "missing", want: []string{}},
		{name: "server error", status: http.StatusBadGateway, message: "upstream", want: []string{MessageServerError}},
		{name: "bad request uses server message", status: http.StatusBadRequest, message: "Title is required", want: []string{"Title is required"}},
		{name: "bad request fallback", status: http.StatusConflict, message: "", want: []string{MessageFallback}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _, recorder := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, dto.MessageResponse{Message: tc.message})
			})

			err := client.DeleteAssignment(context.Background(), "a1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.status, apiErr.StatusCode)
			require.Equal(t, tc.message, apiErr.Message)
			require.Equal(t, tc.want, recorder.messages())
		})
	}
}

func TestNotFoundHelper(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetSubmission(context.Background(), "missing")
	require.True(t, IsNotFound(err))
	require.False(t, IsRetryable(err))
}

func TestTransportFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	recorder := &noticeRecorder{}
	client := New(Options{BaseURL: server.URL, Notifier: recorder, Logger: zerolog.Nop()})

	_, err := client.ListAssignments(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	require.True(t, IsRetryable(err))
	require.Equal(t, []string{MessageFallback}, recorder.messages())
}

func TestCancelledContextRaisesNoNotice(t *testing.T) {
	client, _, recorder := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.Submission{ID: "s1"})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetSubmission(ctx, "s1")
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, recorder.messages())
}

func TestChangeStatusSendsPatch(t *testing.T) {
	var body dto.StatusChangeRequest
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/assignments/a1/status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.ChangeStatus(context.Background(), "a1", models.AssignmentStatusClosed))
	require.Equal(t, "closed", body.Status)
}

func TestUploadSendsMultipartFiles(t *testing.T) {
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF")
	var names []string
	var contentTypes []string

	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/submissions/upload/a1", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, header := range r.MultipartForm.File[UploadField] {
			names = append(names, header.Filename)
			contentTypes = append(contentTypes, header.Header.Get("Content-Type"))
		}
		writeJSON(w, http.StatusCreated, dto.UploadResponse{Message: "Uploaded", Submissions: []string{"s1", "s2"}})
	})

	resp, err := client.Upload(context.Background(), "a1", []File{
		{Name: "alice.pdf", Data: pdf},
		{Name: "bob.pdf", Data: pdf},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, resp.Submissions)
	require.Equal(t, []string{"alice.pdf", "bob.pdf"}, names)
	require.Equal(t, []string{"application/pdf", "application/pdf"}, contentTypes)
}

func TestExportStreamsBody(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/export/marks-sheet/a1":
			_, _ = io.WriteString(w, "Roll Number,Name\n")
		case "/export/marks-sheet-excel/a1":
			_, _ = w.Write([]byte("PK\x03\x04"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	var csvBuf, xlsxBuf bytes.Buffer
	require.NoError(t, client.ExportMarks(context.Background(), "a1", ExportCSV, &csvBuf))
	require.NoError(t, client.ExportMarks(context.Background(), "a1", ExportExcel, &xlsxBuf))
	require.Equal(t, "Roll Number,Name\n", csvBuf.String())
	require.Equal(t, "PK\x03\x04", xlsxBuf.String())
}

func TestReEvaluateAllReturnsServerMessage(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assignments/a1/re-evaluate-all", r.URL.Path)
		writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Re-evaluation started for 4 submissions"})
	})

	resp, err := client.ReEvaluateAll(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "Re-evaluation started for 4 submissions", resp.Message)
}
