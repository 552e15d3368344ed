package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-evalsync/internal/dto"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/observability"
	"github.com/noah-isme/gema-evalsync/internal/session"
)

const (
	correlationHeader = "X-Correlation-ID"
	noticeSource      = "api"
)

// Client is the typed surface over the grading backend REST API.
type Client interface {
	Login(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error)
	Register(ctx context.Context, req dto.LoginRequest) (dto.AuthResponse, error)

	ListAssignments(ctx context.Context) ([]models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
	CreateAssignment(ctx context.Context, req dto.AssignmentCreateRequest) (models.Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status models.AssignmentStatus) error
	ReEvaluateAll(ctx context.Context, assignmentID string) (dto.MessageResponse, error)

	Upload(ctx context.Context, assignmentID string, files []File) (dto.UploadResponse, error)
	GetSubmission(ctx context.Context, id string) (models.Submission, error)
	ReEvaluate(ctx context.Context, submissionID string) error
	UpdateGrade(ctx context.Context, evaluationID string, req dto.GradeUpdateRequest) (models.Evaluation, error)

	ExportMarks(ctx context.Context, assignmentID string, format ExportFormat, w io.Writer) error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	HTTPClient *http.Client
	Session    *session.Manager
	Notifier   notify.Notifier
	Logger     zerolog.Logger
}

type client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	session  *session.Manager
	notifier notify.Notifier
	logger   zerolog.Logger
}

// New constructs the REST client. A zero RateLimit disables client side throttling.
func New(opts Options) Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	sess := opts.Session
	if sess == nil {
		sess = session.NewManager(nil, opts.Logger)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard
	}

	return &client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     httpClient,
		limiter:  limiter,
		session:  sess,
		notifier: notifier,
		logger:   opts.Logger.With().Str("component", "api_client").Logger(),
	}
}

type request struct {
	operation   string
	method      string
	path        string
	body        io.Reader
	contentType string
	anonymous   bool
}

func jsonRequest(operation, method, path string, payload interface{}) (request, error) {
	req := request{operation: operation, method: method, path: path}
	if payload == nil {
		return req, nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("encode %s payload: %w", operation, err)
	}
	req.body = bytes.NewReader(encoded)
	req.contentType = "application/json"
	return req, nil
}

// call executes the request and decodes a JSON body into out when out is non-nil.
func (c *client) call(ctx context.Context, req request, out interface{}) error {
	return c.exchange(ctx, req, func(body io.Reader) error {
		if out == nil {
			_, _ = io.Copy(io.Discard, body)
			return nil
		}
		if err := json.NewDecoder(body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", req.operation, err)
		}
		return nil
	})
}

// exchange performs one round trip and hands a 2xx body to consume. Every failure passes
// through the interceptor exactly once.
func (c *client) exchange(ctx context.Context, req request, consume func(io.Reader) error) error {
	tracer := otel.Tracer("github.com/noah-isme/gema-evalsync/internal/apiclient")
	ctx, span := tracer.Start(ctx, "api."+req.operation)
	defer span.End()

	correlationID := uuid.NewString()
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("http.route", req.path),
		attribute.String("correlation_id", correlationID),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: %w", req.operation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, req.body)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("build %s request: %w", req.operation, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(correlationHeader, correlationID)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if !req.anonymous {
		if token := c.session.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	observability.APILatency().WithLabelValues(req.operation).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.APIRequests().WithLabelValues(req.operation, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_error")
		return c.transportFailure(ctx, req, err)
	}
	defer resp.Body.Close()

	observability.APIRequests().WithLabelValues(req.operation, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := c.intercept(ctx, req, resp)
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if err := consume(resp.Body); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Debug().
		Str("operation", req.operation).
		Str("correlation_id", correlationID).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call completed")

	return nil
}

// intercept is the single place where failed responses turn into notices and typed errors.
func (c *client) intercept(ctx context.Context, req request, resp *http.Response) *APIError {
	var payload dto.MessageResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}

	apiErr := &APIError{Operation: req.operation, StatusCode: resp.StatusCode, Message: payload.Message}

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Clear(ctx)
	}

	if message := noticeFor(resp.StatusCode, payload.Message); message != "" {
		c.notifier.Notify(notify.Error(noticeSource, message))
	}

	event := c.logger.Warn()
	if resp.StatusCode == http.StatusNotFound {
		event = c.logger.Debug()
	}
	event.Str("operation", req.operation).Int("status", resp.StatusCode).Str("message", payload.Message).Msg("api call failed")

	return apiErr
}

func (c *client) transportFailure(ctx context.Context, req request, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%s: %w", req.operation, err)
	}

	c.logger.Error().Err(err).Str("operation", req.operation).Msg("api call did not reach the server")
	c.notifier.Notify(notify.Error(noticeSource, MessageFallback))
	return fmt.Errorf("%s: %w: %w", req.operation, ErrTransport, err)
}
