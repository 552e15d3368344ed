package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultEssayModel     = "gpt-4o-mini"
	defaultEssayMaxTokens = 700
)

var errNoChoices = errors.New("openai returned no choices")

var (
	essayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evalsync",
		Subsystem: "ai",
		Name:      "evaluation_duration_seconds",
		Help:      "Latency of essay grading calls to the model",
	}, []string{"model"})

	essayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evalsync",
		Subsystem: "ai",
		Name:      "evaluation_failures_total",
		Help:      "Essay grading calls that returned no usable grade",
	}, []string{"model"})
)

// OpenAIConfig configures the chat completion evaluator. BaseURL is optional and lets tests
// point the client at a local stub.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIEvaluator grades essays with a chat completion model.
type OpenAIEvaluator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEvaluator fills in model defaults and builds the client.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultEssayModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultEssayMaxTokens
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIEvaluator{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-evalsync/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_evaluator").Str("model", cfg.Model).Logger(),
	}, nil
}

// Evaluate asks the model for a 0..1 grade and scales it to the assignment's total marks.
func (e *OpenAIEvaluator) Evaluate(ctx context.Context, input EssayInput) (EvaluationResult, error) {
	if strings.TrimSpace(input.Content) == "" {
		return EvaluationResult{}, ErrEmptyContent
	}

	ctx, span := e.tracer.Start(ctx, "openai.evaluate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Float64("assignment.total_marks", input.TotalMarks),
	))
	defer span.End()

	fail := func(err error) (EvaluationResult, error) {
		essayFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationResult{}, err
	}

	started := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, e.newEssayRequest(input))
	elapsed := time.Since(started)
	essayLatency.WithLabelValues(e.cfg.Model).Observe(elapsed.Seconds())
	if err != nil {
		return fail(fmt.Errorf("openai evaluate: %w", err))
	}
	if len(resp.Choices) == 0 {
		return fail(errNoChoices)
	}

	result, err := decodeGrade(resp.Choices[0].Message.Content, input)
	if err != nil {
		return fail(err)
	}

	e.logger.Debug().
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("duration", elapsed).
		Float64("score", result.Score).
		Msg("essay graded")

	return result, nil
}

func (e *OpenAIEvaluator) newEssayRequest(input EssayInput) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderInstructions},
			{Role: openai.ChatMessageRoleUser, Content: essayPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
}

const graderInstructions = "You grade student essays. Reply with one JSON object with the keys score (a number " +
	"between 0 and 1), remarks, topicRelevance, structure and contentQuality. Weigh relevance to the " +
	"instructions, organisation, argument and language."

func essayPrompt(input EssayInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assignment: %s\n\nInstructions:\n%s\n", input.Title, input.Instructions)
	if input.MinWords > 0 {
		fmt.Fprintf(&b, "\nExpected length: at least %d words", input.MinWords)
		if input.Strict {
			b.WriteString(", shorter essays must lose marks")
		}
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "\nEssay:\n%s\n", input.Content)
	return b.String()
}

type gradeReply struct {
	Score          float64 `json:"score"`
	Remarks        string  `json:"remarks"`
	TopicRelevance string  `json:"topicRelevance"`
	Structure      string  `json:"structure"`
	ContentQuality string  `json:"contentQuality"`
}

func decodeGrade(content string, input EssayInput) (EvaluationResult, error) {
	var reply gradeReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &reply); err != nil {
		return EvaluationResult{}, fmt.Errorf("decode grade: %w", err)
	}

	fraction := math.Max(0, math.Min(1, reply.Score))
	return EvaluationResult{
		Score:   math.Round(fraction*input.TotalMarks*10) / 10,
		Remarks: strings.TrimSpace(reply.Remarks),
		Feedback: Feedback{
			TopicRelevance: reply.TopicRelevance,
			Structure:      reply.Structure,
			ContentQuality: reply.ContentQuality,
			WordCount:      len(tokenize(input.Content)),
		},
	}, nil
}
