// Package gemini implements curriculum.Generator on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/pkg/circuitbreaker"
	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Gemini client.
type Config struct {
	APIKey string
	Model  string

	// Temperature for lesson generation. Chapter lists always use 0.
	Temperature float32

	// RequestsPerMinute caps calls to the API across all callers.
	RequestsPerMinute int
	Burst             int

	MaxAttempts  int
	InitialDelay time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gemini-2.5-flash",
		Temperature:       0.4,
		RequestsPerMinute: 60,
		Burst:             5,
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		BreakerThreshold:  5,
		BreakerTimeout:    30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// ContentModel is the slice of *genai.Models the client calls.
type ContentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates lesson content and chapter lists.
type Client struct {
	models  ContentModel
	config  Config
	limiter *rate.Limiter
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// New creates a client backed by the Gemini API.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return NewWithModel(gc.Models, config), nil
}

// NewWithModel creates a client over any ContentModel.
func NewWithModel(models ContentModel, config Config) *Client {
	def := DefaultConfig()
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = def.BreakerThreshold
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = def.BreakerTimeout
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	log := config.Logger.With(logger.Component("gemini"))

	return &Client{
		models:  models,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), config.Burst),
		retrier: retry.GenerationRetrier(config.MaxAttempts, config.InitialDelay,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("retrying generation", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
			}),
		),
		breaker: circuitbreaker.New("gemini",
			circuitbreaker.WithFailureThreshold(config.BreakerThreshold),
			circuitbreaker.WithTimeout(config.BreakerTimeout),
			circuitbreaker.WithIsFailure(countsAgainstBreaker),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit state changed", logger.String("from", from.String()), logger.String("to", to.String()))
			}),
		),
		log: log,
	}
}

// Generate implements curriculum.Generator.
func (c *Client) Generate(ctx context.Context, req curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
	if err := req.Selector.Validate(); err != nil {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureUpstream, err)
	}

	start := time.Now()
	text, err := c.complete(ctx, lessonPrompt(req), c.config.Temperature)
	if err != nil {
		return nil, err
	}

	c.log.Debug("lesson generated",
		logger.ContentType(string(req.ContentType)),
		logger.Latency(time.Since(start)),
		logger.Int("chars", len(text)),
	)

	return &curriculum.ContentRecord{
		Title:       req.Selector.Chapter,
		Subtitle:    req.ContentType.Label(),
		Body:        text,
		ContentType: req.ContentType,
		Language:    req.Language,
		SubjectName: req.Selector.Subject,
		Selector:    req.Selector,
	}, nil
}

// ListChapters implements curriculum.Generator.
func (c *Client) ListChapters(ctx context.Context, sel curriculum.Selector, lang curriculum.Language) ([]string, error) {
	if err := sel.ValidateSubject(); err != nil {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureUpstream, err)
	}

	text, err := c.complete(ctx, chaptersPrompt(sel, lang), 0)
	if err != nil {
		return nil, err
	}

	chapters := parseChapters(text)
	if len(chapters) == 0 {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureEmptyResponse, nil)
	}
	return chapters, nil
}

// complete runs one prompt through limiter, breaker and retrier.
// Every error it returns is a *curriculum.GenerationFailure.
func (c *Client) complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", failureFromContext(ctx, err)
	}

	var text string
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = retry.DoWithData(ctx, c.retrier, func(ctx context.Context) (string, error) {
			resp, err := c.models.GenerateContent(ctx, c.config.Model,
				genai.Text(prompt),
				&genai.GenerateContentConfig{Temperature: genai.Ptr(temperature)},
			)
			if err != nil {
				return "", classify(ctx, err)
			}
			out := strings.TrimSpace(resp.Text())
			if out == "" {
				return "", retry.Permanent(curriculum.NewGenerationFailure(curriculum.FailureEmptyResponse, nil))
			}
			return out, nil
		})
		return err
	})
	if err == nil {
		return text, nil
	}

	var gf *curriculum.GenerationFailure
	switch {
	case errors.As(err, &gf):
		return "", gf
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		return "", curriculum.NewGenerationFailure(curriculum.FailureUpstream, err)
	default:
		return "", failureFromContext(ctx, err)
	}
}

// classify maps an API error to a retry decision and a failure reason.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return retry.Permanent(failureFromContext(ctx, err))
	}

	code, status := apiErrorCode(err)
	switch {
	case code == http.StatusTooManyRequests || status == "RESOURCE_EXHAUSTED":
		return retry.Permanent(curriculum.NewGenerationFailure(curriculum.FailureQuota, err))
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return retry.Retryable(curriculum.NewGenerationFailure(curriculum.FailureTimeout, err))
	case code >= 500 || code == 0:
		// 0: transport error, no response from the API.
		return retry.Retryable(curriculum.NewGenerationFailure(curriculum.FailureUpstream, err))
	default:
		return retry.Permanent(curriculum.NewGenerationFailure(curriculum.FailureUpstream, err))
	}
}

func apiErrorCode(err error) (int, string) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status
	}
	return 0, ""
}

func failureFromContext(ctx context.Context, err error) *curriculum.GenerationFailure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return curriculum.NewGenerationFailure(curriculum.FailureReasonOf(ctxErr), err)
	}
	// rate.Limiter refuses early when the wait would pass the deadline.
	return curriculum.NewGenerationFailure(curriculum.FailureTimeout, err)
}

// countsAgainstBreaker ignores failures the API is not responsible for.
func countsAgainstBreaker(err error) bool {
	if err == nil {
		return false
	}
	switch curriculum.FailureReasonOf(err) {
	case curriculum.FailureEmptyResponse, curriculum.FailureCancelled:
		return false
	}
	return true
}

// BreakerState reports the circuit state for health checks.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}

var _ curriculum.Generator = (*Client)(nil)
