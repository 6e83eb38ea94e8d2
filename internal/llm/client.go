// Package llm calls a hosted LLM provider (OpenAI, Groq or Google) under a
// per-attempt timeout and retry policy, or returns canned output when no API
// key is configured.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/travel-insights-service/internal/circuitbreaker"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/retry"
)

const (
	// DefaultMaxTokens applies when a Request leaves MaxTokens unset.
	DefaultMaxTokens = 300
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 5 * time.Second
	// DefaultBackoff is the base of the exponential wait between attempts.
	DefaultBackoff = 100 * time.Millisecond

	mockProvider = "mock"
)

// Request is one logical completion call.
type Request struct {
	Prompt    string
	Model     string // overrides the configured model
	MaxTokens int
}

// Response holds the trimmed generated text and the provider's raw body.
// Raw is nil in mock mode.
type Response struct {
	Text     string
	Raw      json.RawMessage
	Provider string
}

// Config configures a Client. Retries counts attempts after the first.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration

	Breaker    *circuitbreaker.CircuitBreaker
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	provider Provider
	http     *resty.Client
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
	mock     bool
}

// NewClient resolves the provider strategy and prepares the transport. With an
// empty APIKey the client runs in mock mode and never touches the network.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		breaker: cfg.Breaker,
		logger:  logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retries < 0 {
		c.retries = 0
	}
	if c.backoff <= 0 {
		c.backoff = DefaultBackoff
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		c.mock = true
		return c, nil
	}

	provider, err := ResolveProvider(ProviderConfig{
		Name:    cfg.Provider,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	c.provider = provider

	if cfg.HTTPClient != nil {
		c.http = resty.NewWithClient(cfg.HTTPClient)
	} else {
		c.http = resty.New()
	}
	// Retries belong to the policy in Call, not the transport.
	c.http.SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())
	return c, nil
}

// ProviderName returns the resolved provider, or "mock".
func (c *Client) ProviderName() string {
	if c.mock {
		return mockProvider
	}
	return c.provider.Name()
}

// Mock reports whether the client returns canned output.
func (c *Client) Mock() bool {
	return c.mock
}

// Call sends req.Prompt to the provider. Failed attempts are retried with
// exponential backoff unless they timed out or got a 4xx. After the policy
// gives up the last error is returned as a *ProviderError.
func (c *Client) Call(ctx context.Context, req Request) (Response, error) {
	if c.mock {
		observability.LLMCallsTotal.WithLabelValues(mockProvider, "mock").Inc()
		return Response{Text: MockResponse(req.Prompt), Provider: mockProvider}, nil
	}

	name := c.provider.Name()
	opts := Options{Model: req.Model, MaxTokens: req.MaxTokens}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	httpReq, err := c.provider.BuildRequest(req.Prompt, opts)
	if err != nil {
		return Response{}, &ProviderError{Provider: name, Message: "build request", Err: err}
	}

	logger := observability.LoggerFrom(ctx, c.logger)
	policy := retry.Policy{
		MaxAttempts: c.retries + 1,
		Backoff:     retry.Exponential(c.backoff),
		IsRetryable: IsRetryable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			observability.LLMRetriesTotal.WithLabelValues(name).Inc()
			logger.Warn("llm attempt failed, retrying",
				zap.String("provider", name),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}

	var resp Response
	call := func(ctx context.Context) error {
		var err error
		resp, err = retry.Do(ctx, policy, func(ctx context.Context, _ int) (Response, error) {
			return c.attempt(ctx, httpReq)
		})
		return err
	}
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Provider: name, Err: err}
		}
		return Response{}, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req HTTPRequest) (Response, error) {
	name := c.provider.Name()
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	r := c.http.R().SetContext(attemptCtx).SetBody(req.Body)
	if len(req.Header) > 0 {
		r.SetHeaders(req.Header)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if id := observability.CorrelationID(ctx); id != "" {
		r.SetHeader("X-Correlation-ID", id)
	}

	start := time.Now()
	resp, err := r.Post(req.URL)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		status := "error"
		perr := &ProviderError{Provider: name, Err: err}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			status = "timeout"
			perr.Err = fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err)
		}
		observability.LLMCallsTotal.WithLabelValues(name, status).Inc()
		observability.LLMDuration.WithLabelValues(name, status).Observe(elapsed)
		return Response{}, perr
	}

	status := observability.StatusLabel(resp.StatusCode())
	observability.LLMCallsTotal.WithLabelValues(name, status).Inc()
	observability.LLMDuration.WithLabelValues(name, status).Observe(elapsed)

	if !resp.IsSuccess() {
		return Response{}, &ProviderError{
			Provider:   name,
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.Body()),
		}
	}
	text, err := c.provider.ParseResponse(resp.Body())
	if err != nil {
		return Response{}, &ProviderError{Provider: name, Message: "unparseable response", Err: err}
	}
	return Response{
		Text:     strings.TrimSpace(text),
		Raw:      json.RawMessage(resp.Body()),
		Provider: name,
	}, nil
}

// IsUnavailable reports whether err means the provider could not serve the
// call (transport failure, timeout or 5xx). 4xx and caller cancellation are
// not held against the provider.
func IsUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.ClientError()
	}
	return true
}

// errorMessage pulls error.message out of OpenAI/Google style error bodies,
// falling back to the (truncated) body text.
func errorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
