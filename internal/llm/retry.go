package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"dinnerplan/internal/metrics"

	"go.uber.org/zap"
)

// maxErrorBody caps how much of a failed response body is kept in a StatusError.
const maxErrorBody = 2048

// RetryConfig configures retry behavior for generation API calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// BaseDelay is doubled for every failed attempt.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxJitter bounds the uniform random delay added to each backoff.
	// Default: 1 second
	MaxJitter time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxJitter:   time.Second,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaults.MaxAttempts
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = defaults.BaseDelay
	}
	if c.MaxJitter == 0 {
		c.MaxJitter = defaults.MaxJitter
	}
}

// Backoff returns the delay that follows failed attempt (0-indexed):
// 2^attempt * BaseDelay + jitter.
func (c RetryConfig) Backoff(attempt int, jitter time.Duration) time.Duration {
	return c.BaseDelay<<attempt + jitter
}

// Retrier runs an operation with bounded exponential backoff. It holds no
// per-call state and may be shared between goroutines.
type Retrier struct {
	cfg     RetryConfig
	logger  *zap.Logger
	metrics *metrics.Collectors
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func(max time.Duration) time.Duration
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithLogger sets the logger used for attempt logging.
func WithLogger(l *zap.Logger) RetrierOption {
	return func(r *Retrier) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCollectors counts attempts on the given Prometheus collectors.
func WithCollectors(c *metrics.Collectors) RetrierOption {
	return func(r *Retrier) { r.metrics = c }
}

// WithSleep replaces the context-aware sleep between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithJitter replaces the random jitter source.
func WithJitter(jitter func(max time.Duration) time.Duration) RetrierOption {
	return func(r *Retrier) { r.jitter = jitter }
}

// NewRetrier creates a Retrier. Zero fields of cfg take their defaults.
func NewRetrier(cfg RetryConfig, opts ...RetrierOption) *Retrier {
	cfg.ApplyDefaults()
	r := &Retrier{
		cfg:    cfg,
		logger: zap.NewNop(),
		sleep:  sleepContext,
		jitter: uniformJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective retry configuration.
func (r *Retrier) Config() RetryConfig {
	return r.cfg
}

// Do calls op until it succeeds, fails with a non-retryable error, or the
// attempt budget runs out. On exhaustion the last error is returned wrapped.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	startTime := time.Now()

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			r.metrics.ObserveAttempt("ok")
			if attempt > 0 {
				r.logger.Info("generation request recovered after retries",
					zap.Int("attempts", attempt+1),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			r.metrics.ObserveAttempt("terminal")
			r.logger.Debug("generation request error is not retryable",
				zap.Error(err),
				zap.Int("status_code", statusCode(err)),
			)
			return err
		}
		r.metrics.ObserveAttempt("retry")

		// Last attempt, return error
		if attempt == r.cfg.MaxAttempts-1 {
			break
		}

		backoff := r.cfg.Backoff(attempt, r.jitter(r.cfg.MaxJitter))
		r.logger.Info("retrying generation request after transient error",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Error(err),
			zap.Int("status_code", statusCode(err)),
			zap.Duration("backoff", backoff),
		)

		if err := r.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("operation canceled: %w", err)
		}
	}

	if lastErr == nil {
		return ErrRetriesExhausted
	}

	r.logger.Warn("generation request failed after all retries exhausted",
		zap.Int("total_attempts", r.cfg.MaxAttempts),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
		zap.Int("status_code", statusCode(lastErr)),
	)
	return fmt.Errorf("generation request failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// Request is a buffered HTTP request that can be replayed on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// HTTPDoer is the transport used by Client. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client sends requests through a Retrier. A response whose status is
// accepted (below 500 and not 429) is returned as is, including 4xx.
type Client struct {
	http    HTTPDoer
	retrier *Retrier
}

// NewClient creates a retrying client. A nil doer uses http.DefaultClient.
func NewClient(doer HTTPDoer, retrier *Retrier) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryConfig())
	}
	return &Client{http: doer, retrier: retrier}
}

// Send performs req with retries.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		r, err := c.once(ctx, req)
		if err != nil {
			return err
		}
		if !Accepted(r.StatusCode) {
			return &StatusError{StatusCode: r.StatusCode, Body: truncate(r.Body)}
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrNetwork, err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}, nil
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
