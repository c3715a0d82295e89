package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"vision-assist/config"
)

const (
	headerContentType = "Content-Type"
	headerAPIKey      = "x-goog-api-key"
	mimeJSON          = "application/json"

	maxBackoff = time.Duration(math.MaxInt64)

	// maxErrorBody caps how much of a failed response is kept in a ProviderError.
	maxErrorBody = 2048
)

// Client calls generateContent with a fixed system prompt and search grounding enabled.
// It is safe for concurrent use; it holds no per-call state.
type Client struct {
	endpoint     string
	apiKey       string
	systemPrompt string

	maxAttempts  int
	initialDelay time.Duration
	timeout      time.Duration

	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSleep replaces the wait between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient builds a client from a validated configuration.
func NewClient(cfg config.Config, systemPrompt string, opts ...Option) *Client {
	c := &Client{
		endpoint:     cfg.Endpoint(),
		apiKey:       cfg.APIKey,
		systemPrompt: systemPrompt,
		maxAttempts:  cfg.MaxAttempts,
		initialDelay: cfg.InitialDelay,
		timeout:      cfg.Timeout,
		httpClient:   &http.Client{},
		sleep:        sleepContext,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Ask sends the query and returns the generated text with its raw sources.
//
// Transport failures are retried up to the attempt budget, waiting initialDelay*2^i before
// attempt i. A successful response with no candidates is returned as is. Any other failure
// ends the call at once. Ask never returns an error; the outcome is in the Result.
func (c *Client) Ask(ctx context.Context, query string) Result {
	body, err := json.Marshal(NewPayload(c.systemPrompt, query))
	if err != nil {
		return c.critical(ctx, fmt.Errorf("failed to marshal generateContent request: %w", err), 0)
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		delay := c.backoff(attempt)
		if attempt > 0 {
			c.logger.WarnContext(ctx, "generateContent attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		response, err := c.generate(ctx, body)
		if err != nil {
			if IsRetryable(err) {
				lastErr = err
				continue
			}
			return c.critical(ctx, err, attempts)
		}

		return c.fromResponse(ctx, response, attempts)
	}

	c.logger.ErrorContext(ctx, "generateContent failed on every attempt",
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr))
	return Result{
		Outcome:  OutcomeExhausted,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// backoff is initialDelay * 2^attempt, saturating instead of overflowing.
func (c *Client) backoff(attempt int) time.Duration {
	if c.initialDelay <= 0 {
		return 0
	}
	if attempt >= 62 || c.initialDelay > maxBackoff>>attempt {
		return maxBackoff
	}
	return c.initialDelay << attempt
}

// generate performs one attempt under its own timeout.
func (c *Client) generate(ctx context.Context, body []byte) (*GenerateResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generateContent request: %w", err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBytes) > maxErrorBody {
			respBytes = respBytes[:maxErrorBody]
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(respBytes))}
	}

	var response GenerateResponse
	if err := json.Unmarshal(respBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to decode generateContent response: %w", err)
	}
	return &response, nil
}

func (c *Client) fromResponse(ctx context.Context, response *GenerateResponse, attempts int) Result {
	if len(response.Candidates) == 0 || response.Candidates[0].empty() {
		c.logger.WarnContext(ctx, "generateContent returned no candidates")
		return Result{Outcome: OutcomeNoCandidates, Attempts: attempts}
	}

	candidate := response.Candidates[0]
	text, ok := candidate.text()
	if !ok {
		text = textNotFound
	}

	return Result{
		Outcome:  OutcomeOK,
		Text:     text,
		Sources:  candidate.sources(),
		Attempts: attempts,
	}
}

func (c *Client) critical(ctx context.Context, err error, attempts int) Result {
	c.logger.ErrorContext(ctx, "generateContent failed", slog.Any("error", err))
	return Result{
		Outcome:  OutcomeCritical,
		Attempts: attempts,
		Err:      err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
