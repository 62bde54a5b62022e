// Package llm talks to hosted text-generation APIs.
//
// Two providers are supported: OpenAI chat completions and Anthropic
// messages. Both are rate limited client side and retry transient failures
// (429 and 5xx) with exponential backoff when MaxRetries is positive.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/copyvara/internal/config"
)

// ErrEmptyResponse is returned when the provider answers with no content.
var ErrEmptyResponse = errors.New("empty response from llm provider")

const (
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultTimeout          = 60 * time.Second
	defaultMaxTokens        = 4096
	defaultBaseBackoff      = time.Second
	defaultBurst            = 2
	maxErrorBody            = 512
)

// Request is a single completion request.
type Request struct {
	System string
	User   string
	// JSON asks the provider for a single JSON object.
	JSON bool
}

// Generator produces text for a request.
type Generator interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Options tune a client. Zero values fall back to defaults.
type Options struct {
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	RateLimit   float64
	MaxRetries  int
	Temperature float64
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// OptionsFromConfig maps the llm config section to client options.
func OptionsFromConfig(cfg config.LLMConfig, logger *zap.Logger) Options {
	return Options{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey.Value(),
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		MaxRetries:  cfg.MaxRetries,
		Temperature: cfg.Temperature,
		Logger:      logger,
	}
}

// New returns the generator for the configured provider.
func New(cfg config.LLMConfig, logger *zap.Logger) (Generator, error) {
	opts := OptionsFromConfig(cfg, logger)
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		return NewOpenAI(opts)
	case config.ProviderAnthropic:
		return NewAnthropic(opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}

// transport holds what both providers share: HTTP, limiter and retries.
type transport struct {
	model       string
	apiKey      string
	baseURL     string
	temperature float64
	maxRetries  int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func newTransport(opts Options, provider, defaultBaseURL string) (*transport, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", provider)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%s model required", provider)
	}
	t := &transport{
		model:       opts.Model,
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		temperature: opts.Temperature,
		maxRetries:  opts.MaxRetries,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
	}
	if t.baseURL == "" {
		t.baseURL = defaultBaseURL
	}
	if t.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		t.httpClient = &http.Client{Timeout: timeout}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.maxRetries < 0 {
		t.maxRetries = 0
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	t.limiter = rate.NewLimiter(limit, defaultBurst)
	return t, nil
}

// withRetries waits for the limiter, then runs do until it succeeds, fails
// with a non-retryable error or exhausts the retry budget.
func (t *transport) withRetries(ctx context.Context, do func(context.Context) (string, error)) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			t.logger.Debug("retrying llm request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := do(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	if t.maxRetries == 0 {
		return "", lastErr
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryableError marks transport failures, 429 and 5xx responses.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// statusError classifies a non-200 response.
func statusError(code int, body []byte, message string) error {
	detail := message
	if detail == "" {
		detail = string(body)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
	}
	err := fmt.Errorf("llm API error (%d): %s", code, detail)
	if code == http.StatusTooManyRequests || code >= 500 {
		return &retryableError{err: err}
	}
	return err
}
