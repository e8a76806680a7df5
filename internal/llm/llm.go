package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 120 * time.Second
	defaultMaxTokens    = 4096
	defaultTemperature  = 0.2
	defaultRetryBackoff = 2 * time.Second
)

// Observer receives one notification per attempted model call.
type Observer interface {
	ObserveCall(outcome string, elapsed time.Duration)
}

// Config configures the model gateway.
type Config struct {
	BaseURL           string // OpenAI-compatible API base URL; empty means the OpenAI default
	APIKey            string
	Model             string
	MaxTokens         int
	Temperature       float32
	Timeout           time.Duration // per attempt
	MaxRetries        int           // retries after the first attempt, transient failures only
	RetryBackoff      time.Duration
	RequestsPerMinute int // 0 disables pacing
	HTTPClient        *http.Client
	Observer          Observer
	Logger            *slog.Logger
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api          *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	observer     Observer
	log          *slog.Logger
}

// New creates a new model gateway. A missing API key is a configuration error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrConfiguration
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name is empty", ErrConfiguration)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}

	c := &Client{
		api:          openai.NewClientWithConfig(config),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		observer:     cfg.Observer,
		log:          cfg.Logger,
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.temperature <= 0 {
		c.temperature = defaultTemperature
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.retryBackoff <= 0 {
		c.retryBackoff = defaultRetryBackoff
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Ping checks that the endpoint answers and accepts the credential.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Invoke sends the parts as one user message and returns the raw text of
// the first completion. It does not parse the output.
func (c *Client) Invoke(ctx context.Context, parts []Part) (string, error) {
	if !hasContent(parts) {
		return "", ErrEmptyInput
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{buildMessage(parts)},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryBackoff * time.Duration(attempt)
			c.log.Warn("retrying model call", "attempt", attempt+1, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		start := time.Now()
		raw, err := c.complete(ctx, req)
		c.observe(err, time.Since(start))
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !isTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	raw := resp.Choices[0].Message.Content
	c.log.Debug("model response", "model", c.model, "length", len(raw), "raw", raw)
	return raw, nil
}

func (c *Client) observe(err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		switch {
		case isQuotaExceeded(err):
			outcome = "quota_exceeded"
		case isTransient(err):
			outcome = "transient_error"
		default:
			outcome = "error"
		}
	}
	c.observer.ObserveCall(outcome, elapsed)
}

// StripCodeFences removes a Markdown code fence wrapped around a model reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		if i := strings.IndexByte(s, '\n'); i >= 0 && isFenceTag(s[:i]) {
			s = s[i+1:]
		} else if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
			s = s[4:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
