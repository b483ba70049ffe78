package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Gateway is an opaque text-completion capability.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Options tune each completion request. Zero values are omitted.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float32
	// RatePerMin caps requests per minute across all callers; 0 disables.
	RatePerMin int
}

// Client is a Gateway backed by an OpenAI-compatible chat completions API.
// One Client is created per run and shared by every stage.
type Client struct {
	client  *openai.Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, opts Options, logger *zap.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMin)), 1)
	}

	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		opts:    opts,
		limiter: limiter,
		logger:  logger,
	}
}

// Complete sends prompt as a single user message. It makes exactly one
// attempt; failures and empty completions are returned as *GatewayError.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, prompt, c.opts.MaxTokens)
}

// Ping checks connectivity with a tiny completion.
func (c *Client) Ping(ctx context.Context) (string, error) {
	return c.complete(ctx, "Respond with 'OK' if you can read this.", 10)
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &GatewayError{Op: "rate limit", Err: err}
	}

	req := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	}
	if c.opts.Temperature != nil {
		req.Temperature = *c.opts.Temperature
		// Temperature is omitempty in go-openai, so an explicit 0 needs a
		// nonzero stand-in to reach the API.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &GatewayError{Op: "chat completion", StatusCode: statusOf(err), Err: err}
	}
	c.logger.Debug("chat completion",
		zap.String("model", c.opts.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("took", time.Since(start)),
	)

	if len(resp.Choices) == 0 {
		return "", &GatewayError{Op: "chat completion", Err: ErrEmptyCompletion}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &GatewayError{Op: "chat completion", Err: ErrEmptyCompletion}
	}
	return content, nil
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("LLM returned empty response")

// GatewayError is an inference call failure.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
