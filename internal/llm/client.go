package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/logging"
)

var (
	// ErrAPI is wrapped by every failed model request.
	ErrAPI = errors.New("language model request failed")

	// ErrMissingAPIKey is returned when a client is built without a key.
	ErrMissingAPIKey = errors.New("no OpenAI API key configured")
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.GPT3Dot5Turbo

// Request is one chat completion call.
type Request struct {
	// Kind labels the request in logs and metrics (topics, summary).
	Kind      string
	Messages  []openai.ChatCompletionMessage
	MaxTokens int
}

// Completer sends a chat completion request and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config configures a Client.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string
	Model   string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics
}

// Client is a Completer backed by the OpenAI chat completions API.
type Client struct {
	api     *openai.Client
	model   string
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		logger:  cfg.Logger.With(logging.Model(cfg.Model)),
		metrics: cfg.Metrics,
	}, nil
}

// Model returns the model identifier sent with every request.
func (c *Client) Model() string {
	return c.model
}

// Complete sends req and returns the trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (reply string, err error) {
	ctx, span := instrumentation.StartLLMSpan(ctx, c.model, req.Kind)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordLLMCompletion(ctx, c.model, req.Kind, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		c.logger.Warn("chat completion failed", logging.Operation("llm."+req.Kind), logging.Err(err))
		return "", fmt.Errorf("%w: %w", ErrAPI, err)
	}

	c.metrics.RecordLLMTokens(ctx, c.model, instrumentation.TokensPrompt, resp.Usage.PromptTokens)
	c.metrics.RecordLLMTokens(ctx, c.model, instrumentation.TokensCompletion, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", ErrAPI)
	}

	c.logger.Debug("chat completion done",
		logging.Operation("llm."+req.Kind),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
