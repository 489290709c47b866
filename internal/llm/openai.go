package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"

	"github.com/frictiondesk/frictiondesk/internal/config"
)

// OpenAIClient talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

// NewOpenAIClient builds a client from LLM config. The API key comes from
// the environment; an empty key attempts unauthenticated access, which
// suits local inference servers.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	options := []option.RequestOption{}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	apiKey := config.APIKey()
	if apiKey == "" {
		log.Info("llm: no API key set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	return &OpenAIClient{
		client:     &client,
		model:      cfg.Model,
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		maxRetries: cfg.MaxRetries,
	}
}

// Complete sends one system+user exchange. Each attempt is bounded by the
// configured timeout; transient failures are retried with doubling backoff
// so a hung provider cannot hold a session lock indefinitely.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (*Completion, error) {
	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			log.WithField("attempt", attempt).Debug("llm: retrying completion")
		}

		comp, err := c.complete(ctx, system, user)
		if err == nil {
			return comp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("llm: completion failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string) (*Completion, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: provider returned no content choices")
	}

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		TokensInput:  int(resp.Usage.PromptTokens),
		TokensOutput: int(resp.Usage.CompletionTokens),
	}, nil
}
