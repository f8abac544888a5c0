// Package openai wraps the OpenAI SDK behind the engine's Completer
// interface so handlers never touch SDK types directly.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/crisalvesdev/atendebot/engine/contract"
)

type Config struct {
	BaseURL     string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey      string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model       string        `envconfig:"MODEL" split_words:"true" default:"gpt-4o-mini"`
	MaxTokens   int           `envconfig:"MAX_TOKENS" split_words:"true" default:"700"`
	Temperature float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.4"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Client implements contract.Completer over the OpenAI chat completions API.
type Client struct {
	sdk openaisdk.Client
	cfg Config
}

var _ contract.Completer = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("%w: openai api key is empty", contract.ErrValidation)
	}

	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}

	return &Client{sdk: openaisdk.NewClient(opts...), cfg: cfg}, nil
}

// Complete runs one chat completion. maxTokens and temperature override the
// configured defaults when positive / non-negative.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (contract.Completion, error) {
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if temperature < 0 {
		temperature = c.cfg.Temperature
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(userPrompt))

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(c.cfg.Model),
		Messages:    messages,
		MaxTokens:   openaisdk.Int(int64(maxTokens)),
		Temperature: openaisdk.Float(temperature),
	})
	if err != nil {
		return contract.Completion{}, fmt.Errorf("%w: %v", contract.ErrLLMInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return contract.Completion{}, fmt.Errorf("%w: empty choices", contract.ErrLLMInvoke)
	}

	return contract.Completion{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: contract.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		},
	}, nil
}
