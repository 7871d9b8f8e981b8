package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Brownie44l1/skinlens/internal/domain/port"
	"github.com/Brownie44l1/skinlens/internal/prediction"
)

var ErrDisabled = errors.New("text generation is not configured")

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider talks to any OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

func NewOpenAIProvider(cfg Config) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature:         openai.Float(1),
		TopP:                openai.Float(0.95),
		MaxCompletionTokens: openai.Int(8192),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Disabled is used when no API key is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) { return "", ErrDisabled }

// New returns an OpenAIProvider, or Disabled when cfg has no API key.
func New(cfg Config) port.TextGenerator {
	if cfg.APIKey == "" {
		return Disabled{}
	}
	return NewOpenAIProvider(cfg)
}

// ChatPrompt wraps a user message for the general medical chatbot.
func ChatPrompt(message string) string {
	return "You are a chatbot. If unrelated to medicine, respond generically. Else, give a medical response: " + message
}

// ExplanationPrompt asks for a plain-language reading of a prediction
// response. It returns false when the response carries no prediction.
func ExplanationPrompt(raw json.RawMessage) (string, bool) {
	var resp prediction.Response
	if err := json.Unmarshal(raw, &resp); err != nil || !resp.Success || resp.Prediction == nil {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A skin lesion classifier labelled an uploaded photo as %s ", resp.Label)
	fmt.Fprintf(&b, "with a malignancy probability of %.4f (%s confidence). ", resp.Probability, resp.Confidence)
	b.WriteString("Explain to the patient in plain language what this result means. ")
	b.WriteString("Make clear it is not a diagnosis and say when they should see a dermatologist.")
	return b.String(), true
}
