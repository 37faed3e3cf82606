package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"mealscore"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	defaultModelID     = goopenai.GPT4oMini
	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// LLMClient generates text through the OpenAI chat completions API in JSON
// object mode. Images are passed by URL.
type LLMClient struct {
	client chatCompleter
	opts   LLMOptions
}

// NewLLMClient builds a client with the official endpoint for apiKey.
func NewLLMClient(apiKey string, opts LLMOptions) (*LLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	return newLLMClient(goopenai.NewClient(apiKey), opts), nil
}

func newLLMClient(client chatCompleter, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{client: client, opts: opts}
}

func (c *LLMClient) Generate(ctx context.Context, req mealscore.GenerationRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", "openai", "model", c.opts.ModelID, "images", len(req.Images))

	var msgs []goopenai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, userMessage(req))

	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.opts.ModelID,
		Messages:    msgs,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		slog.Error("LLM_CLIENT: OpenAI invoke failed", "error", err, "model", c.opts.ModelID)
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}

	choice := resp.Choices[0]
	slog.Info("LLM_CLIENT: OpenAI invoke succeeded",
		"finish_reason", choice.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	switch choice.FinishReason {
	case goopenai.FinishReasonLength:
		return "", errors.New("openai chat completion: model hit max_tokens limit")
	case goopenai.FinishReasonContentFilter:
		return "", errors.New("openai chat completion: response blocked by content filter")
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", errors.New("openai chat completion: empty completion")
	}
	return choice.Message.Content, nil
}

func userMessage(req mealscore.GenerationRequest) goopenai.ChatCompletionMessage {
	if len(req.Images) == 0 {
		return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.User}
	}

	parts := []goopenai.ChatMessagePart{{Type: goopenai.ChatMessagePartTypeText, Text: req.User}}
	for _, img := range req.Images {
		parts = append(parts, goopenai.ChatMessagePart{
			Type: goopenai.ChatMessagePartTypeImageURL,
			ImageURL: &goopenai.ChatMessageImageURL{
				URL:    img.URL,
				Detail: goopenai.ImageURLDetailAuto,
			},
		})
	}
	return goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, MultiContent: parts}
}
