package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"mealscore"
)

const maxImageBytes = 8 << 20

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	NumPredict    int     `json:"num_predict,omitempty"`
}

type Client struct {
	endpoint   string
	model      string
	httpClient mealscore.HTTPClient
	options    options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	MaxTokens    int
	HTTPClient   mealscore.HTTPClient
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, errors.New("model id is required")
	}
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, errors.New("base endpoint is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		model:      opts.ModelID,
		httpClient: httpClient,
		endpoint:   strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options: options{
			Temperature:   0.2,
			TopP:          0.9,
			RepeatPenalty: 1.05,
			NumCtx:        8192,
			NumPredict:    opts.MaxTokens,
		},
	}, nil
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Format   string        `json:"format,omitempty"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options,omitempty"`
}

type wireResponse struct {
	Message    wireMessage `json:"message"`
	DoneReason string      `json:"done_reason,omitempty"`
	EvalCount  int         `json:"eval_count,omitempty"`
}

// Generate sends one chat turn in JSON format mode and returns the message
// content verbatim.
func (c *Client) Generate(ctx context.Context, req mealscore.GenerationRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", "ollama", "model", c.model, "images", len(req.Images))

	user := wireMessage{Role: "user", Content: req.User}
	for _, img := range req.Images {
		encoded, err := c.fetchImage(ctx, img.URL)
		if err != nil {
			return "", err
		}
		user.Images = append(user.Images, encoded)
	}

	msgs := make([]wireMessage, 0, 2)
	if sp := strings.TrimSpace(req.System); sp != "" {
		msgs = append(msgs, wireMessage{Role: "system", Content: sp})
	}
	msgs = append(msgs, user)

	reqBytes, err := json.Marshal(wireRequest{
		Model:    c.model,
		Messages: msgs,
		Format:   "json",
		Stream:   false,
		Options:  c.options,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama chat: read response: %w", err)
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("ollama chat: decode response: %w", err)
	}

	slog.Info("LLM_CLIENT: Ollama response received", "done_reason", wr.DoneReason, "eval_count", wr.EvalCount, "content_length", len(wr.Message.Content))
	if wr.DoneReason == "length" {
		return "", errors.New("ollama chat: model hit num_predict limit")
	}
	if strings.TrimSpace(wr.Message.Content) == "" {
		return "", errors.New("ollama chat: empty completion")
	}
	return wr.Message.Content, nil
}

func (c *Client) fetchImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
