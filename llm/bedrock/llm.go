package bedrock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"

	"mealscore"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const (
	// defaultModelID is an inference profile ID, not the foundation model's ID.
	// See https://docs.aws.amazon.com/bedrock/latest/userguide/inference-profiles.html.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	// An assessment is small; 1k tokens leaves room for a verbose model.
	defaultMaxTokens = 1024

	// Low temperature and top_p keep structured output consistent.
	defaultTemperature = 0.2
	defaultTopP        = 0.9

	// Bedrock rejects images above 3.75MB.
	maxImageBytes = 3_750_000
)

var (
	errMaxTokens = errors.New("model hit MaxTokens limit")
	errBlocked   = errors.New("model response blocked by Bedrock safety filters")
	errEmpty     = errors.New("model returned no text")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMClient generates text through the Bedrock Converse API. Images are
// downloaded with the HTTP client and sent inline.
type LLMClient struct {
	brc        bedrockRuntimeClient
	httpClient mealscore.HTTPClient
	opts       LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, httpClient mealscore.HTTPClient, opts LLMOptions) *LLMClient {
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
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LLMClient{
		brc:        brc,
		httpClient: httpClient,
		opts:       opts,
	}
}

func (c *LLMClient) Generate(ctx context.Context, req mealscore.GenerationRequest) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", "bedrock", "model", c.opts.ModelID, "images", len(req.Images))

	var sys []types.SystemContentBlock
	if req.System != "" {
		sys = append(sys, &types.SystemContentBlockMemberText{Value: req.System})
	}

	msg := types.Message{Role: types.ConversationRoleUser}
	for _, img := range req.Images {
		block, err := c.imageBlock(ctx, img)
		if err != nil {
			return "", err
		}
		msg.Content = append(msg.Content, block)
	}
	msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: req.User})

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.opts.ModelID),
		System:   sys,
		Messages: []types.Message{msg},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock invoke failed", "error", err, "model", c.opts.ModelID)
		return "", fmt.Errorf("bedrock converse: %w", err)
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}
	slog.Info("LLM_CLIENT: Bedrock invoke succeeded", attrs...)

	switch out.StopReason {
	case "max_tokens":
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MAX_TOKENS")
		return "", errMaxTokens
	case "guardrail_intervened", "content_filtered":
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", errBlocked
	}

	text := textFromOutput(out)
	if strings.TrimSpace(text) == "" {
		return "", errEmpty
	}
	return text, nil
}

func (c *LLMClient) imageBlock(ctx context.Context, img mealscore.ImageRef) (types.ContentBlock, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	format, err := imageFormat(mimeType, img.URL)
	if err != nil {
		return nil, err
	}

	slog.Info("LLM_CLIENT: Added image content", "format", format, "bytes", len(data))
	return &types.ContentBlockMemberImage{Value: types.ImageBlock{
		Format: format,
		Source: &types.ImageSourceMemberBytes{Value: data},
	}}, nil
}

// imageFormat maps a MIME type, or failing that the URL extension, to a
// Bedrock image format.
func imageFormat(mimeType, url string) (types.ImageFormat, error) {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		switch mt {
		case "image/jpeg", "image/jpg":
			return types.ImageFormatJpeg, nil
		case "image/png":
			return types.ImageFormatPng, nil
		case "image/gif":
			return types.ImageFormatGif, nil
		case "image/webp":
			return types.ImageFormatWebp, nil
		}
	}

	u := url
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	switch strings.ToLower(path.Ext(u)) {
	case ".jpg", ".jpeg":
		return types.ImageFormatJpeg, nil
	case ".png":
		return types.ImageFormatPng, nil
	case ".gif":
		return types.ImageFormatGif, nil
	case ".webp":
		return types.ImageFormatWebp, nil
	}
	return "", fmt.Errorf("unsupported image type %q", mimeType)
}

// textFromOutput prefers the last text block that looks like a JSON object,
// otherwise joins all text blocks with newlines.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return ""
	}

	var texts []string
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}

	for i := len(texts) - 1; i >= 0; i-- {
		s := strings.TrimSpace(texts[i])
		if len(s) > 1 && s[0] == '{' && s[len(s)-1] == '}' {
			return s
		}
	}
	return strings.Join(texts, "\n")
}
