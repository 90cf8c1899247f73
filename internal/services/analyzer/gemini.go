package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"draftdrop/internal/config"
	"draftdrop/internal/queue"
	"draftdrop/internal/services"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiClient analyzes images with the Google Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	limit   int64
}

// NewGeminiClient creates a Gemini-backed analyzer. BaseURL, when set,
// overrides the API endpoint.
func NewGeminiClient(ctx context.Context, cfg config.Analyzer) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "gemini api key not configured", nil)
	}
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint := strings.TrimSpace(cfg.BaseURL); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "create gemini client", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &GeminiClient{client: client, model: model, timeout: timeout, limit: cfg.MaxImageBytes}, nil
}

// Analyze implements Analyzer.
func (g *GeminiClient) Analyze(ctx context.Context, data []byte) (queue.Analysis, error) {
	if len(data) == 0 {
		return queue.Analysis{}, services.Wrap(services.ErrAnalysis, stageName, "validate", "image is empty", nil)
	}
	if g.limit > 0 && int64(len(data)) > g.limit {
		return queue.Analysis{}, services.Wrap(services.ErrAnalysis, stageName, "validate",
			fmt.Sprintf("image is %d bytes, limit is %d", len(data), g.limit), nil)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(SystemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.ImageData(imageFormat(data), data), genai.Text(userPrompt))
	if err != nil {
		return queue.Analysis{}, services.Wrap(services.ErrAnalysis, stageName, "generate content", "", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return queue.Analysis{}, services.Wrap(services.ErrAnalysis, stageName, "generate content", "", err)
	}
	analysis, err := parseAnalysis(text)
	if err != nil {
		return queue.Analysis{}, services.Wrap(services.ErrAnalysis, stageName, "decode", "", err)
	}
	return analysis, nil
}

// Close releases the underlying client.
func (g *GeminiClient) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

// imageFormat returns the short format name genai.ImageData expects.
func imageFormat(data []byte) string {
	mime := http.DetectContentType(data)
	if format, ok := strings.CutPrefix(mime, "image/"); ok {
		return format
	}
	return "png"
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response (finish_reason=%s)", candidate.FinishReason)
	}
	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no text parts in response")
	}
	return strings.Join(parts, ""), nil
}
