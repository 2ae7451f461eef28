package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider talks to the Google generative language API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	cfg    ProviderConfig
}

// NewGeminiProvider creates a Gemini provider bound to one API key.
func NewGeminiProvider(cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(cfg.UserAgent))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-lite"
	}

	return &GeminiProvider{client: client, model: model, cfg: cfg}, nil
}

// Execute sends a generateContent request.
func (p *GeminiProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	model := p.client.GenerativeModel(p.model)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	var parts []genai.Part
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(msg.Content)}}
		default:
			parts = append(parts, genai.Text(msg.Content))
		}
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, p.mapError(err)
	}

	if len(resp.Candidates) == 0 {
		reason := ""
		if resp.PromptFeedback != nil {
			reason = "blocked: " + resp.PromptFeedback.BlockReason.String()
		}
		return nil, emptyContent(p.Name(), reason)
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return nil, emptyContent(p.Name(), "finish reason "+cand.FinishReason.String())
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &Response{
		Content:      sb.String(),
		FinishReason: cand.FinishReason.String(),
		Usage:        usage,
		Model:        p.model,
		Duration:     time.Since(start),
	}, nil
}

func (p *GeminiProvider) mapError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return emptyContent(p.Name(), blocked.Error())
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &StatusError{Provider: p.Name(), Code: gerr.Code, Message: gerr.Message}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the configured model name.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

var _ Provider = (*GeminiProvider)(nil)
