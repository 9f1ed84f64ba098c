// Package gemini implements generation.ModelProvider on top of the
// Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/generation"
	"github.com/loreforge/loreforge/internal/platform/logger"
)

// Generator calls the Gemini API to fulfil generation requests.
type Generator struct {
	client       *genai.Client
	defaultModel string
	logger       *slog.Logger
}

var _ generation.ModelProvider = (*Generator)(nil)

// NewGenerator creates a Gemini-backed generator from the LLM config.
func NewGenerator(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Generator{
		client:       client,
		defaultModel: cfg.ModelName,
		logger:       log.With(slog.String("component", "gemini_generator")),
	}, nil
}

// Name implements generation.ModelProvider.
func (g *Generator) Name() string { return "gemini" }

// Generate implements generation.ModelProvider.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Response, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		cfg.Temperature = req.Temperature
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.ResponseSchema)
	}

	var contents []*genai.Content
	var systemParts []string
	for _, msg := range req.Messages {
		if msg.Role == generation.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(systemParts, "\n\n---\n\n"), genai.RoleUser)
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: request has no user messages", generation.ErrGenerationFailed)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("gemini call failed",
			slog.String("model", model),
			slog.Int64("latency_ms", latency),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}

	text := resp.Text()
	if text == "" {
		return nil, generation.ErrEmptyResponse
	}

	out := &generation.Response{Text: text, LatencyMs: latency}
	if resp.UsageMetadata != nil {
		out.Usage = generation.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	log.Debug("gemini call completed",
		slog.String("model", model),
		slog.Int64("latency_ms", latency),
		slog.Int("input_tokens", out.Usage.InputTokens),
		slog.Int("output_tokens", out.Usage.OutputTokens))
	return out, nil
}

func toGenaiSchema(s *generation.ResponseSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Required: s.Required}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "boolean":
		out.Type = genai.TypeBoolean
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	out.Items = toGenaiSchema(s.Items)
	return out
}
