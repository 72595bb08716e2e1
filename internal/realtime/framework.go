package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo/interview_agent/internal/agent"
	"github.com/neo/interview_agent/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned when a model is requested without a key
var ErrMissingAPIKey = errors.New("gemini api key is required")

// Config selects the Gemini API root and model names. An empty BaseURL
// uses the public Gemini API.
type Config struct {
	BaseURL   string
	LiveModel string
	TextModel string
}

// LLMFactory builds the chat model used for text-only sessions
type LLMFactory func(ctx context.Context, apiKey, model string) (llms.Model, error)

// Framework builds Gemini Live models for audio sessions and langchaingo
// chat models for text-only sessions
type Framework struct {
	cfg    Config
	newLLM LLMFactory
}

// Option configures a Framework
type Option func(*Framework)

// WithLLMFactory overrides how text chat models are built
func WithLLMFactory(fn LLMFactory) Option {
	return func(f *Framework) {
		f.newLLM = fn
	}
}

// NewFramework creates a Framework
func NewFramework(cfg Config, opts ...Option) *Framework {
	f := &Framework{
		cfg:    cfg,
		newLLM: newGoogleAI,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func newGoogleAI(ctx context.Context, apiKey, model string) (llms.Model, error) {
	return googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
}

// NewModel returns a text chat model for text-only modality sets and a
// Gemini Live model otherwise
func (f *Framework) NewModel(ctx context.Context, opts agent.ModelOptions) (agent.RealtimeModel, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if opts.Modalities.TextOnly() {
		llm, err := f.newLLM(ctx, opts.APIKey, f.cfg.TextModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create text model: %w", err)
		}
		logging.LogModelEvent("model_created", backendTextChat, map[string]interface{}{
			"model": f.cfg.TextModel,
		})
		return newTextModel(llm, opts), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      opts.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: f.cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	logging.LogModelEvent("model_created", backendGeminiLive, map[string]interface{}{
		"model":      f.cfg.LiveModel,
		"voice":      opts.Voice.String(),
		"modalities": opts.Modalities.Strings(),
	})
	return newGeminiModel(client, f.cfg.LiveModel, opts), nil
}
