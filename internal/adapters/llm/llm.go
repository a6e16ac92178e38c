// Package llm builds the chat model used for automated replies.
package llm

import (
	"context"
	"errors"
	"fmt"

	"concierge-whatsapp/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

// ErrNotConfigured is returned by the unavailable model when no provider key is set.
var ErrNotConfigured = errors.New("llm provider not configured")

const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// NewChatModel builds the configured provider's chat model.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	switch cfg.LLMProvider {
	case ProviderClaude, "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q: %w", cfg.LLMProvider, ErrNotConfigured)
		}
		var baseURL *string
		if cfg.AnthropicBaseURL != "" {
			baseURL = &cfg.AnthropicBaseURL
		}
		cm, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   baseURL,
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			MaxTokens: cfg.ReplyMaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init claude model: %w", err)
		}
		log.Info().Str("provider", ProviderClaude).Str("model", cfg.AnthropicModel).Msg("Chat model configured")
		return cm, nil

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for provider %q: %w", cfg.LLMProvider, ErrNotConfigured)
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init openai model: %w", err)
		}
		log.Info().Str("provider", ProviderOpenAI).Str("model", cfg.OpenAIModel).Msg("Chat model configured")
		return cm, nil

	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// Unavailable is a chat model that always fails. The reply generator turns its errors into
// the fallback reply, so the service keeps answering without a provider.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if u.Reason != nil {
		return nil, u.Reason
	}
	return nil, ErrNotConfigured
}

func (u Unavailable) Stream(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, ErrNotConfigured
}

// NewChatModelOrUnavailable never fails: configuration problems are logged and yield Unavailable.
func NewChatModelOrUnavailable(ctx context.Context, cfg *config.Config) model.BaseChatModel {
	cm, err := NewChatModel(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("Chat model unavailable, automated replies will use the fallback message")
		return Unavailable{Reason: err}
	}
	return cm
}
