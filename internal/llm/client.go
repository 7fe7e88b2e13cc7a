// Package llm constructs the chat model used by the fusion engine's
// last-resort fallback. The engine itself depends only on the narrow
// ChatCompleter surface, so providers are swappable here.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/dyike/TradeFuseGo/internal/config"
	"github.com/dyike/TradeFuseGo/internal/fusion"
)

// NewChatModel builds the configured provider's chat model. A missing API
// key is a constructor error; callers then run without the model fallback
// and zero-vote ticks degrade to HOLD.
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (fusion.ChatCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: no API key configured for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		maxTokens := cfg.MaxTokens
		model, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("llm: create openai model: %w", err)
		}
		return model, nil

	case "deepseek":
		model, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("llm: create deepseek model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
