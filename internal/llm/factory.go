package llm

import (
	"context"
	"fmt"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

type ProviderKind string

const (
	ProviderOpenAI     ProviderKind = "openai"
	ProviderCompatible ProviderKind = "openai_compatible"
)

type ProviderConfig struct {
	Kind    ProviderKind
	APIKey  string
	Model   string
	BaseURL string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateChatModel returns the chat model used for language detection,
// translation and answer generation.
func (f *Factory) CreateChatModel(ctx context.Context, cfg *ProviderConfig) (model.BaseChatModel, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case ProviderOpenAI, ProviderCompatible:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Kind)
	}
}

func (f *Factory) CreateEmbedder(ctx context.Context, cfg *ProviderConfig) (embedding.Embedder, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case ProviderOpenAI, ProviderCompatible:
		return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Kind)
	}
}

func validate(cfg *ProviderConfig) error {
	if cfg == nil {
		return fmt.Errorf("provider config is nil")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API key is required for provider %s", cfg.Kind)
	}
	if cfg.Model == "" {
		return fmt.Errorf("model is required for provider %s", cfg.Kind)
	}
	return nil
}
