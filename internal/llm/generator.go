package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator produces a completion for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

type ChatGenerator struct {
	chatModel model.BaseChatModel
}

func NewChatGenerator(chatModel model.BaseChatModel) *ChatGenerator {
	return &ChatGenerator{chatModel: chatModel}
}

func (g *ChatGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}

	opts := []model.Option{model.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	ctx = withRunInfo(ctx, "generate_answer", components.ComponentOfChatModel)
	resp, err := g.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("LLM generate failed: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("LLM returned empty content")
	}
	return strings.TrimSpace(resp.Content), nil
}
