package agent

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/stuart-dev/stuart/internal/config"
)

const togetherBaseURL = "https://api.together.xyz/v1"

// Caller is the slice of the OpenAI client the agent uses. Both providers
// speak the same API, so one interface covers them.
type Caller interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// NewCaller selects a provider for the given model: OpenAI if its key is set
// and it serves the model, then TogetherAI the same way.
func NewCaller(ctx context.Context, cfg config.AgentSettings, model string) (Caller, error) {
	if cfg.OpenAIKey != "" {
		c := openai.NewClient(cfg.OpenAIKey)
		ok, err := servesModel(ctx, c, model)
		if err != nil {
			return nil, fmt.Errorf("listing OpenAI models: %w", err)
		}
		if ok {
			return c, nil
		}
	}
	if cfg.TogetherKey != "" {
		oc := openai.DefaultConfig(cfg.TogetherKey)
		oc.BaseURL = togetherBaseURL
		c := openai.NewClientWithConfig(oc)
		ok, err := servesModel(ctx, c, model)
		if err != nil {
			return nil, fmt.Errorf("listing TogetherAI models: %w", err)
		}
		if ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("model %q not available from any configured provider", model)
}

func servesModel(ctx context.Context, c Caller, model string) (bool, error) {
	list, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range list.Models {
		if m.ID == model {
			return true, nil
		}
	}
	return false, nil
}
