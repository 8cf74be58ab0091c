package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoProvider adapts any eino chat model to Provider.
type EinoProvider struct {
	model model.BaseChatModel
}

func NewEinoProvider(m model.BaseChatModel) *EinoProvider {
	return &EinoProvider{model: m}
}

type ArkConfig struct {
	BaseURL string
	Region  string
	APIKey  string
	Model   string
}

// NewArkProvider builds a Volcengine Ark chat model through eino-ext.
func NewArkProvider(ctx context.Context, cfg ArkConfig) (*EinoProvider, error) {
	if cfg.APIKey == "" || cfg.Model == "" {
		return nil, errors.New("ark: api key and model are required")
	}
	cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Region:  cfg.Region,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("ark: create chat model: %w", err)
	}
	return NewEinoProvider(cm), nil
}

func (p *EinoProvider) Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error) {
	o := applyOptions(opts)

	in := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		in = append(in, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}

	var modelOpts []model.Option
	if o.MaxTokens > 0 {
		modelOpts = append(modelOpts, model.WithMaxTokens(o.MaxTokens))
	}

	out, err := p.model.Generate(ctx, in, modelOpts...)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", errors.New("eino: empty response")
	}
	return out.Content, nil
}
