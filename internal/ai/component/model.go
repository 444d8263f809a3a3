package component

import (
	"context"
	"fmt"

	arkext "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"joule/internal/config"
)

// NewChatModel 创建 ChatModel
// 计划链与回答链共用同一个模型实例，各自在调用时覆盖温度等参数
// 支持 Provider: openai, azure, ark
func NewChatModel(ctx context.Context, cfg *config.AIConfig) (model.ChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		return newOpenAIChatModel(ctx, cfg, false)
	case "azure":
		return newOpenAIChatModel(ctx, cfg, true)
	case "ark":
		return newArkChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// newOpenAIChatModel 创建 OpenAI / Azure OpenAI ChatModel
func newOpenAIChatModel(ctx context.Context, cfg *config.AIConfig, byAzure bool) (model.ChatModel, error) {
	modelCfg := &openai.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		ByAzure: byAzure,
	}

	// Base URL (Azure 部署地址，或 OpenAI 兼容代理)
	if cfg.BaseURL != "" {
		modelCfg.BaseURL = cfg.BaseURL
	}

	// 配置级默认参数，链内可逐调用覆盖
	if cfg.Options.Temperature > 0 {
		modelCfg.Temperature = f32(cfg.Options.Temperature)
	}
	if cfg.Options.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.Options.MaxTokens
	}
	if cfg.Options.TopP > 0 {
		modelCfg.TopP = f32(cfg.Options.TopP)
	}

	return openai.NewChatModel(ctx, modelCfg)
}

// newArkChatModel 创建 Ark ChatModel（使用 eino-ext 模块）
func newArkChatModel(ctx context.Context, cfg *config.AIConfig) (model.ChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}

	modelCfg := &arkext.ChatModelConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: baseURL,
	}

	if cfg.Options.Temperature > 0 {
		modelCfg.Temperature = f32(cfg.Options.Temperature)
	}
	if cfg.Options.MaxTokens > 0 {
		modelCfg.MaxTokens = &cfg.Options.MaxTokens
	}
	if cfg.Options.TopP > 0 {
		modelCfg.TopP = f32(cfg.Options.TopP)
	}

	return arkext.NewChatModel(ctx, modelCfg)
}

func f32(v float64) *float32 {
	f := float32(v)
	return &f
}
