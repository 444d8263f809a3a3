package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"joule/internal/ai/chain"
	"joule/internal/config"
	"joule/internal/model"
)

// Client AI 能力层客户端
// 职责: 封装计划生成和回答生成两条链，提供统一接口
type Client struct {
	cfg         *config.AIConfig
	planChain   *chain.PlanChain
	answerChain *chain.AnswerChain
}

// NewClient 创建 AI 客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" {
		log.Warn().Msg("AI API key not configured, all calls will fall back to rule-based paths")
	}

	planChain, err := chain.NewPlanChain(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan chain: %w", err)
	}

	answerChain, err := chain.NewAnswerChain(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer chain: %w", err)
	}

	return &Client{
		cfg:         cfg,
		planChain:   planChain,
		answerChain: answerChain,
	}, nil
}

// GeneratePlan 由用户问题生成取数计划
func (c *Client) GeneratePlan(ctx context.Context, userMessage string) (*model.FetchPlan, error) {
	return c.planChain.Run(ctx, userMessage)
}

// GenerateAnswer 由取数结果生成回答文本
func (c *Client) GenerateAnswer(ctx context.Context, userMessage, fetchedData string) (string, error) {
	return c.answerChain.Run(ctx, userMessage, fetchedData)
}

// Close 关闭客户端
func (c *Client) Close() error {
	return nil
}
