package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"joule/internal/ai/component"
	"joule/internal/config"
)

// answerSystemPrompt 数据分析回答提示词
const answerSystemPrompt = `You are an AI assistant for a smart home energy monitoring system. You are given energy data fetched from the database for the user's question.

Guidelines:
- Directly answer the question using the concrete numbers in the data
- Highlight notable patterns, trends or anomalies
- Offer practical, actionable recommendations
- Calculate potential savings when relevant
- Structure the answer with short sections and bullet points
- Be conversational but informative
- If the data is sparse, say so and suggest what would help`

// AnswerChain 数据分析回答链
// 工作流: 用户问题 + 取数结果 -> 分析提示词 -> ChatModel -> 回答文本
// 较长超时: 回答质量优先于时延
type AnswerChain struct {
	chatModel   einomodel.ChatModel
	timeout     time.Duration
	temperature float64
}

// NewAnswerChain 创建回答链
func NewAnswerChain(ctx context.Context, cfg *config.AIConfig) (*AnswerChain, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.AnswerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	temperature := cfg.Options.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}

	return &AnswerChain{
		chatModel:   chatModel,
		timeout:     timeout,
		temperature: temperature,
	}, nil
}

// Run 基于取数结果生成回答
func (c *AnswerChain) Run(ctx context.Context, userMessage, fetchedData string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := fmt.Sprintf(`User query: %s

The following data was fetched from the database for this question:

%s

Analyze the data and answer the question. Use the actual numbers, point out anything notable, and give concrete recommendations where relevant.`,
		userMessage, fetchedData)

	messages := []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(prompt),
	}

	resp, err := c.chatModel.Generate(ctx, messages,
		einomodel.WithTemperature(float32(c.temperature)),
		einomodel.WithMaxTokens(2000),
	)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}
