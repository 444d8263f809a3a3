package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"joule/internal/ai/component"
	"joule/internal/config"
	"joule/internal/model"
)

// ErrMalformedPlan 模型返回的计划无法解析为合法结构
var ErrMalformedPlan = errors.New("malformed fetch plan")

// planSystemPrompt 取数计划生成提示词
// 描述能耗库 schema，要求输出 JSON 结构的查询计划
const planSystemPrompt = `You are an expert SQL query generator for a smart home energy monitoring system. Analyze the user's question and generate the SQL queries needed to fetch the required data.

Database schema (SQLite):

1. telemetry table:
   - id (TEXT, primary key)
   - device_id (TEXT, indexed) - device identifier (e.g. 'fridge-001', 'ac-001', 'tv-001', 'lights-001', 'washer-001')
   - user_id (TEXT, indexed)
   - timestamp (TEXT, ISO-8601, indexed) - when the measurement was taken
   - energy_watts (REAL) - power draw in watts

2. devices table:
   - id (TEXT, primary key)
   - user_id (TEXT, indexed)
   - device_id (TEXT, indexed)
   - name (TEXT) - human readable device name
   - type (TEXT) - e.g. 'appliance', 'lighting', 'hvac'
   - location (TEXT)
   - is_active (INTEGER)

Rules:
1. Use SQLite syntax only: datetime('now', '-24 hours'), date('now'), strftime(), AVG/SUM/MAX/MIN/COUNT. Window functions are available.
2. Every query MUST filter by the requesting user with the named placeholder :user_id, e.g. WHERE t.user_id = :user_id. Queries without it are rejected.
3. Use named placeholders (:name) for all other values and list them under "parameters".
4. JOIN the devices table when device names are needed.
5. Tag each query with exactly one category: "device" (per-device stats or rankings), "trend" (time-bucketed series), "realtime" (latest readings), "summary" (overall totals).
6. Return multiple queries when different kinds of data are needed, ordered by importance.

Respond with a single JSON object and nothing else:
{
  "queries": [
    {
      "purpose": "what this query fetches",
      "category": "device|trend|realtime|summary",
      "sql": "SELECT ... WHERE t.user_id = :user_id ...",
      "parameters": {"name": "value"}
    }
  ],
  "explanation": "brief explanation of the data being fetched"
}`

// PlanChain 取数计划生成链
// 工作流: 用户问题 -> schema 提示词 -> ChatModel -> JSON 解析 -> FetchPlan
// 低温采样 + 短超时: 计划生成要求确定性，失败时由上层走规则兜底
type PlanChain struct {
	chatModel einomodel.ChatModel
	timeout   time.Duration
}

// NewPlanChain 创建取数计划链
func NewPlanChain(ctx context.Context, cfg *config.AIConfig) (*PlanChain, error) {
	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.PlanTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &PlanChain{
		chatModel: chatModel,
		timeout:   timeout,
	}, nil
}

// Run 生成取数计划
func (c *PlanChain) Run(ctx context.Context, userMessage string) (*model.FetchPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []*schema.Message{
		schema.SystemMessage(planSystemPrompt),
		schema.UserMessage("User query: " + userMessage),
	}

	resp, err := c.chatModel.Generate(ctx, messages,
		einomodel.WithTemperature(0.1),
		einomodel.WithMaxTokens(1000),
	)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	plan, err := ParsePlan(resp.Content)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// ParsePlan 解析模型输出为 FetchPlan
// 容忍 ```json 围栏和前后多余文本；空计划视为非法
func ParsePlan(content string) (*model.FetchPlan, error) {
	raw := stripCodeFence(content)

	// 截取首个 { 到最后一个 } 之间的内容
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, ErrMalformedPlan
	}
	raw = raw[start : end+1]

	var plan model.FetchPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if len(plan.Queries) == 0 {
		return nil, ErrMalformedPlan
	}

	for i := range plan.Queries {
		q := &plan.Queries[i]
		if strings.TrimSpace(q.SQL) == "" {
			return nil, ErrMalformedPlan
		}
		q.Category = model.ValidCategory(q.Category)
	}

	return &plan, nil
}

// stripCodeFence 去掉 markdown 代码围栏
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
