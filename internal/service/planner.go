package service

import (
	"context"
	"strings"

	"github.com/go-ego/gse"
	"github.com/rs/zerolog/log"

	"joule/internal/model"
)

// PlanLLM 计划生成的主路径（外部文本生成服务）
type PlanLLM interface {
	GeneratePlan(ctx context.Context, userMessage string) (*model.FetchPlan, error)
}

// Planner 取数计划生成器
// 主路径走 LLM；超时/出错/解析失败时降级到规则分类，兜底计划永远非空
type Planner struct {
	llm       PlanLLM
	segmenter *gse.Segmenter
}

// NewPlanner 创建计划生成器
// llm 可为 nil（未配置 API key），此时所有请求都走规则兜底
func NewPlanner(llm PlanLLM) *Planner {
	// 初始化 gse 分词器，失败时降级为空白切分
	var segmenter *gse.Segmenter
	if seg, err := gse.New(); err == nil {
		segmenter = &seg
	} else {
		log.Warn().Err(err).Msg("gse segmenter init failed, falling back to whitespace tokens")
	}

	return &Planner{
		llm:       llm,
		segmenter: segmenter,
	}
}

// Generate 由用户问题生成取数计划
// 返回的 Degraded 非 nil 表示走了规则兜底
func (p *Planner) Generate(ctx context.Context, userMessage string) (*model.FetchPlan, *model.Degraded) {
	if p.llm != nil {
		plan, err := p.llm.GeneratePlan(ctx, userMessage)
		if err == nil {
			return plan, nil
		}
		log.Warn().Err(err).Msg("plan generation fell back to rule-based path")
		return p.rulePlan(userMessage), &model.Degraded{Stage: model.StagePlan, Reason: err.Error()}
	}

	return p.rulePlan(userMessage), &model.Degraded{Stage: model.StagePlan, Reason: "text generation service not configured"}
}

// 关键词表: 英文子串匹配 + 分词后的中文词匹配
var (
	realtimeWords = []string{"current", "now", "real-time", "realtime", "right now", "status", "现在", "当前", "实时", "状态"}
	dailyWords    = []string{"today", "daily", "今天", "今日"}
	rankingWords  = []string{"which device", "most energy", "most power", "highest", "compare", "ranking", "哪个", "最多", "最高", "对比", "比较"}
	trendWords    = []string{"week", "trend", "pattern", "history", "本周", "上周", "趋势", "走势"}

	deviceAliases = map[string][]string{
		"fridge-%": {"fridge", "refrigerator", "冰箱"},
		"ac-%":     {"ac", "air conditioner", "aircon", "空调"},
		"tv-%":     {"tv", "television", "电视"},
		"washer-%": {"washer", "washing machine", "洗衣机"},
		"lights-%": {"light", "lights", "lamp", "灯"},
		"heater-%": {"heater", "热水器", "取暖"},
	}
)

// rulePlan 规则兜底: 关键词分类，永远返回至少一条合法查询
func (p *Planner) rulePlan(userMessage string) *model.FetchPlan {
	lower := strings.ToLower(userMessage)
	tokens := p.tokenize(lower)

	switch {
	case matchAny(lower, tokens, realtimeWords):
		return &model.FetchPlan{
			Queries:     []model.QuerySpec{realtimeQuery()},
			Explanation: "rule-based plan: real-time status",
		}
	case matchAny(lower, tokens, dailyWords):
		return &model.FetchPlan{
			Queries:     []model.QuerySpec{dailyQuery()},
			Explanation: "rule-based plan: today's consumption",
		}
	case matchAny(lower, tokens, rankingWords):
		return &model.FetchPlan{
			Queries:     []model.QuerySpec{rankingQuery()},
			Explanation: "rule-based plan: device ranking",
		}
	case matchAny(lower, tokens, trendWords):
		return &model.FetchPlan{
			Queries:     []model.QuerySpec{trendQuery()},
			Explanation: "rule-based plan: weekly trend",
		}
	}

	if pattern, ok := p.matchDevice(lower, tokens); ok {
		return &model.FetchPlan{
			Queries:     []model.QuerySpec{deviceQuery(pattern)},
			Explanation: "rule-based plan: named device stats",
		}
	}

	// 默认: 概览 + 实时状态
	return &model.FetchPlan{
		Queries:     []model.QuerySpec{overviewQuery(), realtimeQuery()},
		Explanation: "rule-based plan: general overview",
	}
}

// tokenize 切分消息用于词级匹配（中文靠 gse 分词）
func (p *Planner) tokenize(lower string) map[string]bool {
	var words []string
	if p.segmenter != nil {
		words = p.segmenter.Cut(lower, false)
	} else {
		words = strings.Fields(lower)
	}

	tokens := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			tokens[w] = true
		}
	}
	return tokens
}

func matchAny(lower string, tokens map[string]bool, words []string) bool {
	for _, w := range words {
		if tokens[w] || strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (p *Planner) matchDevice(lower string, tokens map[string]bool) (string, bool) {
	for pattern, aliases := range deviceAliases {
		if matchAny(lower, tokens, aliases) {
			return pattern, true
		}
	}
	return "", false
}

// 以下为兜底 SQL 模板 (SQLite 语法，:user_id 由执行器强制绑定)

func realtimeQuery() model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Latest readings per device for real-time status",
		Category: model.CategoryRealtime,
		SQL: `SELECT t.device_id,
       d.name AS device_name,
       t.energy_watts,
       t.timestamp
FROM telemetry t
LEFT JOIN devices d ON t.device_id = d.device_id AND t.user_id = d.user_id
WHERE t.user_id = :user_id
  AND t.timestamp >= datetime('now', '-5 minutes')
  AND t.timestamp = (SELECT MAX(t2.timestamp) FROM telemetry t2
                     WHERE t2.device_id = t.device_id AND t2.user_id = t.user_id)
ORDER BY t.device_id`,
	}
}

func dailyQuery() model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Today's energy consumption by device",
		Category: model.CategoryDevice,
		SQL: `SELECT t.device_id,
       d.name AS device_name,
       AVG(t.energy_watts) AS avg_watts,
       SUM(t.energy_watts) AS total_energy_wh,
       COUNT(*) AS sample_count
FROM telemetry t
LEFT JOIN devices d ON t.device_id = d.device_id AND t.user_id = d.user_id
WHERE t.user_id = :user_id
  AND t.timestamp >= date('now')
GROUP BY t.device_id, d.name
ORDER BY total_energy_wh DESC`,
	}
}

func rankingQuery() model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Device ranking by energy consumption over the last 24 hours",
		Category: model.CategoryDevice,
		SQL: `SELECT t.device_id,
       d.name AS device_name,
       AVG(t.energy_watts) AS avg_watts,
       SUM(t.energy_watts) AS total_energy_wh,
       MAX(t.energy_watts) AS peak_watts
FROM telemetry t
LEFT JOIN devices d ON t.device_id = d.device_id AND t.user_id = d.user_id
WHERE t.user_id = :user_id
  AND t.timestamp >= datetime('now', '-24 hours')
GROUP BY t.device_id, d.name
ORDER BY total_energy_wh DESC`,
	}
}

func trendQuery() model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Daily energy consumption trend over the last 7 days",
		Category: model.CategoryTrend,
		SQL: `SELECT date(t.timestamp) AS day,
       SUM(t.energy_watts) AS daily_energy_wh,
       AVG(t.energy_watts) AS avg_watts
FROM telemetry t
WHERE t.user_id = :user_id
  AND t.timestamp >= datetime('now', '-7 days')
GROUP BY date(t.timestamp)
ORDER BY day`,
	}
}

func deviceQuery(pattern string) model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Consumption stats for the named device over the last 24 hours",
		Category: model.CategoryDevice,
		SQL: `SELECT t.device_id,
       d.name AS device_name,
       AVG(t.energy_watts) AS avg_watts,
       SUM(t.energy_watts) AS total_energy_wh,
       MAX(t.energy_watts) AS peak_watts,
       COUNT(*) AS sample_count
FROM telemetry t
LEFT JOIN devices d ON t.device_id = d.device_id AND t.user_id = d.user_id
WHERE t.user_id = :user_id
  AND t.device_id LIKE :device_pattern
  AND t.timestamp >= datetime('now', '-24 hours')
GROUP BY t.device_id, d.name`,
		Params: map[string]any{"device_pattern": pattern},
	}
}

func overviewQuery() model.QuerySpec {
	return model.QuerySpec{
		Purpose:  "Overall consumption summary for the last 24 hours",
		Category: model.CategorySummary,
		SQL: `SELECT COUNT(DISTINCT t.device_id) AS total_devices,
       SUM(t.energy_watts) AS total_energy_wh,
       AVG(t.energy_watts) AS avg_watts,
       MAX(t.energy_watts) AS peak_watts
FROM telemetry t
WHERE t.user_id = :user_id
  AND t.timestamp >= datetime('now', '-24 hours')`,
	}
}
