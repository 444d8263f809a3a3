package service

import "joule/internal/model"

// maxSuggestions 返回给调用方的追问数量上限
const maxSuggestions = 3

// 各类别的固定追问目录
var (
	deviceSuggestions = []string{
		"How can I optimize my highest consuming device?",
		"Compare device efficiency over different time periods",
		"Show me device usage patterns this week",
	}
	trendSuggestions = []string{
		"What's causing changes in my energy consumption?",
		"Compare this month vs last month",
		"What's my average daily consumption?",
	}
	realtimeSuggestions = []string{
		"Which devices should I turn off right now?",
		"What's my peak consumption time today?",
		"Show me an hourly usage breakdown",
	}
	genericSuggestions = []string{
		"Show me my energy usage trends",
		"Which device uses the most energy?",
		"Give me energy-saving recommendations",
	}
)

// SuggestionCatalog 追问目录: 完整候选列表加按主题分组的视图
type SuggestionCatalog struct {
	Suggestions []string            `json:"suggestions"`
	Categories  map[string][]string `json:"categories"`
}

// 静态追问目录，/suggestions 接口直接返回
var staticCatalog = SuggestionCatalog{
	Suggestions: []string{
		"How much energy did my fridge use today?",
		"What's my total energy consumption this week?",
		"Which device is using the most power right now?",
		"Show me my energy usage summary for yesterday",
		"How can I reduce my energy consumption?",
		"What's the current status of all my devices?",
		"Compare my energy usage this week vs last week",
		"Give me energy-saving recommendations",
	},
	Categories: map[string][]string{
		"device_specific": {
			"How much energy did my fridge use today?",
			"What's the current status of all my devices?",
		},
		"summaries": {
			"What's my total energy consumption this week?",
			"Show me my energy usage summary for yesterday",
		},
		"real_time": {
			"Which device is using the most power right now?",
		},
		"recommendations": {
			"How can I reduce my energy consumption?",
			"Give me energy-saving recommendations",
		},
		"comparisons": {
			"Compare my energy usage this week vs last week",
		},
	},
}

// Catalog 返回静态追问目录
func Catalog() SuggestionCatalog {
	return staticCatalog
}

// Suggest 由取数结果的形状生成追问候选
// 纯函数: 按出现的类别取各自目录，去重并截断到 3 条；无类别命中时用通用目录
func Suggest(fetched *model.FetchResult) []string {
	var candidates []string

	if fetched != nil {
		if fetched.HasCategory(model.CategoryDevice) {
			candidates = append(candidates, deviceSuggestions...)
		}
		if fetched.HasCategory(model.CategoryTrend) {
			candidates = append(candidates, trendSuggestions...)
		}
		if fetched.HasCategory(model.CategoryRealtime) {
			candidates = append(candidates, realtimeSuggestions...)
		}
	}

	if len(candidates) == 0 {
		candidates = genericSuggestions
	}

	seen := make(map[string]bool, len(candidates))
	result := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		result = append(result, c)
		if len(result) == maxSuggestions {
			break
		}
	}
	return result
}
