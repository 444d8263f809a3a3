package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"joule/internal/model"
)

// AnswerLLM 回答合成的主路径（外部文本生成服务）
type AnswerLLM interface {
	GenerateAnswer(ctx context.Context, userMessage, fetchedData string) (string, error)
}

// ResponseTruncationMarker 超长回答截断标记
const ResponseTruncationMarker = "... [response truncated]"

// Synthesizer 回答合成器
// 主路径走 LLM 分析；失败时按类别标签做模板化兜底，数据全空也给出可读回答
type Synthesizer struct {
	llm    AnswerLLM
	maxLen int
}

// NewSynthesizer 创建回答合成器
// llm 可为 nil，此时全部走模板兜底
func NewSynthesizer(llm AnswerLLM, maxLen int) *Synthesizer {
	return &Synthesizer{llm: llm, maxLen: maxLen}
}

// Synthesize 由取数结果生成回答文本
// 返回的 Degraded 非 nil 表示走了模板兜底
func (s *Synthesizer) Synthesize(ctx context.Context, userMessage string, fetched *model.FetchResult) (string, *model.Degraded) {
	if s.llm != nil {
		data, err := json.Marshal(fetched)
		if err == nil {
			answer, genErr := s.llm.GenerateAnswer(ctx, userMessage, string(data))
			if genErr == nil && strings.TrimSpace(answer) != "" {
				return s.cap(answer), nil
			}
			if genErr != nil {
				err = genErr
			}
		}
		log.Warn().Err(err).Msg("answer synthesis fell back to template path")
		return s.cap(s.templateAnswer(fetched)), &model.Degraded{Stage: model.StageSynthesize, Reason: err.Error()}
	}

	return s.cap(s.templateAnswer(fetched)), &model.Degraded{Stage: model.StageSynthesize, Reason: "text generation service not configured"}
}

// cap 执行回答长度硬上限
func (s *Synthesizer) cap(answer string) string {
	if s.maxLen > 0 && len(answer) > s.maxLen {
		log.Warn().Int("original_length", len(answer)).Int("cap", s.maxLen).Msg("answer truncated")
		return answer[:s.maxLen] + ResponseTruncationMarker
	}
	return answer
}

// templateAnswer 模板兜底: 按类别标签分组渲染
func (s *Synthesizer) templateAnswer(fetched *model.FetchResult) string {
	if fetched == nil || fetched.Empty() {
		return "I analyzed your energy data but found no recent readings. " +
			"Please make sure your devices are actively reporting telemetry, then ask again."
	}

	var parts []string
	parts = append(parts, "Based on your energy data:")

	for _, qr := range fetched.Results {
		if qr.RowCount == 0 {
			continue
		}

		parts = append(parts, "", "**"+qr.Purpose+":**")

		switch qr.Category {
		case model.CategoryRealtime:
			parts = append(parts, renderRealtimeRows(qr.Rows)...)
		case model.CategoryDevice:
			parts = append(parts, renderDeviceRows(qr.Rows)...)
		case model.CategoryTrend:
			parts = append(parts, renderTrendRows(qr.Rows)...)
		default:
			parts = append(parts, renderSummaryRows(qr.Rows)...)
		}
	}

	parts = append(parts, "",
		"**Recommendations:**",
		"• Monitor your highest consuming devices for optimization opportunities",
		"• Consider scheduling high-energy devices during off-peak hours",
		"• Track consumption patterns over time to spot potential savings",
	)

	return strings.Join(parts, "\n")
}

// renderDeviceRows 设备统计行 (最多 5 条)
func renderDeviceRows(rows []model.Row) []string {
	var lines []string
	for i, row := range rows {
		if i >= 5 {
			break
		}
		name := deviceLabel(row)
		total, hasTotal := floatField(row, "total_energy_wh")
		avg, _ := floatField(row, "avg_watts", "avg_energy_watts")
		if hasTotal {
			lines = append(lines, fmt.Sprintf("• %s: %.1f Wh (avg %.1f W)", name, total, avg))
		} else if watts, ok := floatField(row, "energy_watts"); ok {
			lines = append(lines, fmt.Sprintf("• %s: %.1f W", name, watts))
		}
	}
	return lines
}

// renderRealtimeRows 实时读数行
func renderRealtimeRows(rows []model.Row) []string {
	var (
		lines []string
		total float64
	)
	for i, row := range rows {
		watts, ok := floatField(row, "energy_watts")
		if !ok {
			continue
		}
		total += watts
		if i < 5 {
			lines = append(lines, fmt.Sprintf("• %s: %.1f W currently", deviceLabel(row), watts))
		}
	}
	if len(rows) > 0 {
		lines = append(lines, fmt.Sprintf("• Total draw right now: %.1f W across %d device(s)", total, len(rows)))
	}
	return lines
}

// renderTrendRows 趋势行: 汇总区间总量和日均
func renderTrendRows(rows []model.Row) []string {
	var total float64
	for _, row := range rows {
		if v, ok := floatField(row, "daily_energy_wh", "total_energy_wh"); ok {
			total += v
		}
	}
	avg := 0.0
	if len(rows) > 0 {
		avg = total / float64(len(rows))
	}
	return []string{
		fmt.Sprintf("• Total energy over the period: %.1f Wh", total),
		fmt.Sprintf("• Average daily consumption: %.1f Wh", avg),
	}
}

// renderSummaryRows 概览行: 渲染首行的数值字段
func renderSummaryRows(rows []model.Row) []string {
	row := rows[0]
	var lines []string
	if v, ok := floatField(row, "total_energy_wh"); ok {
		lines = append(lines, fmt.Sprintf("• Total consumption: %.1f Wh", v))
	}
	if v, ok := floatField(row, "avg_watts", "avg_energy_watts"); ok {
		lines = append(lines, fmt.Sprintf("• Average draw: %.1f W", v))
	}
	if v, ok := floatField(row, "peak_watts", "max_energy_watts"); ok {
		lines = append(lines, fmt.Sprintf("• Peak draw: %.1f W", v))
	}
	if v, ok := floatField(row, "total_devices"); ok {
		lines = append(lines, fmt.Sprintf("• Devices reporting: %.0f", v))
	}
	return lines
}

// deviceLabel 取设备显示名，缺失时回退到 device_id
func deviceLabel(row model.Row) string {
	if name, ok := stringField(row, "device_name", "name"); ok && name != "" {
		return name
	}
	if id, ok := stringField(row, "device_id"); ok && id != "" {
		return strings.ReplaceAll(id, "-", " ")
	}
	return "unknown device"
}

// stringField 按候选列名取字符串值
func stringField(row model.Row, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := row[n]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// floatField 按候选列名取数值，容忍驱动返回的整型/字符串
func floatField(row model.Row, names ...string) (float64, bool) {
	for _, n := range names {
		v, ok := row[n]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case float64:
			return x, true
		case float32:
			return float64(x), true
		case int64:
			return float64(x), true
		case int:
			return float64(x), true
		case string:
			var f float64
			if _, err := fmt.Sscanf(x, "%g", &f); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
