package model

// QueryCategory 查询类别标签
// 由计划生成器显式打标，合成兜底按标签分支而不是嗅探 purpose 字符串
type QueryCategory string

const (
	CategoryDevice   QueryCategory = "device"   // 按设备的统计/对比
	CategoryTrend    QueryCategory = "trend"    // 时间维度的趋势
	CategoryRealtime QueryCategory = "realtime" // 最近几分钟的实时读数
	CategorySummary  QueryCategory = "summary"  // 总量概览
)

// ValidCategory 判断类别是否合法，非法时归入 summary
func ValidCategory(c QueryCategory) QueryCategory {
	switch c {
	case CategoryDevice, CategoryTrend, CategoryRealtime, CategorySummary:
		return c
	default:
		return CategorySummary
	}
}

// QuerySpec 单条受参数约束的读查询
// SQL 使用 :name 形式的命名占位符；user_id 由执行器强制绑定为请求方身份
type QuerySpec struct {
	Purpose  string         `json:"purpose"`
	Category QueryCategory  `json:"category"`
	SQL      string         `json:"sql"`
	Params   map[string]any `json:"parameters,omitempty"`
}

// FetchPlan 由一条自然语言消息推导出的有序查询计划
// 每次请求新生成，不持久化
type FetchPlan struct {
	Queries     []QuerySpec `json:"queries"`
	Explanation string      `json:"explanation,omitempty"`
}
