package model

// 管线阶段
const (
	StagePlan       = "plan"
	StageFetch      = "fetch"
	StageSynthesize = "synthesize"
	StageCache      = "cache"
)

// Degraded 某个阶段从主路径降级到兜底路径的记录
// 只用于观测，绝不改变控制流，也不会让请求失败
type Degraded struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}
