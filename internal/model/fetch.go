package model

// Row 一行查询结果，列名→值
type Row map[string]any

// QueryResult 单条 QuerySpec 的执行结果
// Err 非空表示该条查询失败；失败不影响计划内其他查询
type QueryResult struct {
	Purpose  string        `json:"purpose"`
	Category QueryCategory `json:"category"`
	Rows     []Row         `json:"rows"`
	RowCount int           `json:"row_count"`
	Err      string        `json:"error,omitempty"`
}

// FetchResult 整个计划的执行结果，顺序与计划一致
type FetchResult struct {
	Results []QueryResult `json:"results"`
	// DataSources 产出过至少一行数据的查询 purpose 列表（按计划顺序）
	DataSources []string `json:"data_sources"`
}

// Empty 是否一行数据都没有
func (r *FetchResult) Empty() bool {
	for _, q := range r.Results {
		if q.RowCount > 0 {
			return false
		}
	}
	return true
}

// HasCategory 是否存在某类别的非空结果
func (r *FetchResult) HasCategory(c QueryCategory) bool {
	for _, q := range r.Results {
		if q.Category == c && q.RowCount > 0 {
			return true
		}
	}
	return false
}
