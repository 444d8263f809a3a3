package service

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"joule/internal/model"
	"joule/internal/repository/telemetry"
)

// MetricsQuerier 能耗数据查询入口
type MetricsQuerier interface {
	Query(ctx context.Context, query string, params map[string]any) ([]model.Row, error)
}

// Fetcher 取数计划执行器
// 计划内的查询相互独立，并发执行；合并结果时保持计划顺序。
// 单条查询失败只记入该条结果，不中断其余查询
type Fetcher struct {
	store MetricsQuerier
}

// NewFetcher 创建执行器
func NewFetcher(store MetricsQuerier) *Fetcher {
	return &Fetcher{store: store}
}

// Execute 执行取数计划
// 每条查询强制绑定 user_id 为请求方身份；计划遗漏作用域谓词的查询
// 会被拒绝执行并记为该条的错误，绝不会带着他人数据返回
func (f *Fetcher) Execute(ctx context.Context, plan *model.FetchPlan, user *model.AuthUser) *model.FetchResult {
	result := &model.FetchResult{
		Results: make([]model.QueryResult, len(plan.Queries)),
	}
	if len(plan.Queries) == 0 {
		return result
	}

	var wg sync.WaitGroup
	for i, spec := range plan.Queries {
		wg.Add(1)
		go func(idx int, spec model.QuerySpec) {
			defer wg.Done()
			result.Results[idx] = f.runOne(ctx, spec, user)
		}(i, spec)
	}
	wg.Wait()

	// 数据来源按计划顺序汇总
	for _, q := range result.Results {
		if q.RowCount > 0 {
			result.DataSources = append(result.DataSources, q.Purpose)
		}
	}

	return result
}

func (f *Fetcher) runOne(ctx context.Context, spec model.QuerySpec, user *model.AuthUser) model.QueryResult {
	qr := model.QueryResult{
		Purpose:  spec.Purpose,
		Category: model.ValidCategory(spec.Category),
	}

	// 强制用户作用域: 覆盖计划自带的任何 user_id 绑定
	params := make(map[string]any, len(spec.Params)+1)
	for k, v := range spec.Params {
		params[k] = v
	}
	params[telemetry.UserParam] = user.ID

	rows, err := f.store.Query(ctx, spec.SQL, params)
	if err != nil {
		log.Warn().
			Err(err).
			Str("purpose", spec.Purpose).
			Str("user_id", user.ID).
			Msg("fetch query failed")
		qr.Err = sanitizeError(err)
		qr.Rows = []model.Row{}
		return qr
	}

	if rows == nil {
		rows = []model.Row{}
	}
	qr.Rows = rows
	qr.RowCount = len(rows)
	return qr
}

// sanitizeError 避免把驱动内部细节序列化进给 LLM 的上下文
func sanitizeError(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	return msg
}
