package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"joule/internal/model"
	"joule/internal/repository/telemetry"
)

type fakeQuerier struct {
	mu      sync.Mutex
	calls   []map[string]any
	rows    map[string][]model.Row
	failSQL map[string]error
}

func (f *fakeQuerier) Query(ctx context.Context, query string, params map[string]any) ([]model.Row, error) {
	f.mu.Lock()
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	f.calls = append(f.calls, copied)
	f.mu.Unlock()

	if err, ok := f.failSQL[query]; ok {
		return nil, err
	}
	return f.rows[query], nil
}

func TestFetcher_Execute(t *testing.T) {
	Convey("取数计划执行", t, func() {
		ctx := context.Background()
		user := &model.AuthUser{ID: "u1"}

		Convey("结果与数据来源保持计划顺序", func() {
			q := &fakeQuerier{rows: map[string][]model.Row{
				"q1": {{"energy_watts": 10.0}},
				"q2": {{"energy_watts": 20.0}, {"energy_watts": 30.0}},
			}}
			f := NewFetcher(q)

			plan := &model.FetchPlan{Queries: []model.QuerySpec{
				{Purpose: "first", Category: model.CategoryRealtime, SQL: "q1"},
				{Purpose: "second", Category: model.CategoryDevice, SQL: "q2"},
			}}

			result := f.Execute(ctx, plan, user)
			So(result.Results, ShouldHaveLength, 2)
			So(result.Results[0].Purpose, ShouldEqual, "first")
			So(result.Results[0].RowCount, ShouldEqual, 1)
			So(result.Results[1].Purpose, ShouldEqual, "second")
			So(result.Results[1].RowCount, ShouldEqual, 2)
			So(result.DataSources, ShouldResemble, []string{"first", "second"})
		})

		Convey("单条失败不影响其余查询", func() {
			q := &fakeQuerier{
				rows:    map[string][]model.Row{"ok": {{"energy_watts": 5.0}}},
				failSQL: map[string]error{"bad": errors.New("syntax error\ndetail line")},
			}
			f := NewFetcher(q)

			plan := &model.FetchPlan{Queries: []model.QuerySpec{
				{Purpose: "broken", SQL: "bad"},
				{Purpose: "healthy", SQL: "ok"},
			}}

			result := f.Execute(ctx, plan, user)
			So(result.Results[0].Err, ShouldEqual, "syntax error")
			So(result.Results[0].RowCount, ShouldEqual, 0)
			So(result.Results[0].Rows, ShouldNotBeNil)
			So(result.Results[1].Err, ShouldBeEmpty)
			So(result.Results[1].RowCount, ShouldEqual, 1)
			So(result.DataSources, ShouldResemble, []string{"healthy"})
		})

		Convey("user_id 绑定被强制覆盖为请求方身份", func() {
			q := &fakeQuerier{rows: map[string][]model.Row{}}
			f := NewFetcher(q)

			plan := &model.FetchPlan{Queries: []model.QuerySpec{{
				Purpose: "sneaky",
				SQL:     "q",
				Params:  map[string]any{telemetry.UserParam: "someone-else", "limit": 5},
			}}}

			f.Execute(ctx, plan, user)
			So(q.calls, ShouldHaveLength, 1)
			So(q.calls[0][telemetry.UserParam], ShouldEqual, "u1")
			So(q.calls[0]["limit"], ShouldEqual, 5)
		})

		Convey("非法类别归一化为 summary", func() {
			q := &fakeQuerier{rows: map[string][]model.Row{"q": {{"x": 1}}}}
			f := NewFetcher(q)

			plan := &model.FetchPlan{Queries: []model.QuerySpec{{
				Purpose: "odd", Category: "weird", SQL: "q",
			}}}

			result := f.Execute(ctx, plan, user)
			So(result.Results[0].Category, ShouldEqual, model.CategorySummary)
		})

		Convey("空计划返回空结果", func() {
			f := NewFetcher(&fakeQuerier{})
			result := f.Execute(ctx, &model.FetchPlan{}, user)
			So(result.Results, ShouldBeEmpty)
			So(result.Empty(), ShouldBeTrue)
		})
	})
}
