package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"joule/internal/model"
)

type stubPlanLLM struct {
	plan *model.FetchPlan
	err  error
}

func (s *stubPlanLLM) GeneratePlan(ctx context.Context, userMessage string) (*model.FetchPlan, error) {
	return s.plan, s.err
}

func TestPlanner_Generate(t *testing.T) {
	Convey("计划生成主路径与兜底", t, func() {
		ctx := context.Background()

		Convey("LLM 成功时直接采用其计划", func() {
			want := &model.FetchPlan{
				Queries: []model.QuerySpec{{
					Purpose:  "custom",
					Category: model.CategoryTrend,
					SQL:      "SELECT 1 WHERE user_id = :user_id",
				}},
			}
			p := NewPlanner(&stubPlanLLM{plan: want})

			plan, degraded := p.Generate(ctx, "show my trends")
			So(plan, ShouldEqual, want)
			So(degraded, ShouldBeNil)
		})

		Convey("LLM 失败时降级到规则分类", func() {
			p := NewPlanner(&stubPlanLLM{err: errors.New("upstream timeout")})

			plan, degraded := p.Generate(ctx, "what's my current usage?")
			So(plan, ShouldNotBeNil)
			So(plan.Queries, ShouldNotBeEmpty)
			So(degraded, ShouldNotBeNil)
			So(degraded.Stage, ShouldEqual, model.StagePlan)
			So(degraded.Reason, ShouldContainSubstring, "upstream timeout")
		})

		Convey("未配置 LLM 时全部走规则兜底", func() {
			p := NewPlanner(nil)

			plan, degraded := p.Generate(ctx, "anything")
			So(plan, ShouldNotBeNil)
			So(plan.Queries, ShouldNotBeEmpty)
			So(degraded, ShouldNotBeNil)
			So(degraded.Stage, ShouldEqual, model.StagePlan)
		})
	})
}

func TestPlanner_Tokenize(t *testing.T) {
	Convey("消息切分", t, func() {
		Convey("构造出的分类器可处理中英文消息", func() {
			p := NewPlanner(nil)

			tokens := p.tokenize("which device uses the most energy 现在")
			So(tokens["device"], ShouldBeTrue)
			So(len(tokens), ShouldBeGreaterThan, 1)
		})

		Convey("分词器缺失时退化为空白切分", func() {
			p := &Planner{}

			tokens := p.tokenize("current power draw")
			So(tokens, ShouldResemble, map[string]bool{
				"current": true, "power": true, "draw": true,
			})
		})
	})
}

func TestPlanner_RulePlan(t *testing.T) {
	Convey("规则兜底分类", t, func() {
		p := NewPlanner(nil)

		classify := func(msg string) *model.FetchPlan {
			plan, _ := p.Generate(context.Background(), msg)
			return plan
		}

		Convey("实时问题归为 realtime", func() {
			plan := classify("what is my current power draw right now?")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Category, ShouldEqual, model.CategoryRealtime)
		})

		Convey("今日用量归为 device 统计", func() {
			plan := classify("how much energy did I use today?")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Category, ShouldEqual, model.CategoryDevice)
			So(plan.Queries[0].SQL, ShouldContainSubstring, "date('now')")
		})

		Convey("排名问题归为 device 排名", func() {
			plan := classify("which device uses the most energy?")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Category, ShouldEqual, model.CategoryDevice)
			So(plan.Queries[0].SQL, ShouldContainSubstring, "ORDER BY total_energy_wh DESC")
		})

		Convey("趋势问题归为 trend", func() {
			plan := classify("show me this week's usage trend")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Category, ShouldEqual, model.CategoryTrend)
		})

		Convey("中文问题同样可分类", func() {
			plan := classify("现在每个设备的功率是多少")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Category, ShouldEqual, model.CategoryRealtime)
		})

		Convey("点名设备时带设备过滤参数", func() {
			plan := classify("how much is the fridge using?")
			So(plan.Queries, ShouldHaveLength, 1)
			So(plan.Queries[0].Params["device_pattern"], ShouldEqual, "fridge-%")
			So(plan.Queries[0].SQL, ShouldContainSubstring, ":device_pattern")
		})

		Convey("无法分类时回退到概览加实时", func() {
			plan := classify("tell me something interesting")
			So(plan.Queries, ShouldHaveLength, 2)
			So(plan.Queries[0].Category, ShouldEqual, model.CategorySummary)
			So(plan.Queries[1].Category, ShouldEqual, model.CategoryRealtime)
		})

		Convey("所有兜底查询都带用户作用域占位符", func() {
			msgs := []string{
				"current status",
				"today's usage",
				"which device is highest",
				"weekly trend",
				"the fridge",
				"hmm",
			}
			for _, msg := range msgs {
				plan := classify(msg)
				for _, q := range plan.Queries {
					So(q.SQL, ShouldContainSubstring, ":user_id")
					So(strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q.SQL)), "SELECT"), ShouldBeTrue)
				}
			}
		})
	})
}
