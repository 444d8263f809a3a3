package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"joule/internal/model"
	"joule/internal/pkg/cache"
	"joule/internal/pkg/id"
	"joule/internal/repository"
)

type countingQuerier struct {
	calls int64
	rows  []model.Row
	err   error
}

func (c *countingQuerier) Query(ctx context.Context, query string, params map[string]any) ([]model.Row, error) {
	atomic.AddInt64(&c.calls, 1)
	return c.rows, c.err
}

func newTestChatService(querier MetricsQuerier, store cache.Store) *ChatService {
	return NewChatService(
		NewPlanner(nil),
		NewFetcher(querier),
		NewSynthesizer(nil, 7500),
		repository.NewConversationRepo(store, 10, 7900, 30*time.Minute),
		store,
		5*time.Minute,
	)
}

func TestChatService_Query(t *testing.T) {
	Convey("问答管线", t, func() {
		ctx := context.Background()
		user := &model.AuthUser{ID: "u1", DisplayName: "Alice"}

		Convey("有数据时返回完整应答", func() {
			querier := &countingQuerier{rows: []model.Row{
				{"device_name": "Fridge", "energy_watts": 150.0},
			}}
			store := cache.NewMemory()
			svc := newTestChatService(querier, store)

			resp := svc.Query(ctx, user, &model.ChatRequest{Message: "what's my current status?"})
			So(resp, ShouldNotBeNil)
			So(resp.Message, ShouldNotBeEmpty)
			So(resp.ConversationID, ShouldNotBeEmpty)
			So(resp.DataSources, ShouldNotBeEmpty)
			So(resp.SuggestedQuestions, ShouldHaveLength, 3)
			// 规则计划 + 模板合成: 双降级置信度
			So(resp.Confidence, ShouldEqual, 0.6)
		})

		Convey("调用方传入的 conversation_id 被保留", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{}, store)

			convID := id.New()
			resp := svc.Query(ctx, user, &model.ChatRequest{
				Message:        "current status",
				ConversationID: convID,
			})
			So(resp.ConversationID, ShouldEqual, convID)
		})

		Convey("非 UUID 的 conversation_id 被重新分配", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{}, store)

			resp := svc.Query(ctx, user, &model.ChatRequest{
				Message:        "current status",
				ConversationID: "conv-42",
			})
			So(resp.ConversationID, ShouldNotEqual, "conv-42")
			So(id.IsValid(resp.ConversationID), ShouldBeTrue)
		})

		Convey("所有查询失败时仍返回非空回答", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{err: errors.New("db offline")}, store)

			resp := svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})
			So(resp.Message, ShouldNotBeEmpty)
			So(resp.DataSources, ShouldBeEmpty)
			So(resp.Confidence, ShouldEqual, 0.3)
		})

		Convey("无数据时置信度压到 0.3", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{}, store)

			resp := svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})
			So(resp.Confidence, ShouldEqual, 0.3)
			So(resp.Message, ShouldNotBeEmpty)
		})

		Convey("一问一答都进对话窗口", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{}, store)

			resp := svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})

			conv := svc.History(ctx, user)
			So(conv, ShouldNotBeNil)
			So(conv.Messages, ShouldHaveLength, 2)
			So(conv.Messages[0].Role, ShouldEqual, model.MessageRoleUser)
			So(conv.Messages[0].Content, ShouldEqual, "current status")
			So(conv.Messages[1].Role, ShouldEqual, model.MessageRoleAssistant)
			So(conv.Messages[1].Content, ShouldEqual, resp.Message)
		})

		Convey("相同问题第二次命中缓存", func() {
			querier := &countingQuerier{rows: []model.Row{
				{"device_name": "Fridge", "energy_watts": 150.0},
			}}
			store := cache.NewMemory()
			svc := newTestChatService(querier, store)

			first := svc.Query(ctx, user, &model.ChatRequest{Message: "Current Status"})
			callsAfterFirst := atomic.LoadInt64(&querier.calls)

			// 大小写与首尾空白不同，仍视为同一问题
			second := svc.Query(ctx, user, &model.ChatRequest{Message: "  current status  "})
			So(atomic.LoadInt64(&querier.calls), ShouldEqual, callsAfterFirst)
			So(second.Message, ShouldEqual, first.Message)
			So(second.Confidence, ShouldEqual, first.Confidence)
			So(second.SuggestedQuestions, ShouldResemble, first.SuggestedQuestions)
		})

		Convey("include_context 跳过缓存", func() {
			querier := &countingQuerier{rows: []model.Row{
				{"device_name": "Fridge", "energy_watts": 150.0},
			}}
			store := cache.NewMemory()
			svc := newTestChatService(querier, store)

			svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})
			callsAfterFirst := atomic.LoadInt64(&querier.calls)

			svc.Query(ctx, user, &model.ChatRequest{Message: "current status", IncludeContext: true})
			So(atomic.LoadInt64(&querier.calls), ShouldBeGreaterThan, callsAfterFirst)
		})

		Convey("不同用户的缓存互不串通", func() {
			querier := &countingQuerier{rows: []model.Row{
				{"device_name": "Fridge", "energy_watts": 150.0},
			}}
			store := cache.NewMemory()
			svc := newTestChatService(querier, store)

			svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})
			callsAfterFirst := atomic.LoadInt64(&querier.calls)

			other := &model.AuthUser{ID: "u2"}
			svc.Query(ctx, other, &model.ChatRequest{Message: "current status"})
			So(atomic.LoadInt64(&querier.calls), ShouldBeGreaterThan, callsAfterFirst)
		})

		Convey("ClearHistory 清空对话窗口", func() {
			store := cache.NewMemory()
			svc := newTestChatService(&countingQuerier{}, store)

			svc.Query(ctx, user, &model.ChatRequest{Message: "current status"})
			So(svc.History(ctx, user), ShouldNotBeNil)

			svc.ClearHistory(ctx, user)
			So(svc.History(ctx, user), ShouldBeNil)
		})
	})
}

func TestHashQuery(t *testing.T) {
	Convey("缓存 key 规范化", t, func() {
		Convey("大小写与首尾空白不影响 hash", func() {
			So(hashQuery("u1", "Hello World"), ShouldEqual, hashQuery("u1", "  hello world  "))
		})

		Convey("不同用户不同 hash", func() {
			So(hashQuery("u1", "hello"), ShouldNotEqual, hashQuery("u2", "hello"))
		})

		Convey("不同问题不同 hash", func() {
			So(hashQuery("u1", "hello"), ShouldNotEqual, hashQuery("u1", "goodbye"))
		})
	})
}

func TestConfidence(t *testing.T) {
	Convey("置信度分档", t, func() {
		withData := fetchedWith(model.QueryResult{
			Rows:     []model.Row{{"x": 1}},
			RowCount: 1,
		})
		deg := &model.Degraded{Stage: model.StagePlan, Reason: "x"}

		So(confidence(withData, nil, nil), ShouldEqual, 0.95)
		So(confidence(withData, deg, nil), ShouldEqual, 0.85)
		So(confidence(withData, nil, deg), ShouldEqual, 0.6)
		So(confidence(withData, deg, deg), ShouldEqual, 0.6)
		So(confidence(&model.FetchResult{}, nil, nil), ShouldEqual, 0.3)
		So(confidence(nil, nil, nil), ShouldEqual, 0.3)
	})
}
