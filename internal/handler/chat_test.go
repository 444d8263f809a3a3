package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"joule/internal/model"
	"joule/internal/pkg/cache"
	"joule/internal/pkg/ctxutil"
	"joule/internal/repository"
	"joule/internal/service"
)

type staticQuerier struct {
	rows []model.Row
}

func (s *staticQuerier) Query(ctx context.Context, query string, params map[string]any) ([]model.Row, error) {
	return s.rows, nil
}

func newTestRouter(user *model.AuthUser) *gin.Engine {
	gin.SetMode(gin.TestMode)

	store := cache.NewMemory()
	chatSvc := service.NewChatService(
		service.NewPlanner(nil),
		service.NewFetcher(&staticQuerier{rows: []model.Row{
			{"device_name": "Fridge", "energy_watts": 150.0},
		}}),
		service.NewSynthesizer(nil, 7500),
		repository.NewConversationRepo(store, 10, 7900, 30*time.Minute),
		store,
		5*time.Minute,
	)
	h := NewChatHandler(chatSvc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Request = c.Request.WithContext(ctxutil.WithUser(c.Request.Context(), user))
		}
		c.Next()
	})
	chat := r.Group("/api/v1/chat")
	{
		chat.POST("/query", h.Query)
		chat.GET("/conversation", h.GetConversation)
		chat.DELETE("/conversation", h.ClearConversation)
		chat.GET("/suggestions", h.Suggestions)
	}
	return r
}

func TestChatHandler_Query(t *testing.T) {
	Convey("POST /api/v1/chat/query", t, func() {
		user := &model.AuthUser{ID: "u1", DisplayName: "Alice"}

		post := func(r *gin.Engine, body string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/query", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)
			return w
		}

		Convey("正常问答返回应答结构", func() {
			r := newTestRouter(user)
			w := post(r, `{"message": "what's my current status?"}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp model.ChatResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Message, ShouldNotBeEmpty)
			So(resp.ConversationID, ShouldNotBeEmpty)
			So(resp.Confidence, ShouldBeGreaterThan, 0)
			So(resp.SuggestedQuestions, ShouldHaveLength, 3)
		})

		Convey("缺少 message 字段返回 400", func() {
			r := newTestRouter(user)
			So(post(r, `{"conversation_id": "c1"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("超长 message 返回 400", func() {
			r := newTestRouter(user)
			long := bytes.Repeat([]byte("x"), 501)
			body, _ := json.Marshal(map[string]string{"message": string(long)})
			So(post(r, string(body)).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("未认证返回 401", func() {
			r := newTestRouter(nil)
			So(post(r, `{"message": "hi"}`).Code, ShouldEqual, http.StatusUnauthorized)
		})
	})
}

func TestChatHandler_Conversation(t *testing.T) {
	Convey("对话历史接口", t, func() {
		user := &model.AuthUser{ID: "u1"}
		r := newTestRouter(user)

		do := func(method, path, body string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			var req *http.Request
			if body != "" {
				req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(method, path, nil)
			}
			r.ServeHTTP(w, req)
			return w
		}

		Convey("无历史时返回空窗口", func() {
			w := do(http.MethodGet, "/api/v1/chat/conversation", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var conv model.Conversation
			So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
			So(conv.UserID, ShouldEqual, "u1")
			So(conv.Messages, ShouldBeEmpty)
		})

		Convey("问答后历史可见，删除后清空", func() {
			So(do(http.MethodPost, "/api/v1/chat/query", `{"message": "current status"}`).Code,
				ShouldEqual, http.StatusOK)

			w := do(http.MethodGet, "/api/v1/chat/conversation", "")
			var conv model.Conversation
			So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
			So(conv.Messages, ShouldHaveLength, 2)

			So(do(http.MethodDelete, "/api/v1/chat/conversation", "").Code, ShouldEqual, http.StatusOK)

			w = do(http.MethodGet, "/api/v1/chat/conversation", "")
			So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
			So(conv.Messages, ShouldBeEmpty)
		})
	})
}

func TestChatHandler_Suggestions(t *testing.T) {
	Convey("GET /api/v1/chat/suggestions", t, func() {
		r := newTestRouter(&model.AuthUser{ID: "u1"})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/suggestions", nil)
		r.ServeHTTP(w, req)
		So(w.Code, ShouldEqual, http.StatusOK)

		var body struct {
			Suggestions []string            `json:"suggestions"`
			Categories  map[string][]string `json:"categories"`
		}
		So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
		So(body.Suggestions, ShouldHaveLength, 8)
		So(body.Categories, ShouldContainKey, "device_specific")
		So(body.Categories, ShouldContainKey, "real_time")
		So(body.Categories["recommendations"], ShouldContain, "Give me energy-saving recommendations")
	})
}
