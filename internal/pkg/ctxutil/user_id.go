package ctxutil

import (
	"context"

	"joule/internal/model"
)

// userKeyType 使用私有类型避免与其他 context key 冲突
type userKeyType struct{}

var userKey = userKeyType{}

// WithUser 将认证用户注入到 context 中
// 说明：在认证中间件中解析 JWT 成功后调用：
//
//	ctx := ctxutil.WithUser(c.Request.Context(), user)
//	c.Request = c.Request.WithContext(ctx)
func WithUser(ctx context.Context, user *model.AuthUser) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userKey, user)
}

// GetUser 从 context 中解析认证用户
func GetUser(ctx context.Context) (*model.AuthUser, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(userKey).(*model.AuthUser)
	if !ok || user == nil || user.ID == "" {
		return nil, false
	}
	return user, true
}

// GetUserID 从 context 中解析 userID
func GetUserID(ctx context.Context) (string, bool) {
	user, ok := GetUser(ctx)
	if !ok {
		return "", false
	}
	return user.ID, true
}
