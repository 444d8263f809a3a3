package model

// 角色常量
const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)

// AuthUser 认证上下文中的用户身份
// 由上游完成令牌校验后注入，管线只把它当作不透明身份使用
type AuthUser struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}
