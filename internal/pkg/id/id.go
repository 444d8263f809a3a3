package id

import "github.com/google/uuid"

// New 生成会话/请求 ID（UUID v4）
func New() string {
	return uuid.New().String()
}

// IsValid 校验调用方传入的 ID 是否为合法 UUID
// 非法 ID 由调用方重新分配，不报错
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
