package http

// 错误码按 HTTP 状态分段: 400xx 参数、401xx 认证、429xx 限流、500xx 服务端

// ErrorResponse 统一错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`             // 业务错误码（非0）
	Message string `json:"message"`          // 面向调用方的错误消息
	Detail  string `json:"detail,omitempty"` // 校验失败等附加信息
}

// SuccessResponse 统一成功响应
type SuccessResponse struct {
	Code    int         `json:"code"`           // 固定为 0
	Message string      `json:"message"`        // 响应消息
	Data    interface{} `json:"data,omitempty"` // 响应数据
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(message string, data interface{}) *SuccessResponse {
	return &SuccessResponse{
		Code:    0,
		Message: message,
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string, detail ...string) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    code,
		Message: message,
	}
	if len(detail) > 0 && detail[0] != "" {
		resp.Detail = detail[0]
	}
	return resp
}
