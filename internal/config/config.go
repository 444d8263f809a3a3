package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	AI        AIConfig        `mapstructure:"ai"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider      string          `mapstructure:"provider"`
	APIKey        string          `mapstructure:"api_key"`
	Model         string          `mapstructure:"model"`
	BaseURL       string          `mapstructure:"base_url"`
	PlanTimeout   time.Duration   `mapstructure:"plan_timeout"`   // 计划生成超时（短，偏确定性）
	AnswerTimeout time.Duration   `mapstructure:"answer_timeout"` // 答案生成超时（长，偏质量）
	Options       AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelemetryConfig 能耗数据库配置（只读查询）
type TelemetryConfig struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`          // JWT密钥
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"` // Access Token过期时间
}

// ChatConfig 问答管线配置
type ChatConfig struct {
	MaxHistory        int           `mapstructure:"max_history"`         // 对话窗口最大消息数
	ConversationTTL   time.Duration `mapstructure:"conversation_ttl"`    // 对话过期时间
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`           // 查询结果缓存时间
	MaxQueryLength    int           `mapstructure:"max_query_length"`    // 用户问题最大长度
	MaxContentLength  int           `mapstructure:"max_content_length"`  // 会话消息内容硬上限
	MaxResponseLength int           `mapstructure:"max_response_length"` // 回答长度硬上限
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	IPMaxRequests   int           `mapstructure:"ip_max_requests"`   // IP 固定窗口最大请求数
	IPWindow        time.Duration `mapstructure:"ip_window"`         // IP 窗口长度
	UserMaxRequests int           `mapstructure:"user_max_requests"` // 用户+端点计数上限
	UserWindow      time.Duration `mapstructure:"user_window"`       // 用户计数周期
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Chat.MaxHistory <= 0 {
		return errors.New("chat.max_history must be positive")
	}
	if c.Chat.MaxContentLength <= 0 || c.Chat.MaxResponseLength <= 0 {
		return errors.New("chat content/response caps must be positive")
	}

	return nil
}
