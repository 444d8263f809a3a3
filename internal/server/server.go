package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "joule/docs"
	"joule/internal/ai"
	"joule/internal/config"
	"joule/internal/handler"
	"joule/internal/pkg/cache"
	"joule/internal/pkg/jwt"
	"joule/internal/repository"
	"joule/internal/repository/telemetry"
	"joule/internal/server/middleware"
	"joule/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg       *config.Config
	engine    *gin.Engine
	redis     *cache.RedisStore
	telemetry *telemetry.Store
	aiClient  *ai.Client
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化缓存 (Redis 可选，未配置或不可达时退回进程内缓存)
	var (
		store      cache.Store
		redisStore *cache.RedisStore
	)
	if cfg.Redis.Addr != "" {
		rs, err := cache.NewRedisStore(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, using in-process cache")
		} else {
			redisStore = rs
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}
	if redisStore != nil {
		store = redisStore
	} else {
		store = cache.NewMemory()
	}

	// 初始化能耗数据库
	telemetryStore, err := telemetry.NewStore(&cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.Telemetry.Driver).Msg("opened telemetry store")

	// 初始化 AI 客户端 (可选，未配置 API key 时全部走规则兜底)
	var (
		aiClient  *ai.Client
		planLLM   service.PlanLLM
		answerLLM service.AnswerLLM
	)
	if cfg.AI.APIKey != "" {
		client, err := ai.NewClient(context.Background(), &cfg.AI)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize AI client, continuing with rule-based paths")
		} else {
			aiClient = client
			planLLM = client
			answerLLM = client
			log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized AI client")
		}
	} else {
		log.Warn().Msg("AI API key not configured, all requests use rule-based paths")
	}

	// 组装问答管线
	conversations := repository.NewConversationRepo(
		store,
		cfg.Chat.MaxHistory,
		cfg.Chat.MaxContentLength,
		cfg.Chat.ConversationTTL,
	)
	chatSvc := service.NewChatService(
		service.NewPlanner(planLLM),
		service.NewFetcher(telemetryStore),
		service.NewSynthesizer(answerLLM, cfg.Chat.MaxResponseLength),
		conversations,
		store,
		cfg.Chat.CacheTTL,
	)

	srv := &Server{
		cfg:       cfg,
		engine:    engine,
		redis:     redisStore,
		telemetry: telemetryStore,
		aiClient:  aiClient,
	}

	// 设置路由
	srv.setupRoutes(store, chatSvc)

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(store cache.Store, chatSvc *service.ChatService) {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 从配置读取JWT参数，如果没有配置则使用默认值
	jwtSecret := s.cfg.Auth.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "default-secret-key-change-in-production"
		log.Warn().Msg("JWT secret not configured, using default (NOT SECURE for production)")
	}
	accessTokenExpiry := s.cfg.Auth.AccessTokenExpiry
	if accessTokenExpiry == 0 {
		accessTokenExpiry = 24 * time.Hour
	}
	jwtUtil := jwt.NewJWT(jwtSecret, accessTokenExpiry)

	chatHandler := handler.NewChatHandler(chatSvc)

	// API v1
	v1 := s.engine.Group("/api/v1")
	v1.Use(middleware.IPRateLimit(store, s.cfg.RateLimit.IPMaxRequests, s.cfg.RateLimit.IPWindow))
	v1.Use(middleware.Auth(jwtUtil))
	{
		chat := v1.Group("/chat")
		{
			chat.POST("/query",
				middleware.UserRateLimit(store, s.cfg.RateLimit.UserMaxRequests, s.cfg.RateLimit.UserWindow),
				chatHandler.Query,
			)
			chat.GET("/conversation", chatHandler.GetConversation)
			chat.DELETE("/conversation", chatHandler.ClearConversation)
			chat.GET("/suggestions", chatHandler.Suggestions)
		}
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 关闭连接
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}
		if s.telemetry != nil {
			if err := s.telemetry.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close telemetry store")
			}
		}
		if s.aiClient != nil {
			if err := s.aiClient.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close AI client")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
