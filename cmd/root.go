package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"joule/internal/config"
	"joule/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "joule",
	Short: "Joule - 智能家居能耗问答服务",
	Long: `Joule is a conversational API service for smart home energy monitoring.
It turns natural-language questions into telemetry fetch plans and
synthesizes data-driven answers with an LLM, degrading to deterministic
fallbacks when the model is unavailable.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.joule")
	}

	// 环境变量设置
	viper.SetEnvPrefix("JOULE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4")
	viper.SetDefault("ai.plan_timeout", "15s")
	viper.SetDefault("ai.answer_timeout", "30s")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 2000)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Telemetry store
	viper.SetDefault("telemetry.driver", "sqlite")
	viper.SetDefault("telemetry.dsn", "file:joule.db?mode=ro")
	viper.SetDefault("telemetry.query_timeout", "10s")

	// Chat pipeline
	viper.SetDefault("chat.max_history", 10)
	viper.SetDefault("chat.conversation_ttl", "30m")
	viper.SetDefault("chat.cache_ttl", "5m")
	viper.SetDefault("chat.max_query_length", 500)
	viper.SetDefault("chat.max_content_length", 7900)
	viper.SetDefault("chat.max_response_length", 7500)

	// Rate limits
	viper.SetDefault("ratelimit.ip_max_requests", 100)
	viper.SetDefault("ratelimit.ip_window", "1m")
	viper.SetDefault("ratelimit.user_max_requests", 1000)
	viper.SetDefault("ratelimit.user_window", "1h")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
