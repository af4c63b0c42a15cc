package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"kbase/internal/domain/kb"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string       `json:"log_level"`
	LogFormat string       `json:"log_format"`
	Server    ServerConfig `json:"server"`
	OpenAI    OpenAIConfig `json:"openai"`
	KB        kb.Config    `json:"kb"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
	RatePerMinute       int    `json:"rate_per_minute"`
	UploadPerMinute     int    `json:"upload_per_minute"`
	TrustProxyHeaders   bool   `json:"trust_proxy_headers"`
}

type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	ChatModel      string `json:"chat_model"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDims  int    `json:"embedding_dims"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	kbCfg := kb.DefaultConfig()
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  60,
			WriteTimeoutSeconds: 120,
			RatePerMinute:       120,
			UploadPerMinute:     20,
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  1536,
		},
		KB: *kbCfg,
	}
}

// Load 加载全局配置：默认值 -> 环境变量。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()
	cfg.applyEnv()
	cfg.KB = *kb.LoadConfigFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyInt("RATE_LIMIT_PER_MINUTE", &c.Server.RatePerMinute)
	applyInt("UPLOAD_LIMIT_PER_MINUTE", &c.Server.UploadPerMinute)
	applyBool("TRUST_PROXY_HEADERS", &c.Server.TrustProxyHeaders)

	applyString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	applyString("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	applyString("OPENAI_CHAT_MODEL", &c.OpenAI.ChatModel)
	applyString("OPENAI_EMBEDDING_MODEL", &c.OpenAI.EmbeddingModel)
	applyInt("OPENAI_EMBEDDING_DIMS", &c.OpenAI.EmbeddingDims)
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.OpenAI.EmbeddingDims <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMS must be positive")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
