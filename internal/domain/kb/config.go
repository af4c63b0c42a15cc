package kb

import (
	"os"
	"strconv"
	"time"

	applog "kbase/internal/platform/log"
)

// Config 知识库模块配置
type Config struct {
	// Chunker 配置
	MaxChunkTokens int `json:"max_chunk_tokens"` // 单块最大 token 估算值

	// 检索配置
	DefaultSearchLimit int     `json:"default_search_limit"`
	MinScore           float64 `json:"min_score"` // 检索结果最低相似度

	// 问答配置
	AnswerContextLimit int     `json:"answer_context_limit"` // 构建上下文的 top-k
	MinRelevance       float64 `json:"min_relevance"`        // 低于此阈值视为无可用上下文
	SnippetMaxRunes    int     `json:"snippet_max_runes"`

	// 缓存配置。TTL 为经验值，正确性不依赖具体数值。
	EmbedCacheTTL  time.Duration `json:"embed_cache_ttl"`
	EmbedCacheSize int           `json:"embed_cache_size"`
	ResultCacheTTL time.Duration `json:"result_cache_ttl"`

	// 外部服务调用配置
	ExternalTimeout time.Duration `json:"external_timeout"`
	MaxRetries      int           `json:"max_retries"`
	RetryInterval   time.Duration `json:"retry_interval"` // 指数退避起始间隔

	// 入库限制
	MaxDocumentBytes int `json:"max_document_bytes"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxChunkTokens:     1000,
		DefaultSearchLimit: 5,
		MinScore:           0,
		AnswerContextLimit: 4,
		MinRelevance:       0.35,
		SnippetMaxRunes:    200,
		EmbedCacheTTL:      24 * time.Hour,
		EmbedCacheSize:     10000,
		ResultCacheTTL:     30 * time.Minute,
		ExternalTimeout:    60 * time.Second,
		MaxRetries:         3,
		RetryInterval:      500 * time.Millisecond,
		MaxDocumentBytes:   10 * 1024 * 1024, // 10MB
	}
}

// LoadConfigFromEnv 从环境变量加载配置
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if n, ok := envInt("KB_MAX_CHUNK_TOKENS"); ok && n > 0 {
		cfg.MaxChunkTokens = n
	}
	if n, ok := envInt("KB_DEFAULT_SEARCH_LIMIT"); ok && n > 0 {
		cfg.DefaultSearchLimit = n
	}
	if f, ok := envFloat("KB_MIN_SCORE"); ok {
		cfg.MinScore = f
	}
	if n, ok := envInt("KB_ANSWER_CONTEXT_LIMIT"); ok && n > 0 {
		cfg.AnswerContextLimit = n
	}
	if f, ok := envFloat("KB_MIN_RELEVANCE"); ok && f >= 0 {
		cfg.MinRelevance = f
	}
	if n, ok := envInt("KB_EMBED_CACHE_TTL_SECONDS"); ok && n > 0 {
		cfg.EmbedCacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := envInt("KB_EMBED_CACHE_SIZE"); ok && n > 0 {
		cfg.EmbedCacheSize = n
	}
	if n, ok := envInt("KB_RESULT_CACHE_TTL_SECONDS"); ok && n > 0 {
		cfg.ResultCacheTTL = time.Duration(n) * time.Second
	}
	if n, ok := envInt("KB_EXTERNAL_TIMEOUT_SECONDS"); ok && n > 0 {
		cfg.ExternalTimeout = time.Duration(n) * time.Second
	}
	if n, ok := envInt("KB_MAX_RETRIES"); ok && n >= 0 {
		cfg.MaxRetries = n
	}
	if n, ok := envInt("KB_MAX_DOCUMENT_MB"); ok && n > 0 {
		cfg.MaxDocumentBytes = n * 1024 * 1024
	}

	applog.Info("[KB] Config loaded",
		"max_chunk_tokens", cfg.MaxChunkTokens,
		"default_search_limit", cfg.DefaultSearchLimit,
		"answer_context_limit", cfg.AnswerContextLimit,
		"min_relevance", cfg.MinRelevance,
		"embed_cache_ttl", cfg.EmbedCacheTTL,
		"result_cache_ttl", cfg.ResultCacheTTL,
	)

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
