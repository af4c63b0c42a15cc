package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	applog "kbase/internal/platform/log"
)

// ── Completer 接口 ─────────────────────────────────────────────

// Completer 文本补全接口，问答合成时调用
type Completer interface {
	// Complete 基于 system + user 提示词生成回答文本
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ── OpenAI 兼容 Completer 实现 ────────────────────────────────

// OpenAICompleter 调用 OpenAI 兼容 /v1/chat/completions API
type OpenAICompleter struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
}

// OpenAICompleterConfig 配置
type OpenAICompleterConfig struct {
	BaseURL     string
	APIKey      string
	Model       string // e.g. gpt-4o-mini
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// NewOpenAICompleter 创建 OpenAI 兼容 Completer
func NewOpenAICompleter(cfg OpenAICompleterConfig) *OpenAICompleter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &OpenAICompleter{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete 生成回答
func (c *OpenAICompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()

	reqBody := completionRequest{
		Model: c.model,
		Messages: []completionMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", E(KindFatal, "marshal completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", E(KindFatal, "create completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", E(KindRetriable, "completion request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", E(KindRetriable, "read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus("completion", resp.StatusCode, respBody)
	}

	var compResp completionResponse
	if err := json.Unmarshal(respBody, &compResp); err != nil {
		return "", E(KindFatal, "parse completion response", err)
	}
	if len(compResp.Choices) == 0 {
		return "", E(KindFatal, "completion returned no choices", nil)
	}

	applog.Debug("[KB/Completer] Completion generated",
		"model", c.model,
		"tokens", compResp.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return strings.TrimSpace(compResp.Choices[0].Message.Content), nil
}
