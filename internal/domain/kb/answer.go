package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	applog "kbase/internal/platform/log"
)

const answerSystemPrompt = "You are a helpful assistant that answers questions strictly based on the provided context from a knowledge base."

const uncertainAnswer = "I don't have enough relevant information in the knowledge base to answer this question."

// Synthesizer 问答合成器。
// 检索 top-k 上下文、构建仅含检索内容的提示词、调用补全服务，
// 置信度由检索分数推导——模型自报的置信度不可靠，不采用。
type Synthesizer struct {
	engine    *Engine
	completer Completer
	cfg       *Config
}

// NewSynthesizer 创建问答合成器。completer 会被包上重试与熔断。
func NewSynthesizer(engine *Engine, completer Completer) *Synthesizer {
	cfg := engine.Config()
	return &Synthesizer{
		engine:    engine,
		completer: newResilientCompleter(completer, cfg),
		cfg:       cfg,
	}
}

// Answer 回答问题。
// 没有任何分块达到最低相关度时降级为明确表示不确定的低置信度回答，
// 而不是硬失败；外部补全服务失败才作为错误向上传播。
func (s *Synthesizer) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	start := time.Now()

	result, err := s.engine.Search(ctx, question, s.cfg.AnswerContextLimit, 0)
	if err != nil {
		return nil, err
	}

	relevant, err := relevantHits(result.Hits, s.cfg.MinRelevance)
	if errors.Is(err, ErrInsufficientContext) {
		// 上下文不足降级为明确不确定的回答，不向上抛错
		applog.Info("[KB/QA] Insufficient context", "question", question, "retrieved", len(result.Hits))
		return &AnswerResult{
			Answer:     uncertainAnswer,
			Confidence: 0,
			Sources:    []AnswerSource{},
			Uncertain:  true,
		}, nil
	}

	prompt, sources := s.buildPrompt(question, relevant)

	answer, err := s.completer.Complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		applog.Error("[KB/QA] Completion failed", "question", question, "error", err)
		return nil, err
	}

	scores := make([]float64, len(relevant))
	for i, hit := range relevant {
		scores[i] = hit.Score
	}
	confidence := confidenceFrom(scores)

	applog.Info("[KB/QA] Answer generated",
		"question", question,
		"context_chunks", len(relevant),
		"confidence", fmt.Sprintf("%.2f", confidence),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &AnswerResult{
		Answer:     answer,
		Confidence: confidence,
		Sources:    sources,
	}, nil
}

// buildPrompt 组装仅包含检索内容与问题的提示词，来源按使用顺序编号。
func (s *Synthesizer) buildPrompt(question string, hits []SearchHit) (string, []AnswerSource) {
	var sb strings.Builder
	sources := make([]AnswerSource, 0, len(hits))

	sb.WriteString("Context:\n")
	for i, hit := range hits {
		filename := ""
		if doc, ok := s.engine.Document(hit.DocumentID); ok {
			filename = doc.Filename
		}

		sb.WriteString(fmt.Sprintf("[Source %d", i+1))
		if filename != "" {
			sb.WriteString(" from " + filename)
		}
		sb.WriteString("]:\n")

		if ch, ok := s.engine.store.GetChunk(hit.ChunkID); ok {
			sb.WriteString(ch.Text)
		} else {
			sb.WriteString(hit.Snippet)
		}
		sb.WriteString("\n\n")

		sources = append(sources, AnswerSource{
			ChunkID:    hit.ChunkID,
			DocumentID: hit.DocumentID,
			Filename:   filename,
			Score:      hit.Score,
		})
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nInstructions:\n")
	sb.WriteString("- Answer based ONLY on the provided context\n")
	sb.WriteString("- If the context doesn't contain enough information, say so\n")
	sb.WriteString("- Be concise but comprehensive\n")
	sb.WriteString("- Cite sources by number when relevant\n")
	sb.WriteString("- If you're not sure, express uncertainty\n\nAnswer:")

	return sb.String(), sources
}

// relevantHits 过滤未达到最低相关度阈值的命中；全部不达标返回 ErrInsufficientContext。
func relevantHits(hits []SearchHit, minRelevance float64) ([]SearchHit, error) {
	relevant := make([]SearchHit, 0, len(hits))
	for _, hit := range hits {
		if hit.Score >= minRelevance {
			relevant = append(relevant, hit)
		}
	}
	if len(relevant) == 0 {
		return nil, ErrInsufficientContext
	}
	return relevant, nil
}

// confidenceFrom 由检索分数推导置信度：
// 以最高分为主，分数离散度做衰减。对最高分单调，结果落在 [0, 1]。
func confidenceFrom(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	top := clamp01(scores[0])
	if len(scores) == 1 || top == 0 {
		return top
	}

	var sum float64
	for _, s := range scores {
		sum += clamp01(s)
	}
	mean := sum / float64(len(scores))

	// 其余分数越接近最高分，佐证越强
	return clamp01(top * (0.75 + 0.25*mean/top))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
