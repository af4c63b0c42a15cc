package kb_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"kbase/internal/domain/kb"
)

// TestChunkByParagraph 测试空行分段：常规文档按段落切分，段落间不合并
func TestChunkByParagraph(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\n\nThird paragraph."

	chunker := kb.NewChunker(1000)
	chunks, err := chunker.Chunk(text)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "First paragraph here." {
		t.Errorf("unexpected first chunk: %q", chunks[0])
	}
	if chunks[2] != "Third paragraph." {
		t.Errorf("unexpected third chunk: %q", chunks[2])
	}
}

// TestChunkEmptyInput 空白输入必须返回 ErrEmptyInput，而不是空切片
func TestChunkEmptyInput(t *testing.T) {
	chunker := kb.NewChunker(1000)

	for _, text := range []string{"", "   ", "\n\n\t\n"} {
		_, err := chunker.Chunk(text)
		if !errors.Is(err, kb.ErrEmptyInput) {
			t.Errorf("input %q: expected ErrEmptyInput, got %v", text, err)
		}
	}
}

// TestChunkAccumulatedLines 无空行的逐行文本（如字幕）必须按行累积，
// 不能退化为单个巨型分块
func TestChunkAccumulatedLines(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("line %02d of the transcript", i))
	}
	text := strings.Join(lines, "\n")

	chunker := kb.NewChunker(20)
	chunks, err := chunker.Chunk(text)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 50-line transcript, got %d", len(chunks))
	}

	// 无空块，且除单句超限外每块不超过 token 上限
	for i, ch := range chunks {
		if strings.TrimSpace(ch) == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if kb.EstimateTokens(ch) > 20 {
			t.Errorf("chunk %d exceeds token limit: %d tokens", i, kb.EstimateTokens(ch))
		}
	}

	// 顺序与原文一致：逐块拼回后行序不变
	joined := strings.Join(chunks, "\n")
	for i := 0; i < 49; i++ {
		a := fmt.Sprintf("line %02d", i)
		b := fmt.Sprintf("line %02d", i+1)
		if strings.Index(joined, a) > strings.Index(joined, b) {
			t.Fatalf("line order broken around %q / %q", a, b)
		}
	}
}

// TestChunkOversizedParagraph 超长段落按句子边界细分，内容不丢失
func TestChunkOversizedParagraph(t *testing.T) {
	var sentences []string
	for i := 0; i < 20; i++ {
		sentences = append(sentences, fmt.Sprintf("Sentence number %d talks about something important.", i))
	}
	text := strings.Join(sentences, " ")

	chunker := kb.NewChunker(30)
	chunks, err := chunker.Chunk(text)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("expected oversized paragraph to be split, got %d chunks", len(chunks))
	}

	joined := strings.Join(chunks, " ")
	for i := 0; i < 20; i++ {
		want := fmt.Sprintf("Sentence number %d", i)
		if !strings.Contains(joined, want) {
			t.Errorf("sentence %d lost during split", i)
		}
	}
}

// TestChunkOversizedRespectsBudget 句子累积时连接空格也计入预算，
// 收尾的子块估算不得超过 maxTokens（单句超限除外）。
func TestChunkOversizedRespectsBudget(t *testing.T) {
	// 首段每句 10 字节 = 2 token，不计空格则两句恰好贴着预算被错误合并
	text := "Aaaa bbbb. Ccccc ddd. Eeeee fff.\n\nTail."
	maxTokens := 4

	chunker := kb.NewChunker(maxTokens)
	chunks, err := chunker.Chunk(text)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}

	for _, ch := range chunks {
		if kb.EstimateTokens(ch) > maxTokens {
			t.Errorf("chunk exceeds budget (%d > %d): %q", kb.EstimateTokens(ch), maxTokens, ch)
		}
	}
}

// TestChunkSingleOversizedSentence 单句超限时整句保留为独立块，永不丢弃
func TestChunkSingleOversizedSentence(t *testing.T) {
	sentence := "This is one very long sentence without any terminal punctuation in the middle that keeps going and going well past the limit"

	chunker := kb.NewChunker(5)
	chunks, err := chunker.Chunk(sentence)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}

	found := false
	for _, ch := range chunks {
		if strings.Contains(ch, "keeps going and going") {
			found = true
		}
	}
	if !found {
		t.Errorf("oversized sentence content was dropped: %v", chunks)
	}
}

// TestDetectStrategy 分块策略由空行分隔符决定
func TestDetectStrategy(t *testing.T) {
	cases := []struct {
		text string
		want kb.ChunkStrategy
	}{
		{"para one\n\npara two", kb.StrategyByParagraph},
		{"para one\n \t \npara two", kb.StrategyByParagraph},
		{"line one\nline two\nline three", kb.StrategyByAccumulatedLines},
		{"single line", kb.StrategyByAccumulatedLines},
		{"windows\r\n\r\nnewlines", kb.StrategyByParagraph},
	}

	for _, c := range cases {
		if got := kb.DetectStrategy(c.text); got != c.want {
			t.Errorf("DetectStrategy(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

// TestEstimateTokens len/4 经验值，非空文本至少 1
func TestEstimateTokens(t *testing.T) {
	if kb.EstimateTokens("") != 0 {
		t.Error("empty text should estimate 0 tokens")
	}
	if kb.EstimateTokens("ab") != 1 {
		t.Errorf("short text should estimate at least 1 token, got %d", kb.EstimateTokens("ab"))
	}
	if kb.EstimateTokens(strings.Repeat("a", 400)) != 100 {
		t.Errorf("400 bytes should estimate 100 tokens, got %d", kb.EstimateTokens(strings.Repeat("a", 400)))
	}
}
