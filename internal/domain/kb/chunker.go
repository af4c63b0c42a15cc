package kb

import (
	"regexp"
	"strings"
)

// ChunkStrategy 分块策略。入库时根据文本结构特征一次性确定，不做逐块猜测。
type ChunkStrategy string

const (
	// StrategyByParagraph 按空行分段。适合常规文档。
	StrategyByParagraph ChunkStrategy = "by_paragraph"
	// StrategyByAccumulatedLines 按行累积。适合无空行的逐行文本（如字幕、转写稿），
	// 避免整个文件退化成单个分块。
	StrategyByAccumulatedLines ChunkStrategy = "by_accumulated_lines"
)

var blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)

// Chunker 文档分块器。只做结构化切分，不做语义边界检测。
type Chunker struct {
	maxTokens int
}

// NewChunker 创建分块器
func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	return &Chunker{maxTokens: maxTokens}
}

// EstimateTokens 估算 token 数（len/4 经验值，非精确）。
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// DetectStrategy 根据是否存在空行分隔符选择分块策略
func DetectStrategy(text string) ChunkStrategy {
	if blankLineRe.MatchString(normalizeNewlines(text)) {
		return StrategyByParagraph
	}
	return StrategyByAccumulatedLines
}

// Chunk 将文本切分为有序分块。空白输入返回 ErrEmptyInput。
// 产出保证：无空块；除单句超限外每块 token 估算 ≤ maxTokens；
// 顺序与原文一致；尾部不足一块的内容也会输出。
func (c *Chunker) Chunk(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	text = normalizeNewlines(text)

	switch DetectStrategy(text) {
	case StrategyByParagraph:
		return c.chunkByParagraph(text), nil
	default:
		return c.chunkByAccumulatedLines(text), nil
	}
}

// chunkByParagraph 按空行切段。段落间永不合并，保留文档结构；
// 超长段落再按句子边界细分。
func (c *Chunker) chunkByParagraph(text string) []string {
	var chunks []string
	for _, para := range blankLineRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if EstimateTokens(para) <= c.maxTokens {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, c.splitOversized(para)...)
	}
	return chunks
}

// splitOversized 将超长段落按句子边界累积为多个子块。
// 单句超过 maxTokens 时整句保留为独立块，永不丢弃。
func (c *Chunker) splitOversized(para string) []string {
	var chunks []string
	var current strings.Builder

	for _, sentence := range splitSentences(para) {
		if current.Len() == 0 {
			current.WriteString(sentence)
			continue
		}
		// +1 计入连接空格本身
		if EstimateTokens(current.String())+EstimateTokens(sentence)+1 > c.maxTokens {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			continue
		}
		current.WriteString(" ")
		current.WriteString(sentence)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// chunkByAccumulatedLines 逐行累积：短行持续并入当前块，
// 直到再加一行就会超限才收尾。
func (c *Chunker) chunkByAccumulatedLines(text string) []string {
	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if current.Len() == 0 {
			current.WriteString(line)
			continue
		}
		// +1 计入换行本身
		if EstimateTokens(current.String())+EstimateTokens(line)+1 > c.maxTokens {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(line)
			continue
		}
		current.WriteString("\n")
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences 按句末标点和换行切句，保留标点。
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		atEnd := i == len(runes)-1
		isTerminal := r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？'
		followedByGap := !atEnd && (runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n')

		if r == '\n' || (isTerminal && (atEnd || followedByGap)) {
			s := strings.TrimSpace(string(runes[start : i+1]))
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
