package kb

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CoverageReport 知识库覆盖度分析结果
type CoverageReport struct {
	Status            string             `json:"status"` // empty | analyzed
	Message           string             `json:"message,omitempty"`
	Statistics        CoverageStatistics `json:"statistics,omitempty"`
	FileTypes         map[string]int     `json:"file_types,omitempty"`
	TopicCoverage     map[string]int     `json:"topic_coverage,omitempty"`
	Suggestions       []string           `json:"suggestions"`
	CompletenessScore float64            `json:"completeness_score"`
}

// CoverageStatistics 覆盖度统计
type CoverageStatistics struct {
	TotalDocuments     int `json:"total_documents"`
	TotalChunks        int `json:"total_chunks"`
	TotalContentLength int `json:"total_content_length"`
	AvgContentPerDoc   int `json:"avg_content_per_doc"`
}

// 主题词表与基础内容类型。启发式覆盖度用，非核心检索逻辑。
var coverageTopicTerms = []string{
	"ai", "artificial intelligence", "machine learning", "deep learning",
	"cloud", "computing", "database", "api", "software", "system",
	"algorithm", "data", "model", "training", "neural network",
}

var coverageFundamentals = []struct {
	name     string
	keywords []string
}{
	{"definitions", []string{"definition", "what is", "meaning"}},
	{"procedures", []string{"how to", "steps", "process", "procedure"}},
	{"examples", []string{"example", "instance", "case study", "sample"}},
	{"troubleshooting", []string{"error", "problem", "issue", "fix", "solve"}},
}

// CompletenessChecker 知识库缺口分析。只消费存储与检索结果，不参与检索路径。
type CompletenessChecker struct {
	engine *Engine
}

// NewCompletenessChecker 创建覆盖度分析器
func NewCompletenessChecker(engine *Engine) *CompletenessChecker {
	return &CompletenessChecker{engine: engine}
}

// AnalyzeCoverage 分析当前知识库的覆盖情况并给出补全建议
func (c *CompletenessChecker) AnalyzeCoverage() *CoverageReport {
	docs := c.engine.ListDocuments()
	if len(docs) == 0 {
		return &CoverageReport{
			Status:      "empty",
			Message:     "No documents in knowledge base",
			Suggestions: []string{"Upload documents to begin analysis"},
		}
	}

	fileTypes := make(map[string]int)
	topicCounts := make(map[string]int)
	totalLength := 0
	totalChunks := 0

	for _, doc := range docs {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.Filename)), ".")
		if ext == "" {
			ext = "unknown"
		}
		fileTypes[ext]++
		totalChunks += doc.ChunkCount

		content := strings.ToLower(c.documentText(doc.ID))
		totalLength += len(content)
		for _, term := range coverageTopicTerms {
			if strings.Contains(content, term) {
				topicCounts[term]++
			}
		}
	}

	var suggestions []string
	if len(docs) < 5 {
		suggestions = append(suggestions, "Consider adding more documents for better coverage")
	}
	if len(topicCounts) < 3 {
		suggestions = append(suggestions, "Knowledge base seems narrow - consider adding diverse topics")
	}
	if totalLength < 5000 {
		suggestions = append(suggestions, "Content volume is low - add more detailed documents")
	}
	suggestions = append(suggestions, c.identifyGaps(docs)...)

	return &CoverageReport{
		Status: "analyzed",
		Statistics: CoverageStatistics{
			TotalDocuments:     len(docs),
			TotalChunks:        totalChunks,
			TotalContentLength: totalLength,
			AvgContentPerDoc:   totalLength / len(docs),
		},
		FileTypes:         fileTypes,
		TopicCoverage:     topicCounts,
		Suggestions:       suggestions,
		CompletenessScore: completenessScore(len(docs), len(topicCounts), totalLength),
	}
}

// SuggestQuestions 给出可能暴露知识缺口的问题
func (c *CompletenessChecker) SuggestQuestions(limit int) []string {
	if limit <= 0 {
		limit = 5
	}

	if len(c.engine.ListDocuments()) == 0 {
		return []string{"What topics should be covered in this knowledge base?"}
	}

	suggestions := []string{
		"What are the main concepts covered in the knowledge base?",
		"How do the different topics relate to each other?",
		"What are some practical applications of these concepts?",
		"What are common challenges or problems in this domain?",
		"What are the latest developments or trends?",
	}
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions
}

// identifyGaps 检查基础内容类型的缺失，最多返回 3 条。
func (c *CompletenessChecker) identifyGaps(docs []Document) []string {
	var sb strings.Builder
	for _, doc := range docs {
		sb.WriteString(strings.ToLower(c.documentText(doc.ID)))
		sb.WriteString(" ")
	}
	allContent := sb.String()

	var gaps []string
	for _, f := range coverageFundamentals {
		found := false
		for _, kw := range f.keywords {
			if strings.Contains(allContent, kw) {
				found = true
				break
			}
		}
		if !found {
			gaps = append(gaps, fmt.Sprintf("Missing %s - consider adding content with %s",
				f.name, strings.Join(f.keywords[:2], ", ")))
		}
		if len(gaps) == 3 {
			break
		}
	}
	return gaps
}

// documentText 拼接文档全部分块文本（按 position 排序）
func (c *CompletenessChecker) documentText(docID string) string {
	chunks := c.engine.store.ChunksForDocument(docID)

	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Text
	}
	return strings.Join(parts, "\n")
}

// completenessScore 简单覆盖度打分：文档数、内容量、主题多样性三因子，落在 [0,1]。
func completenessScore(docCount, topicCount, contentLength int) float64 {
	score := minf(float64(docCount)/10, 0.3)
	score += minf(float64(contentLength)/20000, 0.3)
	score += minf(float64(topicCount)/10, 0.4)
	return score
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
