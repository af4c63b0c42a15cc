package kb

import "time"

// DocumentStatus 文档入库状态
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document 文档元数据
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	UploadedAt time.Time      `json:"uploaded_at"`
	ChunkCount int            `json:"chunk_count"`
	Status     DocumentStatus `json:"status"`
	FailReason string         `json:"fail_reason,omitempty"`
}

// Chunk 文档分块后的最小检索单元
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Position   int       `json:"position"`       // 在文档内的顺序，从 0 开始
	TokenCount int       `json:"token_estimate"` // len/4 估算值，非精确
	Embedding  []float32 `json:"-"`
}

// SearchHit 单条检索命中
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"` // 余弦相似度 [-1, 1]
	Snippet    string  `json:"snippet"`
}

// SearchResult 检索结果（按 Score 降序，分数相同时按 ChunkID 升序）
type SearchResult struct {
	Hits      []SearchHit `json:"hits"`
	ElapsedMs int64       `json:"elapsed_ms"`
	Cached    bool        `json:"cached"`
}

// IngestResult 入库结果
type IngestResult struct {
	DocumentID string         `json:"document_id"`
	ChunkCount int            `json:"chunk_count"`
	Status     DocumentStatus `json:"status"`
}

// AnswerSource 回答引用的来源，按使用顺序排列
type AnswerSource struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Score      float64 `json:"score"`
}

// AnswerResult 问答结果
type AnswerResult struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"` // 由检索分数推导，与模型输出无关
	Sources    []AnswerSource `json:"sources"`
	Uncertain  bool           `json:"uncertain"`
}

// CacheStats 缓存统计
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats 知识库整体统计
type Stats struct {
	DocumentCount  int        `json:"document_count"`
	ChunkCount     int        `json:"chunk_count"`
	IndexDimension int        `json:"index_dimension"`
	EmbedCache     CacheStats `json:"embedding_cache"`
	ResultCache    CacheStats `json:"result_cache"`
}
