package kb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	applog "kbase/internal/platform/log"
)

// Engine 检索引擎编排层。
// 组合分块器、向量缓存、向量索引与结果缓存，对外提供入库/检索/删除/统计。
// 文档入库状态机：received → chunking → embedding → indexed | failed，
// 不允许部分成功：一个文档的分块要么全部入索引，要么一个都不入。
type Engine struct {
	cfg         *Config
	chunker     *Chunker
	store       *Store
	index       *VectorIndex
	embedCache  *EmbeddingCache
	resultCache *ResultCache
	sf          singleflight.Group
}

// NewEngine 创建检索引擎。embedder 会被包上重试与熔断。
func NewEngine(cfg *Config, embedder Embedder) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:         cfg,
		chunker:     NewChunker(cfg.MaxChunkTokens),
		store:       NewStore(),
		index:       NewVectorIndex(),
		embedCache:  NewEmbeddingCache(newResilientEmbedder(embedder, cfg), cfg.EmbedCacheTTL, cfg.EmbedCacheSize),
		resultCache: NewResultCache(cfg.ResultCacheTTL),
	}
}

// Config 返回引擎配置
func (e *Engine) Config() *Config {
	return e.cfg
}

// ── 入库 ──────────────────────────────────────────────────────

// Ingest 文档入库：分块 → 向量化（走缓存）→ 原子提交到存储与索引。
// 任何阶段失败文档整体标记 failed，已有索引状态不受影响。
func (e *Engine) Ingest(ctx context.Context, filename, text string) (*IngestResult, error) {
	if len(text) > e.cfg.MaxDocumentBytes {
		return nil, Ef(KindInput, "document too large: %d bytes (max %d)", len(text), e.cfg.MaxDocumentBytes)
	}

	start := time.Now()
	doc := Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		UploadedAt: time.Now(),
		Status:     DocumentStatusProcessing,
	}
	e.store.PutDocument(doc)

	pieces, err := e.chunker.Chunk(text)
	if err != nil {
		e.store.SetStatus(doc.ID, DocumentStatusFailed, err.Error())
		return nil, err
	}

	vectors, err := e.embedCache.GetOrCompute(ctx, pieces)
	if err != nil {
		e.store.SetStatus(doc.ID, DocumentStatusFailed, err.Error())
		applog.Error("[KB] Ingest embedding failed", "doc_id", doc.ID, "filename", filename, "error", err)
		return nil, err
	}

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Text:       piece,
			Position:   i,
			TokenCount: EstimateTokens(piece),
			Embedding:  vectors[i],
		}
	}

	e.store.CommitChunks(doc.ID, chunks)
	if err := e.index.AddBatch(chunks); err != nil {
		// 维度不一致：回滚存储，文档整体置为 failed
		e.store.DeleteDocument(doc.ID)
		doc.Status = DocumentStatusFailed
		doc.FailReason = err.Error()
		e.store.PutDocument(doc)
		applog.Error("[KB] Ingest index commit failed", "doc_id", doc.ID, "error", err)
		return nil, err
	}
	e.resultCache.InvalidateAll()

	applog.Info("[KB] Document indexed",
		"doc_id", doc.ID,
		"filename", filename,
		"chunks", len(chunks),
		"strategy", DetectStrategy(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	return &IngestResult{
		DocumentID: doc.ID,
		ChunkCount: len(chunks),
		Status:     DocumentStatusReady,
	}, nil
}

// ── 检索 ──────────────────────────────────────────────────────

// Search 相似度检索。查询先归一化查结果缓存；
// miss 时并发的相同查询通过 singleflight 合并为一次计算。
func (e *Engine) Search(ctx context.Context, query string, limit int, minScore float64) (*SearchResult, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = e.cfg.DefaultSearchLimit
	}
	if minScore <= 0 {
		minScore = e.cfg.MinScore
	}

	if cached, ok := e.resultCache.Get(normalized, limit, minScore); ok {
		cached.Cached = true
		return cached, nil
	}

	key := resultCacheKey(normalized, limit, minScore)
	v, err, _ := e.sf.Do(key, func() (interface{}, error) {
		return e.searchMiss(ctx, normalized, limit, minScore)
	})
	if err != nil {
		return nil, err
	}

	result := v.(*SearchResult)
	out := *result
	out.Hits = append([]SearchHit(nil), result.Hits...)
	return &out, nil
}

func (e *Engine) searchMiss(ctx context.Context, normalized string, limit int, minScore float64) (*SearchResult, error) {
	start := time.Now()

	// 相同查询文本的向量本身也会命中向量缓存
	vectors, err := e.embedCache.GetOrCompute(ctx, []string{normalized})
	if err != nil {
		return nil, err
	}

	hits, err := e.index.Search(vectors[0], limit, minScore)
	if err != nil {
		return nil, err
	}

	// 删除过程中存储先于索引清空，窗口内的孤儿命中直接丢弃
	kept := hits[:0]
	for _, hit := range hits {
		ch, ok := e.store.GetChunk(hit.ChunkID)
		if !ok {
			continue
		}
		hit.Snippet = makeSnippet(ch.Text, e.cfg.SnippetMaxRunes)
		kept = append(kept, hit)
	}
	hits = kept

	result := &SearchResult{
		Hits:      hits,
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	e.resultCache.Put(normalized, limit, minScore, result)

	applog.Debug("[KB] Search executed",
		"query", normalized,
		"limit", limit,
		"hits", len(hits),
		"elapsed_ms", result.ElapsedMs,
	)
	return result, nil
}

// ── 文档管理 ──────────────────────────────────────────────────

// ListDocuments 按上传时间返回全部文档
func (e *Engine) ListDocuments() []Document {
	return e.store.ListDocuments()
}

// Document 按 id 取文档
func (e *Engine) Document(docID string) (Document, bool) {
	return e.store.GetDocument(docID)
}

// DeleteDocument 删除文档及其全部分块（存储与索引一并清理），
// 并使全部检索结果缓存失效。
func (e *Engine) DeleteDocument(docID string) error {
	chunkIDs, ok := e.store.DeleteDocument(docID)
	if !ok {
		return ErrDocumentNotFound
	}
	for _, id := range chunkIDs {
		e.index.Remove(id)
	}
	e.resultCache.InvalidateAll()

	applog.Info("[KB] Document deleted", "doc_id", docID, "chunks_removed", len(chunkIDs))
	return nil
}

// ── 统计 ──────────────────────────────────────────────────────

// Stats 知识库整体统计
func (e *Engine) Stats() Stats {
	docs, chunks := e.store.Counts()
	return Stats{
		DocumentCount:  docs,
		ChunkCount:     chunks,
		IndexDimension: e.index.Dimension(),
		EmbedCache:     e.embedCache.Stats(),
		ResultCache:    e.resultCache.Stats(),
	}
}

// NormalizeQuery 查询归一化：去首尾空白、小写、压缩内部空白。
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func makeSnippet(text string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = 200
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
