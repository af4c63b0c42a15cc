package kb

import (
	"context"
	"testing"
	"time"
)

func internalTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.RetryInterval = time.Millisecond
	cfg.ExternalTimeout = time.Second
	return cfg
}

// seedChunk 直接向存储与索引写入一条分块，绕过 Ingest 的嵌入流程。
func seedChunk(t *testing.T, e *Engine, docID, chunkID, text string, vector []float32) {
	t.Helper()
	e.store.PutDocument(Document{ID: docID, Filename: docID + ".txt", UploadedAt: time.Now()})
	e.store.CommitChunks(docID, []Chunk{{
		ID:         chunkID,
		DocumentID: docID,
		Text:       text,
		Embedding:  vector,
	}})
	if err := e.index.Add(chunkID, docID, vector); err != nil {
		t.Fatalf("index add: %v", err)
	}
}

// TestSearchDropsOrphanedIndexEntries 删除过程中存储先清空、索引项尚存的
// 窗口内，检索不得返回指向已删除文档的命中。
func TestSearchDropsOrphanedIndexEntries(t *testing.T) {
	e := NewEngine(internalTestConfig(), &stubEmbedder{})
	ctx := context.Background()

	res, err := e.Ingest(ctx, "notes.txt", "golang concurrency model")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// 只清掉存储侧，索引项保留，模拟删除中途的瞬时状态
	if _, ok := e.store.DeleteDocument(res.DocumentID); !ok {
		t.Fatal("store delete should succeed")
	}
	if e.index.Count() == 0 {
		t.Fatal("index entries must still be present for this scenario")
	}

	out, err := e.Search(ctx, "golang concurrency model", 5, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, hit := range out.Hits {
		t.Errorf("hit references deleted document: %+v", hit)
	}
}

// TestSearchAppliesConfiguredMinScore 请求未给出阈值时使用配置里的
// 最低相似度，而不是放行全部命中。
func TestSearchAppliesConfiguredMinScore(t *testing.T) {
	cfg := internalTestConfig()
	cfg.MinScore = 0.5
	e := NewEngine(cfg, &stubEmbedder{})
	ctx := context.Background()

	queryVec := stubVector("q") // 与 Search 内部嵌入 "q" 得到的向量一致
	seedChunk(t, e, "doc-par", "chunk-par", "parallel text", queryVec)
	seedChunk(t, e, "doc-orth", "chunk-orth", "orthogonal text", []float32{1, -queryVec[0], 0})

	out, err := e.Search(ctx, "q", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out.Hits) != 1 || out.Hits[0].ChunkID != "chunk-par" {
		t.Fatalf("expected only the high-score hit, got %+v", out.Hits)
	}

	// 配置阈值为零时两条都应返回
	open := NewEngine(internalTestConfig(), &stubEmbedder{})
	seedChunk(t, open, "doc-par", "chunk-par", "parallel text", queryVec)
	seedChunk(t, open, "doc-orth", "chunk-orth", "orthogonal text", []float32{1, -queryVec[0], 0})

	out, err = open.Search(ctx, "q", 10, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(out.Hits) != 2 {
		t.Fatalf("expected both hits with zero threshold, got %+v", out.Hits)
	}
}
