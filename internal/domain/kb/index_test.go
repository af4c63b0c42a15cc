package kb_test

import (
	"fmt"
	"math"
	"testing"

	"kbase/internal/domain/kb"
)

func mustAdd(t *testing.T, x *kb.VectorIndex, chunkID, docID string, v []float32) {
	t.Helper()
	if err := x.Add(chunkID, docID, v); err != nil {
		t.Fatalf("add %s failed: %v", chunkID, err)
	}
}

// TestIndexSelfSimilarity 向量与自身的余弦相似度为 1
func TestIndexSelfSimilarity(t *testing.T) {
	x := kb.NewVectorIndex()
	v := []float32{0.3, 0.5, 0.8}
	mustAdd(t, x, "c1", "d1", v)

	hits, err := x.Search(v, 10, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if math.Abs(hits[0].Score-1.0) > 1e-9 {
		t.Errorf("self similarity should be 1.0, got %v", hits[0].Score)
	}
}

// TestIndexOrderingAndLimit 结果分数降序，limit 截断
func TestIndexOrderingAndLimit(t *testing.T) {
	x := kb.NewVectorIndex()
	mustAdd(t, x, "far", "d1", []float32{0, 1, 0})
	mustAdd(t, x, "near", "d1", []float32{1, 0.1, 0})
	mustAdd(t, x, "exact", "d1", []float32{1, 0, 0})

	hits, err := x.Search([]float32{1, 0, 0}, 2, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected limit=2 to truncate, got %d hits", len(hits))
	}
	if hits[0].ChunkID != "exact" || hits[1].ChunkID != "near" {
		t.Errorf("unexpected order: %v, %v", hits[0].ChunkID, hits[1].ChunkID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

// TestIndexMinScoreFilter 低于阈值的命中被过滤
func TestIndexMinScoreFilter(t *testing.T) {
	x := kb.NewVectorIndex()
	mustAdd(t, x, "orthogonal", "d1", []float32{0, 1})
	mustAdd(t, x, "aligned", "d1", []float32{1, 0})

	hits, err := x.Search([]float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ChunkID != "aligned" {
		t.Errorf("expected only aligned hit, got %v", hits)
	}
}

// TestIndexTieBreakByChunkID 同分命中按 ChunkID 升序，结果完全确定
func TestIndexTieBreakByChunkID(t *testing.T) {
	x := kb.NewVectorIndex()
	// 倒序插入，验证排序与插入顺序无关
	for _, id := range []string{"c3", "c1", "c2"} {
		mustAdd(t, x, id, "d1", []float32{1, 0})
	}

	for i := 0; i < 5; i++ {
		hits, err := x.Search([]float32{1, 0}, 10, 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(hits) != 3 {
			t.Fatalf("expected 3 hits, got %d", len(hits))
		}
		if hits[0].ChunkID != "c1" || hits[1].ChunkID != "c2" || hits[2].ChunkID != "c3" {
			t.Fatalf("tie break not deterministic: %v %v %v", hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID)
		}
	}
}

// TestIndexZeroVector 零向量相似度定义为 0，不出现除零
func TestIndexZeroVector(t *testing.T) {
	x := kb.NewVectorIndex()
	mustAdd(t, x, "zero", "d1", []float32{0, 0, 0})
	mustAdd(t, x, "normal", "d1", []float32{1, 0, 0})

	hits, err := x.Search([]float32{1, 0, 0}, 10, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[1].ChunkID != "zero" || hits[1].Score != 0 {
		t.Errorf("zero vector should score 0, got %v", hits[1])
	}

	// 查询向量为零时全部得分为 0
	hits, err = x.Search([]float32{0, 0, 0}, 10, 0)
	if err != nil {
		t.Fatalf("zero query search failed: %v", err)
	}
	for _, h := range hits {
		if h.Score != 0 {
			t.Errorf("zero query should score 0 everywhere, got %v", h)
		}
	}
}

// TestIndexDimensionMismatch 维度不一致的插入与查询都必须拒绝
func TestIndexDimensionMismatch(t *testing.T) {
	x := kb.NewVectorIndex()
	mustAdd(t, x, "c1", "d1", []float32{1, 0, 0})

	if err := x.Add("c2", "d1", []float32{1, 0}); err == nil {
		t.Error("expected dimension mismatch on add")
	} else if kb.KindOf(err) != kb.KindConsistency {
		t.Errorf("expected consistency kind, got %v", kb.KindOf(err))
	}

	if _, err := x.Search([]float32{1, 0}, 10, 0); err == nil {
		t.Error("expected dimension mismatch on search")
	}
}

// TestIndexAddBatchAtomic 批量插入任何一条非法则整批不落地
func TestIndexAddBatchAtomic(t *testing.T) {
	x := kb.NewVectorIndex()
	chunks := []kb.Chunk{
		{ID: "c1", DocumentID: "d1", Embedding: []float32{1, 0}},
		{ID: "c2", DocumentID: "d1", Embedding: []float32{1, 0, 0}}, // 维度不一致
	}

	if err := x.AddBatch(chunks); err == nil {
		t.Fatal("expected batch to fail")
	}
	if x.Count() != 0 {
		t.Errorf("failed batch must not leave partial state, count=%d", x.Count())
	}
}

// TestIndexRemove 删除后立即检索不可见，重复删除为 no-op
func TestIndexRemove(t *testing.T) {
	x := kb.NewVectorIndex()
	for i := 0; i < 5; i++ {
		mustAdd(t, x, fmt.Sprintf("c%d", i), "d1", []float32{float32(i + 1), 1})
	}

	x.Remove("c2")
	x.Remove("c2") // 幂等
	x.Remove("missing")

	if x.Count() != 4 {
		t.Fatalf("expected 4 vectors after remove, got %d", x.Count())
	}

	hits, err := x.Search([]float32{1, 1}, 10, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	for _, h := range hits {
		if h.ChunkID == "c2" {
			t.Error("removed vector still visible in search")
		}
	}
}

// TestIndexOverwrite 相同 chunkID 重复插入是覆盖而非追加
func TestIndexOverwrite(t *testing.T) {
	x := kb.NewVectorIndex()
	mustAdd(t, x, "c1", "d1", []float32{1, 0})
	mustAdd(t, x, "c1", "d2", []float32{0, 1})

	if x.Count() != 1 {
		t.Fatalf("expected overwrite to keep count 1, got %d", x.Count())
	}

	hits, err := x.Search([]float32{0, 1}, 1, 0)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "d2" || math.Abs(hits[0].Score-1.0) > 1e-9 {
		t.Errorf("overwrite not effective: %+v", hits)
	}
}

// TestIndexEmptySearch 空索引检索返回空结果而非错误
func TestIndexEmptySearch(t *testing.T) {
	x := kb.NewVectorIndex()
	hits, err := x.Search([]float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("empty index search should not fail: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}
