package kb

import (
	"math"
	"sort"
	"sync"
)

// VectorIndex 内存向量索引。
// ids/docIDs/norms 平行数组 + 扁平 float32 向量存储，相似度计算单次顺序扫描，
// 不走对象引用图。读并发，写（add/remove）与所有读写互斥，
// 保证不会观察到写到一半的向量或不一致的维度。
type VectorIndex struct {
	mu      sync.RWMutex
	dim     int // 首个插入向量固定维度，索引生命周期内不变
	ids     []string
	docIDs  []string
	norms   []float64
	vectors []float32 // 长度 = dim * count
	pos     map[string]int
}

// NewVectorIndex 创建空索引
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{pos: make(map[string]int)}
}

// Add 插入或覆盖一条向量。维度与索引不符返回一致性错误。
func (x *VectorIndex) Add(chunkID, docID string, vector []float32) error {
	if len(vector) == 0 {
		return E(KindInput, "empty vector", nil)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	return x.addLocked(chunkID, docID, vector)
}

// AddBatch 原子地插入一批向量：先整体校验维度，再一次性提交。
// 任何一条不合法则整批不落地，避免半索引状态。
func (x *VectorIndex) AddBatch(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
	}
	for _, ch := range chunks {
		if len(ch.Embedding) != dim || dim == 0 {
			return NewDimensionMismatch(dim, len(ch.Embedding))
		}
	}

	for _, ch := range chunks {
		if err := x.addLocked(ch.ID, ch.DocumentID, ch.Embedding); err != nil {
			return err
		}
	}
	return nil
}

func (x *VectorIndex) addLocked(chunkID, docID string, vector []float32) error {
	if x.dim == 0 {
		x.dim = len(vector)
	}
	if len(vector) != x.dim {
		return NewDimensionMismatch(x.dim, len(vector))
	}

	norm := vectorNorm(vector)

	if i, ok := x.pos[chunkID]; ok {
		copy(x.vectors[i*x.dim:(i+1)*x.dim], vector)
		x.docIDs[i] = docID
		x.norms[i] = norm
		return nil
	}

	x.pos[chunkID] = len(x.ids)
	x.ids = append(x.ids, chunkID)
	x.docIDs = append(x.docIDs, docID)
	x.norms = append(x.norms, norm)
	x.vectors = append(x.vectors, vector...)
	return nil
}

// Remove 删除一条向量，不存在时为 no-op。
// 用末位交换补洞，平行数组保持致密。
func (x *VectorIndex) Remove(chunkID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	i, ok := x.pos[chunkID]
	if !ok {
		return
	}

	last := len(x.ids) - 1
	if i != last {
		x.ids[i] = x.ids[last]
		x.docIDs[i] = x.docIDs[last]
		x.norms[i] = x.norms[last]
		copy(x.vectors[i*x.dim:(i+1)*x.dim], x.vectors[last*x.dim:(last+1)*x.dim])
		x.pos[x.ids[i]] = i
	}

	x.ids = x.ids[:last]
	x.docIDs = x.docIDs[:last]
	x.norms = x.norms[:last]
	x.vectors = x.vectors[:last*x.dim]
	delete(x.pos, chunkID)
}

// Search 对全量向量做一次批量余弦相似度扫描。
// 低于 minScore 的先过滤再按 limit 截断；零向量相似度定义为 0，永不除零。
// 相同 (查询向量, 索引状态) 的结果完全确定：分数降序，同分按 ChunkID 升序。
func (x *VectorIndex) Search(query []float32, limit int, minScore float64) ([]SearchHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.dim == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, NewDimensionMismatch(x.dim, len(query))
	}

	qnorm := vectorNorm(query)

	hits := make([]SearchHit, 0, len(x.ids))
	for i := range x.ids {
		score := 0.0
		if qnorm > 0 && x.norms[i] > 0 {
			base := i * x.dim
			vec := x.vectors[base : base+x.dim]
			var dot float64
			for j := range query {
				dot += float64(query[j]) * float64(vec[j])
			}
			score = dot / (qnorm * x.norms[i])
		}
		if score < minScore {
			continue
		}
		hits = append(hits, SearchHit{
			ChunkID:    x.ids[i],
			DocumentID: x.docIDs[i],
			Score:      score,
		})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ChunkID < hits[b].ChunkID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Count 当前向量条数
func (x *VectorIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.ids)
}

// Dimension 索引维度，空索引为 0
func (x *VectorIndex) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
