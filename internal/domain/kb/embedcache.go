package kb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	applog "kbase/internal/platform/log"
)

// embedEntry 缓存条目。key 为内容哈希，文本变了 key 就变，不存在脏命中。
type embedEntry struct {
	vector    []float32
	createdAt time.Time
}

// embedFlight 在途计算的 promise。并发的相同 miss 等待首个调用的结果，
// 而不是各自发起外部请求。
type embedFlight struct {
	done   chan struct{}
	vector []float32
	err    error
}

// EmbeddingCache 向量缓存。内容哈希做 key，TTL 过期在查询时惰性淘汰，
// 容量由 LRU 封顶。对调用方而言批量命中/未命中的交错完全透明。
type EmbeddingCache struct {
	embedder Embedder
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries *lru.Cache[string, embedEntry]
	flights map[string]*embedFlight

	hits   atomic.Int64
	misses atomic.Int64
}

// NewEmbeddingCache 创建向量缓存
func NewEmbeddingCache(embedder Embedder, ttl time.Duration, size int) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if size <= 0 {
		size = 10000
	}
	entries, _ := lru.New[string, embedEntry](size)
	return &EmbeddingCache{
		embedder: embedder,
		ttl:      ttl,
		now:      time.Now,
		entries:  entries,
		flights:  make(map[string]*embedFlight),
	}
}

// Dims 返回底层 Embedder 的向量维度
func (c *EmbeddingCache) Dims() int {
	return c.embedder.Dims()
}

// GetOrCompute 返回与输入一一对应的向量序列。
// 命中的直接取缓存，未命中的合并成批转发给 Embedder，结果按原始顺序交错合并。
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))

	var (
		leaderKeys  []string
		leaderTexts []string
		leaderIdx   = make(map[string][]int) // key -> 本次请求中的位置
		followIdx   = make(map[string][]int)
		follows     = make(map[string]*embedFlight)
	)

	c.mu.Lock()
	for i, text := range texts {
		key := hashText(text)

		if entry, ok := c.entries.Get(key); ok {
			if c.now().Sub(entry.createdAt) <= c.ttl {
				result[i] = entry.vector
				c.hits.Add(1)
				continue
			}
			// 过期条目查询时惰性淘汰
			c.entries.Remove(key)
		}
		c.misses.Add(1)

		if flight, inFlight := c.flights[key]; inFlight {
			follows[key] = flight
			followIdx[key] = append(followIdx[key], i)
			continue
		}
		if _, mine := leaderIdx[key]; !mine {
			flight := &embedFlight{done: make(chan struct{})}
			c.flights[key] = flight
			leaderKeys = append(leaderKeys, key)
			leaderTexts = append(leaderTexts, text)
		}
		leaderIdx[key] = append(leaderIdx[key], i)
	}
	c.mu.Unlock()

	if len(leaderKeys) > 0 {
		if err := c.computeBatch(ctx, leaderKeys, leaderTexts, leaderIdx, result); err != nil {
			return nil, err
		}
	}

	// 等待其他请求正在计算的 key
	for key, flight := range follows {
		select {
		case <-flight.done:
		case <-ctx.Done():
			return nil, E(KindRetriable, "embedding wait canceled", ctx.Err())
		}
		if flight.err != nil {
			return nil, flight.err
		}
		for _, i := range followIdx[key] {
			result[i] = flight.vector
		}
	}

	return result, nil
}

// computeBatch 领导方：对本请求独占的 miss 发起一次批量调用，
// 成功后写缓存并兑现所有等待的 promise。失败或超时的批次整体丢弃。
func (c *EmbeddingCache) computeBatch(
	ctx context.Context,
	keys []string,
	texts []string,
	positions map[string][]int,
	result [][]float32,
) error {
	vectors, err := c.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = Ef(KindFatal, "embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}

	c.mu.Lock()
	for bi, key := range keys {
		flight := c.flights[key]
		delete(c.flights, key)
		if flight == nil {
			continue
		}
		if err != nil {
			flight.err = err
		} else {
			flight.vector = vectors[bi]
			c.entries.Add(key, embedEntry{vector: vectors[bi], createdAt: c.now()})
		}
		close(flight.done)
	}
	c.mu.Unlock()

	if err != nil {
		applog.Warn("[KB/EmbedCache] Batch compute failed", "count", len(texts), "error", err)
		return err
	}

	for bi, key := range keys {
		for _, i := range positions[key] {
			result[i] = vectors[bi]
		}
	}
	return nil
}

// Stats 缓存统计
func (c *EmbeddingCache) Stats() CacheStats {
	c.mu.Lock()
	entries := c.entries.Len()
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	return CacheStats{
		Entries: entries,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// hashText 内容哈希做缓存 key
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}
