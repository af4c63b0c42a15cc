package kb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "kbase/internal/platform/log"
)

// resultEntry 缓存条目
type resultEntry struct {
	result    SearchResult
	createdAt time.Time
}

// ResultCache 检索结果缓存。key 必须含 limit 和 minScore：
// 缓存过的 3 条结果不能拿来应付 10 条的请求。
// 索引任何变更都整体失效——宁可 miss，也不能返回引用已删分块的陈旧列表。
type ResultCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]resultEntry

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache 创建检索结果缓存
func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ResultCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]resultEntry),
	}
}

// Get 查缓存。过期条目在此处惰性淘汰。
func (c *ResultCache) Get(normalizedQuery string, limit int, minScore float64) (*SearchResult, bool) {
	key := resultCacheKey(normalizedQuery, limit, minScore)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.now().Sub(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	result := entry.result
	result.Hits = append([]SearchHit(nil), entry.result.Hits...)
	return &result, true
}

// Put 写入缓存
func (c *ResultCache) Put(normalizedQuery string, limit int, minScore float64, result *SearchResult) {
	if result == nil {
		return
	}
	key := resultCacheKey(normalizedQuery, limit, minScore)

	stored := *result
	stored.Hits = append([]SearchHit(nil), result.Hits...)

	c.mu.Lock()
	c.entries[key] = resultEntry{result: stored, createdAt: c.now()}
	c.mu.Unlock()
}

// InvalidateAll 清空全部条目。索引的 add/remove 都会触发。
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]resultEntry)
	c.mu.Unlock()

	if n > 0 {
		applog.Debug("[KB/ResultCache] Invalidated", "entries_dropped", n)
	}
}

// Stats 缓存统计
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	return CacheStats{
		Entries: entries,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

// resultCacheKey key = hash(query | limit | minScore)
func resultCacheKey(query string, limit int, minScore float64) string {
	raw := fmt.Sprintf("%s|%d|%.6f", query, limit, minScore)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:12])
}
