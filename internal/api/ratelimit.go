package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter 按客户端 IP 的令牌桶限流，防止滥用并控制外部 API 消耗。
type clientLimiter struct {
	perMinute  int
	trustProxy bool

	mu      sync.Mutex
	clients map[string]*clientEntry
	maxIdle time.Duration
}

type clientEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// newClientLimiter 创建限流器，perMinute 为每客户端每分钟请求上限。
// trustProxy 为 true 时才读取 X-Forwarded-For，仅在前置可信代理时开启。
func newClientLimiter(perMinute int, trustProxy bool) *clientLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &clientLimiter{
		perMinute:  perMinute,
		trustProxy: trustProxy,
		clients:    make(map[string]*clientEntry),
		maxIdle:    10 * time.Minute,
	}
}

// Allow 判断该客户端当前请求是否放行
func (l *clientLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.clients[clientIP]
	if !ok {
		entry = &clientEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.perMinute),
		}
		l.clients[clientIP] = entry
		// 顺带清理久未露面的客户端，映射大小与活跃客户端数同阶
		for ip, e := range l.clients {
			if now.Sub(e.seen) > l.maxIdle {
				delete(l.clients, ip)
			}
		}
	}
	entry.seen = now
	return entry.limiter.Allow()
}

// Middleware 限流中间件
func (l *clientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r, l.trustProxy)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP 提取限流键。未开启代理信任时一律用连接地址，
// 否则客户端任意伪造 X-Forwarded-For 即可绕过限流。
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			// 只取链路最前端的地址
			first, _, _ := strings.Cut(fwd, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
