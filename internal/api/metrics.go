package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxLatencySamples 每个路由保留的最近延迟样本数
const maxLatencySamples = 100

// Monitor 请求指标采集：每路由的调用次数、错误次数与滚动平均延迟。
type Monitor struct {
	mu        sync.Mutex
	startedAt time.Time
	requests  map[string]int64
	errors    map[string]int64
	latencies map[string][]float64 // 毫秒，环形截断
}

// NewMonitor 创建指标采集器
func NewMonitor() *Monitor {
	return &Monitor{
		startedAt: time.Now(),
		requests:  make(map[string]int64),
		errors:    make(map[string]int64),
		latencies: make(map[string][]float64),
	}
}

// Record 记录一次请求
func (m *Monitor) Record(route string, elapsed time.Duration, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests[route]++
	if status >= 400 {
		m.errors[route]++
	}

	samples := append(m.latencies[route], float64(elapsed.Milliseconds()))
	if len(samples) > maxLatencySamples {
		samples = samples[len(samples)-maxLatencySamples:]
	}
	m.latencies[route] = samples
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	UptimeSeconds   int64              `json:"uptime_seconds"`
	TotalRequests   int64              `json:"total_requests"`
	RequestsByRoute map[string]int64   `json:"requests_by_route"`
	ErrorsByRoute   map[string]int64   `json:"errors_by_route"`
	AvgLatencyMs    map[string]float64 `json:"avg_latency_ms"`
	ErrorRate       float64            `json:"error_rate"`
}

// Snapshot 导出当前指标
func (m *Monitor) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		UptimeSeconds:   int64(time.Since(m.startedAt).Seconds()),
		RequestsByRoute: make(map[string]int64, len(m.requests)),
		ErrorsByRoute:   make(map[string]int64, len(m.errors)),
		AvgLatencyMs:    make(map[string]float64, len(m.latencies)),
	}

	var totalErrors int64
	for route, n := range m.requests {
		snap.RequestsByRoute[route] = n
		snap.TotalRequests += n
	}
	for route, n := range m.errors {
		snap.ErrorsByRoute[route] = n
		totalErrors += n
	}
	for route, samples := range m.latencies {
		if len(samples) == 0 {
			continue
		}
		var sum float64
		for _, v := range samples {
			sum += v
		}
		snap.AvgLatencyMs[route] = sum / float64(len(samples))
	}
	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalRequests)
	}
	return snap
}

// statusRecorder 捕获下游写入的状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware 指标采集中间件，route 以 method + 路由模板归组。
// 使用路由模板而非原始 path，避免按文档 ID 等任意路径无限扩张指标表。
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		// 路由模板在 ServeHTTP 之后才被 chi 填充
		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				pattern = p
			}
		}
		m.Record(r.Method+" "+pattern, time.Since(start), rec.status)
	})
}
