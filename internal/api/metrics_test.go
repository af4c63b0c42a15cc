package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// TestMonitorRecordAndSnapshot 计数、错误率与平均延迟
func TestMonitorRecordAndSnapshot(t *testing.T) {
	m := NewMonitor()

	m.Record("POST /search", 10*time.Millisecond, 200)
	m.Record("POST /search", 30*time.Millisecond, 200)
	m.Record("POST /search", 20*time.Millisecond, 500)
	m.Record("GET /stats", 5*time.Millisecond, 200)

	snap := m.Snapshot()
	if snap.TotalRequests != 4 {
		t.Errorf("expected 4 requests, got %d", snap.TotalRequests)
	}
	if snap.RequestsByRoute["POST /search"] != 3 {
		t.Errorf("expected 3 search requests, got %d", snap.RequestsByRoute["POST /search"])
	}
	if snap.ErrorsByRoute["POST /search"] != 1 {
		t.Errorf("expected 1 search error, got %d", snap.ErrorsByRoute["POST /search"])
	}
	if snap.ErrorRate != 0.25 {
		t.Errorf("expected error rate 0.25, got %v", snap.ErrorRate)
	}
	if avg := snap.AvgLatencyMs["POST /search"]; avg != 20 {
		t.Errorf("expected avg latency 20ms, got %v", avg)
	}
}

// TestMonitorLatencyWindow 延迟样本只保留最近 maxLatencySamples 条
func TestMonitorLatencyWindow(t *testing.T) {
	m := NewMonitor()

	for i := 0; i < maxLatencySamples; i++ {
		m.Record("GET /x", 100*time.Millisecond, 200)
	}
	// 再灌入一整窗低延迟样本，旧样本应被完全挤出
	for i := 0; i < maxLatencySamples; i++ {
		m.Record("GET /x", 1*time.Millisecond, 200)
	}

	snap := m.Snapshot()
	if avg := snap.AvgLatencyMs["GET /x"]; avg != 1 {
		t.Errorf("expected rolling window to drop old samples, avg=%v", avg)
	}
	if snap.RequestsByRoute["GET /x"] != int64(2*maxLatencySamples) {
		t.Errorf("request counter must not be windowed, got %d", snap.RequestsByRoute["GET /x"])
	}
}

// TestMonitorRouteCardinality 指标按路由模板归组，
// 不同文档 ID 落入同一桶，未命中路由进入 unmatched 桶。
func TestMonitorRouteCardinality(t *testing.T) {
	m := NewMonitor()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Delete("/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/documents/doc-%d", i), nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	req := httptest.NewRequest(http.MethodGet, "/no/such/route", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	snap := m.Snapshot()
	if len(snap.RequestsByRoute) != 2 {
		t.Fatalf("expected 2 route buckets, got %d: %v", len(snap.RequestsByRoute), snap.RequestsByRoute)
	}
	if snap.RequestsByRoute["DELETE /documents/{id}"] != 5 {
		t.Errorf("expected 5 requests in pattern bucket, got %d", snap.RequestsByRoute["DELETE /documents/{id}"])
	}
	if snap.RequestsByRoute["GET unmatched"] != 1 {
		t.Errorf("expected 404 path in unmatched bucket, got %v", snap.RequestsByRoute)
	}
}

// TestClientLimiterIsolation 不同客户端互不影响配额
func TestClientLimiterIsolation(t *testing.T) {
	l := newClientLimiter(2, false)

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("1.1.1.1") {
		t.Error("third request should be limited")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("other client must have its own budget")
	}
}

// TestClientIPProxyTrust 默认忽略 X-Forwarded-For，
// 伪造该头不能为同一连接制造新的限流身份；开启信任后只取链首地址。
func TestClientIPProxyTrust(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:4567"
	req.Header.Set("X-Forwarded-For", "6.6.6.6, 7.7.7.7")

	if ip := clientIP(req, false); ip != "10.0.0.7" {
		t.Errorf("untrusted mode must use connection address, got %q", ip)
	}
	if ip := clientIP(req, true); ip != "6.6.6.6" {
		t.Errorf("trusted mode must take first forwarded address only, got %q", ip)
	}

	// 未开启信任时变换头值不应产生新身份
	l := newClientLimiter(2, false)
	for i := 0; i < 2; i++ {
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("6.6.6.%d", i))
		if !l.Allow(clientIP(req, l.trustProxy)) {
			t.Fatalf("request %d should pass", i)
		}
	}
	req.Header.Set("X-Forwarded-For", "6.6.6.99")
	if l.Allow(clientIP(req, l.trustProxy)) {
		t.Error("spoofed forwarded header must not reset the quota")
	}
}
