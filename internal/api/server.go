package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kbase/internal/domain/kb"
	applog "kbase/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RatePerMinute   int  // 普通接口每客户端每分钟限额
	UploadPerMinute int  // 上传接口限额（更严格）
	TrustProxy      bool // 仅在前置可信反向代理时开启 X-Forwarded-For
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    120 * time.Second, // 问答接口依赖外部补全，写超时要宽
		RatePerMinute:   120,
		UploadPerMinute: 20,
	}
}

// Server HTTP 服务器
type Server struct {
	config      *ServerConfig
	engine      *kb.Engine
	synthesizer *kb.Synthesizer
	checker     *kb.CompletenessChecker
	parsers     *kb.ParserRegistry
	monitor     *Monitor
	httpSrv     *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, engine *kb.Engine, synthesizer *kb.Synthesizer) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:      config,
		engine:      engine,
		synthesizer: synthesizer,
		checker:     kb.NewCompletenessChecker(engine),
		parsers:     kb.NewParserRegistry(),
		monitor:     NewMonitor(),
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Knowledge base API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		return s.httpSrv.Shutdown(ctx)
	}
	return nil
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)
	r.Use(s.monitor.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	handler := NewKBHandler(s.engine, s.synthesizer, s.checker, s.parsers, s.monitor)

	generalLimiter := newClientLimiter(s.config.RatePerMinute, s.config.TrustProxy)
	uploadLimiter := newClientLimiter(s.config.UploadPerMinute, s.config.TrustProxy)
	handler.RegisterRoutes(r, uploadLimiter.Middleware, generalLimiter.Middleware)

	return r
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
