package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"kbase/internal/domain/kb"
	applog "kbase/internal/platform/log"

	"github.com/go-chi/chi/v5"
)

// KBHandler 知识库检索与问答 API
type KBHandler struct {
	engine      *kb.Engine
	synthesizer *kb.Synthesizer
	checker     *kb.CompletenessChecker
	parsers     *kb.ParserRegistry
	monitor     *Monitor
}

// NewKBHandler 创建知识库处理器
func NewKBHandler(engine *kb.Engine, synthesizer *kb.Synthesizer, checker *kb.CompletenessChecker, parsers *kb.ParserRegistry, monitor *Monitor) *KBHandler {
	return &KBHandler{
		engine:      engine,
		synthesizer: synthesizer,
		checker:     checker,
		parsers:     parsers,
		monitor:     monitor,
	}
}

// RegisterRoutes 注册知识库路由；入库接口单独限流
func (h *KBHandler) RegisterRoutes(r chi.Router, ingestMW, generalMW func(http.Handler) http.Handler) {
	// 文档入库（写路径，限额更严格）
	r.Group(func(r chi.Router) {
		r.Use(ingestMW)
		r.Post("/upload", h.Upload)
		r.Post("/documents", h.IngestText)
	})

	r.Group(func(r chi.Router) {
		r.Use(generalMW)

		// 文档管理
		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{id}", h.GetDocument)
		r.Delete("/documents/{id}", h.DeleteDocument)

		// 检索与问答
		r.Post("/search", h.Search)
		r.Post("/ask", h.Ask)

		// 运行状态
		r.Get("/stats", h.Stats)
		r.Get("/coverage", h.Coverage)
		r.Get("/coverage/questions", h.SuggestedQuestions)
	})
}

// --- 文档入库 ---

type ingestTextRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// IngestText 纯文本入库
func (h *KBHandler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Filename == "" {
		req.Filename = "untitled.txt"
	}

	start := time.Now()

	result, err := h.engine.Ingest(r.Context(), req.Filename, req.Content)
	if err != nil {
		applog.Error("[KB] Ingest failed", "filename", req.Filename, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document_id": result.DocumentID,
		"chunk_count": result.ChunkCount,
		"status":      result.Status,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

// Upload 文件上传入库（multipart/form-data）
func (h *KBHandler) Upload(w http.ResponseWriter, r *http.Request) {
	limitBytes := int64(h.engine.Config().MaxDocumentBytes)

	// 解析 multipart，超限直接拒绝
	r.Body = http.MaxBytesReader(w, r.Body, limitBytes+1024)
	if err := r.ParseMultipartForm(limitBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > 0 && header.Size > limitBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file size exceeds limit (%d bytes)", limitBytes))
		return
	}

	filename := header.Filename
	parser, err := h.parsers.Get(filename)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported file type: %s (supported: %s)", filepath.Ext(filename), h.parsers.SupportedTypes()))
		return
	}

	text, err := parser.Parse(file, filename)
	if err != nil {
		applog.Error("[KB] File parse failed", "filename", filename, "error", err)
		writeDomainError(w, err)
		return
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "no text content extracted from file")
		return
	}

	start := time.Now()

	result, err := h.engine.Ingest(r.Context(), filename, text)
	if err != nil {
		applog.Error("[KB] Ingest failed", "filename", filename, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document_id": result.DocumentID,
		"chunk_count": result.ChunkCount,
		"status":      result.Status,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
}

// --- 文档管理 ---

func (h *KBHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ListDocuments())
}

func (h *KBHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, ok := h.engine.Document(id)
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *KBHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.DeleteDocument(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- 检索与问答 ---

type searchRequest struct {
	Query    string  `json:"query"`
	Limit    int     `json:"limit,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

func (h *KBHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.engine.Search(r.Context(), req.Query, req.Limit, req.MinScore)
	if err != nil {
		applog.Error("[KB] Search failed", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *KBHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := h.synthesizer.Answer(r.Context(), req.Question)
	if err != nil {
		applog.Error("[KB] Answer failed", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- 运行状态 ---

// Stats 知识库与请求指标合并输出
func (h *KBHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"knowledge_base": h.engine.Stats(),
		"requests":       h.monitor.Snapshot(),
	})
}

func (h *KBHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.checker.AnalyzeCoverage())
}

func (h *KBHandler) SuggestedQuestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"questions": h.checker.SuggestQuestions(5),
	})
}
