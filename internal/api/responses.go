package api

import (
	"encoding/json"
	"net/http"

	"kbase/internal/domain/kb"
)

// APIResponse 统一 JSON 响应
type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&APIResponse{
		Code:    status,
		Message: message,
	})
}

// writeDomainError 按领域错误分类映射 HTTP 状态码，不泄漏内部结构。
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch kb.KindOf(err) {
	case kb.KindInput:
		status = http.StatusBadRequest
	case kb.KindNotFound:
		status = http.StatusNotFound
	case kb.KindRetriable, kb.KindUnavailable:
		status = http.StatusServiceUnavailable
	case kb.KindFatal:
		status = http.StatusBadGateway
	case kb.KindConsistency:
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err.Error())
}
