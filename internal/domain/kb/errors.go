package kb

import (
	"errors"
	"fmt"
)

// Kind 领域错误分类，API 层据此映射 HTTP 状态码。
type Kind string

const (
	// KindInput 请求本身非法（空文本、超限、坏参数），不重试
	KindInput Kind = "input"
	// KindRetriable 外部服务瞬时失败（超时、限流），可重试
	KindRetriable Kind = "service_retriable"
	// KindFatal 外部服务永久失败（鉴权、非法请求），不重试
	KindFatal Kind = "service_fatal"
	// KindUnavailable 重试耗尽或熔断开启后的最终失败
	KindUnavailable Kind = "service_unavailable"
	// KindConsistency 数据一致性错误（维度不匹配、孤儿分块），对受影响文档致命
	KindConsistency Kind = "consistency"
	// KindNotFound 目标资源不存在
	KindNotFound Kind = "not_found"
	// KindInternal 未分类内部错误
	KindInternal Kind = "internal"
)

// Error 知识库领域错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// E 构造领域错误
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Ef 构造带格式化消息的领域错误
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf 提取错误分类，非领域错误归为 internal。
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsRetriable 判断错误是否值得重试
func IsRetriable(err error) bool {
	return KindOf(err) == KindRetriable
}

var (
	// ErrEmptyInput 输入为空或全空白
	ErrEmptyInput = E(KindInput, "text is empty or whitespace-only", nil)

	// ErrEmptyQuery 查询为空
	ErrEmptyQuery = E(KindInput, "query is empty", nil)

	// ErrDocumentNotFound 文档不存在
	ErrDocumentNotFound = E(KindNotFound, "document not found", nil)

	// ErrInsufficientContext 检索结果均未达到最低相关度阈值。
	// 上层将其降级为低置信度回答，不作为硬失败向外传播。
	ErrInsufficientContext = E(KindInternal, "no retrieved chunk clears the relevance threshold", nil)
)

// NewDimensionMismatch 构造维度不匹配错误
func NewDimensionMismatch(want, got int) *Error {
	return Ef(KindConsistency, "embedding dimension mismatch: want %d, got %d", want, got)
}
