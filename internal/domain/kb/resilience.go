package kb

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	applog "kbase/internal/platform/log"
)

// newBreaker 外部服务熔断器。连续失败后打开，避免持续打爆已不可用的上游。
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			applog.Warn("[KB/Breaker] State changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// resilientEmbedder 为 Embedder 叠加单次调用超时、瞬时错误指数退避重试与熔断。
// 永久错误直接透传；重试耗尽或熔断打开归为 service_unavailable。
type resilientEmbedder struct {
	inner         Embedder
	breaker       *gobreaker.CircuitBreaker
	timeout       time.Duration
	maxRetries    uint64
	retryInterval time.Duration
}

func newResilientEmbedder(inner Embedder, cfg *Config) *resilientEmbedder {
	return &resilientEmbedder{
		inner:         inner,
		breaker:       newBreaker("embedding"),
		timeout:       cfg.ExternalTimeout,
		maxRetries:    uint64(cfg.MaxRetries),
		retryInterval: cfg.RetryInterval,
	}
}

func (r *resilientEmbedder) Dims() int { return r.inner.Dims() }

func (r *resilientEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return executeWithRetry(ctx, r.breaker, r.timeout, r.maxRetries, r.retryInterval,
		func(callCtx context.Context) ([][]float32, error) {
			return r.inner.Embed(callCtx, texts)
		})
}

// resilientCompleter Completer 的同款封装
type resilientCompleter struct {
	inner         Completer
	breaker       *gobreaker.CircuitBreaker
	timeout       time.Duration
	maxRetries    uint64
	retryInterval time.Duration
}

func newResilientCompleter(inner Completer, cfg *Config) *resilientCompleter {
	return &resilientCompleter{
		inner:         inner,
		breaker:       newBreaker("completion"),
		timeout:       cfg.ExternalTimeout,
		maxRetries:    uint64(cfg.MaxRetries),
		retryInterval: cfg.RetryInterval,
	}
}

func (r *resilientCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return executeWithRetry(ctx, r.breaker, r.timeout, r.maxRetries, r.retryInterval,
		func(callCtx context.Context) (string, error) {
			return r.inner.Complete(callCtx, system, prompt)
		})
}

// executeWithRetry 外部调用的统一执行路径：
// 每次尝试带独立超时；仅瞬时错误重试；调用方取消立即停止。
// 超时或失败的尝试结果整体丢弃，不存在部分提交。
func executeWithRetry[T any](
	ctx context.Context,
	cb *gobreaker.CircuitBreaker,
	timeout time.Duration,
	maxRetries uint64,
	retryInterval time.Duration,
	op func(context.Context) (T, error),
) (T, error) {
	var result T

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInterval
	policy.MaxInterval = 10 * time.Second

	err := backoff.Retry(func() error {
		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		v, err := cb.Execute(func() (interface{}, error) {
			return op(callCtx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(E(KindUnavailable, "circuit breaker open", err))
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			if !IsRetriable(err) {
				return backoff.Permanent(err)
			}
			applog.Debug("[KB/Retry] Transient failure, will retry", "error", err)
			return err
		}

		result = v.(T)
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))

	if err != nil {
		var zero T
		if IsRetriable(err) && !isCanceled(err) {
			return zero, E(KindUnavailable, "retries exhausted", err)
		}
		return zero, err
	}
	return result, nil
}
