package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"kbassist/internal/contextutil"
)

// RetryPolicy bounds provider calls with a per-attempt timeout and retries
// transient failures with exponential backoff.
type RetryPolicy struct {
	Timeout    time.Duration // Per attempt; 0 disables the timeout
	MaxRetries int           // Retries after the first attempt

	newBackOff func() backoff.BackOff
}

// NewRetryPolicy creates a policy with exponential backoff between attempts.
func NewRetryPolicy(timeout time.Duration, maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		Timeout:    timeout,
		MaxRetries: maxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Embedder wraps e so every call goes through the policy.
func (p *RetryPolicy) Embedder(e Embedder) Embedder {
	return &retryingEmbedder{inner: e, policy: p}
}

// ChatModel wraps m so every call goes through the policy.
func (p *RetryPolicy) ChatModel(m ChatModel) ChatModel {
	return &retryingChatModel{inner: m, policy: p}
}

type retryingEmbedder struct {
	inner  Embedder
	policy *RetryPolicy
}

func (r *retryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return retry(ctx, r.policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedTexts(ctx, texts)
	})
}

type retryingChatModel struct {
	inner  ChatModel
	policy *RetryPolicy
}

func (r *retryingChatModel) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	return retry(ctx, r.policy, "chat", func(ctx context.Context) (string, error) {
		return r.inner.ChatWithMessages(ctx, messages, params)
	})
}

// retry runs fn until it succeeds, fails permanently, or the retries are spent.
func retry[T any](ctx context.Context, p *RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var result T
	attempt := func() error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}

		res, err := fn(attemptCtx)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	var b backoff.BackOff = p.newBackOff()
	if p.MaxRetries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	}
	b = backoff.WithContext(b, ctx)

	notify := func(err error, wait time.Duration) {
		logger.WarnContext(ctx, "provider call failed, retrying", "op", op, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(attempt, b, notify); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// retryable reports whether err may succeed on another attempt.
// Client errors (4xx) other than 429 are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		if code == http.StatusTooManyRequests {
			return true
		}
		return code < 400 || code >= 500
	}
	return true
}
