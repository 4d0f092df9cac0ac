package specialist

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

const defaultRetryBaseDelay = 500 * time.Millisecond

// RetryPolicy bounds the retries of a model call. Only ErrModelInvoke
// failures are retried; schema violations and validation errors are final.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func (p RetryPolicy) do(ctx context.Context, op string, f func(context.Context) error) error {
	if p.MaxRetries == 0 {
		return f(ctx)
	}
	base := p.BaseDelay
	if base <= 0 {
		base = defaultRetryBaseDelay
	}
	backoff := retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := f(ctx)
		if err == nil || !errors.Is(err, contractx.ErrModelInvoke) {
			return err
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("model call failed, retrying")
		return retry.RetryableError(err)
	})
}

type retryingClassifier struct {
	next   contractx.Classifier
	policy RetryPolicy
}

// WithClassifierRetry wraps c so failed model invocations are retried.
func WithClassifierRetry(c contractx.Classifier, policy RetryPolicy) contractx.Classifier {
	if c == nil || policy.MaxRetries == 0 {
		return c
	}
	return &retryingClassifier{next: c, policy: policy}
}

func (r *retryingClassifier) Classify(ctx context.Context, req contractx.ClassifyRequest) (contractx.Classification, error) {
	var out contractx.Classification
	err := r.policy.do(ctx, "classify", func(ctx context.Context) error {
		var err error
		out, err = r.next.Classify(ctx, req)
		return err
	})
	return out, err
}

type retryingHandler struct {
	next   contractx.Handler
	policy RetryPolicy
}

// WithHandlerRetry wraps h so failed model invocations are retried. Only
// the generation step is wrapped; tool execution never is.
func WithHandlerRetry(h contractx.Handler, policy RetryPolicy) contractx.Handler {
	if h == nil || policy.MaxRetries == 0 {
		return h
	}
	return &retryingHandler{next: h, policy: policy}
}

func (r *retryingHandler) Respond(ctx context.Context, req contractx.HandlerRequest) (contractx.HandlerResponse, error) {
	var out contractx.HandlerResponse
	err := r.policy.do(ctx, "respond."+string(req.Category), func(ctx context.Context) error {
		var err error
		out, err = r.next.Respond(ctx, req)
		return err
	})
	return out, err
}
