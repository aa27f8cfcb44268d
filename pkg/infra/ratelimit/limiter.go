package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NeuralTrust/EdgeShield/pkg/common"
	"github.com/NeuralTrust/EdgeShield/pkg/domain"
	"github.com/NeuralTrust/EdgeShield/pkg/domain/ratelimit"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/breaker"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/cache"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/prometheus"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "ratelimit"

var ErrInvalidWindow = errors.New("rate limit window must be at least 1ms")

type Limiter interface {
	// Admit counts one request against key in the current window. A non-nil
	// error is only returned for fail-closed store failures and invalid input.
	Admit(
		ctx context.Context,
		key ratelimit.Key,
		limit int,
		window time.Duration,
		mode ratelimit.FailMode,
	) (ratelimit.Decision, error)
}

type Opts struct {
	StoreTimeout time.Duration
	TimeProvider func() time.Time
}

type slidingWindowLimiter struct {
	store        cache.CounterStore
	logger       *logrus.Logger
	storeTimeout time.Duration
	timeProvider func() time.Time
}

func NewLimiter(store cache.CounterStore, logger *logrus.Logger, opts *Opts) Limiter {
	l := &slidingWindowLimiter{
		store:        store,
		logger:       logger,
		storeTimeout: common.DefaultStoreTimeout,
		timeProvider: time.Now,
	}
	if opts != nil {
		if opts.StoreTimeout > 0 {
			l.storeTimeout = opts.StoreTimeout
		}
		if opts.TimeProvider != nil {
			l.timeProvider = opts.TimeProvider
		}
	}
	return l
}

func CounterKey(key ratelimit.Key, w ratelimit.Window) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, key.String(), w.Bucket)
}

func (l *slidingWindowLimiter) Admit(
	ctx context.Context,
	key ratelimit.Key,
	limit int,
	window time.Duration,
	mode ratelimit.FailMode,
) (ratelimit.Decision, error) {
	if window < time.Millisecond {
		return ratelimit.Decision{}, ErrInvalidWindow
	}

	w := ratelimit.WindowAt(l.timeProvider(), window)

	if limit <= 0 {
		return ratelimit.Decision{
			Admitted:  false,
			Limit:     0,
			Remaining: 0,
			ResetAt:   w.End,
		}, nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	count, err := l.store.Incr(storeCtx, CounterKey(key, w), w.ExpireAt())
	if err != nil {
		return l.degraded(key, limit, w, mode, err)
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Admitted:  count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   w.End,
	}, nil
}

const (
	CauseBreakerOpen = "breaker_open"
	CauseStoreError  = "store_error"
)

// StoreErrorCause tells a call refused by the store breaker apart from one
// that reached the store and failed.
func StoreErrorCause(err error) string {
	if breaker.IsOpen(err) {
		return CauseBreakerOpen
	}
	return CauseStoreError
}

func (l *slidingWindowLimiter) degraded(
	key ratelimit.Key,
	limit int,
	w ratelimit.Window,
	mode ratelimit.FailMode,
	cause error,
) (ratelimit.Decision, error) {
	if mode != ratelimit.FailOpen {
		mode = ratelimit.FailClosed
	}
	reason := StoreErrorCause(cause)
	prometheus.RateLimitStoreErrors.WithLabelValues(string(mode), reason).Inc()
	l.logger.WithFields(logrus.Fields{
		"key":       key.String(),
		"fail_mode": mode,
		"cause":     reason,
		"error":     cause.Error(),
	}).Warn("counter store unavailable")

	decision := ratelimit.Decision{
		Limit:    limit,
		ResetAt:  w.End,
		Degraded: true,
	}
	if mode == ratelimit.FailOpen {
		decision.Admitted = true
		decision.Remaining = limit
		return decision, nil
	}
	return decision, domain.NewShieldError(domain.KindStoreUnreachable, "rate limit counter store unreachable", cause)
}
