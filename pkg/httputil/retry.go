// Package httputil holds the retry policy shared by the outbound HTTP clients:
// the GitHub client, the registry sources and the skillgarden API client.
package httputil

import (
	"context"
	"fmt"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jingkaihe/skillgarden/pkg/config"
	"github.com/jingkaihe/skillgarden/pkg/logger"
)

// StatusError is returned when a server answers with an unexpected status
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: unexpected status %d: %s", method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", method, e.URL, e.StatusCode)
}

// IsRetryable reports whether err is worth another attempt: transport
// failures and 5xx answers are, cancellation and other statuses are not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

type retryOptions struct {
	retryIf func(error) bool
	fields  logrus.Fields
}

// RetryOption configures Retry
type RetryOption func(*retryOptions)

// WithRetryIf replaces IsRetryable as the retry predicate
func WithRetryIf(fn func(error) bool) RetryOption {
	return func(o *retryOptions) {
		o.retryIf = fn
	}
}

// WithLogFields adds fields to the debug line logged before each retry
func WithLogFields(fields logrus.Fields) RetryOption {
	return func(o *retryOptions) {
		o.fields = fields
	}
}

// Retry runs fn under cfg. A config with at most one attempt calls fn once.
// Only the last error is returned.
func Retry(ctx context.Context, cfg config.RetryConfig, operation string, fn func() error, opts ...RetryOption) error {
	if cfg.Attempts <= 1 {
		return fn()
	}

	o := retryOptions{retryIf: IsRetryable}
	for _, opt := range opts {
		opt(&o)
	}

	delayType := retry.BackOffDelay
	if cfg.BackoffType == "fixed" {
		delayType = retry.FixedDelay
	}

	return retry.Do(
		fn,
		retry.RetryIf(o.retryIf),
		retry.Attempts(uint(cfg.Attempts)),
		retry.Delay(cfg.InitialDelay),
		retry.DelayType(delayType),
		retry.MaxDelay(cfg.MaxDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithFields(o.fields).WithError(err).
				WithField("attempt", n+1).
				WithField("max_attempts", cfg.Attempts).
				Debugf("retrying %s", operation)
		}),
	)
}

// Unrecoverable marks err so that Retry stops immediately
func Unrecoverable(err error) error {
	return retry.Unrecoverable(err)
}
