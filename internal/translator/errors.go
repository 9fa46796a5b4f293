package translator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"

	"github.com/valpere/cvtran/internal"
)

// APIError is a non-success response from a backend. It unwraps to the
// matching pipeline error so callers can classify it with errors.Is.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: response error %d: %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return classify(e.StatusCode, e.Message)
}

var (
	quotaSignals       = []string{"quota", "resource_exhausted", "insufficient_quota"}
	rateLimitSignals   = []string{"429", "rate limit", "rate_limit", "too many requests"}
	unavailableSignals = []string{"503", "unavailable", "overloaded", "bad gateway", "gateway timeout"}
)

func classify(status int, message string) error {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, quotaSignals):
		return internal.ErrQuotaExceeded
	case status == http.StatusTooManyRequests:
		return internal.ErrRateLimited
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout, status == 529:
		return internal.ErrServiceUnavailable
	}
	return nil
}

// Classify maps err to ErrQuotaExceeded, ErrRateLimited or
// ErrServiceUnavailable, or returns nil when the error carries none of
// those signals.
func Classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	for _, target := range []error{internal.ErrQuotaExceeded, internal.ErrRateLimited, internal.ErrServiceUnavailable} {
		if errors.Is(err, target) {
			return target
		}
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return classify(oaiErr.StatusCode, oaiErr.Message)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classify(gErr.Code, gErr.Message)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, quotaSignals):
		return internal.ErrQuotaExceeded
	case containsAny(msg, rateLimitSignals):
		return internal.ErrRateLimited
	case containsAny(msg, unavailableSignals):
		return internal.ErrServiceUnavailable
	}
	return nil
}

// IsRetryable reports whether err is a rate-limit, quota or
// service-unavailable failure.
func IsRetryable(err error) bool {
	return Classify(err) != nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
