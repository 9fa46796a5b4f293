package internal

import "errors"

// Pipeline error taxonomy. Backends, stores and the healer wrap these so
// callers can classify failures with errors.Is.
var (
	ErrMissingParameters  = errors.New("missing required parameters")
	ErrInvalidDocument    = errors.New("document is not valid JSON")
	ErrRateLimited        = errors.New("rate limited")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMalformedOutput    = errors.New("malformed model output")
	ErrCacheIO            = errors.New("cache i/o error")
	ErrRetriesExhausted   = errors.New("retries exhausted")
)
