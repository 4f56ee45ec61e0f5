package client

import "fmt"

// ErrAuth indicates the session or token was rejected (HTTP 401/403).
// Never retried internally; the caller decides whether to refresh.
type ErrAuth struct {
	Err error
}

func (e ErrAuth) Error() string {
	return fmt.Errorf("auth: %w", e.Err).Error()
}

func (e ErrAuth) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request and the
// retry budget ran out.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrTransient indicates a server-side or transport failure that may
// clear on its own (5xx, timeout, connection reset).
type ErrTransient struct {
	Err error
}

func (e ErrTransient) Error() string {
	return fmt.Errorf("transient: %w", e.Err).Error()
}

func (e ErrTransient) Unwrap() error {
	return e.Err
}

// ErrFatalRequest indicates a request that will never succeed as issued
// (unexpected 4xx, undecodable payload).
type ErrFatalRequest struct {
	Err error
}

func (e ErrFatalRequest) Error() string {
	return fmt.Errorf("request: %w", e.Err).Error()
}

func (e ErrFatalRequest) Unwrap() error {
	return e.Err
}
