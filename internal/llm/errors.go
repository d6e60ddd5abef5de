package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork marks a transport failure where no response was received.
	ErrNetwork = errors.New("network error")
	// ErrRateLimitOrServer matches a *StatusError for 429 or 5xx.
	ErrRateLimitOrServer = errors.New("rate limited or server error")
	// ErrClientRequest matches a *StatusError for a 4xx other than 429.
	ErrClientRequest = errors.New("client request error")
	// ErrRetriesExhausted is returned when no attempt produced an outcome.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrEmptyResponse is returned when the model answered with no candidate text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// StatusError is a non-2xx response from the generation API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("generation API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("generation API returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether another attempt may succeed.
func (e *StatusError) Retryable() bool {
	return !Accepted(e.StatusCode)
}

// Is lets errors.Is match the status class sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimitOrServer:
		return e.Retryable()
	case ErrClientRequest:
		return e.StatusCode >= 400 && !e.Retryable()
	}
	return false
}

// Accepted reports whether a response with this status is final: anything below
// 500 except 429.
func Accepted(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}
