package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	openaigo "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the backend answers without any content.
var ErrEmptyResponse = errors.New("empty response from AI backend")

// IsTransient classifies a backend error as retryable. Rate limiting, server
// overload and network blips are transient; malformed requests, auth failures
// and caller cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// A per-call timeout is a transient condition; the caller's own deadline is
	// checked separately by the retry loop.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrEmptyResponse) {
		return true
	}

	var apiErr *openaigo.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}
	var reqErr *openaigo.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 429, 500, 502, 503:
			return true
		}
		// A RequestError without an HTTP status is a transport-level failure.
		return reqErr.HTTPStatusCode == 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "rate_limit", "too many requests", "quota", "overloaded", "service unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
