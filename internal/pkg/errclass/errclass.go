// Package errclass maps arbitrary collaborator failures into a closed
// taxonomy of error classes, each tagged retryable or not.
//
// Classification is a pure function: it never returns an error itself and is
// deterministic for the same input shape. Callers at integration boundaries
// should convert provider-specific errors into a FailureInfo first so the
// taxonomy stays closed and testable.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Class is one member of the closed error taxonomy.
type Class string

const (
	ClassProvisioning  Class = "provisioning_error"
	ClassWebhook       Class = "webhook_error"
	ClassOffline       Class = "integration_offline"
	ClassRateLimited   Class = "rate_limited"
	ClassAuthFailed    Class = "third_party_auth_failed"
	ClassTransient     Class = "transient_network"
	ClassConfiguration Class = "configuration_error"
	ClassNotFound      Class = "resource_not_found"
	ClassValidation    Class = "validation_error"
	ClassUnknown       Class = "unknown_error"
)

// retryable is the fixed retry policy per class. Unknown errors are
// optimistically retryable.
var retryable = map[Class]bool{
	ClassProvisioning:  false,
	ClassWebhook:       true,
	ClassOffline:       true,
	ClassRateLimited:   true,
	ClassAuthFailed:    false,
	ClassTransient:     true,
	ClassConfiguration: false,
	ClassNotFound:      false,
	ClassValidation:    false,
	ClassUnknown:       true,
}

// Classified is the result of classifying one failure. Constructed fresh per
// failure and never persisted.
type Classified struct {
	Class      Class
	Retryable  bool
	Message    string
	Code       string
	StatusCode int
}

// FailureInfo is the narrow shape classification operates on. Boundary code
// extracts one of these from whatever its provider SDK returned.
type FailureInfo struct {
	Message    string
	Code       string
	StatusCode int
}

// HTTPError carries an HTTP status code across an integration boundary so
// that classification does not have to parse it out of the message text.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// Classify maps err into the closed taxonomy. It is total: nil errors and
// arbitrary error shapes all produce a well-formed Classified.
func Classify(err error) Classified {
	if err == nil {
		return build(ClassUnknown, FailureInfo{Message: "unknown error (nil)"})
	}
	if c, ok := classifyNative(err); ok {
		return c
	}
	return ClassifyInfo(extract(err))
}

// ClassifyInfo classifies an already-extracted FailureInfo. The predicates
// run in a fixed priority order; the first match wins. Callers must not
// re-order checks.
func ClassifyInfo(info FailureInfo) Classified {
	msg := strings.ToLower(info.Message)

	switch {
	case isTransientNetwork(info, msg):
		return build(ClassTransient, info)
	case info.StatusCode == 429 || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return build(ClassRateLimited, info)
	case info.StatusCode == 401 || info.StatusCode == 403 ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "invalid api key"):
		return build(ClassAuthFailed, info)
	case info.StatusCode == 502 || info.StatusCode == 503 || info.StatusCode == 504 ||
		strings.Contains(msg, "unavailable") || strings.Contains(msg, "bad gateway"):
		return build(ClassOffline, info)
	case strings.Contains(msg, "missing") || strings.Contains(msg, "not configured") ||
		strings.Contains(msg, "env var") || strings.Contains(msg, "environment variable"):
		return build(ClassConfiguration, info)
	case info.StatusCode == 404 || strings.Contains(msg, "not found"):
		return build(ClassNotFound, info)
	case info.StatusCode == 400 || info.StatusCode == 422 ||
		strings.Contains(msg, "validation") || strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "required"):
		return build(ClassValidation, info)
	case strings.Contains(msg, "subaccount") || strings.Contains(msg, "kyc") ||
		strings.Contains(msg, "business verification"):
		return build(ClassProvisioning, info)
	case strings.Contains(msg, "webhook"):
		return build(ClassWebhook, info)
	default:
		return build(ClassUnknown, info)
	}
}

// IsRetryable is a convenience shorthand for Classify(err).Retryable.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

func build(c Class, info FailureInfo) Classified {
	msg := info.Message
	if msg == "" {
		msg = string(c)
	}
	return Classified{
		Class:      c,
		Retryable:  retryable[c],
		Message:    msg,
		Code:       info.Code,
		StatusCode: info.StatusCode,
	}
}

// extract converts a Go error into the fixed FailureInfo shape, unwrapping
// known structured error types.
func extract(err error) FailureInfo {
	info := FailureInfo{Message: err.Error()}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		info.StatusCode = httpErr.StatusCode
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		info.Code = sysErr.Error()
	}

	return info
}

func isTransientNetwork(info FailureInfo, msg string) bool {
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "econnrefused"),
		strings.Contains(msg, "econnreset"),
		strings.Contains(msg, "etimedout"):
		return true
	}
	switch info.Code {
	case "ECONNREFUSED", "ECONNRESET", "ETIMEDOUT", "EHOSTUNREACH":
		return true
	}
	return false
}

// classifyNative inspects stdlib error types that carry retry semantics the
// message text may not. Used by Classify before falling back to text matching.
func classifyNative(err error) (Classified, bool) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return build(ClassTransient, FailureInfo{Message: err.Error()}), true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return build(ClassTransient, FailureInfo{Message: err.Error()}), true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return build(ClassTransient, FailureInfo{Message: err.Error()}), true
	}
	return Classified{}, false
}
