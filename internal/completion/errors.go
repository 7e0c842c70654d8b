package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("empty response from completion backend")

// Class is the failure category of a completion call.
type Class string

const (
	ClassTimeout        Class = "timeout"
	ClassNetwork        Class = "network"
	ClassUnavailable    Class = "unavailable"
	ClassEmptyResponse  Class = "empty_response"
	ClassUnknown        Class = "unknown"
	ClassAuth           Class = "auth"
	ClassQuota          Class = "quota"
	ClassInvalidRequest Class = "invalid_request"
	ClassPermission     Class = "permission"
	ClassNotConfigured  Class = "not_configured"
	ClassUnreachable    Class = "unreachable"
)

// Transient reports whether a failure of this class is worth retrying.
func (c Class) Transient() bool {
	switch c {
	case ClassTimeout, ClassNetwork, ClassUnavailable, ClassEmptyResponse, ClassUnknown:
		return true
	default:
		return false
	}
}

var userMessages = map[Class]string{
	ClassAuth:           "APIキーの設定に問題があります。管理者に連絡してください。",
	ClassQuota:          "API利用制限に達しました。しばらく待ってから再度お試しください。",
	ClassInvalidRequest: "リクエストの形式に問題があります。管理者に連絡してください。",
	ClassPermission:     "APIの利用権限に問題があります。管理者に連絡してください。",
	ClassNotConfigured:  "AI システムの初期化に問題があります。管理者に連絡してください。",
	ClassUnreachable:    "複数回の試行後もAPIに接続できませんでした。しばらく待ってから再度お試しください。",
}

// Error is a classified completion failure.
type Error struct {
	Class    Class
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("completion failed (%s after %d attempts): %v", e.Class, e.Attempts, e.Err)
	}
	return fmt.Sprintf("completion failed (%s after %d attempts)", e.Class, e.Attempts)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is the text shown to the learner for this failure.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Class]; ok {
		return msg
	}
	return userMessages[ClassUnreachable]
}

// Terminal reports whether the failure needs an administrator rather than a retry later.
func (e *Error) Terminal() bool {
	switch e.Class {
	case ClassAuth, ClassInvalidRequest, ClassPermission, ClassNotConfigured:
		return true
	default:
		return false
	}
}

// StatusError carries the HTTP status of a failed backend call. Backends
// convert their SDK errors into it so classification is SDK independent.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Classify maps an error from a backend to its failure class.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ClassEmptyResponse
	}

	var se *StatusError
	if errors.As(err, &se) {
		if c := classifyStatus(se.StatusCode, se.Message); c != "" {
			return c
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassNetwork
	}

	return classifyText(err.Error())
}

func classifyStatus(status int, message string) Class {
	switch {
	case status == http.StatusUnauthorized:
		return ClassAuth
	case status == http.StatusForbidden:
		return ClassPermission
	case status == http.StatusTooManyRequests:
		return ClassQuota
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ClassTimeout
	case status == http.StatusBadRequest || status == http.StatusNotFound ||
		status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity:
		// Some providers report an exhausted quota as a 400.
		if c := classifyText(message); c == ClassQuota || c == ClassAuth {
			return c
		}
		return ClassInvalidRequest
	case status >= 500:
		return ClassUnavailable
	default:
		return ""
	}
}

func classifyText(msg string) Class {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "api_key") || strings.Contains(lower, "api key") ||
		strings.Contains(lower, "unauthorized"):
		return ClassAuth
	case strings.Contains(lower, "quota") || strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit"):
		return ClassQuota
	case strings.Contains(lower, "permission"):
		return ClassPermission
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return ClassTimeout
	case strings.Contains(lower, "dns") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset"):
		return ClassNetwork
	case strings.Contains(lower, "503") || strings.Contains(lower, "unavailable"):
		return ClassUnavailable
	default:
		return ClassUnknown
	}
}
