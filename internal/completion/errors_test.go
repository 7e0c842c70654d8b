package completion

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"unauthorized", &StatusError{StatusCode: http.StatusUnauthorized}, ClassAuth},
		{"forbidden", &StatusError{StatusCode: http.StatusForbidden}, ClassPermission},
		{"rate limited", &StatusError{StatusCode: http.StatusTooManyRequests}, ClassQuota},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, ClassInvalidRequest},
		{"quota as bad request", &StatusError{StatusCode: http.StatusBadRequest, Message: "You exceeded your current quota"}, ClassQuota},
		{"server error", &StatusError{StatusCode: http.StatusBadGateway}, ClassUnavailable},
		{"gateway timeout", &StatusError{StatusCode: http.StatusGatewayTimeout}, ClassTimeout},
		{"wrapped status", fmt.Errorf("call: %w", &StatusError{StatusCode: http.StatusServiceUnavailable}), ClassUnavailable},
		{"deadline", context.DeadlineExceeded, ClassTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.openai.com"}, ClassNetwork},
		{"empty", ErrEmptyResponse, ClassEmptyResponse},
		{"invalid api key text", errors.New("invalid_api_key"), ClassAuth},
		{"rate limit text", errors.New("rate_limit_exceeded"), ClassQuota},
		{"permission text", errors.New("permission denied for model"), ClassPermission},
		{"503 text", errors.New("upstream 503"), ClassUnavailable},
		{"unknown", errors.New("boom"), ClassUnknown},
		{"already classified", &Error{Class: ClassQuota}, ClassQuota},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestClassTransient(t *testing.T) {
	for _, c := range []Class{ClassTimeout, ClassNetwork, ClassUnavailable, ClassEmptyResponse, ClassUnknown} {
		assert.True(t, c.Transient(), c)
	}
	for _, c := range []Class{ClassAuth, ClassQuota, ClassInvalidRequest, ClassPermission, ClassNotConfigured, ClassUnreachable} {
		assert.False(t, c.Transient(), c)
	}
}

func TestUserMessageDistinctPerTerminalClass(t *testing.T) {
	seen := map[string]Class{}
	for _, c := range []Class{ClassAuth, ClassQuota, ClassInvalidRequest, ClassPermission, ClassUnreachable} {
		msg := (&Error{Class: c}).UserMessage()
		if prev, ok := seen[msg]; ok {
			t.Errorf("classes %s and %s share message %q", prev, c, msg)
		}
		seen[msg] = c
	}
}
