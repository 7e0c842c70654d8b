package completion

import (
	"context"
	"net/http"
	"sync"
)

// StubResponse is one canned reply of a StubBackend.
type StubResponse struct {
	Text string
	Err  error
}

// StubBackend replays canned replies in FIFO order and records every request.
// When the queue is empty it answers with Fallback, or a 503 if Fallback is empty.
type StubBackend struct {
	Fallback string

	mu        sync.Mutex
	responses []StubResponse
	requests  []Request
}

// NewStubBackend creates a stub with the given replies.
func NewStubBackend(responses ...StubResponse) *StubBackend {
	return &StubBackend{responses: responses}
}

// Complete returns the next canned reply.
func (s *StubBackend) Complete(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		if s.Fallback != "" {
			return s.Fallback, nil
		}
		return "", &StatusError{StatusCode: http.StatusServiceUnavailable, Message: "stub queue empty"}
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp.Text, resp.Err
}

// Name returns "stub".
func (s *StubBackend) Name() string {
	return "stub"
}

// Push appends canned replies.
func (s *StubBackend) Push(responses ...StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, responses...)
}

// CallCount returns the number of Complete calls made.
func (s *StubBackend) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of the recorded requests.
func (s *StubBackend) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
