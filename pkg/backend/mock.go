package backend

import (
	"context"
	"sync"
)

// Mock is a scripted Backend for tests. Responses are returned in
// order; when the script runs out the last entry repeats. Err, when
// set, is returned for every call instead.
type Mock struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// ChatFunc, when set, overrides the scripted behavior entirely.
	ChatFunc func(ctx context.Context, req *Request) (*Response, error)

	calls []*Request
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Chat(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapErr(m.Name(), 0, err)
	}
	if m.Err != nil {
		return nil, wrapErr(m.Name(), 0, m.Err)
	}
	if len(m.Responses) == 0 {
		return nil, wrapErr(m.Name(), 0, ErrEmptyResponse)
	}
	idx := len(m.calls) - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return &Response{Text: m.Responses[idx], Model: "mock"}, nil
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.calls))
	copy(out, m.calls)
	return out
}
