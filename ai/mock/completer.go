package mock

import (
	"context"
	"sync"

	"github.com/poiesic/recall/ai"
)

// Call records one request made to a MockCompleter.
type Call struct {
	System string
	User   string
	JSON   bool
}

// MockCompleter is a test double for ai.Completer.
// Replies come from RespondFunc; CompleteJSON decodes that reply the same way
// production completers do.
type MockCompleter struct {
	// RespondFunc produces the reply for a request. If nil, replies with DefaultReply.
	RespondFunc func(ctx context.Context, call Call) (string, error)

	// DefaultReply is returned when RespondFunc is nil.
	DefaultReply string

	mu    sync.Mutex
	calls []Call
}

var _ ai.Completer = (*MockCompleter)(nil)

// NewMockCompleter creates a mock completer replying with "{}".
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{DefaultReply: "{}"}
}

// WithRespondFunc sets RespondFunc and returns the mock for chaining.
func (m *MockCompleter) WithRespondFunc(fn func(ctx context.Context, call Call) (string, error)) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RespondFunc = fn
	return m
}

// Complete records the call and returns the scripted reply.
func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return m.respond(ctx, Call{System: systemPrompt, User: userPrompt})
}

// CompleteJSON records the call and decodes the scripted reply into out.
func (m *MockCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	reply, err := m.respond(ctx, Call{System: systemPrompt, User: userPrompt, JSON: true})
	if err != nil {
		return err
	}
	return ai.DecodeJSON(reply, out)
}

func (m *MockCompleter) respond(ctx context.Context, call Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls = append(m.calls, call)
	fn := m.RespondFunc
	reply := m.DefaultReply
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, call)
	}
	return reply, nil
}

// CallCount returns the number of requests made.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every recorded request.
func (m *MockCompleter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.RespondFunc = nil
}
