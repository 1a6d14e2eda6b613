package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedModel is a ChatModel for tests. It replays a fixed sequence of
// responses and records every request it receives.
type ScriptedModel struct {
	Responses []*Response
	Errs      []error

	mu       sync.Mutex
	calls    int
	Requests []*Request
}

// Generate returns the next scripted response (or error) in order. Calling
// past the end of the script fails the request.
func (m *ScriptedModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	i := m.calls
	m.calls++

	if i < len(m.Errs) && m.Errs[i] != nil {
		return nil, m.Errs[i]
	}
	if i >= len(m.Responses) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.Responses))
	}
	return m.Responses[i], nil
}

// Calls returns how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
