package castprotocol

import (
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/vishen/go-chromecast/cast"
)

// mockSession records outbound messages and lets tests inject inbound
// ones.
type mockSession struct {
	mock.Mock

	mu   sync.Mutex
	subs map[string][]MessageFunc
}

func newMockSession() *mockSession {
	return &mockSession{subs: make(map[string][]MessageFunc)}
}

func (m *mockSession) Send(namespace string, payload cast.Payload) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	args := m.Called(namespace, string(b))
	return args.Error(0)
}

func (m *mockSession) Subscribe(namespace string, fn MessageFunc) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subs[namespace] = append(m.subs[namespace], fn)
	idx := len(m.subs[namespace]) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.subs[namespace][idx] = nil
	}
}

func (m *mockSession) deliver(namespace, payload string) {
	m.mu.Lock()
	fns := append([]MessageFunc(nil), m.subs[namespace]...)
	m.mu.Unlock()

	for _, fn := range fns {
		if fn != nil {
			fn([]byte(payload))
		}
	}
}
