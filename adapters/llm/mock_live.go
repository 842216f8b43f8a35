package llm

import (
	"context"
	"sync"

	"github.com/fluentvoice/server/domain/repositories"
)

// MockLiveStreamer is an in-memory LiveStreamer for tests and local runs
// without a Gemini API key. Inbound events are injected with Inject*.
type MockLiveStreamer struct {
	mu       sync.Mutex
	handlers map[string]repositories.LiveHandlers
	sent     map[string][][]byte

	// OpenErr, when set, is returned by Open to simulate negotiation failure.
	OpenErr error
}

// NewMockLiveStreamer creates an empty mock streamer.
func NewMockLiveStreamer() *MockLiveStreamer {
	return &MockLiveStreamer{
		handlers: make(map[string]repositories.LiveHandlers),
		sent:     make(map[string][][]byte),
	}
}

// Open implements repositories.LiveStreamer.
func (m *MockLiveStreamer) Open(ctx context.Context, connectionID string, config repositories.LiveConfig, handlers repositories.LiveHandlers) error {
	if m.OpenErr != nil {
		return m.OpenErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[connectionID] = handlers
	return nil
}

// SendAudio implements repositories.LiveStreamer.
func (m *MockLiveStreamer) SendAudio(ctx context.Context, connectionID string, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[connectionID]; !ok {
		return repositories.ErrLiveSessionNotFound
	}
	buf := make([]byte, len(audio))
	copy(buf, audio)
	m.sent[connectionID] = append(m.sent[connectionID], buf)
	return nil
}

// Close implements repositories.LiveStreamer.
func (m *MockLiveStreamer) Close(connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, connectionID)
	return nil
}

// IsActive implements repositories.LiveStreamer.
func (m *MockLiveStreamer) IsActive(connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.handlers[connectionID]
	return ok
}

// SentAudio returns every buffer forwarded for the connection.
func (m *MockLiveStreamer) SentAudio(connectionID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[connectionID]
}

// InjectEvent delivers a typed event to the connection's handlers.
func (m *MockLiveStreamer) InjectEvent(connectionID string, event repositories.LiveEvent) {
	m.mu.Lock()
	handlers, ok := m.handlers[connectionID]
	m.mu.Unlock()

	if ok && handlers.OnEvent != nil {
		handlers.OnEvent(event)
	}
}

// InjectError delivers a mid-stream error to the connection's handlers.
func (m *MockLiveStreamer) InjectError(connectionID string, err error) {
	m.mu.Lock()
	handlers, ok := m.handlers[connectionID]
	m.mu.Unlock()

	if ok && handlers.OnError != nil {
		handlers.OnError(err)
	}
}
