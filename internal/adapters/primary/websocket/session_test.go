package websocket

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// fakeSession records what the relay sends and lets tests inject frames.
type fakeSession struct {
	id     string
	frames chan Frame

	mu        sync.Mutex
	sent      []string
	closeCode int
	sendErr   error

	open      atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession() *fakeSession {
	s := &fakeSession{
		id:     uuid.NewString(),
		frames: make(chan Frame, 8),
		closed: make(chan struct{}),
	}
	s.open.Store(true)
	return s
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	if !s.open.Load() {
		return ErrSessionClosed
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSession) IsOpen() bool { return s.open.Load() }

func (s *fakeSession) Close(code int, _ string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.mu.Unlock()
		s.open.Store(false)
		close(s.closed)
	})
}

func (s *fakeSession) Frames() <-chan Frame { return s.frames }

// peerClose simulates the client going away.
func (s *fakeSession) peerClose() {
	s.open.Store(false)
	close(s.frames)
}

func (s *fakeSession) text(data string) {
	s.frames <- Frame{Type: websocket.TextMessage, Data: []byte(data)}
}

func (s *fakeSession) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *fakeSession) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

func (s *fakeSession) waitForMessages(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.messages()) >= n }, time.Second, 5*time.Millisecond)
	return s.messages()
}

type countingObserver struct {
	added   atomic.Int64
	removed atomic.Int64
}

func (o *countingObserver) ConnectionAdded()   { o.added.Add(1) }
func (o *countingObserver) ConnectionRemoved() { o.removed.Add(1) }
