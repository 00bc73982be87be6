package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session 一个已认证的实时连接
type Session struct {
	id       string
	userID   string
	username string

	hub  *Hub
	conn *websocket.Conn // nil for in-process sessions

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	topics map[string]struct{} // guarded by hub.mu
}

// NewSession creates a session for an authenticated identity. buffer bounds
// the outbound frames queued for a slow reader.
func NewSession(userID, username string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 256
	}
	return &Session{
		id:       uuid.New().String(),
		userID:   userID,
		username: username,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) UserID() string   { return s.userID }
func (s *Session) Username() string { return s.username }

// Outbound yields the encoded frames queued for this session.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Done is closed once the session has been unregistered.
func (s *Session) Done() <-chan struct{} { return s.done }

// offer queues a frame without blocking; false means the buffer is full or
// the session is closed.
func (s *Session) offer(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
