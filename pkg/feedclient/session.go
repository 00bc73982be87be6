package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

var (
	ErrUnauthorized = errors.New("feedclient: realtime handshake rejected")
	ErrNotConnected = errors.New("feedclient: not connected")
)

// State of a realtime session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SessionConfig 重连策略：初始延迟、最大延迟、最大尝试次数
type SessionConfig struct {
	URL            string
	Topics         []string
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration
	MaxAttempts    int
	Jitter         float64
	WriteWait      time.Duration
	Buffer         int
	Dialer         *websocket.Dialer
	// OnConnect runs after every successful handshake; reconnect is false the first time.
	OnConnect func(reconnect bool)
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.ReconnectMax < c.ReconnectDelay {
		c.ReconnectMax = 5 * time.Second
		if c.ReconnectMax < c.ReconnectDelay {
			c.ReconnectMax = c.ReconnectDelay
		}
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Dialer == nil {
		c.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	return c
}

// Session is the client end of the realtime channel. It reconnects on loss
// with the current token and the current topic set.
type Session struct {
	cfg   SessionConfig
	token func() string

	mu     sync.Mutex
	topics map[string]struct{}
	conn   *websocket.Conn

	cancel  context.CancelFunc
	writeMu sync.Mutex
	events  chan feedevent.Envelope
	state   atomic.Int32
	closed  atomic.Bool
	dials   atomic.Int64
}

func NewSession(cfg SessionConfig, token func() string) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:    cfg,
		token:  token,
		topics: make(map[string]struct{}),
		events: make(chan feedevent.Envelope, cfg.Buffer),
	}
	for _, t := range cfg.Topics {
		s.topics[t] = struct{}{}
	}
	return s
}

// Events delivers every envelope received; closed when Run returns.
func (s *Session) Events() <-chan feedevent.Envelope { return s.events }

func (s *Session) State() State { return State(s.state.Load()) }

// Dials counts handshake attempts, successful or not.
func (s *Session) Dials() int64 { return s.dials.Load() }

func (s *Session) topicList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Session) dialURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", s.token())
	if topics := s.topicList(); len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	s.dials.Add(1)
	target, err := s.dialURL()
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	conn, resp, err := s.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(ErrUnauthorized)
		}
		return nil, err
	}
	return conn, nil
}

func (s *Session) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ReconnectDelay
	b.MaxInterval = s.cfg.ReconnectMax
	b.Multiplier = 2
	b.RandomizationFactor = s.cfg.Jitter
	return b
}

// Run connects and keeps the session alive until ctx ends, Close is called
// or MaxAttempts consecutive handshakes fail. Connection loss never panics.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.events)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	reconnect := false
	for {
		if s.closed.Load() {
			s.state.Store(int32(StateClosed))
			return nil
		}
		if reconnect {
			s.state.Store(int32(StateReconnecting))
		} else {
			s.state.Store(int32(StateConnecting))
		}

		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) { return s.dial(ctx) },
			backoff.WithBackOff(s.newBackOff()),
			backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
			backoff.WithNotify(func(err error, next time.Duration) {
				logger.Warn("realtime dial failed", zap.Error(err), zap.Duration("retry_in", next))
			}),
		)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				s.state.Store(int32(StateClosed))
				return nil
			}
			s.state.Store(int32(StateFailed))
			return fmt.Errorf("feedclient: connect: %w", err)
		}

		s.attach(conn)
		s.state.Store(int32(StateConnected))
		logger.Info("realtime connected", zap.Bool("reconnect", reconnect), zap.Strings("topics", s.topicList()))
		if s.cfg.OnConnect != nil {
			s.cfg.OnConnect(reconnect)
		}

		err = s.readLoop(ctx, conn)
		s.detach(conn)
		if ctx.Err() != nil || s.closed.Load() {
			s.state.Store(int32(StateClosed))
			return nil
		}
		logger.Warn("realtime connection lost", zap.Error(err))
		reconnect = true
	}
}

func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env feedevent.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("bad realtime frame", zap.Error(err))
			continue
		}
		select {
		case s.events <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send writes one client message.
func (s *Session) Send(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg := struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data,omitempty"`
	}{Event: event, Data: payload}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return conn.WriteJSON(msg)
}

// Subscribe remembers topic for future reconnects and subscribes now when connected.
func (s *Session) Subscribe(topic string) error {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
	if err := s.Send(feedevent.Subscribe, feedevent.TopicPayload{Topic: topic}); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

func (s *Session) Unsubscribe(topic string) error {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
	if err := s.Send(feedevent.Unsubscribe, feedevent.TopicPayload{Topic: topic}); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// Typing announces that the user is typing a comment on postID.
func (s *Session) Typing(postID string) error {
	return s.Send(feedevent.UserTyping, feedevent.TypingPayload{PostID: postID})
}

// Close stops the session; Run returns nil afterwards.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()
	if cancel != nil {
		defer cancel()
	}
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
}
