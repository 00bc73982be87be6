package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

type handshake struct {
	token  string
	topics string
}

// fakeRealtime drops the first connection right away and keeps later ones open.
type fakeRealtime struct {
	mu         sync.Mutex
	handshakes []handshake
	received   chan string
}

func (f *fakeRealtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.handshakes = append(f.handshakes, handshake{token: r.URL.Query().Get("token"), topics: r.URL.Query().Get("topics")})
	n := len(f.handshakes)
	f.mu.Unlock()

	if n == 1 {
		_ = conn.Close()
		return
	}
	defer conn.Close()
	_ = conn.WriteJSON(feedevent.Envelope{Event: feedevent.Pong, Seq: uint64(n), Timestamp: time.Now()})
	for {
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.received <- msg.Event
	}
}

func (f *fakeRealtime) snapshot() []handshake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]handshake(nil), f.handshakes...)
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestSession_ReconnectsWithCurrentTokenAndTopics(t *testing.T) {
	fake := &fakeRealtime{received: make(chan string, 8)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var token atomic.Value
	token.Store("t1")
	connects := make(chan bool, 4)
	s := NewSession(SessionConfig{
		URL:            wsURL(srv),
		Topics:         []string{"category:phones", "category:books"},
		ReconnectDelay: 5 * time.Millisecond,
		ReconnectMax:   20 * time.Millisecond,
		MaxAttempts:    3,
		OnConnect: func(reconnect bool) {
			token.Store("t2")
			connects <- reconnect
		},
	}, func() string { return token.Load().(string) })

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	assert.False(t, <-connects)
	assert.True(t, <-connects)

	select {
	case env := <-s.Events():
		assert.Equal(t, feedevent.Pong, env.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}

	hs := fake.snapshot()
	require.Len(t, hs, 2)
	assert.Equal(t, "t1", hs[0].token)
	assert.Equal(t, "t2", hs[1].token)
	assert.Equal(t, "category:books,category:phones", hs[1].topics)
	assert.Equal(t, StateConnected, s.State())

	require.NoError(t, s.Subscribe("category:toys"))
	select {
	case ev := <-fake.received:
		assert.Equal(t, feedevent.Subscribe, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe not sent")
	}

	s.Close()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_GivesUpAfterMaxAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSession(SessionConfig{
		URL:            wsURL(srv),
		ReconnectDelay: time.Millisecond,
		ReconnectMax:   2 * time.Millisecond,
		MaxAttempts:    3,
	}, func() string { return "tok" })

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 3, s.Dials())
	assert.Equal(t, StateFailed, s.State())
	_, open := <-s.Events()
	assert.False(t, open)
}

func TestSession_UnauthorizedIsFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSession(SessionConfig{URL: wsURL(srv), ReconnectDelay: time.Millisecond, MaxAttempts: 5}, func() string { return "bad" })
	err := s.Run(context.Background())
	assert.True(t, errors.Is(err, ErrUnauthorized), err)
	assert.EqualValues(t, 1, s.Dials())
}

func TestSession_ContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := NewSession(SessionConfig{URL: wsURL(srv), ReconnectDelay: time.Second, MaxAttempts: 100}, func() string { return "tok" })
	assert.NoError(t, s.Run(ctx))
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	s := NewSession(SessionConfig{URL: "ws://127.0.0.1:1/ws"}, func() string { return "" })
	assert.ErrorIs(t, s.Typing("p1"), ErrNotConnected)
	assert.NoError(t, s.Subscribe("category:x"))
	assert.Contains(t, s.topicList(), "category:x")
}
