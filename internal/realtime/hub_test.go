package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

func startHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := NewHub(cfg)
	stop := h.Start(2)
	t.Cleanup(func() { _ = stop(context.Background()) })
	return h
}

// next returns the next envelope named event, skipping others.
func next(t *testing.T, s *Session, event string) feedevent.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case frame := <-s.Outbound():
			var env feedevent.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			if env.Event == event {
				return env
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

// none asserts no envelope named event arrives within a short window.
func none(t *testing.T, s *Session, event string) {
	t.Helper()
	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case frame := <-s.Outbound():
			var env feedevent.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			assert.NotEqual(t, event, env.Event)
		case <-timeout:
			return
		}
	}
}

func TestBroadcastAll_ReachesEverySession(t *testing.T) {
	h := startHub(t, Config{})
	a := NewSession("alice", "alice", 16)
	b := NewSession("bob", "bob", 16)
	h.Register(a)
	h.Register(b)

	h.BroadcastAll(feedevent.PostCreated, feedevent.PostCreatedPayload{Post: feedevent.Post{ID: "p1"}})

	for _, s := range []*Session{a, b} {
		env := next(t, s, feedevent.PostCreated)
		var p feedevent.PostCreatedPayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, "p1", p.Post.ID)
		assert.NotZero(t, env.Seq)
	}
}

func TestBroadcastToTopic_OnlySubscribers(t *testing.T) {
	h := startHub(t, Config{})
	a := NewSession("alice", "alice", 16)
	b := NewSession("bob", "bob", 16)
	h.Register(a)
	h.Register(b)
	require.True(t, h.Subscribe(a, "category:phones"))
	assert.Equal(t, []string{"category:phones"}, h.Topics(a))

	h.BroadcastToTopic("category:phones", feedevent.PostNew, map[string]string{"id": "p1"})

	next(t, a, feedevent.PostNew)
	none(t, b, feedevent.PostNew)

	h.Unsubscribe(a, "category:phones")
	h.BroadcastToTopic("category:phones", feedevent.PostNew, map[string]string{"id": "p2"})
	none(t, a, feedevent.PostNew)
}

func TestSendToUser_AllSessionsOfUser(t *testing.T) {
	h := startHub(t, Config{})
	a1 := NewSession("alice", "alice", 16)
	a2 := NewSession("alice", "alice", 16)
	b := NewSession("bob", "bob", 16)
	for _, s := range []*Session{a1, a2, b} {
		h.Register(s)
	}

	h.SendToUser("alice", feedevent.Notification, feedevent.NotificationPayload{Type: "like"})
	next(t, a1, feedevent.Notification)
	next(t, a2, feedevent.Notification)
	none(t, b, feedevent.Notification)
}

func TestPresence_OnConnectAndDisconnect(t *testing.T) {
	h := startHub(t, Config{})
	a := NewSession("alice", "alice", 16)
	h.Register(a)

	env := next(t, a, feedevent.UsersOnline)
	var online feedevent.UsersOnlinePayload
	require.NoError(t, env.Decode(&online))
	assert.Equal(t, []string{"alice"}, online.Users)

	b := NewSession("bob", "bob", 16)
	h.Register(b)
	assert.Equal(t, []string{"alice", "bob"}, h.OnlineUsers())

	h.Unregister(b)
	h.Unregister(b) // idempotent
	assert.Equal(t, []string{"alice"}, h.OnlineUsers())
	select {
	case <-b.Done():
	default:
		t.Fatal("unregistered session should be closed")
	}
}

func TestEnqueue_NeverBlocksWhenQueueFull(t *testing.T) {
	h := NewHub(Config{QueueSize: 1}) // workers not started
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.BroadcastAll(feedevent.PostCreated, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full queue")
	}
	assert.Equal(t, int64(99), h.Stats().Dropped)
}

func TestSlowSession_IsDisconnected(t *testing.T) {
	h := startHub(t, Config{})
	slow := NewSession("slow", "slow", 1)
	h.Register(slow)

	for i := 0; i < 5; i++ {
		h.BroadcastAll(feedevent.PostCreated, i)
	}
	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow session was not disconnected")
	}
	assert.Empty(t, h.OnlineUsers())
}

func TestHandleMessage(t *testing.T) {
	h := startHub(t, Config{})
	a := NewSession("alice", "alice", 16)
	b := NewSession("bob", "bob", 16)
	h.Register(a)
	h.Register(b)

	h.HandleMessage(a, feedevent.Subscribe, json.RawMessage(`{"topic":"post:p1"}`))
	next(t, a, feedevent.SubscribeAck)

	h.HandleMessage(a, feedevent.Subscribe, json.RawMessage(`{"topic":"admin"}`))
	next(t, a, feedevent.ErrorEvent)

	h.HandleMessage(a, feedevent.Ping, nil)
	next(t, a, feedevent.Pong)

	h.HandleMessage(b, feedevent.UserTyping, json.RawMessage(`{"postId":"p1"}`))
	env := next(t, a, feedevent.UserTyping)
	var typing feedevent.TypingPayload
	require.NoError(t, env.Decode(&typing))
	assert.Equal(t, "bob", typing.UserID)

	// mirrored mutation emissions are ignored
	h.HandleMessage(a, "post:like", json.RawMessage(`{"postId":"p1"}`))
	none(t, b, feedevent.LikeUpdate)
}

func TestStop_ClosesSessions(t *testing.T) {
	h := NewHub(Config{})
	stop := h.Start(1)
	s := NewSession("alice", "alice", 16)
	h.Register(s)

	require.NoError(t, stop(context.Background()))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session still open after stop")
	}
}

func TestValidTopic(t *testing.T) {
	assert.True(t, ValidTopic("category:phones"))
	assert.True(t, ValidTopic("post:42"))
	assert.False(t, ValidTopic("category:"))
	assert.False(t, ValidTopic("users"))
}
