package realtime

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// clientMessage is a frame received from a client.
type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ValidTopic reports whether clients may subscribe to topic.
func ValidTopic(topic string) bool {
	for _, prefix := range []string{"category:", "post:"} {
		if strings.HasPrefix(topic, prefix) && len(topic) > len(prefix) {
			return true
		}
	}
	return false
}

// HandleMessage applies one client frame to the hub. Mutations mirrored from
// the HTTP API are ignored; HTTP is authoritative for them.
func (h *Hub) HandleMessage(s *Session, event string, data json.RawMessage) {
	switch event {
	case feedevent.Subscribe, feedevent.Unsubscribe:
		var p feedevent.TopicPayload
		if err := json.Unmarshal(data, &p); err != nil || !ValidTopic(p.Topic) {
			h.sendTo(s, feedevent.ErrorEvent, feedevent.ErrorPayload{Message: "invalid topic"})
			return
		}
		if event == feedevent.Subscribe {
			h.Subscribe(s, p.Topic)
			h.sendTo(s, feedevent.SubscribeAck, p)
		} else {
			h.Unsubscribe(s, p.Topic)
			h.sendTo(s, feedevent.UnsubscribeAck, p)
		}
	case feedevent.Ping:
		h.sendTo(s, feedevent.Pong, struct{}{})
	case feedevent.UserTyping:
		var p feedevent.TypingPayload
		if err := json.Unmarshal(data, &p); err != nil || p.PostID == "" {
			return
		}
		h.BroadcastToTopic(feedevent.PostTopic(p.PostID), feedevent.UserTyping, feedevent.TypingPayload{
			PostID: p.PostID, UserID: s.userID, Username: s.username,
		})
	default:
		logger.Debug("ignored client event", zap.String("event", event), zap.String("user", s.userID))
	}
}
