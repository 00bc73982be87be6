package service

import (
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// EventPublisher is the fan-out side of a committed mutation. Implementations
// must not block; delivery is best-effort.
type EventPublisher interface {
	BroadcastAll(event string, payload any)
	BroadcastToTopic(topic, event string, payload any)
	SendToUser(userID, event string, payload any)
}

// Actor is the authenticated caller of a mutation.
type Actor struct {
	ID       string
	Username string
}

// emitter guards every publish so a broken hub never reaches the caller.
type emitter struct {
	pub EventPublisher
}

func (e emitter) emit(event string, fn func(EventPublisher)) {
	if e.pub == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("broadcast failed", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	fn(e.pub)
}

func toEventPost(p *model.Post) feedevent.Post {
	return feedevent.Post{
		ID:            p.ID,
		AuthorID:      p.AuthorID,
		Username:      p.Username,
		Caption:       p.Caption,
		Rating:        p.Rating,
		Category:      p.Category,
		ProductPhoto:  p.ProductPhoto,
		ProductURL:    p.ProductURL,
		CreatedAt:     p.CreatedAt,
		LikesCount:    p.LikesCount,
		CommentsCount: p.CommentsCount,
		SharesCount:   p.SharesCount,
		IsLiked:       p.IsLiked,
	}
}

func toEventComment(c *model.Comment) feedevent.Comment {
	return feedevent.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Username:  c.Username,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
	}
}
