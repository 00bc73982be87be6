// Package feedevent holds the realtime wire format shared by the server hub
// and the feed client.
package feedevent

import (
	"encoding/json"
	"time"
)

// Server -> client events.
const (
	PostCreated    = "post:created"
	PostNew        = "post:new"
	PostDeleted    = "post:deleted"
	LikeUpdate     = "post:like-update"
	CommentAdded   = "post:comment-added"
	CommentDeleted = "post:comment-deleted"
	ShareUpdate    = "post:share-update"
	UsersOnline    = "users:online"
	Notification   = "notification"
	UserFollowed   = "user:followed"
	UserTyping     = "user:typing"
	Pong           = "pong"
	SubscribeAck   = "subscribed"
	UnsubscribeAck = "unsubscribed"
	ErrorEvent     = "error"
)

// Client -> server messages.
const (
	Subscribe   = "subscribe"
	Unsubscribe = "unsubscribe"
	Ping        = "ping"
)

// CategoryTopic is the topic carrying post:new events for a category.
func CategoryTopic(category string) string { return "category:" + category }

// PostTopic scopes typing indicators to a post.
func PostTopic(postID string) string { return "post:" + postID }

// Envelope is one realtime frame. Seq increases monotonically per server process.
type Envelope struct {
	Event     string          `json:"event"`
	Seq       uint64          `json:"seq,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error { return json.Unmarshal(e.Data, v) }

// Post is the post view-model sent over HTTP and the realtime channel.
type Post struct {
	ID            string    `json:"id"`
	AuthorID      string    `json:"author_id"`
	Username      string    `json:"username"`
	Caption       string    `json:"caption"`
	Rating        *int      `json:"rating"`
	Category      *string   `json:"category"`
	ProductPhoto  *string   `json:"product_photo"`
	ProductURL    *string   `json:"product_url"`
	CreatedAt     time.Time `json:"created_at"`
	LikesCount    int64     `json:"likes_count"`
	CommentsCount int64     `json:"comments_count"`
	SharesCount   int64     `json:"shares_count"`
	IsLiked       bool      `json:"isLiked"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Username  string    `json:"username"`
	Text      string    `json:"comment_text"`
	CreatedAt time.Time `json:"created_at"`
}

type PostCreatedPayload struct {
	Post      Post   `json:"post"`
	Category  string `json:"category,omitempty"`
	ClientRef string `json:"client_ref,omitempty"`
}

type PostDeletedPayload struct {
	PostID string `json:"postId"`
}

type LikeUpdatePayload struct {
	PostID     string `json:"postId"`
	Action     string `json:"action"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	LikesCount int64  `json:"likes_count"`
}

// CommentsCount on the comment payloads is the post's committed count after
// the change; older servers omit it.
type CommentAddedPayload struct {
	PostID        string  `json:"postId"`
	CommentID     string  `json:"commentId"`
	Comment       Comment `json:"comment"`
	CommentsCount *int64  `json:"comments_count,omitempty"`
	ClientRef     string  `json:"client_ref,omitempty"`
}

type CommentDeletedPayload struct {
	PostID        string `json:"postId"`
	CommentID     string `json:"commentId"`
	CommentsCount *int64 `json:"comments_count,omitempty"`
}

type ShareUpdatePayload struct {
	PostID      string `json:"postId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	SharesCount int64  `json:"shares_count"`
}

type UsersOnlinePayload struct {
	Users []string `json:"users"`
}

type NotificationPayload struct {
	Type      string `json:"type"` // like | comment | share | follow
	ActorID   string `json:"actorId"`
	ActorName string `json:"actorName"`
	PostID    string `json:"postId,omitempty"`
}

type TopicPayload struct {
	Topic string `json:"topic"`
}

type TypingPayload struct {
	PostID   string `json:"postId"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
