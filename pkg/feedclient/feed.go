package feedclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// Feed ties the API client, the realtime session and the local state together.
// Every user action is applied optimistically, then settled by the HTTP
// response; realtime echoes of the same action are deduplicated by FeedState.
type Feed struct {
	api      *APIClient
	state    *FeedState
	pageSize int
	onEvent  func(feedevent.Envelope)
	newRef   func() string

	mu       sync.Mutex
	userID   string
	username string
	session  *Session
	done     chan struct{}
}

type FeedOption func(*Feed)

// WithPageSize sets the timeline page size used by Load.
func WithPageSize(n int) FeedOption { return func(f *Feed) { f.pageSize = n } }

// WithEventHook is called for every realtime envelope after it was applied.
func WithEventHook(fn func(feedevent.Envelope)) FeedOption {
	return func(f *Feed) { f.onEvent = fn }
}

func NewFeed(api *APIClient, opts ...FeedOption) *Feed {
	f := &Feed{
		api:      api,
		state:    NewFeedState(""),
		pageSize: 10,
		newRef:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feed) State() *FeedState { return f.state }
func (f *Feed) API() *APIClient   { return f.api }

func (f *Feed) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

// Login authenticates; the token is reused by every later call and reconnect.
func (f *Feed) Login(ctx context.Context, email, password string) error {
	res, err := f.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.userID, f.username = res.UserID, res.Username
	f.mu.Unlock()
	f.state.SetSelf(res.UserID)
	return nil
}

// Load replaces the feed with the first timeline page.
func (f *Feed) Load(ctx context.Context) error {
	page, err := f.api.Timeline(ctx, 1, f.pageSize)
	if err != nil {
		return err
	}
	f.state.Load(page.Posts)
	return nil
}

// Connect starts the realtime session in the background. On reconnect the
// timeline is reloaded since events may have been missed while offline.
func (f *Feed) Connect(ctx context.Context, cfg SessionConfig) *Session {
	if cfg.URL == "" {
		cfg.URL = f.api.WebsocketURL()
	}
	userHook := cfg.OnConnect
	cfg.OnConnect = func(reconnect bool) {
		if reconnect {
			rctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := f.Load(rctx); err != nil {
				logger.Warn("timeline reload after reconnect failed", zap.Error(err))
			}
			cancel()
		}
		if userHook != nil {
			userHook(reconnect)
		}
	}
	s := NewSession(cfg, f.api.Token)
	done := make(chan struct{})

	f.mu.Lock()
	f.session, f.done = s, done
	f.mu.Unlock()

	go func() {
		if err := s.Run(ctx); err != nil {
			logger.Error("realtime session ended", zap.Error(err))
		}
	}()
	go func() {
		defer close(done)
		for env := range s.Events() {
			if _, err := f.state.Apply(env); err != nil {
				logger.Warn("realtime event ignored", zap.String("event", env.Event), zap.Error(err))
				continue
			}
			if f.onEvent != nil {
				f.onEvent(env)
			}
		}
	}()
	return s
}

// Close stops the realtime session and waits for pending events to be applied.
func (f *Feed) Close() {
	f.mu.Lock()
	s, done := f.session, f.done
	f.mu.Unlock()
	if s == nil {
		return
	}
	s.Close()
	<-done
}

// rollback decides whether a failed call should undo the optimistic change:
// requests the server refused are undone, transport or server failures keep
// the local change marked local-only.
func rollback(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Rejected()
}

// ToggleLike flips the like state locally and settles it with the server.
func (f *Feed) ToggleLike(ctx context.Context, postID string) error {
	ticket, ok := f.state.BeginLike(postID)
	action, count, err := f.api.ToggleLike(ctx, postID)
	if !ok {
		return err
	}
	if err != nil {
		f.state.FailLike(ticket, rollback(err))
		return err
	}
	f.state.ConfirmLike(ticket, action, count)
	return nil
}

// Share bumps the share count locally and settles it with the server. A
// refused share is undone; on transport or server failure the bump stays
// marked local-only.
func (f *Feed) Share(ctx context.Context, postID string) error {
	ticket, ok := f.state.BeginShare(postID)
	count, err := f.api.Share(ctx, postID)
	if !ok {
		return err
	}
	if err != nil {
		f.state.FailShare(ticket, rollback(err))
		return err
	}
	f.state.ConfirmShare(ticket, count)
	return nil
}

// Publish creates a post, showing it immediately as provisional.
func (f *Feed) Publish(ctx context.Context, in CreatePostRequest) (string, error) {
	ref := f.newRef()
	in.ClientRef = ref

	f.mu.Lock()
	draft := feedevent.Post{
		AuthorID:     f.userID,
		Username:     f.username,
		Caption:      in.Caption,
		Rating:       in.Rating,
		Category:     in.Category,
		ProductPhoto: in.ProductPhoto,
		ProductURL:   in.ProductURL,
		CreatedAt:    time.Now().UTC(),
	}
	f.mu.Unlock()
	f.state.BeginCreate(ref, draft)

	post, err := f.api.CreatePost(ctx, in)
	if err != nil {
		f.state.FailCreate(ref, rollback(err))
		return "", err
	}
	f.state.ConfirmCreate(ref, *post)
	return post.ID, nil
}

// Comment adds a comment, showing it immediately as provisional.
func (f *Feed) Comment(ctx context.Context, postID, text string) (string, error) {
	ref := f.newRef()
	f.mu.Lock()
	draft := feedevent.Comment{AuthorID: f.userID, Username: f.username, Text: text, CreatedAt: time.Now().UTC()}
	f.mu.Unlock()
	began := f.state.BeginComment(postID, ref, draft)

	c, err := f.api.AddComment(ctx, postID, text, ref)
	if err != nil {
		if began {
			f.state.FailComment(postID, ref, rollback(err))
		}
		return "", err
	}
	f.state.ConfirmComment(ref, *c)
	return c.ID, nil
}

// LoadComments fetches the comments of a post into the state.
func (f *Feed) LoadComments(ctx context.Context, postID string) error {
	list, err := f.api.Comments(ctx, postID)
	if err != nil {
		return err
	}
	f.state.LoadComments(postID, list)
	return nil
}

// DeletePost removes the post once the server confirmed the deletion.
func (f *Feed) DeletePost(ctx context.Context, postID string) error {
	if err := f.api.DeletePost(ctx, postID); err != nil {
		return err
	}
	f.state.Remove(postID)
	return nil
}

func (f *Feed) DeleteComment(ctx context.Context, postID, commentID string) error {
	if err := f.api.DeleteComment(ctx, postID, commentID); err != nil {
		return err
	}
	f.state.RemoveComment(postID, commentID)
	return nil
}

// Subscribe follows a category's post:new events.
func (f *Feed) Subscribe(category string) error {
	f.mu.Lock()
	s := f.session
	f.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Subscribe(feedevent.CategoryTopic(category))
}
