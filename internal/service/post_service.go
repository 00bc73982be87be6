package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/review-feed/internal/cache"
	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
	// maxPage bounds the offset handed to the store.
	maxPage = 100000
)

// CreatePostInput 发帖参数；可选字段 nil 表示未设置
type CreatePostInput struct {
	Caption      string
	Rating       *int
	Category     *string
	ProductPhoto *string
	ProductURL   *string
	ClientRef    string
}

// LikeResult is the committed state of a like toggle.
type LikeResult struct {
	Action     model.LikeAction
	LikesCount int64
}

// ShareResult is the committed state of a share.
type ShareResult struct {
	SharesCount int64
}

// PostPage is one offset page of a listing.
type PostPage struct {
	Posts  []*model.Post
	Page   int
	Limit  int
	Offset int
	Total  int64
}

// PostService 帖子、点赞、评论、转发
type PostService interface {
	CreatePost(ctx context.Context, actor Actor, in CreatePostInput) (*model.Post, error)
	GetPost(ctx context.Context, postID, viewerID string) (*model.Post, error)
	DeletePost(ctx context.Context, postID, userID string) error

	ToggleLike(ctx context.Context, postID string, actor Actor) (*LikeResult, error)
	LikeStatus(ctx context.Context, postID, userID string) (bool, error)
	ListLikes(ctx context.Context, postID string) ([]model.Liker, error)

	AddComment(ctx context.Context, postID string, actor Actor, text, clientRef string) (*model.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID, userID string) error
	ListComments(ctx context.Context, postID string) ([]*model.Comment, error)

	SharePost(ctx context.Context, postID string, actor Actor) (*ShareResult, error)

	Stats(ctx context.Context, postID string) (model.PostStats, error)
	Categories(ctx context.Context) ([]string, error)

	ListTimeline(ctx context.Context, viewerID string, page, limit int) (*PostPage, error)
	ListByUser(ctx context.Context, authorID, viewerID string, page, limit int) (*PostPage, error)
	ListByCategory(ctx context.Context, category, viewerID string, page, limit int) (*PostPage, error)
	ListByRating(ctx context.Context, rating int, viewerID string, page, limit int) (*PostPage, error)
}

type postService struct {
	posts    repository.PostRepository
	likes    repository.LikeRepository
	comments repository.CommentRepository
	shares   repository.ShareRepository
	cache    cache.FeedCache
	events   emitter
	locks    *postLocks
	now      func() time.Time
}

// PostOption customises a PostService.
type PostOption func(*postService)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PostOption {
	return func(s *postService) { s.now = now }
}

func NewPostService(
	posts repository.PostRepository,
	likes repository.LikeRepository,
	comments repository.CommentRepository,
	shares repository.ShareRepository,
	feedCache cache.FeedCache,
	events EventPublisher,
	opts ...PostOption,
) PostService {
	if feedCache == nil {
		feedCache = cache.Nop{}
	}
	s := &postService{
		posts:    posts,
		likes:    likes,
		comments: comments,
		shares:   shares,
		cache:    feedCache,
		events:   emitter{pub: events},
		locks:    &postLocks{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// trimOptional trims s; blank becomes nil.
func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ValidRating reports whether r is an accepted rating.
func ValidRating(r int) bool { return r >= 1 && r <= 5 }

func (s *postService) CreatePost(ctx context.Context, actor Actor, in CreatePostInput) (*model.Post, error) {
	if actor.ID == "" {
		return nil, apperr.Auth(msgUnauthenticated)
	}
	caption := strings.TrimSpace(in.Caption)
	if caption == "" {
		return nil, apperr.Validation(msgCaptionRequired)
	}
	if in.Rating != nil && !ValidRating(*in.Rating) {
		return nil, apperr.Validation(msgRatingRange)
	}

	p := &model.Post{
		ID:           uuid.New().String(),
		AuthorID:     actor.ID,
		Caption:      caption,
		Rating:       in.Rating,
		Category:     trimOptional(in.Category),
		ProductPhoto: trimOptional(in.ProductPhoto),
		ProductURL:   trimOptional(in.ProductURL),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	p.Username = actor.Username

	payload := feedevent.PostCreatedPayload{Post: toEventPost(p), ClientRef: in.ClientRef}
	if p.Category != nil {
		payload.Category = *p.Category
		s.cache.InvalidateCategories(ctx)
	}
	s.events.emit(feedevent.PostCreated, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.PostCreated, payload)
		if payload.Category != "" {
			pub.BroadcastToTopic(feedevent.CategoryTopic(payload.Category), feedevent.PostNew, payload)
		}
	})
	return p, nil
}

func (s *postService) GetPost(ctx context.Context, postID, viewerID string) (*model.Post, error) {
	p, err := s.posts.FindByID(ctx, postID, viewerID)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	return p, nil
}

func (s *postService) DeletePost(ctx context.Context, postID, userID string) error {
	author, err := s.posts.AuthorOf(ctx, postID)
	if err != nil {
		return fromStore(err, msgPostNotFound)
	}
	if author != userID {
		return apperr.Forbidden(msgForbiddenPost)
	}
	defer s.locks.lock(postID)()
	if err := s.posts.Delete(ctx, postID); err != nil {
		return fromStore(err, msgPostNotFound)
	}
	s.cache.InvalidateStats(ctx, postID)
	s.cache.InvalidateCategories(ctx)
	s.events.emit(feedevent.PostDeleted, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.PostDeleted, feedevent.PostDeletedPayload{PostID: postID})
	})
	return nil
}

func (s *postService) ToggleLike(ctx context.Context, postID string, actor Actor) (*LikeResult, error) {
	if actor.ID == "" {
		return nil, apperr.Auth(msgUnauthenticated)
	}
	// 提交与入队在同一把锁内，广播的 likes_count 按 seq 单调
	defer s.locks.lock(postID)()
	res, err := s.likes.Toggle(ctx, postID, actor.ID, s.now().UTC())
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	s.cache.InvalidateStats(ctx, postID)

	update := feedevent.LikeUpdatePayload{
		PostID:     postID,
		Action:     string(res.Action),
		UserID:     actor.ID,
		Username:   actor.Username,
		LikesCount: res.LikesCount,
	}
	s.events.emit(feedevent.LikeUpdate, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.LikeUpdate, update)
		if res.Action == model.ActionLiked && res.AuthorID != actor.ID {
			pub.SendToUser(res.AuthorID, feedevent.Notification, feedevent.NotificationPayload{
				Type: "like", ActorID: actor.ID, ActorName: actor.Username, PostID: postID,
			})
		}
	})
	return &LikeResult{Action: res.Action, LikesCount: res.LikesCount}, nil
}

func (s *postService) LikeStatus(ctx context.Context, postID, userID string) (bool, error) {
	ok, err := s.likes.Exists(ctx, postID, userID)
	if err != nil {
		return false, fromStore(err, msgPostNotFound)
	}
	return ok, nil
}

func (s *postService) ListLikes(ctx context.Context, postID string) ([]model.Liker, error) {
	res, err := s.likes.ListByPost(ctx, postID)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	if res == nil {
		res = []model.Liker{}
	}
	return res, nil
}

// AddComment stores text as given; an empty comment is accepted.
func (s *postService) AddComment(ctx context.Context, postID string, actor Actor, text, clientRef string) (*model.Comment, error) {
	if actor.ID == "" {
		return nil, apperr.Auth(msgUnauthenticated)
	}
	author, err := s.posts.AuthorOf(ctx, postID)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	c := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  actor.ID,
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	defer s.locks.lock(postID)()
	count, err := s.comments.Create(ctx, c)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	c.Username = actor.Username
	s.cache.InvalidateStats(ctx, postID)

	added := feedevent.CommentAddedPayload{
		PostID:        postID,
		CommentID:     c.ID,
		Comment:       toEventComment(c),
		CommentsCount: &count,
		ClientRef:     clientRef,
	}
	s.events.emit(feedevent.CommentAdded, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.CommentAdded, added)
		if author != actor.ID {
			pub.SendToUser(author, feedevent.Notification, feedevent.NotificationPayload{
				Type: "comment", ActorID: actor.ID, ActorName: actor.Username, PostID: postID,
			})
		}
	})
	return c, nil
}

func (s *postService) DeleteComment(ctx context.Context, postID, commentID, userID string) error {
	c, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		return fromStore(err, msgCommentNotFound)
	}
	if postID != "" && c.PostID != postID {
		return apperr.NotFound(msgCommentNotFound)
	}
	if c.AuthorID != userID {
		return apperr.Forbidden(msgForbiddenComment)
	}
	defer s.locks.lock(c.PostID)()
	count, err := s.comments.Delete(ctx, commentID)
	if err != nil {
		return fromStore(err, msgCommentNotFound)
	}
	s.cache.InvalidateStats(ctx, c.PostID)
	deleted := feedevent.CommentDeletedPayload{PostID: c.PostID, CommentID: commentID, CommentsCount: &count}
	s.events.emit(feedevent.CommentDeleted, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.CommentDeleted, deleted)
	})
	return nil
}

func (s *postService) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	res, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	if res == nil {
		res = []*model.Comment{}
	}
	return res, nil
}

// SharePost records a share; one user may share the same post repeatedly.
func (s *postService) SharePost(ctx context.Context, postID string, actor Actor) (*ShareResult, error) {
	if actor.ID == "" {
		return nil, apperr.Auth(msgUnauthenticated)
	}
	defer s.locks.lock(postID)()
	res, err := s.shares.Create(ctx, postID, actor.ID, s.now().UTC())
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	s.cache.InvalidateStats(ctx, postID)

	update := feedevent.ShareUpdatePayload{
		PostID:      postID,
		UserID:      actor.ID,
		Username:    actor.Username,
		SharesCount: res.SharesCount,
	}
	s.events.emit(feedevent.ShareUpdate, func(pub EventPublisher) {
		pub.BroadcastAll(feedevent.ShareUpdate, update)
		if res.AuthorID != actor.ID {
			pub.SendToUser(res.AuthorID, feedevent.Notification, feedevent.NotificationPayload{
				Type: "share", ActorID: actor.ID, ActorName: actor.Username, PostID: postID,
			})
		}
	})
	return &ShareResult{SharesCount: res.SharesCount}, nil
}

func (s *postService) Stats(ctx context.Context, postID string) (model.PostStats, error) {
	st, gen, ok := s.cache.Stats(ctx, postID)
	if ok {
		return st, nil
	}
	st, err := s.posts.Stats(ctx, postID)
	if err != nil {
		return st, fromStore(err, msgPostNotFound)
	}
	s.cache.SetStats(ctx, postID, gen, st)
	return st, nil
}

func (s *postService) Categories(ctx context.Context) ([]string, error) {
	cats, gen, ok := s.cache.Categories(ctx)
	if ok {
		return cats, nil
	}
	cats, err := s.posts.Categories(ctx)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	if cats == nil {
		cats = []string{}
	}
	s.cache.SetCategories(ctx, gen, cats)
	return cats, nil
}

// normalizePage applies defaults and caps; offset = (page-1) * limit.
func normalizePage(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func (s *postService) list(ctx context.Context, f repository.PostFilter, viewerID string, page, limit int) (*PostPage, error) {
	page, limit, offset := normalizePage(page, limit)
	posts, err := s.posts.List(ctx, f, viewerID, offset, limit)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	total, err := s.posts.Count(ctx, f)
	if err != nil {
		return nil, fromStore(err, msgPostNotFound)
	}
	if posts == nil {
		posts = []*model.Post{}
	}
	return &PostPage{Posts: posts, Page: page, Limit: limit, Offset: offset, Total: total}, nil
}

func (s *postService) ListTimeline(ctx context.Context, viewerID string, page, limit int) (*PostPage, error) {
	return s.list(ctx, repository.PostFilter{}, viewerID, page, limit)
}

func (s *postService) ListByUser(ctx context.Context, authorID, viewerID string, page, limit int) (*PostPage, error) {
	return s.list(ctx, repository.PostFilter{AuthorID: authorID}, viewerID, page, limit)
}

// ListByCategory matches the category exactly; a blank category matches nothing.
func (s *postService) ListByCategory(ctx context.Context, category, viewerID string, page, limit int) (*PostPage, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		page, limit, offset := normalizePage(page, limit)
		return &PostPage{Posts: []*model.Post{}, Page: page, Limit: limit, Offset: offset}, nil
	}
	return s.list(ctx, repository.PostFilter{Category: category}, viewerID, page, limit)
}

func (s *postService) ListByRating(ctx context.Context, rating int, viewerID string, page, limit int) (*PostPage, error) {
	if !ValidRating(rating) {
		return nil, apperr.Validation(msgRatingRange)
	}
	return s.list(ctx, repository.PostFilter{Rating: rating}, viewerID, page, limit)
}
