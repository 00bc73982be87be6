package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

func TestCreatePost_TrimsAndEmits(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	p, err := f.posts.CreatePost(context.Background(), alice, CreatePostInput{
		Caption:    "  Great phone!  ",
		Rating:     intp(5),
		Category:   strp("  phones "),
		ProductURL: strp("   "),
		ClientRef:  "tmp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Great phone!", p.Caption)
	assert.Equal(t, 5, *p.Rating)
	assert.Equal(t, "phones", *p.Category)
	assert.Nil(t, p.ProductURL)
	assert.Zero(t, p.LikesCount)
	assert.Zero(t, p.CommentsCount)
	assert.NotEmpty(t, p.ID)

	created := f.pub.named(feedevent.PostCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "all", created[0].kind)
	payload := created[0].data.(feedevent.PostCreatedPayload)
	assert.Equal(t, p.ID, payload.Post.ID)
	assert.Equal(t, "tmp-1", payload.ClientRef)

	scoped := f.pub.named(feedevent.PostNew)
	require.Len(t, scoped, 1)
	assert.Equal(t, "category:phones", scoped[0].target)
}

func TestCreatePost_NoCategoryNoTopicEvent(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.posts.CreatePost(context.Background(), alice, CreatePostInput{Caption: "plain"})
	require.NoError(t, err)
	assert.Len(t, f.pub.named(feedevent.PostCreated), 1)
	assert.Empty(t, f.pub.named(feedevent.PostNew))
}

func TestCreatePost_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	ctx := context.Background()

	_, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "   "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	for _, r := range []int{0, 6, -1} {
		_, err = f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "ok", Rating: intp(r)})
		require.True(t, apperr.Is(err, apperr.KindValidation), "rating %d", r)
		assert.Equal(t, "Rating deve estar entre 1 e 5", err.(*apperr.Error).Message)
	}

	_, err = f.posts.CreatePost(ctx, Actor{}, CreatePostInput{Caption: "ok"})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Empty(t, f.pub.named(feedevent.PostCreated))
}

func TestCreatePost_BroadcastFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	svc := NewPostService(
		repository.NewPostRepository(f.db),
		repository.NewLikeRepository(f.db),
		repository.NewCommentRepository(f.db),
		repository.NewShareRepository(f.db),
		nil,
		panickingPublisher{},
	)

	p, err := svc.CreatePost(context.Background(), alice, CreatePostInput{Caption: "still ok", Category: strp("x")})
	require.NoError(t, err)

	res, err := svc.ToggleLike(context.Background(), p.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.ActionLiked, res.Action)
}

func TestToggleLike_TwiceRestoresCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	r1, err := f.posts.ToggleLike(ctx, p.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, model.ActionLiked, r1.Action)
	assert.Equal(t, int64(1), r1.LikesCount)

	liked, err := f.posts.LikeStatus(ctx, p.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	r2, err := f.posts.ToggleLike(ctx, p.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUnliked, r2.Action)

	st, err := f.posts.Stats(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, st.LikesCount)

	updates := f.pub.named(feedevent.LikeUpdate)
	require.Len(t, updates, 2)
	first := updates[0].data.(feedevent.LikeUpdatePayload)
	assert.Equal(t, "liked", first.Action)
	assert.Equal(t, bob.ID, first.UserID)
	assert.Equal(t, "bob", first.Username)

	// only the "liked" transition notifies the author
	notes := f.pub.named(feedevent.Notification)
	require.Len(t, notes, 1)
	assert.Equal(t, "alice", notes[0].target)
}

func TestToggleLike_SelfLikeNoNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	_, err = f.posts.ToggleLike(ctx, p.ID, alice)
	require.NoError(t, err)
	assert.Empty(t, f.pub.named(feedevent.Notification))
}

func TestToggleLike_MissingPost(t *testing.T) {
	f := newFixture(t)
	bob := f.user(t, "bob")
	_, err := f.posts.ToggleLike(context.Background(), "missing", bob)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Empty(t, f.pub.named(feedevent.LikeUpdate))
}

func TestDeletePost_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "mine"})
	require.NoError(t, err)

	err = f.posts.DeletePost(ctx, p.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	err = f.posts.DeletePost(ctx, "missing", bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.posts.DeletePost(ctx, p.ID, alice.ID))
	deleted := f.pub.named(feedevent.PostDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, p.ID, deleted[0].data.(feedevent.PostDeletedPayload).PostID)

	_, err = f.posts.GetPost(ctx, p.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestComments_AddListDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	c1, err := f.posts.AddComment(ctx, p.ID, bob, "first", "ref-1")
	require.NoError(t, err)
	c2, err := f.posts.AddComment(ctx, p.ID, alice, "", "")
	require.NoError(t, err)
	assert.Equal(t, "", c2.Text)

	list, err := f.posts.ListComments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, c1.ID, list[0].ID)
	assert.Equal(t, c2.ID, list[1].ID)

	added := f.pub.named(feedevent.CommentAdded)
	require.Len(t, added, 2)
	ev := added[0].data.(feedevent.CommentAddedPayload)
	assert.Equal(t, c1.ID, ev.CommentID)
	assert.Equal(t, "ref-1", ev.ClientRef)
	assert.Equal(t, "bob", ev.Comment.Username)

	err = f.posts.DeleteComment(ctx, p.ID, c1.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	err = f.posts.DeleteComment(ctx, p.ID, "missing", bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	err = f.posts.DeleteComment(ctx, "other-post", c1.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, f.posts.DeleteComment(ctx, p.ID, c1.ID, bob.ID))
	assert.Len(t, f.pub.named(feedevent.CommentDeleted), 1)

	_, err = f.posts.AddComment(ctx, "missing", bob, "x", "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListings_PaginationAndRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	for i := 0; i < 12; i++ {
		in := CreatePostInput{Caption: "post", Rating: intp(i%5 + 1)}
		if i%2 == 0 {
			in.Category = strp("even")
		}
		_, err := f.posts.CreatePost(ctx, alice, in)
		require.NoError(t, err)
	}

	page, err := f.posts.ListTimeline(ctx, alice.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 10)
	assert.Equal(t, int64(12), page.Total)
	for i := 1; i < len(page.Posts); i++ {
		assert.False(t, page.Posts[i].CreatedAt.After(page.Posts[i-1].CreatedAt))
	}

	page2, err := f.posts.ListTimeline(ctx, alice.ID, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page2.Posts, 2)
	assert.Equal(t, 10, page2.Offset)

	def, err := f.posts.ListTimeline(ctx, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, def.Page)
	assert.Equal(t, defaultPageSize, def.Limit)

	byCat, err := f.posts.ListByCategory(ctx, "even", "", 1, 50)
	require.NoError(t, err)
	assert.Len(t, byCat.Posts, 6)

	byUser, err := f.posts.ListByUser(ctx, alice.ID, "", 1, 50)
	require.NoError(t, err)
	assert.Len(t, byUser.Posts, 12)

	_, err = f.posts.ListByRating(ctx, 7, "", 1, 10)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	byRating, err := f.posts.ListByRating(ctx, 1, "", 1, 10)
	require.NoError(t, err)
	for _, p := range byRating.Posts {
		assert.Equal(t, 1, *p.Rating)
	}

	cats, err := f.posts.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"even"}, cats)
}

func TestListLikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	empty, err := f.posts.ListLikes(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.posts.ToggleLike(ctx, p.ID, alice)
	require.NoError(t, err)
	_, err = f.posts.ToggleLike(ctx, p.ID, bob)
	require.NoError(t, err)

	likers, err := f.posts.ListLikes(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, likers, 2)
	assert.Equal(t, "bob", likers[0].Username)
}

func TestComments_EventsCarryCommittedCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	c1, err := f.posts.AddComment(ctx, p.ID, bob, "one", "")
	require.NoError(t, err)
	_, err = f.posts.AddComment(ctx, p.ID, bob, "two", "")
	require.NoError(t, err)
	require.NoError(t, f.posts.DeleteComment(ctx, p.ID, c1.ID, bob.ID))

	added := f.pub.named(feedevent.CommentAdded)
	require.Len(t, added, 2)
	for i, want := range []int64{1, 2} {
		n := added[i].data.(feedevent.CommentAddedPayload).CommentsCount
		require.NotNil(t, n)
		assert.Equal(t, want, *n)
	}
	deleted := f.pub.named(feedevent.CommentDeleted)
	require.Len(t, deleted, 1)
	n := deleted[0].data.(feedevent.CommentDeletedPayload).CommentsCount
	require.NotNil(t, n)
	assert.Equal(t, int64(1), *n)
}

func TestSharePost_CountsAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	p, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "post"})
	require.NoError(t, err)

	r1, err := f.posts.SharePost(ctx, p.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.SharesCount)
	r2, err := f.posts.SharePost(ctx, p.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.SharesCount)
	_, err = f.posts.SharePost(ctx, p.ID, alice)
	require.NoError(t, err)

	updates := f.pub.named(feedevent.ShareUpdate)
	require.Len(t, updates, 3)
	last := updates[2].data.(feedevent.ShareUpdatePayload)
	assert.Equal(t, int64(3), last.SharesCount)
	assert.Equal(t, alice.ID, last.UserID)

	// 作者自己转发不通知
	notes := f.pub.named(feedevent.Notification)
	require.Len(t, notes, 2)
	assert.Equal(t, "share", notes[0].data.(feedevent.NotificationPayload).Type)
	assert.Equal(t, alice.ID, notes[0].target)

	got, err := f.posts.GetPost(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.SharesCount)
	st, err := f.posts.Stats(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.SharesCount)

	_, err = f.posts.SharePost(ctx, "missing", bob)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = f.posts.SharePost(ctx, p.ID, Actor{})
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Len(t, f.pub.named(feedevent.ShareUpdate), 3)
}

func TestListByCategory_BlankMatchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	_, err := f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "a", Category: strp("phones")})
	require.NoError(t, err)
	_, err = f.posts.CreatePost(ctx, alice, CreatePostInput{Caption: "b"})
	require.NoError(t, err)

	for _, cat := range []string{"", "   "} {
		page, err := f.posts.ListByCategory(ctx, cat, "", 2, 5)
		require.NoError(t, err)
		assert.Empty(t, page.Posts)
		assert.NotNil(t, page.Posts)
		assert.Zero(t, page.Total)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 5, page.Offset)
	}

	page, err := f.posts.ListByCategory(ctx, " phones ", "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 1)
}

func TestNormalizePage_Bounds(t *testing.T) {
	page, limit, offset := normalizePage(1<<40, 1000)
	assert.Equal(t, maxPage, page)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, (maxPage-1)*maxPageSize, offset)
	assert.Positive(t, offset)

	page, limit, offset = normalizePage(-3, -1)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)
	assert.Zero(t, offset)

	f := newFixture(t)
	res, err := f.posts.ListTimeline(context.Background(), "", 1<<62, 10)
	require.NoError(t, err)
	assert.Empty(t, res.Posts)
	assert.Equal(t, maxPage, res.Page)
}
