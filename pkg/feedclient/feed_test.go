package feedclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/internal/api"
	"github.com/d60-Lab/review-feed/internal/realtime"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/internal/service"
	"github.com/d60-Lab/review-feed/pkg/auth"
	"github.com/d60-Lab/review-feed/pkg/database"
	"github.com/d60-Lab/review-feed/pkg/feedclient"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

func init() { gin.SetMode(gin.TestMode) }

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newServer(t *testing.T) (*httptest.Server, *realtime.Hub) {
	t.Helper()
	db, err := database.OpenTest(uuid.NewString())
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.Config{})
	stop := hub.Start(2)
	tokens := auth.NewTokenManager("feed-secret", time.Hour)
	users := repository.NewUserRepository(db)
	cfg := &config.Config{Server: config.ServerConfig{CORSOrigins: []string{"*"}}}
	r := api.NewRouter(cfg, api.Deps{
		DB:     db,
		Tokens: tokens,
		Hub:    hub,
		Posts: service.NewPostService(
			repository.NewPostRepository(db),
			repository.NewLikeRepository(db),
			repository.NewCommentRepository(db),
			repository.NewShareRepository(db),
			nil,
			hub,
		),
		Users:     service.NewUserService(users, tokens),
		Relations: service.NewRelationshipService(repository.NewFollowRepository(db), users, hub),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = stop(context.Background())
		srv.Close()
	})
	return srv, hub
}

type counter struct{ n atomic.Int64 }

func (c *counter) hook(event string) func(feedevent.Envelope) {
	return func(env feedevent.Envelope) {
		if env.Event == event {
			c.n.Add(1)
		}
	}
}

func connectedFeed(t *testing.T, ctx context.Context, srv *httptest.Server, name string, opts ...feedclient.FeedOption) *feedclient.Feed {
	t.Helper()
	client := feedclient.NewAPIClient(srv.URL, srv.Client())
	_, err := client.Register(ctx, feedclient.RegisterRequest{
		Username: name, Email: name + "@example.com", Password: "secret123", BirthDate: "21/04/1990",
	})
	require.NoError(t, err)

	f := feedclient.NewFeed(client, opts...)
	require.NoError(t, f.Login(ctx, name+"@example.com", "secret123"))
	require.NoError(t, f.Load(ctx))
	f.Connect(ctx, feedclient.SessionConfig{ReconnectDelay: 10 * time.Millisecond, MaxAttempts: 3})
	t.Cleanup(f.Close)
	return f
}

func TestFeed_TwoClientsConverge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, hub := newServer(t)

	var aliceCreated, bobLikes, bobComments counter
	alice := connectedFeed(t, ctx, srv, "alice", feedclient.WithEventHook(aliceCreated.hook(feedevent.PostCreated)))
	bobHooks := func(env feedevent.Envelope) {
		bobLikes.hook(feedevent.LikeUpdate)(env)
		bobComments.hook(feedevent.CommentAdded)(env)
	}
	bob := connectedFeed(t, ctx, srv, "bob", feedclient.WithEventHook(bobHooks))
	require.Eventually(t, func() bool { return hub.Stats().Sessions == 2 }, waitFor, tick)

	rating := 5
	postID, err := alice.Publish(ctx, feedclient.CreatePostRequest{Caption: "Great phone!", Rating: &rating})
	require.NoError(t, err)

	// 自己的回声与 HTTP 响应合并为一条
	require.Eventually(t, func() bool { return aliceCreated.n.Load() == 1 }, waitFor, tick)
	items := alice.State().Posts()
	require.Len(t, items, 1)
	assert.Equal(t, postID, items[0].ID)
	assert.False(t, items[0].Provisional)
	assert.Equal(t, "Great phone!", items[0].Caption)

	require.Eventually(t, func() bool { _, ok := bob.State().Get(postID); return ok }, waitFor, tick)

	require.NoError(t, bob.ToggleLike(ctx, postID))
	require.Eventually(t, func() bool { return bobLikes.n.Load() == 1 }, waitFor, tick)
	got, _ := bob.State().Get(postID)
	assert.True(t, got.IsLiked)
	assert.EqualValues(t, 1, got.LikesCount)

	require.Eventually(t, func() bool {
		it, _ := alice.State().Get(postID)
		return it.LikesCount == 1
	}, waitFor, tick)
	got, _ = alice.State().Get(postID)
	assert.False(t, got.IsLiked)

	commentID, err := bob.Comment(ctx, postID, "Comprei também")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bobComments.n.Load() == 1 }, waitFor, tick)
	got, _ = bob.State().Get(postID)
	assert.EqualValues(t, 1, got.CommentsCount)
	comments := bob.State().Comments(postID)
	require.Len(t, comments, 1)
	assert.Equal(t, commentID, comments[0].ID)

	require.Eventually(t, func() bool {
		it, _ := alice.State().Get(postID)
		return it.CommentsCount == 1
	}, waitFor, tick)

	require.NoError(t, bob.Share(ctx, postID))
	got, _ = bob.State().Get(postID)
	assert.EqualValues(t, 1, got.SharesCount)
	require.Eventually(t, func() bool {
		it, _ := alice.State().Get(postID)
		return it.SharesCount == 1
	}, waitFor, tick)

	require.NoError(t, alice.DeletePost(ctx, postID))
	assert.Zero(t, alice.State().Len())
	require.Eventually(t, func() bool { return bob.State().Len() == 0 }, waitFor, tick)
}

func TestFeed_CategorySubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, hub := newServer(t)

	var news counter
	alice := connectedFeed(t, ctx, srv, "alice")
	bob := connectedFeed(t, ctx, srv, "bob", feedclient.WithEventHook(news.hook(feedevent.PostNew)))
	require.Eventually(t, func() bool { return hub.Stats().Sessions == 2 }, waitFor, tick)

	require.NoError(t, bob.Subscribe("phones"))
	require.Eventually(t, func() bool { return hub.Stats().Topics == 1 }, waitFor, tick)

	cat := "phones"
	_, err := alice.Publish(ctx, feedclient.CreatePostRequest{Caption: "x", Category: &cat})
	require.NoError(t, err)
	other := "books"
	_, err = alice.Publish(ctx, feedclient.CreatePostRequest{Caption: "y", Category: &other})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return bob.State().Len() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return news.n.Load() == 1 }, waitFor, tick)
}

func TestFeed_FailedCallKeepsLocalChange(t *testing.T) {
	ctx := context.Background()
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	f := feedclient.NewFeed(feedclient.NewAPIClient(dead.URL, nil))
	f.State().SetSelf("me")
	f.State().Load([]feedevent.Post{{ID: "p1", LikesCount: 2}})

	require.Error(t, f.ToggleLike(ctx, "p1"))
	got, _ := f.State().Get("p1")
	assert.True(t, got.IsLiked)
	assert.True(t, got.LocalOnly)
	assert.EqualValues(t, 3, got.LikesCount)

	require.Error(t, f.Share(ctx, "p1"))
	got, _ = f.State().Get("p1")
	assert.EqualValues(t, 1, got.SharesCount)
	assert.True(t, got.LocalOnly)

	_, err := f.Publish(ctx, feedclient.CreatePostRequest{Caption: "offline"})
	require.Error(t, err)
	items := f.State().Posts()
	require.Len(t, items, 2)
	assert.True(t, items[0].Provisional)
	assert.True(t, items[0].LocalOnly)
}

func TestFeed_RejectedCallRollsBack(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"Post não encontrado"}`))
	}))
	defer srv.Close()

	f := feedclient.NewFeed(feedclient.NewAPIClient(srv.URL, srv.Client()))
	f.State().SetSelf("me")
	f.State().Load([]feedevent.Post{{ID: "p1", LikesCount: 2}})

	err := f.ToggleLike(ctx, "p1")
	var apiErr *feedclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Post não encontrado", apiErr.Message)

	got, _ := f.State().Get("p1")
	assert.False(t, got.IsLiked)
	assert.False(t, got.LocalOnly)
	assert.EqualValues(t, 2, got.LikesCount)

	require.ErrorAs(t, f.Share(ctx, "p1"), &apiErr)
	got, _ = f.State().Get("p1")
	assert.Zero(t, got.SharesCount)
	assert.False(t, got.LocalOnly)
}
