package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/review-feed/internal/model"
	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/database"
)

type published struct {
	kind   string // all | topic | user
	target string
	event  string
	data   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) add(p published) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func (r *recordingPublisher) BroadcastAll(event string, payload any) {
	r.add(published{kind: "all", event: event, data: payload})
}

func (r *recordingPublisher) BroadcastToTopic(topic, event string, payload any) {
	r.add(published{kind: "topic", target: topic, event: event, data: payload})
}

func (r *recordingPublisher) SendToUser(userID, event string, payload any) {
	r.add(published{kind: "user", target: userID, event: event, data: payload})
}

func (r *recordingPublisher) named(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type panickingPublisher struct{}

func (panickingPublisher) BroadcastAll(string, any)             { panic("hub down") }
func (panickingPublisher) BroadcastToTopic(string, string, any) { panic("hub down") }
func (panickingPublisher) SendToUser(string, string, any)       { panic("hub down") }

type fixture struct {
	db    *gorm.DB
	pub   *recordingPublisher
	posts PostService
	users UserService
	rels  RelationshipService
}

type stubTokens struct{}

func (stubTokens) Issue(userID, username string) (string, error) { return "tok-" + userID, nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenTest(uuid.NewString())
	require.NoError(t, err)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	pub := &recordingPublisher{}
	userRepo := repository.NewUserRepository(db)
	return &fixture{
		db:  db,
		pub: pub,
		posts: NewPostService(
			repository.NewPostRepository(db),
			repository.NewLikeRepository(db),
			repository.NewCommentRepository(db),
			repository.NewShareRepository(db),
			nil,
			pub,
			WithClock(tick),
		),
		users: NewUserService(userRepo, stubTokens{}),
		rels:  NewRelationshipService(repository.NewFollowRepository(db), userRepo, pub),
	}
}

func (f *fixture) user(t *testing.T, name string) Actor {
	t.Helper()
	u := &model.User{ID: name, Username: name, Email: name + "@example.com", Password: "p", UserType: model.UserTypeStandard}
	require.NoError(t, repository.NewUserRepository(f.db).Create(context.Background(), u))
	return Actor{ID: u.ID, Username: u.Username}
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }
