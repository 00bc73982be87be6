package service

import (
	"context"

	"github.com/d60-Lab/review-feed/internal/repository"
	"github.com/d60-Lab/review-feed/pkg/apperr"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
)

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, actor Actor, toUserID string) error
	Unfollow(ctx context.Context, fromUserID, toUserID string) error
	ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
	events     emitter
}

func NewRelationshipService(followRepo repository.FollowRepository, userRepo repository.UserRepository, events EventPublisher) RelationshipService {
	return &relationshipService{followRepo: followRepo, userRepo: userRepo, events: emitter{pub: events}}
}

func (s *relationshipService) Follow(ctx context.Context, actor Actor, toUserID string) error {
	if actor.ID == toUserID {
		return apperr.Wrap(apperr.KindValidation, msgFollowSelf, ErrFollowSelf)
	}
	if _, err := s.userRepo.FindByID(ctx, toUserID); err != nil {
		return fromStore(err, msgUserNotFound)
	}
	created, err := s.followRepo.Create(ctx, actor.ID, toUserID)
	if err != nil {
		return fromStore(err, msgUserNotFound)
	}
	// 重复关注不再通知
	if created {
		s.events.emit(feedevent.UserFollowed, func(pub EventPublisher) {
			pub.SendToUser(toUserID, feedevent.UserFollowed, feedevent.NotificationPayload{
				Type: "follow", ActorID: actor.ID, ActorName: actor.Username,
			})
		})
	}
	return nil
}

func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID string) error {
	return fromStore(s.followRepo.Delete(ctx, fromUserID, toUserID), msgUserNotFound)
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	_, limit, offset := normalizePage(page, pageSize)
	items, err := s.followRepo.ListFollowings(ctx, userID, offset, limit)
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, nil
}

func (s *relationshipService) ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	_, limit, offset := normalizePage(page, pageSize)
	items, err := s.followRepo.ListFollowers(ctx, userID, offset, limit)
	if err != nil {
		return nil, fromStore(err, msgUserNotFound)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FollowerID
	}
	return res, nil
}
