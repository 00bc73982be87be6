package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/review-feed/internal/model"
)

// ToggleResult describes the state after a toggle committed.
type ToggleResult struct {
	Action     model.LikeAction
	AuthorID   string // author of the liked post
	LikesCount int64
}

type LikeRepository interface {
	// Toggle atomically flips the (post, user) like.
	Toggle(ctx context.Context, postID, userID string, at time.Time) (*ToggleResult, error)
	Exists(ctx context.Context, postID, userID string) (bool, error)
	ListByPost(ctx context.Context, postID string) ([]model.Liker, error)
}

type likeRepository struct {
	db *gorm.DB
}

func NewLikeRepository(db *gorm.DB) LikeRepository { return &likeRepository{db: db} }

// Toggle 删除优先：删到行即取消点赞，否则插入（冲突忽略）即点赞。
// Toggles on one post serialize on the post row lock, so the returned count
// includes every toggle committed before this one.
func (r *likeRepository) Toggle(ctx context.Context, postID, userID string, at time.Time) (*ToggleResult, error) {
	res := &ToggleResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, postID)
		if err != nil {
			return err
		}
		res.AuthorID = post.AuthorID

		del := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&model.Like{})
		if del.Error != nil {
			return del.Error
		}
		if del.RowsAffected > 0 {
			res.Action = model.ActionUnliked
		} else {
			like := &model.Like{ID: uuid.New().String(), PostID: postID, UserID: userID, CreatedAt: at}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error; err != nil {
				return err
			}
			res.Action = model.ActionLiked
		}
		return tx.Model(&model.Like{}).Where("post_id = ?", postID).Count(&res.LikesCount).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (r *likeRepository) Exists(ctx context.Context, postID, userID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&cnt).Error; err != nil {
		return false, classify(err)
	}
	return cnt > 0, nil
}

func (r *likeRepository) ListByPost(ctx context.Context, postID string) ([]model.Liker, error) {
	var res []model.Liker
	err := r.db.WithContext(ctx).
		Table("likes").
		Select("likes.user_id AS user_id, users.username AS username, likes.created_at AS created_at").
		Joins("JOIN users ON users.id = likes.user_id").
		Where("likes.post_id = ?", postID).
		Order("likes.created_at DESC").
		Scan(&res).Error
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}
