package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/review-feed/internal/model"
)

// ShareResult is the state after a share committed.
type ShareResult struct {
	AuthorID    string
	SharesCount int64
}

type ShareRepository interface {
	// Create records one share; it fails with ErrNotFound when the post does not exist.
	Create(ctx context.Context, postID, userID string, at time.Time) (*ShareResult, error)
}

type shareRepository struct {
	db *gorm.DB
}

func NewShareRepository(db *gorm.DB) ShareRepository { return &shareRepository{db: db} }

func (r *shareRepository) Create(ctx context.Context, postID, userID string, at time.Time) (*ShareResult, error) {
	res := &ShareResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := lockPost(tx, postID)
		if err != nil {
			return err
		}
		res.AuthorID = post.AuthorID
		share := &model.Share{ID: uuid.New().String(), PostID: postID, UserID: userID, CreatedAt: at}
		if err := tx.Create(share).Error; err != nil {
			return err
		}
		return tx.Model(&model.Share{}).Where("post_id = ?", postID).Count(&res.SharesCount).Error
	})
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}
