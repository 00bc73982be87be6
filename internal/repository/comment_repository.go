package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/review-feed/internal/model"
)

type CommentRepository interface {
	// Create fails with ErrNotFound when the post does not exist. It returns
	// the post's comment count after the insert.
	Create(ctx context.Context, c *model.Comment) (int64, error)
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	// Delete returns the comment count of the post after the removal.
	Delete(ctx context.Context, id string) (int64, error)
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func countComments(tx *gorm.DB, postID string) (int64, error) {
	var n int64
	err := tx.Model(&model.Comment{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func (r *commentRepository) Create(ctx context.Context, c *model.Comment) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, c.PostID); err != nil {
			return err
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		var err error
		count, err = countComments(tx, c.PostID)
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (r *commentRepository) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := r.db.WithContext(ctx).
		Model(&model.Comment{}).
		Select("comments.*, users.username AS username").
		Joins("LEFT JOIN users ON users.id = comments.author_id").
		Where("comments.id = ?", id).
		Take(&c).Error
	if err != nil {
		return nil, classify(err)
	}
	return &c, nil
}

func (r *commentRepository) Delete(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Comment
		if err := tx.Select("id", "post_id").Where("id = ?", id).Take(&c).Error; err != nil {
			return err
		}
		if _, err := lockPost(tx, c.PostID); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Comment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		var err error
		count, err = countComments(tx, c.PostID)
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	var res []*model.Comment
	err := r.db.WithContext(ctx).
		Model(&model.Comment{}).
		Select("comments.*, users.username AS username").
		Joins("LEFT JOIN users ON users.id = comments.author_id").
		Where("comments.post_id = ?", postID).
		Order("comments.created_at ASC, comments.id ASC").
		Find(&res).Error
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}
