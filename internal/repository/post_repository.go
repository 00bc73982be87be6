package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/review-feed/internal/model"
)

// PostFilter narrows a listing; zero fields are ignored.
type PostFilter struct {
	AuthorID string
	Category string
	Rating   int
}

type PostRepository interface {
	Create(ctx context.Context, p *model.Post) error
	// FindByID loads a post with its derived fields relative to viewerID.
	FindByID(ctx context.Context, id, viewerID string) (*model.Post, error)
	AuthorOf(ctx context.Context, id string) (string, error)
	// Delete removes the post together with its likes, comments and shares.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f PostFilter, viewerID string, offset, limit int) ([]*model.Post, error)
	Count(ctx context.Context, f PostFilter) (int64, error)
	Categories(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, id string) (model.PostStats, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

const derivedColumns = `posts.*, users.username AS username,
	(SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count,
	(SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comments_count,
	(SELECT COUNT(*) FROM shares WHERE shares.post_id = posts.id) AS shares_count,
	EXISTS (SELECT 1 FROM likes WHERE likes.post_id = posts.id AND likes.user_id = ?) AS is_liked`

func (r *postRepository) withDerived(ctx context.Context, viewerID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Select(derivedColumns, viewerID).
		Joins("LEFT JOIN users ON users.id = posts.author_id")
}

func applyFilter(q *gorm.DB, f PostFilter) *gorm.DB {
	if f.AuthorID != "" {
		q = q.Where("posts.author_id = ?", f.AuthorID)
	}
	if f.Category != "" {
		q = q.Where("posts.category = ?", f.Category)
	}
	if f.Rating != 0 {
		q = q.Where("posts.rating = ?", f.Rating)
	}
	return q
}

// lockPost takes the post row lock (FOR UPDATE) so writes on one post's likes,
// comments and shares commit one after another and each transaction counts
// the rows committed before it. sqlite drops the clause; its single writer
// already serializes.
func lockPost(tx *gorm.DB, postID string) (*model.Post, error) {
	var post model.Post
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "author_id").
		Where("id = ?", postID).
		Take(&post).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, p *model.Post) error {
	return classify(r.db.WithContext(ctx).Create(p).Error)
}

func (r *postRepository) FindByID(ctx context.Context, id, viewerID string) (*model.Post, error) {
	var p model.Post
	if err := r.withDerived(ctx, viewerID).Where("posts.id = ?", id).Take(&p).Error; err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (r *postRepository) AuthorOf(ctx context.Context, id string) (string, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Select("id", "author_id").Where("id = ?", id).Take(&p).Error; err != nil {
		return "", classify(err)
	}
	return p.AuthorID, nil
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&model.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&model.Share{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return classify(err)
}

func (r *postRepository) List(ctx context.Context, f PostFilter, viewerID string, offset, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := applyFilter(r.withDerived(ctx, viewerID), f).
		Order("posts.created_at DESC, posts.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&res).Error
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (r *postRepository) Count(ctx context.Context, f PostFilter) (int64, error) {
	var n int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&model.Post{}), f).Count(&n).Error; err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (r *postRepository) Categories(ctx context.Context) ([]string, error) {
	var cats []string
	err := r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("category IS NOT NULL AND category <> ''").
		Distinct().
		Order("category ASC").
		Pluck("category", &cats).Error
	if err != nil {
		return nil, classify(err)
	}
	return cats, nil
}

func (r *postRepository) Stats(ctx context.Context, id string) (model.PostStats, error) {
	var st model.PostStats
	err := r.db.WithContext(ctx).Raw(`SELECT
		(SELECT COUNT(*) FROM likes WHERE post_id = ?) AS likes_count,
		(SELECT COUNT(*) FROM comments WHERE post_id = ?) AS comments_count,
		(SELECT COUNT(*) FROM shares WHERE post_id = ?) AS shares_count`, id, id, id).
		Scan(&st).Error
	if err != nil {
		return st, classify(err)
	}
	return st, nil
}
