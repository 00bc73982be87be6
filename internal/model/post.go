package model

import "time"

// Post 用户发布的内容（可选为商品评测）
// Optional fields are nullable columns: nil means unset.
type Post struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	AuthorID     string    `gorm:"type:varchar(36);index:idx_post_author;not null" json:"author_id"`
	Caption      string    `gorm:"type:text;not null" json:"caption"`
	Rating       *int      `gorm:"index:idx_post_rating" json:"rating"`
	Category     *string   `gorm:"type:varchar(100);index:idx_post_category" json:"category"`
	ProductPhoto *string   `gorm:"type:text" json:"product_photo"`
	ProductURL   *string   `gorm:"type:text" json:"product_url"`
	CreatedAt    time.Time `gorm:"index:idx_post_created" json:"created_at"`

	// derived, never stored
	Username      string `gorm:"->;-:migration" json:"username"`
	LikesCount    int64  `gorm:"->;-:migration" json:"likes_count"`
	CommentsCount int64  `gorm:"->;-:migration" json:"comments_count"`
	SharesCount   int64  `gorm:"->;-:migration" json:"shares_count"`
	IsLiked       bool   `gorm:"->;-:migration" json:"isLiked"`
}

func (Post) TableName() string { return "posts" }

// PostStats 点赞 / 评论 / 转发计数
type PostStats struct {
	LikesCount    int64 `json:"likes_count"`
	CommentsCount int64 `json:"comments_count"`
	SharesCount   int64 `json:"shares_count"`
}
