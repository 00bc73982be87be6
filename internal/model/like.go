package model

import "time"

// Like 点赞（同一用户对同一帖子至多一条）
type Like struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PostID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_pair;index:idx_like_post"`
	UserID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_like_pair"`
	CreatedAt time.Time
}

func (Like) TableName() string { return "likes" }

// Liker is a row of the "who liked" listing.
type Liker struct {
	UserID    string    `json:"id_user"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type LikeAction string

const (
	ActionLiked   LikeAction = "liked"
	ActionUnliked LikeAction = "unliked"
)
