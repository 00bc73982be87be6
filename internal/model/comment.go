package model

import "time"

// Comment 评论
type Comment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PostID    string    `gorm:"type:varchar(36);not null;index:idx_comment_post" json:"post_id"`
	AuthorID  string    `gorm:"type:varchar(36);not null" json:"author_id"`
	Text      string    `gorm:"type:text;not null;default:''" json:"comment_text"`
	CreatedAt time.Time `json:"created_at"`

	Username string `gorm:"->;-:migration" json:"username"`
}

func (Comment) TableName() string { return "comments" }
