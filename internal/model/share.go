package model

import "time"

// Share 转发记录；同一用户可多次转发
type Share struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PostID    string `gorm:"type:varchar(36);not null;index:idx_share_post"`
	UserID    string `gorm:"type:varchar(36);not null"`
	CreatedAt time.Time
}

func (Share) TableName() string { return "shares" }
