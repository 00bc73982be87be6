package model

import "time"

// Follow 关注关系（A 关注 B）
type Follow struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	FollowerID string `gorm:"type:varchar(36);index:idx_follow_follower;uniqueIndex:idx_follow_pair;not null"`
	// (follower_id, followee_id) 唯一，避免重复关注
	FolloweeID string `gorm:"type:varchar(36);index:idx_follow_followee;uniqueIndex:idx_follow_pair;not null"`
	CreatedAt  time.Time
}

func (Follow) TableName() string { return "follows" }
