package model

import "time"

const UserTypeStandard = "is_standard"

// User 用户
type User struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Username     string     `gorm:"type:varchar(50);uniqueIndex:idx_users_username;not null" json:"username"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex:idx_users_email;not null" json:"email"`
	Password     string     `gorm:"type:varchar(255);not null" json:"-"`
	FullName     *string    `gorm:"type:varchar(255)" json:"full_name"`
	BirthDate    *time.Time `json:"birth_date"`
	Phone        *string    `gorm:"type:varchar(30)" json:"phone"`
	ProfilePhoto *string    `gorm:"type:text" json:"profile_photo"`
	CNPJ         *string    `gorm:"column:cnpj;type:varchar(20)" json:"cnpj"`
	UserType     string     `gorm:"type:varchar(20);not null;default:is_standard" json:"user_type"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"-"`
}

func (User) TableName() string { return "users" }
