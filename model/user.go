package model

import "time"

type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Username     string     `json:"username" gorm:"uniqueIndex;not null;size:30"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Role         string     `json:"role" gorm:"not null;default:user;size:20"`
	TenantID     string     `json:"tenant_id,omitempty" gorm:"index;size:64"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
}
