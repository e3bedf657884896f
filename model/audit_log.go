package model

import "time"

type AuditLog struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text;not null"`
	UserID     string    `json:"user_id,omitempty" gorm:"index;size:64"`
	IP         string    `json:"ip" gorm:"not null;index;size:64"`
	Endpoint   string    `json:"endpoint" gorm:"not null;index;size:255"`
	Method     string    `json:"method" gorm:"not null;size:10"`
	StatusCode int       `json:"status_code" gorm:"not null"`
	Reason     string    `json:"reason,omitempty" gorm:"index;size:64"`
	Metadata   string    `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;index"`
}
