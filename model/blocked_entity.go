package model

import "time"

// BlockedEntity is the authoritative block record. The unique index on
// (entity_type, entity_value) keeps exactly one active record per identity;
// writes are idempotent replacements, blocks never stack.
type BlockedEntity struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text;not null"`
	EntityType  string     `json:"entity_type" gorm:"not null;size:10;uniqueIndex:idx_blocked_entity_key"`
	EntityValue string     `json:"entity_value" gorm:"not null;size:255;uniqueIndex:idx_blocked_entity_key"`
	Reason      string     `json:"reason" gorm:"not null;type:text"`
	BlockedBy   string     `json:"blocked_by,omitempty" gorm:"size:64"`
	BlockedAt   time.Time  `json:"blocked_at" gorm:"not null"`
	UnblockAt   *time.Time `json:"unblock_at,omitempty" gorm:"index"`
	IsPermanent bool       `json:"is_permanent" gorm:"default:false;not null"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"not null"`
}

// Active reports whether the record still blocks at the given instant.
func (b *BlockedEntity) Active(now time.Time) bool {
	if b.IsPermanent {
		return true
	}
	return b.UnblockAt != nil && b.UnblockAt.After(now)
}
