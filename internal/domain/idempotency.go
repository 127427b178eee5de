package domain

import "time"

// Idempotency records the outcome of a processed message exchange keyed by
// (user_id, chat_id, key). A retried request with the same key replays the
// stored messages instead of calling the completion service again.
type Idempotency struct {
	ID                 string    `gorm:"type:char(36);primaryKey"`
	UserID             string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_chat_key,priority:1"`
	ChatID             string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_chat_key,priority:2"`
	Key                string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_chat_key,priority:3"`
	UserMessageID      string    `gorm:"type:char(36);not null"`
	AssistantMessageID string    `gorm:"type:char(36);not null"`
	Status             int       `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt          time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
