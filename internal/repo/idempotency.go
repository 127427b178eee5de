// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides helpers for the Idempotency model that
// lets clients retry a message exchange safely.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(chatID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND key = ? AND expires_at > ?", userID, chatID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency records the messages produced for (userID, chatID, key).
// A live record for the same tuple yields ErrDuplicate. Expired rows for the
// tuple are removed first so a key can be reused after its TTL.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, chatID, key, userMsgID, assistantMsgID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Where("user_id = ? AND chat_id = ? AND key = ? AND expires_at <= ?", userID, chatID, key, now).
		Delete(&domain.Idempotency{}).Error; err != nil {
		return nil, err
	}
	rec := &domain.Idempotency{
		ID:                 uuid.NewString(),
		UserID:             userID,
		ChatID:             chatID,
		Key:                key,
		UserMessageID:      userMsgID,
		AssistantMessageID: assistantMsgID,
		Status:             status,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
