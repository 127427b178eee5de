// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// ChatsStats returns the number of chats visible for ownerID (all chats when
// ownerID is empty) and the greatest UpdatedAt among them. maxUpdatedAt is nil
// when there are no rows.
func ChatsStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Chat{}).Scopes(scopeOwner(ownerID))

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Ordered single-row read instead of MAX(): SQLite returns MAX() as TEXT.
	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Chat{}).Scopes(scopeOwner(ownerID)).
		Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns the number of messages in a chat and the newest
// CreatedAt. Messages are append-only, so the pair changes on every append.
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (count int64, maxCreatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
