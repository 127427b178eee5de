// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Chat model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They do
// not check ownership; services decide who may read or change a chat.
//
// Error semantics:
//   - When a chat is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateChat inserts a new chat owned by ownerID.
func CreateChat(ctx context.Context, db *gorm.DB, ownerID, title string) (*domain.Chat, error) {
	now := time.Now().UTC()
	c := &domain.Chat{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetChat fetches a chat by ID regardless of owner.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// LockChat reads a chat inside tx and holds a row lock on it until the
// transaction ends, so concurrent appends to the same chat serialize. On
// SQLite the IMMEDIATE transaction already holds the write lock.
func LockChat(ctx context.Context, tx *gorm.DB, id string) (*domain.Chat, error) {
	q := tx.WithContext(ctx)
	if supportsRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var c domain.Chat
	if err := q.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// scopeOwner restricts a chats query to ownerID; an empty ownerID keeps
// every row.
func scopeOwner(ownerID string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if ownerID == "" {
			return q
		}
		return q.Where("chats.owner_id = ?", ownerID)
	}
}

// CountChats returns the number of chats owned by ownerID, or all chats when
// ownerID is empty.
func CountChats(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Scopes(scopeOwner(ownerID)).
		Count(&total).Error
	return total, err
}

// ListChatsPage returns chats most recently updated first, each carrying the
// owner's email. An empty ownerID lists every chat.
func ListChatsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Chat, error) {
	var out []domain.Chat
	err := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Select("chats.id, chats.title, chats.owner_id, chats.created_at, chats.updated_at, users.email AS owner_email").
		Joins("JOIN users ON users.id = chats.owner_id").
		Scopes(scopeOwner(ownerID)).
		Order("chats.updated_at DESC, chats.id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TouchChat sets updated_at on a chat.
func TouchChat(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at.UTC()).Error
}

// UpdateChatTitle changes a chat's title and bumps updated_at. It returns
// ErrNotFound when no row matches.
func UpdateChatTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	res := db.WithContext(ctx).
		Model(&domain.Chat{}).
		Where("id = ?", id).
		Updates(map[string]any{"title": title, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
