// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Feedback model.
//
// Duplicate feedback (same message_id, user_id) is rejected by the unique
// index and surfaces as ErrDuplicate; the service layer turns that into a
// domain error.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// CreateFeedback inserts a feedback row for the given message and user.
// Value must be -1 or 1; the schema CHECK rejects anything else.
func CreateFeedback(ctx context.Context, db *gorm.DB, messageID, userID string, value int) error {
	now := time.Now().UTC()
	fb := &domain.Feedback{
		ID:        uuid.NewString(),
		MessageID: messageID,
		UserID:    userID,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(fb).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}
