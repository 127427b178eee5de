// Package services – FeedbackService
//
// FeedbackService governs how users rate assistant messages (-1 or +1). It
// checks that the message exists, that the caller owns its chat (or is an
// administrator), that the message was written by the assistant, and that
// the caller has not rated it before.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/repo"
)

// FeedbackService implements the use-cases around message feedback.
type FeedbackService struct {
	DB *gorm.DB
}

// Leave records a rating for messageID on behalf of the caller.
//
// Errors:
//   - ErrInvalidFeedback when value is not -1 or 1.
//   - ErrMessageNotFound when the message does not exist.
//   - ErrForbiddenFeedback when the caller cannot access the chat or the
//     message is not an assistant reply.
//   - ErrDuplicateFeedback when the caller already rated the message.
func (s *FeedbackService) Leave(ctx context.Context, p auth.Principal, messageID string, value int) error {
	ctx, span := otel.Tracer("services/FeedbackService").Start(ctx, "Leave",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.String("user.id", p.UserID),
			attribute.Int("value", value),
		))
	defer span.End()

	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		chat, err := repo.GetChat(ctx, tx, msg.ChatID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if !p.CanAccess(chat.OwnerID) || msg.Role != domain.AuthorAssistant {
			return ErrForbiddenFeedback
		}

		if err := repo.CreateFeedback(ctx, tx, messageID, p.UserID, value); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}
