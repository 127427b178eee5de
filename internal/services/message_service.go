// Package services – MessageService
//
// MessageService owns the lifecycle of chat messages. Its central operation,
// Exchange, appends the caller's message, asks the completion service for a
// reply and stores that reply, all inside one transaction that holds a row
// lock on the chat. Any failure rolls the whole exchange back.
//
// Optional enhancements: manual excerpts are appended to the system
// instruction, placeholder chat titles are replaced by one derived from the
// first question, retried requests replay their stored result, and committed
// exchanges are published as events.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/events"
	"github.com/tbourn/support-chat-backend/internal/knowledge"
	"github.com/tbourn/support-chat-backend/internal/llm"
	"github.com/tbourn/support-chat-backend/internal/repo"
	"github.com/tbourn/support-chat-backend/internal/utils"
)

// ExchangeResult is the outcome of one message exchange.
type ExchangeResult struct {
	UserMessage *domain.Message
	Reply       *domain.Message
	// Replayed is set when the result was served from an idempotency record.
	Replayed bool
}

// MessageService coordinates message persistence and assistant replies.
type MessageService struct {
	DB        *gorm.DB
	LLM       llm.Completer
	Knowledge knowledge.Source
	Events    events.Publisher

	SystemPrompt  string
	Temperature   float64
	HistoryWindow int
	MaxForwarded  int
	FallbackReply string
	// ExcerptCount is how many manual excerpts accompany each question.
	ExcerptCount int

	// Optional guards
	MaxPromptRunes int
	IdempotencyTTL time.Duration

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int

	Now func() time.Time
}

// Exchange appends content to chatID as the caller, obtains the assistant's
// reply and stores it. A non-empty idemKey makes retries return the first
// result instead of running the exchange again.
func (s *MessageService) Exchange(ctx context.Context, p auth.Principal, chatID, content, idemKey string) (*ExchangeResult, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Exchange",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", p.UserID),
			attribute.Bool("idempotent", idemKey != ""),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(content) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	var res ExchangeResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, err := repo.LockChat(ctx, tx, chatID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrChatNotFound
			}
			return err
		}
		if !p.CanAccess(chat.OwnerID) {
			return ErrForbidden
		}

		if idemKey != "" {
			replayed, err := s.replay(ctx, tx, p.UserID, chatID, idemKey)
			if err != nil {
				return err
			}
			if replayed != nil {
				res = *replayed
				return nil
			}
		}

		history, err := repo.RecentMessages(ctx, tx, chatID, s.HistoryWindow)
		if err != nil {
			return err
		}

		asked := s.now()
		userMsg := &domain.Message{
			ChatID:    chatID,
			UserID:    &p.UserID,
			Role:      domain.AuthorUser,
			Content:   content,
			CreatedAt: asked,
		}
		if err := repo.CreateMessage(ctx, tx, userMsg); err != nil {
			return err
		}

		turns := make([]llm.Turn, 0, len(history)+1)
		for _, m := range history {
			turns = append(turns, llm.Turn{Role: m.Role, Content: m.Content})
		}
		turns = append(turns, llm.Turn{Role: llm.RoleUser, Content: content})

		reply, err := s.LLM.Complete(ctx, llm.BuildPrompt(s.system(content), turns, s.MaxForwarded), s.Temperature)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCompletionFailed, err)
		}
		if strings.TrimSpace(reply) == "" {
			reply = s.FallbackReply
		}

		// Assistant rows sort strictly after the question they answer.
		answered := s.now()
		if !answered.After(asked) {
			answered = asked.Add(time.Millisecond)
		}
		replyMsg := &domain.Message{
			ChatID:    chatID,
			Role:      domain.AuthorAssistant,
			Content:   reply,
			CreatedAt: answered,
		}
		if err := repo.CreateMessage(ctx, tx, replyMsg); err != nil {
			return err
		}

		if isPlaceholderTitle(chat.Title) {
			if gen := s.generateTitle(content); gen != "" {
				if err := repo.UpdateChatTitle(ctx, tx, chatID, clipRunes(gen, s.titleMax())); err != nil {
					return err
				}
			}
		}
		if err := repo.TouchChat(ctx, tx, chatID, answered); err != nil {
			return err
		}

		if idemKey != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, p.UserID, chatID, idemKey,
				userMsg.ID, replyMsg.ID, http.StatusCreated, s.idemTTL()); err != nil {
				return err
			}
		}

		res = ExchangeResult{UserMessage: userMsg, Reply: replyMsg}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		return nil, err
	}

	if !res.Replayed {
		s.publish(ctx, p.UserID, &res)
	}
	span.SetAttributes(attribute.Bool("replayed", res.Replayed))
	return &res, nil
}

// replay returns the stored result for a live idempotency record, or nil.
func (s *MessageService) replay(ctx context.Context, tx *gorm.DB, userID, chatID, key string) (*ExchangeResult, error) {
	rec, err := repo.GetIdempotency(ctx, tx, userID, chatID, key, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := repo.GetMessages(ctx, tx, rec.UserMessageID, rec.AssistantMessageID)
	if err != nil {
		return nil, err
	}
	out := &ExchangeResult{Replayed: true}
	for i := range msgs {
		switch msgs[i].ID {
		case rec.UserMessageID:
			out.UserMessage = &msgs[i]
		case rec.AssistantMessageID:
			out.Reply = &msgs[i]
		}
	}
	if out.UserMessage == nil || out.Reply == nil {
		return nil, nil
	}
	return out, nil
}

// publish emits the committed exchange. Failures are logged only.
func (s *MessageService) publish(ctx context.Context, userID string, res *ExchangeResult) {
	if s.Events == nil {
		return
	}
	ev := events.Exchange{
		ChatID:             res.Reply.ChatID,
		UserID:             userID,
		UserMessageID:      res.UserMessage.ID,
		AssistantMessageID: res.Reply.ID,
		Question:           res.UserMessage.Content,
		Reply:              res.Reply.Content,
		At:                 res.Reply.CreatedAt,
	}
	if err := s.Events.PublishExchange(ctx, ev); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("chat_id", ev.ChatID).
			Str("message_id", ev.AssistantMessageID).
			Msg("publish exchange event")
	}
}

// system returns the instruction for a question, with manual excerpts when a
// knowledge source is configured.
func (s *MessageService) system(question string) string {
	if s.Knowledge == nil {
		return s.SystemPrompt
	}
	k := s.ExcerptCount
	if k <= 0 {
		k = 3
	}
	return knowledge.Augment(s.SystemPrompt, s.Knowledge.Excerpts(question, k))
}

// ListPage returns a page of messages for a chat the caller may read, in
// chronological order.
func (s *MessageService) ListPage(ctx context.Context, p auth.Principal, chatID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	offset := utils.Offset(page, pageSize)

	if err := s.authorize(ctx, p, chatID); err != nil {
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, chatID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(ctx, s.DB, chatID, offset, pageSize)
	return items, total, err
}

// Stats returns the message count and newest creation time of a chat the
// caller may read.
func (s *MessageService) Stats(ctx context.Context, p auth.Principal, chatID string) (int64, *time.Time, error) {
	if err := s.authorize(ctx, p, chatID); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, chatID)
}

func (s *MessageService) authorize(ctx context.Context, p auth.Principal, chatID string) error {
	chat, err := repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	if !p.CanAccess(chat.OwnerID) {
		return ErrForbidden
	}
	return nil
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MessageService) idemTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

func (s *MessageService) titleMax() int {
	if s.TitleMaxLen > 0 {
		return s.TitleMaxLen
	}
	return 60
}

// generateTitle derives a short title from the first words of a question.
func (s *MessageService) generateTitle(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return ""
	}

	tag := s.TitleLocale
	if tag == language.Und {
		tag = language.BrazilianPortuguese
	}
	caser := cases.Title(tag)

	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, caser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

// Unicode letters with optional trailing digits, e.g. "pi2025".
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Short Portuguese function words left out of generated titles.
var titleStopWords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "de": {}, "do": {},
	"da": {}, "dos": {}, "das": {}, "e": {}, "em": {}, "no": {}, "na": {}, "nos": {},
	"nas": {}, "para": {}, "por": {}, "com": {}, "que": {}, "se": {}, "eu": {},
	"como": {}, "qual": {}, "quais": {}, "meu": {}, "minha": {},
}
