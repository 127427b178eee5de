// Package services – ChatService
//
// ChatService manages chat threads: creation with a dated default title,
// listing (own chats, or every chat for administrators) and renaming.
// Ownership is checked here; the repository layer is ownership-agnostic.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/utils"
)

// defaultTitleLayout renders placeholder titles as "Chat dd/mm/yyyy hh:mm:ss".
const defaultTitleLayout = "02/01/2006 15:04:05"

// ChatRepo defines the repository contract required by ChatService.
type ChatRepo interface {
	CreateChat(ctx context.Context, db *gorm.DB, ownerID, title string) (*domain.Chat, error)
	GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error)
	UpdateChatTitle(ctx context.Context, db *gorm.DB, id, title string) error
	// CountChats and ListChatsPage treat an empty ownerID as "all owners".
	CountChats(ctx context.Context, db *gorm.DB, ownerID string) (int64, error)
	ListChatsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Chat, error)
	ChatsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error)
}

// ChatService provides chat-level operations.
type ChatService struct {
	DB   *gorm.DB
	Repo ChatRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// Location is used to render default titles.
	Location *time.Location
	Now      func() time.Time
}

// NewChatService constructs a ChatService with default title handling.
func NewChatService(db *gorm.DB, r ChatRepo) *ChatService {
	return &ChatService{
		DB:          db,
		Repo:        r,
		TitleMaxLen: 60,
		Location:    time.Local,
		Now:         time.Now,
	}
}

// Create inserts a chat owned by the caller. A blank title becomes
// "Chat <date time>".
func (s *ChatService) Create(ctx context.Context, p auth.Principal, title string) (*domain.Chat, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", p.UserID)))
	defer span.End()

	title = normalizeTitle(title)
	if title == "" {
		title = s.defaultTitle()
	}
	return s.Repo.CreateChat(ctx, s.DB, p.UserID, clipRunes(title, s.TitleMaxLen))
}

// ListPage returns a page of chats, most recently updated first. Admins see
// every chat; everyone else sees their own.
func (s *ChatService) ListPage(ctx context.Context, p auth.Principal, page, pageSize int) ([]domain.Chat, int64, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", p.UserID),
			attribute.Bool("user.admin", p.Admin),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	offset := utils.Offset(page, pageSize)
	scope := ownerScope(p)

	total, err := s.Repo.CountChats(ctx, s.DB, scope)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Chat{}, 0, nil
	}
	items, err := s.Repo.ListChatsPage(ctx, s.DB, scope, offset, pageSize)
	return items, total, err
}

// Stats returns the row count and newest update time of the chats the
// caller can list. Handlers derive ETags from it.
func (s *ChatService) Stats(ctx context.Context, p auth.Principal) (int64, *time.Time, error) {
	return s.Repo.ChatsStats(ctx, s.DB, ownerScope(p))
}

// UpdateTitle renames a chat. A blank title falls back to the default.
func (s *ChatService) UpdateTitle(ctx context.Context, p auth.Principal, chatID, title string) error {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "UpdateTitle",
		trace.WithAttributes(attribute.String("chat.id", chatID), attribute.String("user.id", p.UserID)))
	defer span.End()

	title = normalizeTitle(title)
	if title == "" {
		title = s.defaultTitle()
	}
	chat, err := s.Repo.GetChat(ctx, s.DB, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	if !p.CanAccess(chat.OwnerID) {
		return ErrForbidden
	}
	return s.Repo.UpdateChatTitle(ctx, s.DB, chatID, clipRunes(title, s.TitleMaxLen))
}

func (s *ChatService) defaultTitle() string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return "Chat " + now().In(loc).Format(defaultTitleLayout)
}

// ownerScope is the owner filter for listing queries: empty for admins.
func ownerScope(p auth.Principal) string {
	if p.Admin {
		return ""
	}
	return p.UserID
}

var (
	whitespaceRE  = regexp.MustCompile(`\s+`)
	placeholderRE = regexp.MustCompile(`^chat \d{1,2}/\d{1,2}/\d{4}`)
)

// normalizeTitle trims whitespace and collapses runs of spaces.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// isPlaceholderTitle reports whether a chat still carries an automatic title
// that may be replaced by one derived from the first question.
func isPlaceholderTitle(title string) bool {
	t := strings.ToLower(normalizeTitle(title))
	return t == "" || t == "new chat" || t == "untitled" || placeholderRE.MatchString(t)
}

func clipRunes(s string, max int) string {
	if max > 0 && utf8.RuneCountInString(s) > max {
		return strings.TrimSpace(string([]rune(s)[:max]))
	}
	return s
}
