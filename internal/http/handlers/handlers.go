package handlers

import (
	"context"
	"io"
	"time"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// AuthService registers and authenticates accounts.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Me(ctx context.Context, p auth.Principal) (*domain.User, error)
}

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
type ChatService interface {
	// Create starts a new chat owned by p with an optional title.
	Create(ctx context.Context, p auth.Principal, title string) (*domain.Chat, error)
	// ListPage returns a page of chats visible to p and the total count.
	ListPage(ctx context.Context, p auth.Principal, page, pageSize int) ([]domain.Chat, int64, error)
	// Stats returns the count and newest update of the chats visible to p.
	Stats(ctx context.Context, p auth.Principal) (int64, *time.Time, error)
	// UpdateTitle renames a chat p may write.
	UpdateTitle(ctx context.Context, p auth.Principal, chatID, title string) error
}

// MessageService defines message retrieval and the exchange operation.
type MessageService interface {
	// Exchange appends a user message and the assistant's reply atomically.
	Exchange(ctx context.Context, p auth.Principal, chatID, content, idemKey string) (*services.ExchangeResult, error)
	// ListPage returns a page of messages within a chat and the total count.
	ListPage(ctx context.Context, p auth.Principal, chatID string, page, pageSize int) ([]domain.Message, int64, error)
	// Stats returns the count and newest creation time of a chat's messages.
	Stats(ctx context.Context, p auth.Principal, chatID string) (int64, *time.Time, error)
}

// FeedbackService captures ratings of assistant messages.
type FeedbackService interface {
	Leave(ctx context.Context, p auth.Principal, messageID string, value int) error
}

// AdminService backs the administrator endpoints.
type AdminService interface {
	Export(ctx context.Context, w io.Writer) error
	Report(ctx context.Context) (*services.Report, error)
}

// ProxyService forwards companion conversations to the completion service.
type ProxyService interface {
	Complete(ctx context.Context, caller string, req services.ProxyRequest) (string, error)
}

//
// Handler wiring
//

// Services bundles the use-cases the handlers depend on. A nil entry leaves
// the corresponding routes unregistered.
type Services struct {
	Auth     AuthService
	Chats    ChatService
	Messages MessageService
	Feedback FeedbackService
	Admin    AdminService
	Proxy    ProxyService
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	authSvc  AuthService
	chatSvc  ChatService
	msgSvc   MessageService
	fbSvc    FeedbackService
	adminSvc AdminService
	proxySvc ProxyService

	// MaxContentRunes caps message content at the edge; zero disables it.
	MaxContentRunes int
}

// New constructs a Handlers instance bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		authSvc:         s.Auth,
		chatSvc:         s.Chats,
		msgSvc:          s.Messages,
		fbSvc:           s.Feedback,
		adminSvc:        s.Admin,
		proxySvc:        s.Proxy,
		MaxContentRunes: 4000,
	}
}
