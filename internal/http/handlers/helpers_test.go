package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/http/middleware"
	"github.com/tbourn/support-chat-backend/internal/repo"
	"github.com/tbourn/support-chat-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

var (
	alice = auth.Principal{UserID: "11111111-1111-4111-8111-111111111111", Email: "alice@gruporic.com.br"}
	admin = auth.Principal{UserID: "22222222-2222-4222-8222-222222222222", Email: "boss@gruporic.com.br", Admin: true}
)

// tokens authenticates the fixed bearer tokens "alice" and "admin".
type tokens map[string]auth.Principal

func (tt tokens) Authenticate(raw string) (auth.Principal, error) {
	if p, ok := tt[raw]; ok {
		return p, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

var testTokens = tokens{"alice": alice, "admin": admin}

// newRouter returns an engine with request ids and caller resolution, the
// way the production router runs ahead of the handlers.
func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identify(testTokens))
	return r
}

func do(r http.Handler, method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return e
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, status, w.Body.String())
	}
	if e := decodeErr(t, w); e.Code != code || e.Error == "" {
		t.Fatalf("error body = %+v, want code %q", e, code)
	}
}

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedPrincipal(t *testing.T, db *gorm.DB, p auth.Principal) {
	t.Helper()
	u := &domain.User{ID: p.UserID, Email: p.Email, PasswordHash: "x"}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
}

// chatRepo adapts the repo package functions to services.ChatRepo.
type chatRepo struct{}

func (chatRepo) CreateChat(ctx context.Context, db *gorm.DB, ownerID, title string) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, ownerID, title)
}

func (chatRepo) GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id)
}

func (chatRepo) UpdateChatTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	return repo.UpdateChatTitle(ctx, db, id, title)
}

func (chatRepo) CountChats(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	return repo.CountChats(ctx, db, ownerID)
}

func (chatRepo) ListChatsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Chat, error) {
	return repo.ListChatsPage(ctx, db, ownerID, offset, limit)
}

func (chatRepo) ChatsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, db, ownerID)
}

// ---------- service stubs ----------

type stubAuthSvc struct {
	register func(context.Context, services.RegisterInput) (*services.AuthResult, error)
	login    func(context.Context, string, string) (*services.AuthResult, error)
	me       func(context.Context, auth.Principal) (*domain.User, error)
}

func (s stubAuthSvc) Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error) {
	return s.register(ctx, in)
}

func (s stubAuthSvc) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	return s.login(ctx, email, password)
}

func (s stubAuthSvc) Me(ctx context.Context, p auth.Principal) (*domain.User, error) {
	return s.me(ctx, p)
}

type stubChatSvc struct {
	create    func(context.Context, auth.Principal, string) (*domain.Chat, error)
	listPage  func(context.Context, auth.Principal, int, int) ([]domain.Chat, int64, error)
	stats     func(context.Context, auth.Principal) (int64, *time.Time, error)
	updateTit func(context.Context, auth.Principal, string, string) error
}

func (s stubChatSvc) Create(ctx context.Context, p auth.Principal, title string) (*domain.Chat, error) {
	if s.create != nil {
		return s.create(ctx, p, title)
	}
	return &domain.Chat{ID: "c", OwnerID: p.UserID, Title: title}, nil
}

func (s stubChatSvc) ListPage(ctx context.Context, p auth.Principal, page, size int) ([]domain.Chat, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, p, page, size)
	}
	return []domain.Chat{}, 0, nil
}

func (s stubChatSvc) Stats(ctx context.Context, p auth.Principal) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx, p)
	}
	return 0, nil, nil
}

func (s stubChatSvc) UpdateTitle(ctx context.Context, p auth.Principal, id, title string) error {
	if s.updateTit != nil {
		return s.updateTit(ctx, p, id, title)
	}
	return nil
}

type stubMsgSvc struct {
	exchange func(context.Context, auth.Principal, string, string, string) (*services.ExchangeResult, error)
	listPage func(context.Context, auth.Principal, string, int, int) ([]domain.Message, int64, error)
	stats    func(context.Context, auth.Principal, string) (int64, *time.Time, error)
}

func (s stubMsgSvc) Exchange(ctx context.Context, p auth.Principal, chatID, content, key string) (*services.ExchangeResult, error) {
	return s.exchange(ctx, p, chatID, content, key)
}

func (s stubMsgSvc) ListPage(ctx context.Context, p auth.Principal, chatID string, page, size int) ([]domain.Message, int64, error) {
	if s.listPage != nil {
		return s.listPage(ctx, p, chatID, page, size)
	}
	return []domain.Message{}, 0, nil
}

func (s stubMsgSvc) Stats(ctx context.Context, p auth.Principal, chatID string) (int64, *time.Time, error) {
	if s.stats != nil {
		return s.stats(ctx, p, chatID)
	}
	return 0, nil, nil
}

type stubFBSvc func(context.Context, auth.Principal, string, int) error

func (f stubFBSvc) Leave(ctx context.Context, p auth.Principal, messageID string, value int) error {
	return f(ctx, p, messageID, value)
}

type stubAdminSvc struct {
	export func(context.Context, io.Writer) error
	report func(context.Context) (*services.Report, error)
}

func (s stubAdminSvc) Export(ctx context.Context, w io.Writer) error { return s.export(ctx, w) }

func (s stubAdminSvc) Report(ctx context.Context) (*services.Report, error) { return s.report(ctx) }

type stubProxySvc func(context.Context, string, services.ProxyRequest) (string, error)

func (f stubProxySvc) Complete(ctx context.Context, caller string, req services.ProxyRequest) (string, error) {
	return f(ctx, caller, req)
}
