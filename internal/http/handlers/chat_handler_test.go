package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/repo"
	"github.com/tbourn/support-chat-backend/internal/services"
)

func newChatRouter(svc ChatService) http.Handler {
	h := New(Services{Chats: svc})
	r := newRouter()
	r.POST("/chats", h.CreateChat)
	r.GET("/chats", h.ListChats)
	r.PUT("/chats/:id/title", h.UpdateChatTitle)
	return r
}

// ---------- CreateChat ----------

func TestCreateChat_BadJSON_Success_Internal(t *testing.T) {
	// Bad JSON -> 400
	r := newChatRouter(stubChatSvc{})
	expectError(t, do(r, http.MethodPost, "/chats", "alice", "{bad"), http.StatusBadRequest, ErrCodeBadRequest)

	// No token -> 401
	expectError(t, do(r, http.MethodPost, "/chats", "", `{"title":"x"}`), http.StatusUnauthorized, ErrCodeUnauthorized)

	// Success -> 201, title trimmed, owner is the caller
	db := newHandlerDB(t)
	seedPrincipal(t, db, alice)
	r = newChatRouter(services.NewChatService(db, chatRepo{}))

	w := do(r, http.MethodPost, "/chats", "alice", `{"title":"   Hello  "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Chat
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.OwnerID != alice.UserID || out.Title != "Hello" {
		t.Fatalf("unexpected chat: %#v", out)
	}

	// Empty body -> default dated title
	w = do(r, http.MethodPost, "/chats", "alice", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create empty -> %d body=%s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Title) < len("Chat ") || out.Title[:5] != "Chat " {
		t.Fatalf("default title = %q", out.Title)
	}

	// Internal error -> 500
	errSvc := stubChatSvc{create: func(context.Context, auth.Principal, string) (*domain.Chat, error) {
		return nil, gorm.ErrInvalidField
	}}
	expectError(t, do(newChatRouter(errSvc), http.MethodPost, "/chats", "alice", `{"title":"X"}`),
		http.StatusInternalServerError, ErrCodeCreateFailed)
}

// ---------- ListChats ----------

func TestListChats_ETag304_and_SuccessPage(t *testing.T) {
	db := newHandlerDB(t)
	seedPrincipal(t, db, alice)
	r := newChatRouter(services.NewChatService(db, chatRepo{}))

	ctx := context.Background()
	for _, title := range []string{"A", "B"} {
		if _, err := repo.CreateChat(ctx, db, alice.UserID, title); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	w := do(r, http.MethodGet, "/chats?page=1&page_size=1", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list 200 -> %d body=%s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	var out ListChatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Page != 1 || out.Pagination.PageSize != 1 || out.Pagination.Total != 2 {
		t.Fatalf("pagination mismatch: %#v", out.Pagination)
	}
	if out.Pagination.TotalPages != 2 || !out.Pagination.HasNext || len(out.Chats) != 1 {
		t.Fatalf("pages/hasnext mismatch: %#v", out.Pagination)
	}

	// 304 path
	w = do(r, http.MethodGet, "/chats", "alice", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag 304 -> %d", w.Code)
	}

	// A new chat changes the ETag.
	if _, err := repo.CreateChat(ctx, db, alice.UserID, "C"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w = do(r, http.MethodGet, "/chats", "alice", "", "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("stale etag -> %d", w.Code)
	}
}

func TestListChats_AdminSeesEveryone(t *testing.T) {
	db := newHandlerDB(t)
	seedPrincipal(t, db, alice)
	seedPrincipal(t, db, admin)
	r := newChatRouter(services.NewChatService(db, chatRepo{}))

	ctx := context.Background()
	if _, err := repo.CreateChat(ctx, db, alice.UserID, "mine"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateChat(ctx, db, admin.UserID, "boss"); err != nil {
		t.Fatal(err)
	}

	var out ListChatsResponse
	w := do(r, http.MethodGet, "/chats", "alice", "")
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Total != 1 || out.Chats[0].Title != "mine" {
		t.Fatalf("alice list = %+v", out)
	}
	aliceTag := w.Header().Get("ETag")

	w = do(r, http.MethodGet, "/chats", "admin", "")
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Pagination.Total != 2 {
		t.Fatalf("admin list = %+v", out)
	}
	for _, ch := range out.Chats {
		if ch.OwnerEmail == "" {
			t.Fatalf("admin list missing owner email: %+v", ch)
		}
	}
	if w.Header().Get("ETag") == aliceTag {
		t.Fatal("admin and owner ETags must differ")
	}
}

func TestListChats_StatsErrorSkipsETag_And_ListError(t *testing.T) {
	svc := stubChatSvc{
		stats: func(context.Context, auth.Principal) (int64, *time.Time, error) {
			return 0, nil, errors.New("stats down")
		},
		listPage: func(context.Context, auth.Principal, int, int) ([]domain.Chat, int64, error) {
			return nil, 0, gorm.ErrInvalidField
		},
	}
	w := do(newChatRouter(svc), http.MethodGet, "/chats?page=1&page_size=5", "alice", "", "If-None-Match", `W/"nope"`)
	expectError(t, w, http.StatusInternalServerError, ErrCodeListFailed)
	if w.Header().Get("ETag") != "" {
		t.Fatalf("unexpected ETag on stats failure")
	}
}

func TestListChats_EmptyState_SetsETag_WithZeroTS(t *testing.T) {
	db := newHandlerDB(t)
	r := newChatRouter(services.NewChatService(db, chatRepo{}))

	w := do(r, http.MethodGet, "/chats", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on empty list; got %d body=%s", w.Code, w.Body.String())
	}
	want := `W/"chats:` + alice.UserID + `:0:0"`
	if et := w.Header().Get("ETag"); et != want {
		t.Fatalf("expected ETag %s, got %q", want, et)
	}
	var out ListChatsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if out.Chats == nil || out.Pagination.Total != 0 || out.Pagination.TotalPages != 0 || out.Pagination.HasNext {
		t.Fatalf("unexpected empty response: %#v", out)
	}
}

// ---------- UpdateChatTitle ----------

func TestUpdateChatTitle(t *testing.T) {
	// bad UUID
	r := newChatRouter(stubChatSvc{})
	expectError(t, do(r, http.MethodPut, "/chats/not-uuid/title", "alice", `{"title":"x"}`),
		http.StatusBadRequest, ErrCodeBadRequest)

	// empty title
	expectError(t, do(r, http.MethodPut, "/chats/"+uuid.NewString()+"/title", "alice", `{"title":"   "}`),
		http.StatusBadRequest, ErrCodeBadRequest)

	// success 204, args passed through
	var got struct {
		p         auth.Principal
		id, title string
	}
	okSvc := stubChatSvc{updateTit: func(_ context.Context, p auth.Principal, id, title string) error {
		got.p, got.id, got.title = p, id, title
		return nil
	}}
	chatID := uuid.NewString()
	w := do(newChatRouter(okSvc), http.MethodPut, "/chats/"+chatID+"/title", "alice", `{"title":"New Name"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("204 -> %d body=%s", w.Code, w.Body.String())
	}
	if got.p != alice || got.id != chatID || got.title != "New Name" {
		t.Fatalf("service args mismatch: %+v", got)
	}

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrChatNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{errors.New("db down"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		svc := stubChatSvc{updateTit: func(context.Context, auth.Principal, string, string) error { return tc.err }}
		expectError(t, do(newChatRouter(svc), http.MethodPut, "/chats/"+uuid.NewString()+"/title", "alice", `{"title":"X"}`),
			tc.status, tc.code)
	}
}

func TestUpdateChatTitle_RealService_ForeignChat(t *testing.T) {
	db := newHandlerDB(t)
	seedPrincipal(t, db, alice)
	seedPrincipal(t, db, admin)
	ch, err := repo.CreateChat(context.Background(), db, admin.UserID, "boss chat")
	if err != nil {
		t.Fatal(err)
	}
	r := newChatRouter(services.NewChatService(db, chatRepo{}))

	expectError(t, do(r, http.MethodPut, "/chats/"+ch.ID+"/title", "alice", `{"title":"mine now"}`),
		http.StatusForbidden, ErrCodeForbidden)
	expectError(t, do(r, http.MethodPut, "/chats/"+uuid.NewString()+"/title", "alice", `{"title":"x"}`),
		http.StatusNotFound, ErrCodeNotFound)

	if w := do(r, http.MethodPut, "/chats/"+ch.ID+"/title", "admin", `{"title":"renamed"}`); w.Code != http.StatusNoContent {
		t.Fatalf("admin rename -> %d body=%s", w.Code, w.Body.String())
	}
	got, err := repo.GetChat(context.Background(), db, ch.ID)
	if err != nil || got.Title != "renamed" {
		t.Fatalf("title = %v, %v", got, err)
	}
}
