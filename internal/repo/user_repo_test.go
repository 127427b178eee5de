package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

func TestCreateUser_NormalizesAndDefaults(t *testing.T) {
	db := newRepoDB(t, true)
	u := &domain.User{Email: "  Ana@Example.COM ", PasswordHash: "h", FirstName: "Ana"}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.Email != "ana@example.com" || u.Role != domain.RoleUser || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newRepoDB(t, true)
	mustUser(t, db, "dup@example.com")

	err := CreateUser(context.Background(), db, &domain.User{Email: "DUP@example.com", PasswordHash: "h"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateUser_NoTable(t *testing.T) {
	db := newRepoDB(t, false)
	err := CreateUser(context.Background(), db, &domain.User{Email: "x@example.com", PasswordHash: "h"})
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected raw DB error, got %v", err)
	}
}

func TestGetUser_ByEmailAndID(t *testing.T) {
	db := newRepoDB(t, true)
	u := mustUser(t, db, "bob@example.com")
	ctx := context.Background()

	got, err := GetUserByEmail(ctx, db, " BOB@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("GetUserByEmail: got=%+v err=%v", got, err)
	}
	got, err = GetUser(ctx, db, u.ID)
	if err != nil || got.Email != "bob@example.com" {
		t.Fatalf("GetUser: got=%+v err=%v", got, err)
	}
	if _, err := GetUserByEmail(ctx, db, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := GetUser(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
