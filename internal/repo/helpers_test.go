package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-chat-backend/internal/domain"
)

// newRepoDB opens a private in-memory database. With migrate=false the
// schema is left empty so error paths can be exercised.
func newRepoDB(t *testing.T, migrate bool) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if migrate {
		if err := AutoMigrate(db); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func mustUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "hash"}
	if err := CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func mustChat(t *testing.T, db *gorm.DB, ownerID, title string) *domain.Chat {
	t.Helper()
	c, err := CreateChat(context.Background(), db, ownerID, title)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	return c
}

func mustMessage(t *testing.T, db *gorm.DB, chatID string, userID *string, role, content string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{ChatID: chatID, UserID: userID, Role: role, Content: content, CreatedAt: at}
	if err := CreateMessage(context.Background(), db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	return m
}
