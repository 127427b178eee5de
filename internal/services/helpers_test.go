package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/events"
	"github.com/tbourn/support-chat-backend/internal/llm"
	"github.com/tbourn/support-chat-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
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

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, PasswordHash: "x"}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func seedChat(t *testing.T, db *gorm.DB, ownerID, title string) *domain.Chat {
	t.Helper()
	c, err := repo.CreateChat(context.Background(), db, ownerID, title)
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	return c
}

func principalOf(u *domain.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email}
}

// fakeCompleter records every prompt and answers with reply or err.
type fakeCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]llm.Turn
	temps   []float64
}

func (f *fakeCompleter) Complete(_ context.Context, turns []llm.Turn, temperature float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, append([]llm.Turn(nil), turns...))
	f.temps = append(f.temps, temperature)
	return f.reply, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeCompleter) last() []llm.Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []events.Exchange
	err error
}

func (p *recordingPublisher) PublishExchange(_ context.Context, ev events.Exchange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, ev)
	return p.err
}
