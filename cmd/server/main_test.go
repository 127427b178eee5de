package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tbourn/support-chat-backend/internal/config"
)

func TestStart_FailureReturnsExitCode(t *testing.T) {
	cfg := config.Config{
		DB: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "missing", "app.db")},
	}
	if code := start(cfg); code != 1 {
		t.Fatalf("start() = %d, want 1", code)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SUPPORT_CHAT_DOTENV_CHECK=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("SUPPORT_CHAT_DOTENV_CHECK", "")
	os.Unsetenv("SUPPORT_CHAT_DOTENV_CHECK")

	loadDotenv()
	if got := os.Getenv("SUPPORT_CHAT_DOTENV_CHECK"); got != "loaded" {
		t.Fatalf("env = %q, want loaded", got)
	}
}
