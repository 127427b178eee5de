// Command server runs the support chat HTTP API.
//
// @title                      Support Chat API
// @version                    1.0
// @description                Authenticated support assistant: chats, messages, feedback, admin reports and a guarded completion proxy.
// @BasePath                   /api
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Session token: "Bearer <token>"
// @securityDefinitions.apikey IdentityToken
// @in                         header
// @name                       Authorization
// @description                RS256 identity token of a proxy caller: "Bearer <token>"
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/config"
	"github.com/tbourn/support-chat-backend/internal/events"
	httpapi "github.com/tbourn/support-chat-backend/internal/http"
	"github.com/tbourn/support-chat-backend/internal/knowledge"
	"github.com/tbourn/support-chat-backend/internal/llm"
	"github.com/tbourn/support-chat-backend/internal/observability"
	"github.com/tbourn/support-chat-backend/internal/repo"
	"github.com/tbourn/support-chat-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadDotenv() {
	for _, p := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func main() {
	loadDotenv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.ConfigureLogging(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	os.Exit(start(cfg))
}

// start runs the server until a signal arrives and returns the process exit
// code. Deferred cleanup has finished by the time it returns.
func start(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config) error {
	release := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, release)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	completer, err := llm.New(llm.Options{
		APIKey:  cfg.Completion.APIKey,
		BaseURL: cfg.Completion.BaseURL,
		Model:   cfg.Assistant.Model,
		Timeout: cfg.Completion.Timeout,
	})
	if err != nil {
		return err
	}
	if cfg.Completion.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set; completions will fail")
	}

	deps := httpapi.Deps{DB: db, LLM: completer, Events: events.Nop{}}

	if cfg.KnowledgePath != "" {
		manual, err := knowledge.Load(cfg.KnowledgePath)
		if err != nil {
			return err
		}
		deps.Knowledge = manual
		log.Info().Str("path", cfg.KnowledgePath).Msg("support manual loaded")
	}

	if cfg.Events.NatsURL != "" {
		js, err := events.Connect(ctx, events.Options{
			URL:     cfg.Events.NatsURL,
			Stream:  cfg.Events.Stream,
			Subject: cfg.Events.Subject,
		})
		if err != nil {
			return err
		}
		defer js.Close()
		deps.Events = js
	}

	if cfg.Identity.PublicKeyFile != "" {
		v, err := auth.LoadIdentityVerifier(cfg.Identity.PublicKeyFile, cfg.Identity.Issuer, cfg.Identity.Audience)
		if err != nil {
			return err
		}
		deps.Identity = v
	} else {
		log.Warn().Msg("IDENTITY_PUBLIC_KEY_FILE not set; proxy route disabled")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", release).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
