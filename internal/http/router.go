// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, CORS, security headers, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	_ "github.com/tbourn/support-chat-backend/docs" // registers the swagger document
	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/config"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/events"
	"github.com/tbourn/support-chat-backend/internal/http/handlers"
	"github.com/tbourn/support-chat-backend/internal/http/middleware"
	"github.com/tbourn/support-chat-backend/internal/knowledge"
	"github.com/tbourn/support-chat-backend/internal/llm"
	"github.com/tbourn/support-chat-backend/internal/repo"
	"github.com/tbourn/support-chat-backend/internal/services"
)

// ProxyPrefix is the path segment, below the API base path, of the
// companion completion proxy.
const ProxyPrefix = "/proxy"

// Deps carries the infrastructure the routes are built on. Knowledge,
// Events and Identity are optional.
type Deps struct {
	DB        *gorm.DB
	LLM       llm.Completer
	Knowledge knowledge.Source
	Events    events.Publisher
	// Identity verifies proxy callers; nil answers the proxy route with 503.
	Identity *auth.IdentityVerifier
}

// chatRepoShim adapts the repository free functions to the services.ChatRepo
// interface expected by the ChatService.
type chatRepoShim struct{}

func (chatRepoShim) CreateChat(ctx context.Context, db *gorm.DB, ownerID, title string) (*domain.Chat, error) {
	return repo.CreateChat(ctx, db, ownerID, title)
}

func (chatRepoShim) GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	return repo.GetChat(ctx, db, id)
}

func (chatRepoShim) UpdateChatTitle(ctx context.Context, db *gorm.DB, id, title string) error {
	return repo.UpdateChatTitle(ctx, db, id, title)
}

func (chatRepoShim) CountChats(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	return repo.CountChats(ctx, db, ownerID)
}

func (chatRepoShim) ListChatsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Chat, error) {
	return repo.ListChatsPage(ctx, db, ownerID, offset, limit)
}

func (chatRepoShim) ChatsStats(ctx context.Context, db *gorm.DB, ownerID string) (int64, *time.Time, error) {
	return repo.ChatsStats(ctx, db, ownerID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Identify: resolve the bearer token, never rejects
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS (proxy allow-list under the proxy prefix) and security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Dependency injection: services ← repo/db/completer
	authSvc := &services.AuthService{
		DB:          deps.DB,
		Tokens:      auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Admins:      auth.NewAdminList(cfg.Auth.AdminEmails),
		EmailDomain: cfg.Auth.EmailDomain,
		MinPassword: cfg.Auth.MinPassword,
	}
	chatSvc := services.NewChatService(deps.DB, chatRepoShim{})
	msgSvc := &services.MessageService{
		DB:             deps.DB,
		LLM:            llm.WithMetrics(deps.LLM, "chat"),
		Knowledge:      deps.Knowledge,
		Events:         deps.Events,
		SystemPrompt:   cfg.Assistant.SystemPrompt,
		Temperature:    cfg.Assistant.Temperature,
		HistoryWindow:  cfg.Assistant.HistoryWindow,
		MaxForwarded:   cfg.Assistant.MaxForwarded,
		FallbackReply:  cfg.Assistant.FallbackReply,
		MaxPromptRunes: 4000,
		IdempotencyTTL: cfg.IdempotencyTTL,
		TitleLocale:    language.BrazilianPortuguese,
		TitleMaxLen:    chatSvc.TitleMaxLen,
	}
	fbSvc := &services.FeedbackService{DB: deps.DB}
	adminSvc := &services.AdminService{DB: deps.DB, TopN: 20}
	proxySvc := &services.ProxyService{
		LLM:          llm.WithMetrics(deps.LLM, "proxy"),
		GuardPrompt:  cfg.Assistant.GuardPrompt,
		Temperature:  cfg.Assistant.Temperature,
		MaxForwarded: cfg.Assistant.MaxForwarded,
	}
	h := handlers.New(handlers.Services{
		Auth:     authSvc,
		Chats:    chatSvc,
		Messages: msgSvc,
		Feedback: fbSvc,
		Admin:    adminSvc,
		Proxy:    proxySvc,
	})
	h.MaxContentRunes = msgSvc.MaxPromptRunes

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Identity-Token"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Caller resolution; rejection happens per group
	r.Use(middleware.Identify(authSvc))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, s middleware.ReplayScope) (bool, error) {
			_, err := repo.GetIdempotency(ctx, deps.DB, s.UserID, s.ChatID, s.Key, time.Now())
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture and security headers
	r.Use(corsByPrefix(cfg.APIBasePath+ProxyPrefix, cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)

	account := api.Group("/auth", middleware.NoStore())
	{
		account.POST("/register", h.Register)
		account.POST("/login", h.Login)
		account.GET("/me", middleware.RequireAuth(), h.Me)
	}

	user := api.Group("", middleware.RequireAuth())
	{
		// Chats
		user.POST("/chats", h.CreateChat)
		user.GET("/chats", h.ListChats)
		user.PUT("/chats/:id/title", h.UpdateChatTitle)

		// Messages
		user.GET("/chats/:id/messages", h.ListMessages)
		user.POST("/chats/:id/messages", h.PostMessage)

		// Feedback
		user.POST("/messages/:id/feedback", h.LeaveFeedback)
	}

	admin := api.Group("/admin",
		middleware.RequireAuth(),
		middleware.RequireAdmin(),
		middleware.NoStore(),
		gzip.Gzip(gzip.DefaultCompression),
	)
	{
		admin.GET("/export", h.ExportChats)
		admin.GET("/report", h.Report)
	}

	// A nil *auth.IdentityVerifier must reach the middleware as a nil
	// interface, not a typed nil.
	var verifier middleware.IdentityVerifier
	if deps.Identity != nil {
		verifier = deps.Identity
	}
	proxy := api.Group(ProxyPrefix, middleware.RequireIdentity(verifier))
	{
		proxy.POST("/chat", h.ProxyChat)
	}
}

// corsByPrefix applies the proxy allow-list to requests under proxyPath and
// the API policy everywhere else. An empty API list allows any origin; an
// empty proxy list rejects every cross-origin proxy call.
func corsByPrefix(proxyPath string, cfg config.CORSConfig) gin.HandlerFunc {
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	expose := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After"}

	apiCfg := cors.Config{
		AllowMethods:     methods,
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    expose,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		apiCfg.AllowAllOrigins = true
	} else {
		apiCfg.AllowOrigins = cfg.AllowedOrigins
	}
	apiCORS := cors.New(apiCfg)

	allowed := make(map[string]struct{}, len(cfg.ProxyOrigins))
	for _, o := range cfg.ProxyOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	proxyCORS := cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			_, ok := allowed[origin]
			return ok
		},
		AllowMethods:  []string{"POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	})

	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, proxyPath) {
			proxyCORS(c)
			return
		}
		apiCORS(c)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
