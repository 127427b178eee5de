package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on POST /chats/:id/messages.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key accepted by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s, _ := c.Value(ctxKeyIdemKey).(string)
	return s, s != ""
}

// IsReplay reports whether an unexpired exchange already exists for the
// caller, chat and key of this request.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Value(ctxKeyIdemReplay).(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// ReplayScope identifies a stored exchange.
type ReplayScope struct {
	UserID string
	ChatID string
	Key    string
}

// IdempotencyLookup reports whether a still-valid exchange exists for scope.
type IdempotencyLookup func(ctx context.Context, scope ReplayScope) (bool, error)

// IdempotencyValidator accepts an optional Idempotency-Key on unsafe methods,
// rejecting malformed keys with 400. When the caller is identified and the
// route names a chat, lookup decides whether the request is a replay; replays
// skip rate limiting. Lookup failures are logged and treated as misses, since
// the message service performs the authoritative check inside its
// transaction.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortError(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		scope := ReplayScope{UserID: userIDFromCtx(c), ChatID: c.Param("id"), Key: key}
		if lookup != nil && scope.UserID != "" && scope.ChatID != "" {
			found, err := lookup(c.Request.Context(), scope)
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func userIDFromCtx(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}
