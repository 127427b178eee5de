// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller of a request. Identify() parses an optional
// bearer session token and records the principal; RequireAuth() and
// RequireAdmin() gate the routes that need one. RequireIdentity() protects
// the completion proxy with the separate identity-token scheme.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-chat-backend/internal/auth"
)

const (
	ctxKeyPrincipal = "principal"
	ctxKeyUserID    = "userID"
	ctxKeyAuthError = "auth.error"
	ctxKeyIdentity  = "identity"
)

// Authenticator turns a raw session token into a principal.
type Authenticator interface {
	Authenticate(raw string) (auth.Principal, error)
}

// IdentityVerifier checks tokens issued by the companion identity provider.
type IdentityVerifier interface {
	Verify(raw string) (*auth.IdentityClaims, error)
}

// bearer extracts the token of an "Authorization: Bearer <token>" header.
func bearer(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Identify records the principal of a valid bearer token and never rejects a
// request itself. It runs before the rate limiter so buckets are per user.
func Identify(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			c.Next()
			return
		}
		p, err := a.Authenticate(raw)
		if err != nil {
			c.Set(ctxKeyAuthError, true)
			c.Next()
			return
		}
		c.Set(ctxKeyPrincipal, p)
		c.Set(ctxKeyUserID, p.UserID)
		c.Next()
	}
}

// PrincipalFrom returns the principal recorded by Identify.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(ctxKeyPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

// RequireAuth rejects requests without a valid session token with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFrom(c); ok {
			c.Next()
			return
		}
		if c.GetBool(ctxKeyAuthError) {
			abortError(c, http.StatusUnauthorized, "unauthorized", "token invalid")
			return
		}
		abortError(c, http.StatusUnauthorized, "unauthorized", "token missing")
	}
}

// RequireAdmin rejects authenticated non-administrators with 403. It must
// run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if p, ok := PrincipalFrom(c); ok && p.Admin {
			c.Next()
			return
		}
		abortError(c, http.StatusForbidden, "forbidden", "admin only")
	}
}

// RequireIdentity verifies the identity token of proxy callers. A nil
// verifier means the proxy is not configured and every call gets 503.
func RequireIdentity(v IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			abortError(c, http.StatusServiceUnavailable, "proxy_disabled", "proxy not configured")
			return
		}
		raw := bearer(c)
		if raw == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized", "token missing")
			return
		}
		claims, err := v.Verify(raw)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthorized", "token invalid")
			return
		}
		c.Set(ctxKeyIdentity, claims.Email)
		c.Next()
	}
}

// IdentityFrom returns the email of a verified proxy caller.
func IdentityFrom(c *gin.Context) string {
	return c.GetString(ctxKeyIdentity)
}
