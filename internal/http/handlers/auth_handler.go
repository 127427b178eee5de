// Account HTTP handlers.
//
//   - POST /auth/register  (create account, returns token + user)
//   - POST /auth/login     (exchange credentials for a token)
//   - GET  /auth/me        (current account)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-chat-backend/internal/services"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	Email     string `json:"email" example:"ana.souza@gruporic.com.br"`
	Password  string `json:"password" example:"s3cret-pass"`
	FirstName string `json:"firstName" example:"Ana"`
	LastName  string `json:"lastName" example:"Souza"`
}

// LoginRequest is the JSON payload for logging in.
type LoginRequest struct {
	Email    string `json:"email" example:"ana.souza@gruporic.com.br"`
	Password string `json:"password" example:"s3cret-pass"`
}

// Register godoc
// @ID          register
// @Summary     Register an account
// @Description Creates an account and returns a session token. Emails on the admin allow-list get the admin role.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Account data"
// @Success     201   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse "Invalid email, domain or password"
// @Failure     409   {object}  handlers.ErrorResponse "User already exists"
// @Failure     500   {object}  handlers.ErrorResponse "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}

	res, err := h.authSvc.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidEmail),
			errors.Is(err, services.ErrEmailDomain),
			errors.Is(err, services.ErrWeakPassword):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrEmailTaken):
			fail(c, http.StatusConflict, ErrCodeConflict, "user already exists")
		default:
			failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		}
		return
	}
	ok(c, http.StatusCreated, res)
}

// Login godoc
// @ID          login
// @Summary     Log in
// @Description Verifies credentials and returns a fresh session token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Credentials"
// @Success     200   {object}  services.AuthResult
// @Failure     400   {object}  handlers.ErrorResponse "Missing credentials"
// @Failure     401   {object}  handlers.ErrorResponse "Invalid credentials"
// @Failure     500   {object}  handlers.ErrorResponse "Internal error"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "credentials required")
		return
	}

	res, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
			return
		}
		failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		return
	}
	ok(c, http.StatusOK, res)
}

// Me godoc
// @ID          me
// @Summary     Current account
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object}  handlers.ErrorResponse "Account no longer exists"
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	u, err := h.authSvc.Me(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		failErr(c, http.StatusInternalServerError, ErrCodeInternal, "internal error", err)
		return
	}
	ok(c, http.StatusOK, u)
}
