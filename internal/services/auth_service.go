// Package services – AuthService
//
// AuthService registers and authenticates accounts and issues session
// tokens. Administrator status comes from the static email allow-list, so an
// account gains or loses admin rights when the list changes, without a
// database update.
package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-chat-backend/internal/auth"
	"github.com/tbourn/support-chat-backend/internal/domain"
	"github.com/tbourn/support-chat-backend/internal/repo"
)

// RegisterInput is the data needed to create an account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// AuthService implements account use-cases.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Issuer
	Admins auth.AdminList

	// EmailDomain, when set, restricts registration to that domain.
	EmailDomain string
	MinPassword int
}

// Register creates an account and returns a signed token for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register")
	defer span.End()

	email, err := s.normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(in.Password) < max(s.MinPassword, 1) {
		return nil, ErrWeakPassword
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	role := domain.RoleUser
	if s.Admins.IsAdmin(email) {
		role = domain.RoleAdmin
	}
	u := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
	}
	if err := repo.CreateUser(ctx, s.DB, u); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return s.issue(u)
}

// Login verifies credentials and returns a fresh token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

// Me returns the caller's account.
func (s *AuthService) Me(ctx context.Context, p auth.Principal) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Me",
		trace.WithAttributes(attribute.String("user.id", p.UserID)))
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, p.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Principal turns verified token claims into the request principal.
func (s *AuthService) Principal(c *auth.Claims) auth.Principal {
	return auth.Principal{UserID: c.UserID, Email: c.Email, Admin: s.Admins.IsAdmin(c.Email)}
}

// Authenticate verifies a session token and returns its principal.
func (s *AuthService) Authenticate(raw string) (auth.Principal, error) {
	claims, err := s.Tokens.Parse(raw)
	if err != nil {
		return auth.Principal{}, err
	}
	return s.Principal(claims), nil
}

func (s *AuthService) issue(u *domain.User) (*AuthResult, error) {
	tok, err := s.Tokens.Sign(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: tok, User: u}, nil
}

func (s *AuthService) normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	if s.EmailDomain != "" && !strings.HasSuffix(email, "@"+s.EmailDomain) {
		return "", ErrEmailDomain
	}
	return email, nil
}
