package auth

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the fields read from an identity-provider token.
type IdentityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IdentityVerifier checks RS256 identity tokens issued by an external
// provider against a fixed public key.
type IdentityVerifier struct {
	key  *rsa.PublicKey
	opts []jwt.ParserOption
}

// NewIdentityVerifier builds a verifier from a PEM-encoded RSA public key.
// Empty issuer or audience disables that check.
func NewIdentityVerifier(pemKey []byte, issuer, audience string) (*IdentityVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("identity public key: %w", err)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &IdentityVerifier{key: key, opts: opts}, nil
}

// LoadIdentityVerifier reads the PEM key from path.
func LoadIdentityVerifier(path, issuer, audience string) (*IdentityVerifier, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity public key: %w", err)
	}
	return NewIdentityVerifier(b, issuer, audience)
}

// Verify validates raw and returns its claims.
func (v *IdentityVerifier) Verify(raw string) (*IdentityClaims, error) {
	tok, err := jwt.ParseWithClaims(raw, &IdentityClaims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, v.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*IdentityClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return c, nil
}
