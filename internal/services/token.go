package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/WencesJ/Speer-Tweeter/internal/models"
)

// SessionClaims is what a session token asserts: user Subject (session ID)
// proved their password at IssuedAt and had PasswordVersion at that time.
// The token alone is never trusted; the session record and the live user
// are checked on every request.
type SessionClaims struct {
	Username        string `json:"username"`
	PasswordVersion int64  `json:"pwv"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens (HS256).
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret}
}

// Issue signs a token for s. The token expires with the session.
func (t *TokenService) Issue(s *models.Session) (string, error) {
	claims := SessionClaims{
		Username:        s.Username,
		PasswordVersion: s.PasswordVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID.Hex(),
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(s.VerifiedAt),
			NotBefore: jwt.NewNumericDate(s.VerifiedAt.Add(-time.Second)),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and the time claims of tokenString.
func (t *TokenService) Parse(tokenString string) (*SessionClaims, error) {
	return t.parse(tokenString)
}

// ParseIgnoringExpiry verifies only the signature. Logout uses it so an
// expired token can still name the session to destroy.
func (t *TokenService) ParseIgnoringExpiry(tokenString string) (*SessionClaims, error) {
	return t.parse(tokenString, jwt.WithoutClaimsValidation())
}

func (t *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("token does not name a session")
	}

	return claims, nil
}
