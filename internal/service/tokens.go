package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenIssuer      = "crm-api"
)

// Claims are the JWT claims of both token kinds. Role is empty on refresh
// tokens; the subject is the identity id.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role,omitempty"`
	Type  string      `json:"type"`
	jwt.RegisteredClaims
}

// Caller converts verified access claims into the caller passed to services.
func (c *Claims) Caller() domain.Caller {
	return domain.Caller{ID: c.Subject, Email: c.Email, Role: c.Role}
}

// TokenService issues and verifies access/refresh token pairs. The two kinds
// are signed with distinct secrets, so one can never pass for the other.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService creates a token service.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssuePair signs a fresh access token and refresh token for identity.
// Persisting the refresh token is up to the caller.
func (t *TokenService) IssuePair(identity *domain.Identity) (*domain.TokenPair, error) {
	now := time.Now()

	access, err := t.sign(t.accessSecret, Claims{
		Email: identity.Email,
		Role:  identity.Role,
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// jti keeps two refresh tokens minted in the same second distinct,
	// otherwise a rotation could hand back the token it just replaced.
	refresh, err := t.sign(t.refreshSecret, Claims{
		Email: identity.Email,
		Type:  tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess validates an access token and returns its claims.
func (t *TokenService) VerifyAccess(raw string) (*Claims, error) {
	return t.verify(raw, t.accessSecret, tokenTypeAccess)
}

// VerifyRefresh validates a refresh token and returns its claims.
func (t *TokenService) VerifyRefresh(raw string) (*Claims, error) {
	return t.verify(raw, t.refreshSecret, tokenTypeRefresh)
}

func (t *TokenService) sign(secret []byte, claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenService) verify(raw string, secret []byte, wantType string) (*Claims, error) {
	if raw == "" {
		return nil, &domain.ErrInvalidToken{Reason: "empty token"}
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, &domain.ErrInvalidToken{Reason: err.Error()}
	}
	if !token.Valid {
		return nil, &domain.ErrInvalidToken{Reason: "token not valid"}
	}
	if claims.Type != wantType {
		return nil, &domain.ErrInvalidToken{Reason: "unexpected token type " + claims.Type}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrInvalidToken{Reason: "missing subject"}
	}
	return claims, nil
}
