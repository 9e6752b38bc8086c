// Package service holds the use cases of the CRM API: the token lifecycle,
// the ownership policy and the customer and lead services built on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"
	"github.com/boddenberg/crm-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

// AuthService orchestrates registration, login and the refresh token
// lifecycle. Each identity holds at most one active refresh token.
type AuthService struct {
	store      port.IdentityStore
	tokens     *TokenService
	hashing    *resilience.Bulkhead
	bcryptCost int
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthService creates a new auth service. hashing bounds the number of
// concurrent bcrypt computations.
func NewAuthService(
	store port.IdentityStore,
	tokens *TokenService,
	hashing *resilience.Bulkhead,
	bcryptCost int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		store:      store,
		tokens:     tokens,
		hashing:    hashing,
		bcryptCost: bcryptCost,
		metrics:    metrics,
		logger:     logger,
	}
}

// ============================================================
// Register: POST /api/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserView, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("auth.register", time.Since(start)) }()

	identity, err := s.createIdentity(ctx, req.Name, req.Email, req.Password, domain.RoleUser)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrAuthEvent(observability.EventRegister)
	s.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.String("role", string(identity.Role)),
	)
	return userView(identity), nil
}

// EnsureAdmin creates an Admin identity unless one with the email already
// exists. It is run at startup and is safe to repeat.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (*domain.Identity, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.EnsureAdmin")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("auth.ensure_admin", time.Since(start)) }()

	existing, err := s.store.GetIdentityByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, boundaryError("get identity", err)
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			s.logger.Warn("admin seed email belongs to a non-admin identity",
				zap.String("identity_id", existing.ID),
			)
		}
		return existing, nil
	}

	identity, err := s.createIdentity(ctx, name, email, password, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin identity seeded", zap.String("identity_id", identity.ID))
	return identity, nil
}

func (s *AuthService) createIdentity(ctx context.Context, name, email, password string, role domain.Role) (*domain.Identity, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}
	if len(password) < 6 {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at least 6 characters"}
	}

	existing, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		return nil, boundaryError("get identity", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "User already exists"}
	}

	var hash []byte
	err = s.hashing.Do(ctx, func() error {
		var herr error
		hash, herr = bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		return herr
	})
	if err != nil {
		return nil, &domain.ErrInternal{Op: "hash password", Err: err}
	}

	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		// A concurrent registration can still win the unique index.
		return nil, boundaryError("create identity", err)
	}
	return identity, nil
}

// ============================================================
// Login: POST /api/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("auth.login", time.Since(start)) }()

	identity, err := s.store.GetIdentityByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, boundaryError("get identity", err)
	}
	if identity == nil {
		s.metrics.IncrAuthEvent(observability.EventLoginFailure)
		s.logger.Debug("login: unknown email")
		return nil, &domain.ErrInvalidCredentials{}
	}
	span.SetAttributes(attribute.String("identity.id", identity.ID))

	err = s.hashing.Do(ctx, func() error {
		return bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password))
	})
	if err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, &domain.ErrInternal{Op: "compare password", Err: err}
		}
		s.metrics.IncrAuthEvent(observability.EventLoginFailure)
		s.logger.Warn("login: wrong password", zap.String("identity_id", identity.ID))
		return nil, &domain.ErrInvalidCredentials{}
	}

	pair, err := s.issueAndStore(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrAuthEvent(observability.EventLoginSuccess)
	s.logger.Info("identity logged in", zap.String("identity_id", identity.ID))

	return &domain.LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         *userView(identity),
	}, nil
}

// ============================================================
// Refresh: POST /api/auth/refresh
// ============================================================

// Refresh rotates a refresh token. The presented token must verify and be
// the one currently stored for its identity; a superseded token is reuse
// and fails with ErrForbidden.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("auth.refresh", time.Since(start)) }()

	if refreshToken == "" {
		return nil, &domain.ErrUnauthenticated{Message: "Refresh token missing"}
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.logger.Debug("refresh: token rejected", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("identity.id", claims.Subject))

	identity, err := s.store.GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		return nil, boundaryError("get identity", err)
	}
	if identity == nil || identity.RefreshToken != refreshToken {
		s.metrics.IncrAuthEvent(observability.EventRefreshReuse)
		s.logger.Warn("refresh: token does not match the stored one",
			zap.String("identity_id", claims.Subject),
		)
		return nil, &domain.ErrForbidden{Action: "refresh", Message: "Invalid refresh token"}
	}

	pair, err := s.issueAndStore(ctx, identity)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrAuthEvent(observability.EventRefresh)
	return pair, nil
}

// ============================================================
// Logout: POST /api/auth/logout
// ============================================================

// Logout clears the stored refresh token of whichever identity holds
// refreshToken. Unknown, empty and garbage tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("auth.logout", time.Since(start)) }()

	if refreshToken == "" {
		return nil
	}

	identity, err := s.store.GetIdentityByRefreshToken(ctx, refreshToken)
	if err != nil {
		return boundaryError("get identity by refresh token", err)
	}
	if identity == nil {
		return nil
	}

	if err := s.store.SetRefreshToken(ctx, identity.ID, ""); err != nil {
		return boundaryError("clear refresh token", err)
	}

	s.metrics.IncrAuthEvent(observability.EventLogout)
	s.logger.Info("identity logged out", zap.String("identity_id", identity.ID))
	return nil
}

// Profile returns the caller as authenticated by its access token.
func (s *AuthService) Profile(caller domain.Caller) *domain.ProfileResponse {
	return &domain.ProfileResponse{User: caller}
}

func (s *AuthService) issueAndStore(ctx context.Context, identity *domain.Identity) (*domain.TokenPair, error) {
	pair, err := s.tokens.IssuePair(identity)
	if err != nil {
		return nil, &domain.ErrInternal{Op: "issue tokens", Err: err}
	}
	if err := s.store.SetRefreshToken(ctx, identity.ID, pair.RefreshToken); err != nil {
		return nil, boundaryError("store refresh token", fmt.Errorf("identity %s: %w", identity.ID, err))
	}
	return pair, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userView(identity *domain.Identity) *domain.UserView {
	return &domain.UserView{
		ID:    identity.ID,
		Name:  identity.Name,
		Email: identity.Email,
		Role:  identity.Role,
	}
}
