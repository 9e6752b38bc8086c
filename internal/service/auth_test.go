package service

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/memory"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func registerAndLogin(t *testing.T, f *fixture, email string) *domain.LoginResponse {
	t.Helper()
	ctx := context.Background()

	_, err := f.auth.Register(ctx, &domain.RegisterRequest{Name: "Ana", Email: email, Password: "secret123"})
	require.NoError(t, err)

	resp, err := f.auth.Login(ctx, &domain.LoginRequest{Email: email, Password: "secret123"})
	require.NoError(t, err)
	return resp
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Equal(t, "ana@example.com", user.Email)

	_, err = f.auth.Register(ctx, &domain.RegisterRequest{Name: "Ana 2", Email: " ANA@Example.com ", Password: "secret123"})
	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "User already exists", conflict.Message)

	assert.EqualValues(t, 1, f.metrics.GetAuthSnapshot().Registrations)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t, false)

	for name, req := range map[string]*domain.RegisterRequest{
		"short password": {Name: "Ana", Email: "ana@example.com", Password: "12345"},
		"blank name":     {Name: "  ", Email: "ana@example.com", Password: "secret123"},
		"blank email":    {Name: "Ana", Email: " ", Password: "secret123"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), req)
			var validation *domain.ErrValidation
			assert.ErrorAs(t, err, &validation)
		})
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.auth.Register(context.Background(), &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	stored, err := f.store.GetIdentityByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "secret123", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret123")))
}

func TestLogin_IssuesPairAndPersistsRefreshToken(t *testing.T) {
	f := newFixture(t, false)

	resp := registerAndLogin(t, f, "ana@example.com")

	stored, err := f.store.GetIdentityByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, resp.RefreshToken, stored.RefreshToken)

	claims, err := f.tokens.VerifyAccess(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.Subject)
	assert.Equal(t, stored.Role, claims.Role)
	assert.Equal(t, stored.Email, claims.Email)

	assert.Equal(t, domain.UserView{ID: stored.ID, Name: "Ana", Email: "ana@example.com", Role: domain.RoleUser}, resp.User)
	assert.EqualValues(t, 1, f.metrics.GetAuthSnapshot().LoginSuccess)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.auth.Register(ctx, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	for name, req := range map[string]*domain.LoginRequest{
		"wrong password": {Email: "ana@example.com", Password: "nope123"},
		"unknown email":  {Email: "bob@example.com", Password: "secret123"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, req)
			var invalid *domain.ErrInvalidCredentials
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "Invalid credentials", err.Error())
		})
	}

	snap := f.metrics.GetAuthSnapshot()
	assert.EqualValues(t, 2, snap.LoginFailure)
	assert.EqualValues(t, 0, snap.LoginSuccess)
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	_, err := f.auth.Register(ctx, &domain.RegisterRequest{Name: "Ana", Email: "Ana@Example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, &domain.LoginRequest{Email: "ana@example.COM", Password: "secret123"})
	assert.NoError(t, err)
}

func TestRefresh_RotatesAndDetectsReuse(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	login := registerAndLogin(t, f, "ana@example.com")

	rotated, err := f.auth.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	stored, err := f.store.GetIdentityByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, rotated.RefreshToken, stored.RefreshToken)

	// The first token is now superseded.
	_, err = f.auth.Refresh(ctx, login.RefreshToken)
	var forbidden *domain.ErrForbidden
	require.ErrorAs(t, err, &forbidden)

	// Reuse does not burn the legitimate holder's token.
	_, err = f.auth.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)

	snap := f.metrics.GetAuthSnapshot()
	assert.EqualValues(t, 2, snap.Refreshes)
	assert.EqualValues(t, 1, snap.RefreshReuse)
}

func TestRefresh_Failures(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	login := registerAndLogin(t, f, "ana@example.com")

	_, err := f.auth.Refresh(ctx, "")
	var unauthenticated *domain.ErrUnauthenticated
	require.ErrorAs(t, err, &unauthenticated)
	assert.Equal(t, "Refresh token missing", unauthenticated.Message)

	_, err = f.auth.Refresh(ctx, "garbage")
	var invalid *domain.ErrInvalidToken
	assert.ErrorAs(t, err, &invalid)

	_, err = f.auth.Refresh(ctx, login.AccessToken)
	assert.ErrorAs(t, err, &invalid)
}

func TestRefresh_UnknownIdentityIsForbidden(t *testing.T) {
	f := newFixture(t, false)

	pair, err := f.tokens.IssuePair(&domain.Identity{ID: "ghost", Email: "ghost@example.com", Role: domain.RoleUser})
	require.NoError(t, err)

	_, err = f.auth.Refresh(context.Background(), pair.RefreshToken)
	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, err, &forbidden)
}

func TestLogout_ClearsAndIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	login := registerAndLogin(t, f, "ana@example.com")

	require.NoError(t, f.auth.Logout(ctx, login.RefreshToken))

	stored, err := f.store.GetIdentityByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Empty(t, stored.RefreshToken)

	require.NoError(t, f.auth.Logout(ctx, login.RefreshToken))

	_, err = f.auth.Refresh(ctx, login.RefreshToken)
	var forbidden *domain.ErrForbidden
	assert.ErrorAs(t, err, &forbidden)
	assert.EqualValues(t, 1, f.metrics.GetAuthSnapshot().Logouts)
}

func TestLogout_UnknownTokenLeavesRecordsAlone(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	login := registerAndLogin(t, f, "ana@example.com")

	for _, token := range []string{"", "garbage", login.AccessToken} {
		assert.NoError(t, f.auth.Logout(ctx, token))
	}

	stored, err := f.store.GetIdentityByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, login.RefreshToken, stored.RefreshToken)
	assert.EqualValues(t, 0, f.metrics.GetAuthSnapshot().Logouts)
}

func TestEnsureAdmin_IsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first, err := f.auth.EnsureAdmin(ctx, "Root", "Root@Example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, first.Role)
	assert.Equal(t, "root@example.com", first.Email)

	second, err := f.auth.EnsureAdmin(ctx, "Root", "root@example.com", "other-password")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	resp, err := f.auth.Login(ctx, &domain.LoginRequest{Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, resp.User.Role)
}

func TestProfile_ReturnsCaller(t *testing.T) {
	f := newFixture(t, false)
	caller := domain.Caller{ID: "id-1", Email: "ana@example.com", Role: domain.RoleUser}

	assert.Equal(t, caller, f.auth.Profile(caller).User)
}

type brokenIdentityStore struct {
	*memory.Store
}

func (brokenIdentityStore) GetIdentityByEmail(context.Context, string) (*domain.Identity, error) {
	return nil, errors.New("dial tcp 10.0.0.1:5432: connection refused")
}

func TestAuth_StoreFailureIsInternal(t *testing.T) {
	svc := NewAuthService(
		brokenIdentityStore{memory.NewStore()},
		NewTokenService(testAccessSecret, testRefreshSecret, 0, 0),
		resilience.NewBulkhead(1),
		bcrypt.MinCost,
		observability.NewMetrics(),
		zap.NewNop(),
	)

	_, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	var internal *domain.ErrInternal
	require.ErrorAs(t, err, &internal)
	assert.Equal(t, "internal error", err.Error())
	assert.NotContains(t, err.Error(), "10.0.0.1")
}
