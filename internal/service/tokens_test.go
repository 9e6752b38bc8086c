package service

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity() *domain.Identity {
	return &domain.Identity{ID: "id-1", Name: "Ana", Email: "ana@example.com", Role: domain.RoleAdmin}
}

func assertInvalidToken(t *testing.T, err error) {
	t.Helper()
	var invalid *domain.ErrInvalidToken
	assert.True(t, errors.As(err, &invalid), "expected ErrInvalidToken, got %v", err)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)

	pair, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := ts.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Caller{ID: "id-1", Email: "ana@example.com", Role: domain.RoleAdmin}, access.Caller())

	refresh, err := ts.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "id-1", refresh.Subject)
	assert.Equal(t, "ana@example.com", refresh.Email)
	assert.Empty(t, refresh.Role)
	assert.NotEmpty(t, refresh.ID)
}

func TestTokenService_PairsIssuedTogetherDiffer(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)

	first, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)
	second, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestTokenService_KindsAreNotInterchangeable(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)
	pair, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)

	_, err = ts.VerifyRefresh(pair.AccessToken)
	assertInvalidToken(t, err)

	_, err = ts.VerifyAccess(pair.RefreshToken)
	assertInvalidToken(t, err)
}

func TestTokenService_RejectsWrongTypeUnderRightSecret(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)

	raw, err := ts.sign(ts.accessSecret, Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-1",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	require.NoError(t, err)

	_, err = ts.VerifyAccess(raw)
	assertInvalidToken(t, err)
}

func TestTokenService_RejectsExpired(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, -time.Minute, -time.Minute)
	pair, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)

	_, err = ts.VerifyAccess(pair.AccessToken)
	assertInvalidToken(t, err)
	_, err = ts.VerifyRefresh(pair.RefreshToken)
	assertInvalidToken(t, err)
}

func TestTokenService_RejectsMalformed(t *testing.T) {
	ts := NewTokenService(testAccessSecret, testRefreshSecret, time.Minute, time.Hour)
	pair, err := ts.IssuePair(testIdentity())
	require.NoError(t, err)

	other := NewTokenService("another-access", "another-refresh", time.Minute, time.Hour)
	foreign, err := other.IssuePair(testIdentity())
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "id-1",
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"tampered":       pair.AccessToken + "x",
		"foreign secret": foreign.AccessToken,
		"alg none":       none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ts.VerifyAccess(raw)
			assertInvalidToken(t, err)
		})
	}
}
