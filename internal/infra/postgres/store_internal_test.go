package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/boddenberg/crm-api-go/internal/domain"
	"github.com/boddenberg/crm-api-go/internal/infra/observability"
	"github.com/boddenberg/crm-api-go/internal/infra/resilience"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLikePattern(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   string
	}{
		{"plain", "acme", "%acme%"},
		{"percent", "50%", `%50\%%`},
		{"underscore", "a_b", `%a\_b%`},
		{"backslash", `a\b`, `%a\\b%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.search))
		})
	}
}

func TestCustomerWhere(t *testing.T) {
	where, args := customerWhere(domain.CustomerFilter{OwnerID: "u1", Search: "acme"})
	assert.Equal(t, " WHERE owner_id = $1 AND (name ILIKE $2 OR email ILIKE $2)", where)
	assert.Equal(t, []any{"u1", "%acme%"}, args)

	where, args = customerWhere(domain.CustomerFilter{OwnerID: "u1"})
	assert.Equal(t, " WHERE owner_id = $1", where)
	assert.Len(t, args, 1)

	where, args = customerWhere(domain.CustomerFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestPgCode(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation})
	assert.Equal(t, uniqueViolation, pgCode(err))
	assert.Empty(t, pgCode(fmt.Errorf("plain")))
}

func newRunStore() *Store {
	return &Store{
		cb:      resilience.NewCircuitBreaker("postgres-test"),
		cfg:     resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		logger:  zap.NewNop(),
		metrics: observability.NewMetrics(),
	}
}

func storeErrors(t *testing.T, m *observability.Metrics, operation string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "crm_store_errors_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["backend"] == "postgres" && labels["operation"] == operation {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRun_FailureCountsStoreError(t *testing.T) {
	s := newRunStore()
	var calls int

	err := s.run(context.Background(), "get customer", func() error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres get customer")
	assert.Equal(t, 2, calls)
	assert.Equal(t, float64(1), storeErrors(t, s.metrics, "get customer"))
}

func TestRun_PermanentOutcomeIsNotAStoreError(t *testing.T) {
	s := newRunStore()

	err := s.run(context.Background(), "create identity", func() error {
		return resilience.Permanent(&domain.ErrConflict{Message: "User already exists"})
	})

	var conflict *domain.ErrConflict
	require.ErrorAs(t, err, &conflict)
	assert.Zero(t, storeErrors(t, s.metrics, "create identity"))
}
