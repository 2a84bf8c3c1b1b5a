package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMapPostgresError(t *testing.T) {
	other := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "no rows", err: pgx.ErrNoRows, want: models.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: models.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: models.ErrConflict},
		{name: "wrapped unique violation", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: models.ErrConflict},
		{name: "not null violation", err: &pgconn.PgError{Code: "23502"}, want: models.ErrBadRequest},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: models.ErrBadRequest},
		{name: "passthrough", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPostgresError(tt.err)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestRegisterPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := PoolStats{TotalConns: 5, IdleConns: 3, AcquiredConns: 2}
	RegisterPoolMetrics(reg, func() PoolStats { return stats })

	expected := `
# HELP warden_db_pool_acquired_conns Connections checked out of the account store pool
# TYPE warden_db_pool_acquired_conns gauge
warden_db_pool_acquired_conns 2
# HELP warden_db_pool_idle_conns Idle connections in the account store pool
# TYPE warden_db_pool_idle_conns gauge
warden_db_pool_idle_conns 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"warden_db_pool_acquired_conns", "warden_db_pool_idle_conns"))

	// read at scrape time
	stats.TotalConns = 9
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP warden_db_pool_total_conns Connections currently open in the account store pool
# TYPE warden_db_pool_total_conns gauge
warden_db_pool_total_conns 9
`), "warden_db_pool_total_conns"))
}
