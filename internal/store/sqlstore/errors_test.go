package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"pharmaledger/backend/internal/store"
)

func TestClassifyPostgresErrors(t *testing.T) {
	cases := []struct {
		name string
		err  *pgconn.PgError
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, store.ErrConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, store.ErrConcurrencyConflict},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, store.ErrConcurrencyConflict},
		{"duplicate lot", &pgconn.PgError{Code: "23505", ConstraintName: "batches_medicine_lot_key"}, store.ErrConcurrencyConflict},
		{"duplicate bill", &pgconn.PgError{Code: "23505", ConstraintName: "sales_bill_number_key"}, store.ErrIntegrityViolation},
		{"missing parent", &pgconn.PgError{Code: "23503"}, store.ErrNotFound},
		{"check", &pgconn.PgError{Code: "23514"}, store.ErrIntegrityViolation},
		{"not null", &pgconn.PgError{Code: "23502"}, store.ErrIntegrityViolation},
		{"numeric out of range", &pgconn.PgError{Code: "22003"}, store.ErrInvalidTransaction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(fmt.Errorf("exec: %w", tc.err))
			require.ErrorIs(t, got, tc.want)
		})
	}
}

func TestClassifyPassesThroughTaxonomy(t *testing.T) {
	stockErr := &store.StockError{BatchID: "bat-1", Requested: 3, Available: 1}
	got := classify(stockErr)
	var typed *store.StockError
	require.ErrorAs(t, got, &typed)
	require.Same(t, stockErr, typed)

	require.ErrorIs(t, classify(context.Canceled), context.Canceled)

	plain := errors.New("syntax error")
	require.Equal(t, plain, classify(plain))
	require.NoError(t, classify(nil))
}
