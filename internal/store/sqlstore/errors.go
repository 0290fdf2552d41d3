package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"pharmaledger/backend/internal/store"
)

var sentinels = []error{
	store.ErrNotFound,
	store.ErrInsufficientStock,
	store.ErrPriceViolation,
	store.ErrOverReturn,
	store.ErrConcurrencyConflict,
	store.ErrIntegrityViolation,
	store.ErrInvalidTransaction,
	context.Canceled,
	context.DeadlineExceeded,
}

// classify maps driver errors onto the store error taxonomy. Errors that
// already carry a taxonomy sentinel pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, pgErr.Message)
		case "23505":
			// A concurrent receipt inserted the same lot first; a retry
			// will find and lock it.
			if pgErr.ConstraintName == "batches_medicine_lot_key" {
				return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, pgErr.Message)
			}
			return fmt.Errorf("%w: %s", store.ErrIntegrityViolation, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", store.ErrNotFound, pgErr.Detail)
		case "22003":
			return fmt.Errorf("%w: %s", store.ErrInvalidTransaction, pgErr.Message)
		case "23502", "23514":
			return fmt.Errorf("%w: %s", store.ErrIntegrityViolation, pgErr.Message)
		}
		return err
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		switch code & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, liteErr.Error())
		case sqlite3.SQLITE_CONSTRAINT:
			switch {
			case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
				return fmt.Errorf("%w: %s", store.ErrNotFound, liteErr.Error())
			case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE && strings.Contains(liteErr.Error(), "batches.lot_code"):
				return fmt.Errorf("%w: %s", store.ErrConcurrencyConflict, liteErr.Error())
			}
			return fmt.Errorf("%w: %s", store.ErrIntegrityViolation, liteErr.Error())
		}
	}
	return err
}
