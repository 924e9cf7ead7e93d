package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

func TestMapError(t *testing.T) {
	plain := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		wantIs   error
		wantKind apperror.Kind
	}{
		{
			name:     "serialization failure",
			err:      &pgconn.PgError{Code: pgerrcode.SerializationFailure},
			wantIs:   ErrConcurrentUpdate,
			wantKind: apperror.KindConflict,
		},
		{
			name:     "deadlock",
			err:      &pgconn.PgError{Code: pgerrcode.DeadlockDetected},
			wantIs:   ErrConcurrentUpdate,
			wantKind: apperror.KindConflict,
		},
		{
			name:     "lock timeout",
			err:      fmt.Errorf("select order: %w", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}),
			wantIs:   ErrConcurrentUpdate,
			wantKind: apperror.KindConflict,
		},
		{
			name:     "unique violation",
			err:      &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "invoices_order_id_key"},
			wantKind: apperror.KindConflict,
		},
		{
			name:     "stock would go negative",
			err:      &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "products_available_check"},
			wantIs:   inventory.ErrInsufficientStock,
			wantKind: apperror.KindConflict,
		},
		{
			name:     "other check violation",
			err:      &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "cart_lines_quantity_check"},
			wantKind: apperror.KindValidation,
		},
		{
			name:     "cart line for unknown product",
			err:      &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "cart_lines_product_id_fkey"},
			wantIs:   inventory.ErrProductNotFound,
			wantKind: apperror.KindNotFound,
		},
		{
			name:     "not a postgres error",
			err:      plain,
			wantIs:   plain,
			wantKind: apperror.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, got, tt.wantIs)
			}
			assert.Equal(t, tt.wantKind, apperror.KindOf(got))
		})
	}
}
