// Package postgres implements the order store on PostgreSQL. Writes run in pgx
// transactions with row locks; listings and statistics go through sqlx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var ErrConcurrentUpdate = apperror.New(apperror.KindConflict, "concurrent_update", "the record was modified concurrently, retry the request")

type Store struct {
	pool *pgxpool.Pool
	*Reports
}

// NewStore binds the write side to pool and the read side to db, usually a sqlx
// handle over the same pool.
func NewStore(pool *pgxpool.Pool, db *sqlx.DB) *Store {
	return &Store{pool: pool, Reports: NewReports(db)}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) (err error) {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Msg("repository: panic during unit of work, rolling back")
			if rbErr := pgTx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Debug().Err(err).Msg("repository: unit of work failed, rolling back")
			if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Msg("repository: failed to rollback transaction")
			}
			err = mapError(err)
		} else if commitErr := pgTx.Commit(ctx); commitErr != nil {
			log.Error().Err(commitErr).Msg("repository: failed to commit transaction")
			err = mapError(fmt.Errorf("repository: failed to commit transaction: %w", commitErr))
		}
	}()

	return fn(ctx, &tx{q: pgTx})
}

// GetProduct reads the catalog row outside any unit of work.
func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	return products{q: s.pool}.GetProduct(ctx, id)
}

func (s *Store) Carts() cart.Repository {
	return carts{q: s.pool}
}

type tx struct {
	q DBTX
}

func (t *tx) Orders() order.Repository          { return orders{q: t.q} }
func (t *tx) Invoices() order.InvoiceRepository { return invoices{q: t.q} }
func (t *tx) Products() inventory.Repository    { return products{q: t.q} }
func (t *tx) Carts() cart.Snapshot              { return carts{q: t.q} }
func (t *tx) Profiles() order.ProfileRepository { return profiles{q: t.q} }

// mapError turns lock and constraint failures into classified errors.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return apperror.Wrap(apperror.KindConflict, ErrConcurrentUpdate, err.Error())
	case pgerrcode.UniqueViolation:
		return apperror.Wrap(apperror.KindConflict, err, "duplicate record")
	case pgerrcode.CheckViolation:
		if pgErr.ConstraintName == "products_available_check" {
			return inventory.ErrInsufficientStock
		}
		return apperror.Wrap(apperror.KindValidation, err, "constraint violated")
	case pgerrcode.ForeignKeyViolation:
		if pgErr.ConstraintName == "cart_lines_product_id_fkey" {
			return inventory.ErrProductNotFound
		}
	}
	return err
}
