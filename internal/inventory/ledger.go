package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// Repository is the stock storage the ledger works against.
//
// DecrementAvailable must be a single atomic compare-and-decrement: it only applies when
// the current available quantity is >= qty. When it does not apply, ok is false and
// available holds the current quantity. A missing product returns ErrProductNotFound.
type Repository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	DecrementAvailable(ctx context.Context, id uuid.UUID, qty int) (available int, ok bool, err error)
	IncrementAvailable(ctx context.Context, id uuid.UUID, qty int) error
}

// Ledger reserves and releases product stock. It is bound to one repository, usually
// the one of the current unit of work.
type Ledger struct {
	products Repository
}

func NewLedger(products Repository) *Ledger {
	return &Ledger{products: products}
}

// Reserve decrements the product's available quantity or fails with a *StockError.
func (l *Ledger) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	available, ok, err := l.products.DecrementAvailable(ctx, productID, qty)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("ledger: failed to reserve product %s: %w", productID, err)
	}
	if !ok {
		log.Warn().Stringer("product_id", productID).Int("requested", qty).Int("available", available).Msg("ledger: insufficient stock")
		return &StockError{ProductID: productID, Requested: qty, Available: available}
	}

	return nil
}

// Release adds qty back to the product. Releasing stock of a product that no longer
// exists is logged and skipped. Callers are responsible for not releasing twice.
func (l *Ledger) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}

	err := l.products.IncrementAvailable(ctx, productID, qty)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Stringer("product_id", productID).Int("quantity", qty).Msg("ledger: product vanished, release skipped")
			return nil
		}
		return fmt.Errorf("ledger: failed to release product %s: %w", productID, err)
	}

	return nil
}

// ReserveAll reserves every line or none: when a line fails, the lines reserved
// before it are released in reverse order and the original error is returned.
func (l *Ledger) ReserveAll(ctx context.Context, lines []Line) error {
	reserved := make([]Line, 0, len(lines))

	for _, line := range lines {
		if err := l.Reserve(ctx, line.ProductID, line.Quantity); err != nil {
			l.rollback(ctx, reserved)
			return err
		}
		reserved = append(reserved, line)
	}

	return nil
}

// ReleaseAll returns every line to stock.
func (l *Ledger) ReleaseAll(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		if err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) rollback(ctx context.Context, reserved []Line) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if err := l.Release(ctx, line.ProductID, line.Quantity); err != nil {
			log.Error().Err(err).Stringer("product_id", line.ProductID).Int("quantity", line.Quantity).Msg("ledger: CRITICAL failed to roll back reservation")
		}
	}
}
