package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

type products struct {
	q DBTX
}

func (r products) GetProduct(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, price, image_url, available
		FROM fulfillment.products
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select product %s: %w", id, err)
	}
	p, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[inventory.Product])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan product %s: %w", id, err)
	}
	return p, nil
}

// DecrementAvailable is a single conditional update, so two transactions can never
// both take the last units.
func (r products) DecrementAvailable(ctx context.Context, id uuid.UUID, qty int) (int, bool, error) {
	var available int
	err := r.q.QueryRow(ctx, `
		UPDATE fulfillment.products
		SET available = available - $2, updated_at = now()
		WHERE id = $1 AND available >= $2
		RETURNING available
	`, id, qty).Scan(&available)
	if err == nil {
		return available, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("repository: failed to decrement stock of product %s: %w", id, mapError(err))
	}

	err = r.q.QueryRow(ctx, `SELECT available FROM fulfillment.products WHERE id = $1`, id).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, inventory.ErrProductNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("repository: failed to read stock of product %s: %w", id, err)
	}
	return available, false, nil
}

func (r products) IncrementAvailable(ctx context.Context, id uuid.UUID, qty int) error {
	cmdTag, err := r.q.Exec(ctx, `
		UPDATE fulfillment.products
		SET available = available + $2, updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return fmt.Errorf("repository: failed to increment stock of product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

type profiles struct {
	q DBTX
}

func (r profiles) GetProfile(ctx context.Context, userID uuid.UUID) (*order.Profile, error) {
	var (
		p    order.Profile
		addr []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT user_id, email, name, address
		FROM fulfillment.customer_profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.Name, &addr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrProfileNotFound
		}
		return nil, fmt.Errorf("repository: failed to select profile of user %s: %w", userID, err)
	}

	if p.Address, err = decodeAddress(addr); err != nil {
		return nil, fmt.Errorf("repository: failed to decode address of user %s: %w", userID, err)
	}
	return &p, nil
}
