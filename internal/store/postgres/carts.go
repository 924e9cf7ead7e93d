package postgres

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
)

type carts struct {
	q DBTX
}

func (r carts) LinesFor(ctx context.Context, userID uuid.UUID) ([]cart.Line, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, product_id, quantity, updated_at
		FROM fulfillment.cart_lines
		WHERE user_id = $1
		ORDER BY created_at, product_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart of user %s: %w", userID, err)
	}
	lines, err := pgx.CollectRows(rows, pgx.RowToStructByName[cart.Line])
	if err != nil {
		return nil, fmt.Errorf("repository: failed to scan cart of user %s: %w", userID, err)
	}
	return lines, nil
}

func (r carts) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM fulfillment.cart_lines WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("repository: failed to clear cart of user %s: %w", userID, err)
	}
	return nil
}

func (r carts) AddQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Line, error) {
	var line cart.Line
	err := r.q.QueryRow(ctx, `
		INSERT INTO fulfillment.cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING user_id, product_id, quantity, updated_at
	`, userID, productID, qty).Scan(&line.UserID, &line.ProductID, &line.Quantity, &line.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to add product %s to cart: %w", productID, mapError(err))
	}
	return &line, nil
}

func (r carts) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	cmdTag, err := r.q.Exec(ctx, `
		UPDATE fulfillment.cart_lines
		SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID, qty)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart line: %w", mapError(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

func (r carts) Delete(ctx context.Context, userID, productID uuid.UUID) error {
	cmdTag, err := r.q.Exec(ctx, `
		DELETE FROM fulfillment.cart_lines
		WHERE user_id = $1 AND product_id = $2
	`, userID, productID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete cart line: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}
