package memory

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
)

type carts struct {
	st  *state
	now func() time.Time
}

func (r carts) LinesFor(_ context.Context, userID uuid.UUID) ([]cart.Line, error) {
	return append([]cart.Line(nil), r.st.carts[userID]...), nil
}

func (r carts) Clear(_ context.Context, userID uuid.UUID) error {
	delete(r.st.carts, userID)
	return nil
}

func (r carts) AddQuantity(_ context.Context, userID, productID uuid.UUID, qty int) (*cart.Line, error) {
	lines := r.st.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += qty
			lines[i].UpdatedAt = r.now()
			line := lines[i]
			return &line, nil
		}
	}

	line := cart.Line{UserID: userID, ProductID: productID, Quantity: qty, UpdatedAt: r.now()}
	r.st.carts[userID] = append(lines, line)
	return &line, nil
}

func (r carts) SetQuantity(_ context.Context, userID, productID uuid.UUID, qty int) error {
	lines := r.st.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = qty
			lines[i].UpdatedAt = r.now()
			return nil
		}
	}
	return cart.ErrLineNotFound
}

func (r carts) Delete(_ context.Context, userID, productID uuid.UUID) error {
	lines := r.st.carts[userID]
	for i := range lines {
		if lines[i].ProductID == productID {
			r.st.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return cart.ErrLineNotFound
}

// lockedCarts serves the cart service outside any unit of work.
type lockedCarts struct {
	s *Store
}

func (c *lockedCarts) repo() carts {
	return carts{st: c.s.st, now: c.s.now}
}

func (c *lockedCarts) LinesFor(ctx context.Context, userID uuid.UUID) ([]cart.Line, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.repo().LinesFor(ctx, userID)
}

func (c *lockedCarts) Clear(ctx context.Context, userID uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.repo().Clear(ctx, userID)
}

func (c *lockedCarts) AddQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Line, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.repo().AddQuantity(ctx, userID, productID, qty)
}

func (c *lockedCarts) SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.repo().SetQuantity(ctx, userID, productID, qty)
}

func (c *lockedCarts) Delete(ctx context.Context, userID, productID uuid.UUID) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.repo().Delete(ctx, userID, productID)
}
