package cart

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
)

// Line is one product selection in a user's cart. Unique per (user, product).
type Line struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var ErrLineNotFound = apperror.New(apperror.KindNotFound, "cart_line_not_found", "product not found in cart")

// Snapshot is the read-at-checkout view of a cart. LinesFor is a point-in-time read
// without locks; checkout re-validates stock per line.
type Snapshot interface {
	LinesFor(ctx context.Context, userID uuid.UUID) ([]Line, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Repository stores cart lines.
type Repository interface {
	Snapshot
	// AddQuantity creates the line or increments it atomically and returns the result.
	AddQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) (*Line, error)
	// SetQuantity overwrites an existing line's quantity, ErrLineNotFound if absent.
	SetQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error
	Delete(ctx context.Context, userID, productID uuid.UUID) error
}
