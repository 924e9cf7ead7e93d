package order

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

// Store is the transactional persistence the lifecycle and payment services run against.
type Store interface {
	Reader
	// InTx runs fn in one unit of work. Every write made through tx is committed when fn
	// returns nil and discarded otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Reader serves queries outside a unit of work. Soft-deleted orders are never returned
// unless the filter asks for them.
type Reader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetInvoice(ctx context.Context, orderID uuid.UUID) (*Invoice, error)
	ListOrders(ctx context.Context, f Filter) ([]Order, int, error)
	OrderStats(ctx context.Context, f Filter) (*Stats, error)
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Orders() Repository
	Invoices() InvoiceRepository
	Products() inventory.Repository
	Carts() cart.Snapshot
	Profiles() ProfileRepository
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	// GetForUpdate loads a live order and holds it exclusively until the unit of work ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindByProviderReference locks the order whose payment matches ref, either the
	// provider order id or the provider transaction id.
	FindByProviderReference(ctx context.Context, ref string) (*Order, error)
	// Update persists mutable fields and appends the order's unsaved history.
	Update(ctx context.Context, o *Order) error
}

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
}

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}
