package inventory

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
)

// Product is the catalog row as seen by fulfillment. Only the ledger mutates Available.
type Product struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	ImageURL  string          `json:"image_url" db:"image_url"`
	Available int             `json:"available" db:"available"`
}

// Line is a product quantity to reserve or release.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

var (
	ErrProductNotFound   = apperror.New(apperror.KindNotFound, "product_not_found", "product not found")
	ErrInsufficientStock = apperror.New(apperror.KindConflict, "insufficient_stock", "insufficient stock")
	ErrInvalidQuantity   = apperror.New(apperror.KindValidation, "invalid_quantity", "quantity must be greater than zero")
)

// StockError reports which product could not be reserved and how much was left.
type StockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID.String()
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func (e *StockError) Kind() apperror.Kind {
	return apperror.KindConflict
}
