package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

// ProductFinder resolves catalog products referenced by cart lines.
type ProductFinder interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*inventory.Product, error)
}

type Service interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]Line, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Line, error)
	UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
}

type service struct {
	repo     Repository
	products ProductFinder
}

func NewService(repo Repository, products ProductFinder) Service {
	return &service{repo: repo, products: products}
}

func (s *service) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	lines, err := s.repo.LinesFor(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("cart: failed to load lines")
		return nil, apperror.Internal(err, "cart: failed to load lines")
	}
	return lines, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*Line, error) {
	if qty <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, apperror.Internal(err, "cart: failed to look up product")
	}

	line, err := s.repo.AddQuantity(ctx, userID, productID, qty)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Stringer("product_id", productID).Msg("cart: failed to add item")
		return nil, apperror.Internal(err, "cart: failed to add item")
	}

	log.Debug().Stringer("user_id", userID).Stringer("product_id", productID).Int("quantity", line.Quantity).Msg("cart: item added")
	return line, nil
}

// UpdateQuantity sets the line's quantity; zero or less removes the line.
func (s *service) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}

	if err := s.repo.SetQuantity(ctx, userID, productID, qty); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return ErrLineNotFound
		}
		return apperror.Internal(err, fmt.Sprintf("cart: failed to update product %s", productID))
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, productID); err != nil {
		if errors.Is(err, ErrLineNotFound) {
			return ErrLineNotFound
		}
		return apperror.Internal(err, fmt.Sprintf("cart: failed to remove product %s", productID))
	}
	return nil
}
