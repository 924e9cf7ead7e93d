package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
)

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartResponse struct {
	Lines []cart.Line `json:"lines"`
}

type CartHandler struct {
	svc      cart.Service
	validate *validator.Validate
}

func NewCartHandler(svc cart.Service, validate *validator.Validate) *CartHandler {
	return &CartHandler{svc: svc, validate: validate}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Post("/cart/items", h.handleAddItem)
	router.Patch("/cart/items/{productID}", h.handleUpdateItem)
	router.Delete("/cart/items/{productID}", h.handleRemoveItem)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	lines, err := h.svc.Lines(r.Context(), actor.ID)
	if err != nil {
		respondWithServiceError(w, r, err, "get cart")
		return
	}
	if lines == nil {
		lines = []cart.Line{}
	}
	respondWithJSON(w, http.StatusOK, CartResponse{Lines: lines})
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	line, err := h.svc.AddItem(r.Context(), actor.ID, req.ProductID, req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "add cart item")
		return
	}
	respondWithJSON(w, http.StatusOK, line)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}
	var req UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.svc.UpdateQuantity(r.Context(), actor.ID, productID, *req.Quantity); err != nil {
		respondWithServiceError(w, r, err, "update cart item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}

	if err := h.svc.RemoveItem(r.Context(), actor.ID, productID); err != nil {
		respondWithServiceError(w, r, err, "remove cart item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
