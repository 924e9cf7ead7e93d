package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

type CreateOrderRequest struct {
	ShippingAddress *order.Address `json:"shipping_address,omitempty" validate:"omitempty"`
}

type CreateOrderResponse struct {
	Order   *order.Order   `json:"order"`
	Invoice *order.Invoice `json:"invoice"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type UpdateTrackingRequest struct {
	TrackingNumber    *string    `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	Carrier           *string    `json:"carrier,omitempty" validate:"omitempty,max=100"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc order.Service, validate *validator.Validate) *OrderHandler {
	return &OrderHandler{svc: svc, validate: validate}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders", h.CreateOrder)
	router.Get("/orders", h.ListOrders)
	router.Get("/orders/stats", h.Stats)
	router.Get("/orders/{id}", h.GetOrderByID)
	router.Get("/orders/{id}/invoice", h.GetInvoice)
	router.Patch("/orders/{id}/status", h.UpdateStatus)
	router.Post("/orders/{id}/cancel", h.CancelOrder)
	router.Patch("/orders/{id}/tracking", h.UpdateTracking)
	router.Delete("/orders/{id}", h.DeleteOrder)
}

// CreateOrder checks out the caller's cart.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	created, invoice, err := h.svc.CreateOrder(r.Context(), actor, req.ShippingAddress)
	if err != nil {
		respondWithServiceError(w, r, err, "create order")
		return
	}
	respondWithJSON(w, http.StatusCreated, CreateOrderResponse{Order: created, Invoice: invoice})
}

// GetOrderByID handles retrieving an order by its ID.
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.svc.GetOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "get order")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.svc.GetInvoice(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "get invoice")
		return
	}
	respondWithJSON(w, http.StatusOK, inv)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		respondWithServiceError(w, r, err, "parse order filter")
		return
	}

	page, err := h.svc.ListOrders(r.Context(), actor, f)
	if err != nil {
		respondWithServiceError(w, r, err, "list orders")
		return
	}
	respondWithJSON(w, http.StatusOK, page)
}

func (h *OrderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		respondWithServiceError(w, r, err, "parse stats filter")
		return
	}

	stats, err := h.svc.Stats(r.Context(), actor, f)
	if err != nil {
		respondWithServiceError(w, r, err, "compute order stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	status, err := order.ParseStatus(req.Status)
	if err != nil {
		respondWithServiceError(w, r, err, "parse status")
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), actor, id, status, req.Note)
	if err != nil {
		respondWithServiceError(w, r, err, "update order status")
		return
	}
	log.Info().Stringer("order_id", id).Stringer("status", status).Stringer("actor_id", actor.ID).Msg("Order status updated")
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	cancelled, err := h.svc.CancelOrder(r.Context(), actor, id, req.Reason)
	if err != nil {
		respondWithServiceError(w, r, err, "cancel order")
		return
	}
	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) UpdateTracking(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req UpdateTrackingRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	updated, err := h.svc.UpdateTracking(r.Context(), actor, id, order.TrackingUpdate{
		TrackingNumber:    req.TrackingNumber,
		Carrier:           req.Carrier,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "update tracking")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, err, "delete order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseFilter reads listing parameters: status, from, to (RFC 3339 or YYYY-MM-DD),
// tracking, user_id, include_deleted, sort, page and page_size.
func parseFilter(q url.Values) (order.Filter, error) {
	var f order.Filter

	if raw := q.Get("status"); raw != "" {
		status, err := order.ParseStatus(raw)
		if err != nil {
			return f, err
		}
		f.Status = status
	}

	var err error
	if f.From, err = parseTime(q.Get("from"), false); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to"), true); err != nil {
		return f, err
	}

	f.Tracking = q.Get("tracking")

	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			return f, apperror.Validationf("invalid user_id %q", raw)
		}
		f.UserID = &id
	}
	if raw := q.Get("include_deleted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, apperror.Validationf("invalid include_deleted %q", raw)
		}
		f.IncludeDeleted = v
	}

	if f.Sort, err = order.ParseSort(q.Get("sort")); err != nil {
		return f, err
	}
	if f.Page, err = parsePositive(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = parsePositive(q.Get("page_size"), "page_size"); err != nil {
		return f, err
	}
	return f, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare upper bound covers the whole day.
func parseTime(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperror.Validationf("invalid date %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parsePositive(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperror.Validation(fmt.Sprintf("%s must be a positive integer", name))
	}
	return v, nil
}
