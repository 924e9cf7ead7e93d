package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

// EventParser turns a provider webhook body into a payment event.
type EventParser func(body []byte) (payment.Event, error)

type CaptureRequest struct {
	ProviderOrderID string `json:"provider_order_id" validate:"required,max=64"`
}

type PaymentHandler struct {
	svc      payment.Service
	parse    EventParser
	validate *validator.Validate
}

func NewPaymentHandler(svc payment.Service, parse EventParser, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{svc: svc, parse: parse, validate: validate}
}

// RegisterRoutes mounts the authenticated payment endpoints.
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/orders/{id}/payment", h.handleStartPayment)
	router.Post("/payments/capture", h.handleCapture)
	router.Get("/payments/{providerOrderID}/verify", h.handleVerify)
	router.Get("/payments/{providerOrderID}", h.handleRemoteDetails)
}

func (h *PaymentHandler) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	o, err := h.svc.StartPayment(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "start payment")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *PaymentHandler) handleCapture(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CaptureRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	res, err := h.svc.CapturePayment(r.Context(), actor, req.ProviderOrderID)
	if err != nil {
		respondWithServiceError(w, r, err, "capture payment")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *PaymentHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	v, err := h.svc.VerifyPayment(r.Context(), actor, chi.URLParam(r, "providerOrderID"), r.URL.Query().Get("payer_id"))
	if err != nil {
		respondWithServiceError(w, r, err, "verify payment")
		return
	}
	respondWithJSON(w, http.StatusOK, v)
}

func (h *PaymentHandler) handleRemoteDetails(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	details, err := h.svc.RemoteDetails(r.Context(), actor, chi.URLParam(r, "providerOrderID"))
	if err != nil {
		respondWithServiceError(w, r, err, "fetch remote payment details")
		return
	}
	respondWithJSON(w, http.StatusOK, details)
}

// HandleWebhook is the unauthenticated provider callback. The signature is checked
// before the body is parsed.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !h.svc.VerifyWebhook(r.Header, body) {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Rejected webhook with invalid signature")
		respondWithError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	ev, err := h.parse(body)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to parse webhook event")
		respondWithError(w, http.StatusBadRequest, "malformed event")
		return
	}

	res, err := h.svc.HandleEvent(r.Context(), ev)
	if err != nil {
		respondWithServiceError(w, r, err, "reconcile webhook event")
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}
