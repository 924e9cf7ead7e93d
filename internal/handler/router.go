package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Orders      order.Service
	Carts       cart.Service
	Payments    payment.Service
	ParseEvent  EventParser
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Health      HealthCheck
}

func NewRouter(deps RouterDeps) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Health(ctx); err != nil {
				respondWithError(w, http.StatusServiceUnavailable, "unhealthy")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	payments := NewPaymentHandler(deps.Payments, deps.ParseEvent, validate)

	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Handler)
		}
		r.Post("/webhooks/paypal", payments.HandleWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth.Middleware)
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Handler)
		}

		NewCartHandler(deps.Carts, validate).RegisterRoutes(r)
		NewOrderHandler(deps.Orders, validate).RegisterRoutes(r)
		payments.RegisterRoutes(r)
	})

	return r
}
