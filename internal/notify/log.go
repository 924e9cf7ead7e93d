// Package notify delivers order notifications.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

// LogNotifier writes notifications to the service log. It is used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n order.Notification) error {
	event := log.Info().
		Str("kind", string(n.Kind)).
		Stringer("order_id", n.Order.ID).
		Stringer("user_id", n.Order.UserID).
		Stringer("status", n.Order.Status)
	if n.Profile != nil {
		event = event.Str("email", n.Profile.Email)
	}
	for k, v := range n.Extra {
		event = event.Str(k, v)
	}
	event.Msg("notify: notification")
	return nil
}
