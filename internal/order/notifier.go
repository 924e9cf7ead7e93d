package order

import "context"

type NotificationKind string

const (
	NotifyOrderConfirmed NotificationKind = "order_confirmed"
	NotifyStatusChanged  NotificationKind = "status_changed"
	NotifyShipped        NotificationKind = "shipped"
	NotifyCancelled      NotificationKind = "cancelled"
)

// Notification is an outbound message about an order. Profile is set when the
// customer record was loaded by the triggering operation.
type Notification struct {
	Kind    NotificationKind  `json:"kind"`
	Order   *Order            `json:"order"`
	Profile *Profile          `json:"profile,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

// Notifier delivers notifications. Callers log a returned error and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationFor picks the kind announcing a move to status to.
func NotificationFor(to Status) NotificationKind {
	switch to {
	case StatusShipped:
		return NotifyShipped
	case StatusCancelled:
		return NotifyCancelled
	default:
		return NotifyStatusChanged
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }
