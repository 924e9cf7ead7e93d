package payment

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

type EventKind string

const (
	EventCaptureCompleted EventKind = "capture_completed"
	EventCaptureDenied    EventKind = "capture_denied"
	EventCapturePending   EventKind = "capture_pending"
	EventCaptureRefunded  EventKind = "capture_refunded"
	EventOther            EventKind = "other"
)

// Event is an inbound payment notification. TransactionID is the provider's capture
// reference; OrderReference is the provider order it belongs to, when known.
type Event struct {
	ID             string
	Kind           EventKind
	RawType        string
	TransactionID  string
	OrderReference string
	PayerReference string
	OccurredAt     time.Time
}

func (e Event) references() []string {
	refs := make([]string, 0, 2)
	if e.TransactionID != "" {
		refs = append(refs, e.TransactionID)
	}
	if e.OrderReference != "" && e.OrderReference != e.TransactionID {
		refs = append(refs, e.OrderReference)
	}
	return refs
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRecorded  Outcome = "recorded"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
)

// Result describes what reconciling one event did. Applied is true only when the
// order changed status.
type Result struct {
	Outcome       Outcome             `json:"outcome"`
	OrderID       uuid.UUID           `json:"order_id,omitempty"`
	Applied       bool                `json:"applied"`
	Status        order.Status        `json:"status,omitempty"`
	PaymentStatus order.PaymentStatus `json:"payment_status,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// KindForCaptureStatus maps a provider capture status onto the event that reports it.
func KindForCaptureStatus(status string) EventKind {
	switch strings.ToUpper(status) {
	case StatusCompleted:
		return EventCaptureCompleted
	case StatusDenied, StatusDeclined, StatusFailed:
		return EventCaptureDenied
	case StatusPending:
		return EventCapturePending
	case StatusRefunded:
		return EventCaptureRefunded
	default:
		return EventOther
	}
}

// effect is what an event kind does to an order and its invoice.
type effect struct {
	providerStatus string
	paymentStatus  order.PaymentStatus
	target         order.Status
	onlyFrom       order.Status
	release        bool
	note           string
}

var effects = map[EventKind]effect{
	EventCaptureCompleted: {
		providerStatus: StatusCompleted,
		paymentStatus:  order.PaymentPaid,
		target:         order.StatusProcessing,
		onlyFrom:       order.StatusPending,
		note:           "Payment completed",
	},
	EventCaptureDenied: {
		providerStatus: StatusDenied,
		paymentStatus:  order.PaymentFailed,
		target:         order.StatusPaymentFailed,
		release:        true,
		note:           "Payment denied",
	},
	EventCaptureRefunded: {
		providerStatus: StatusRefunded,
		paymentStatus:  order.PaymentRefunded,
		target:         order.StatusCancelled,
		release:        true,
		note:           "Payment refunded",
	},
	EventCapturePending: {
		providerStatus: StatusPending,
	},
}
