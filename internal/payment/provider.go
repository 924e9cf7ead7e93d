package payment

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Remote capture and order statuses as reported by the provider.
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusPending   = "PENDING"
	StatusDenied    = "DENIED"
	StatusDeclined  = "DECLINED"
	StatusFailed    = "FAILED"
	StatusRefunded  = "REFUNDED"
)

type RemoteItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Capture is the outcome of capturing an approved remote order.
type Capture struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	PayerReference string `json:"payer_reference,omitempty"`
}

type RemoteOrder struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	PayerReference string          `json:"payer_reference,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	CaptureIDs     []string        `json:"capture_ids,omitempty"`
}

// Provider is the remote payment capability. Calls are bounded by the client's own
// timeout; a failed call changes no local state.
type Provider interface {
	Name() string
	CreateRemoteOrder(ctx context.Context, items []RemoteItem, total decimal.Decimal) (string, error)
	CaptureRemotePayment(ctx context.Context, providerOrderID string) (*Capture, error)
	GetRemoteOrderDetails(ctx context.Context, providerOrderID string) (*RemoteOrder, error)
	VerifyWebhookSignature(headers http.Header, body []byte, secret string) bool
}

// EventMarker remembers provider event ids that were already reconciled.
type EventMarker interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}
