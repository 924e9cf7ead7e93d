package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusCancelled     Status = "cancelled"
	StatusPaymentFailed Status = "payment_failed"
)

func (s Status) String() string {
	return string(s)
}

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusPaymentFailed,
}

// Item is an immutable snapshot of a product at purchase time.
type Item struct {
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	ImageURL  string          `json:"image_url,omitempty" db:"image_url"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// HistoryEntry is one record of the append-only status log. ActorID is uuid.Nil for
// transitions made by the system (payment events).
type HistoryEntry struct {
	Status  Status    `json:"status" db:"status"`
	Note    string    `json:"note,omitempty" db:"note"`
	ActorID uuid.UUID `json:"actor_id" db:"actor_id"`
	At      time.Time `json:"at" db:"created_at"`
}

type Address struct {
	Recipient  string `json:"recipient,omitempty" validate:"omitempty,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region,omitempty" validate:"omitempty,max=100"`
	PostalCode string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// PaymentDetails correlates the order with the payment provider.
type PaymentDetails struct {
	Provider              string     `json:"provider,omitempty"`
	ProviderOrderID       string     `json:"provider_order_id,omitempty"`
	ProviderTransactionID string     `json:"provider_transaction_id,omitempty"`
	ProviderStatus        string     `json:"provider_status,omitempty"`
	PayerReference        string     `json:"payer_reference,omitempty"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

type Order struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	Items             []Item          `json:"items"`
	TotalPrice        decimal.Decimal `json:"total_price"`
	Status            Status          `json:"status"`
	StatusHistory     []HistoryEntry  `json:"status_history"`
	ShippingAddress   *Address        `json:"shipping_address,omitempty"`
	Payment           PaymentDetails  `json:"payment"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	Carrier           string          `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	InvoiceID         uuid.UUID       `json:"invoice_id"`
	InventoryReleased bool            `json:"inventory_released"`
	Deleted           bool            `json:"-"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	savedHistory int
}

// UnsavedHistory returns the history entries appended since the order was loaded or last saved.
func (o *Order) UnsavedHistory() []HistoryEntry {
	if o.savedHistory >= len(o.StatusHistory) {
		return nil
	}
	return o.StatusHistory[o.savedHistory:]
}

// MarkSaved records that every history entry is persisted. Stores call it after load and save.
func (o *Order) MarkSaved() {
	o.savedHistory = len(o.StatusHistory)
}

// Lines returns the item quantities as inventory lines.
func (o *Order) Lines() []inventory.Line {
	lines := make([]inventory.Line, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

// Clone returns a deep copy safe to hand to asynchronous collaborators.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		c.ShippingAddress = &addr
	}
	if o.EstimatedDelivery != nil {
		eta := *o.EstimatedDelivery
		c.EstimatedDelivery = &eta
	}
	c.Payment = o.Payment.clone()
	return &c
}

func (p PaymentDetails) clone() PaymentDetails {
	c := p
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		c.CreatedAt = &t
	}
	if p.UpdatedAt != nil {
		t := *p.UpdatedAt
		c.UpdatedAt = &t
	}
	return c
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// Invoice is the billing record of an order, created once at checkout.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        uuid.UUID       `json:"order_id"`
	UserID         uuid.UUID       `json:"user_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	BillingAddress *Address        `json:"billing_address,omitempty"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Payment        PaymentDetails  `json:"payment"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Profile is the part of the customer record fulfillment needs.
type Profile struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	Address *Address  `json:"address,omitempty"`
}

// Actor is the verified caller of an operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// SystemActor performs transitions driven by payment events.
var SystemActor = Actor{ID: uuid.Nil, Admin: true}

// TrackingUpdate carries the shipping fields to merge; nil fields are left unchanged.
type TrackingUpdate struct {
	TrackingNumber    *string
	Carrier           *string
	EstimatedDelivery *time.Time
}

// Summary is the projection used for recent-order listings.
type Summary struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	Status     Status          `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

type Stats struct {
	CountByStatus map[Status]int  `json:"count_by_status"`
	TotalOrders   int             `json:"total_orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	Recent        []Summary       `json:"recent"`
}

// Page is one page of a filtered order listing.
type Page struct {
	Orders   []Order `json:"orders"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Pages    int     `json:"pages"`
}
