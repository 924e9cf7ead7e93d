package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

const orderColumns = `id, user_id, status, total_price, shipping_address, payment_provider,
	provider_order_id, provider_transaction_id, provider_status, payer_reference,
	payment_created_at, payment_updated_at, tracking_number, carrier, estimated_delivery,
	invoice_id, inventory_released, deleted, created_at, updated_at`

// orderRow is the flat shape of fulfillment.orders. It is scanned by both pgx and sqlx.
type orderRow struct {
	ID                    uuid.UUID       `db:"id"`
	UserID                uuid.UUID       `db:"user_id"`
	Status                string          `db:"status"`
	TotalPrice            decimal.Decimal `db:"total_price"`
	ShippingAddress       []byte          `db:"shipping_address"`
	PaymentProvider       string          `db:"payment_provider"`
	ProviderOrderID       string          `db:"provider_order_id"`
	ProviderTransactionID string          `db:"provider_transaction_id"`
	ProviderStatus        string          `db:"provider_status"`
	PayerReference        string          `db:"payer_reference"`
	PaymentCreatedAt      *time.Time      `db:"payment_created_at"`
	PaymentUpdatedAt      *time.Time      `db:"payment_updated_at"`
	TrackingNumber        string          `db:"tracking_number"`
	Carrier               string          `db:"carrier"`
	EstimatedDelivery     *time.Time      `db:"estimated_delivery"`
	InvoiceID             uuid.UUID       `db:"invoice_id"`
	InventoryReleased     bool            `db:"inventory_released"`
	Deleted               bool            `db:"deleted"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

func (r orderRow) toOrder() (*order.Order, error) {
	addr, err := decodeAddress(r.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to decode shipping address of order %s: %w", r.ID, err)
	}
	return &order.Order{
		ID:              r.ID,
		UserID:          r.UserID,
		Status:          order.Status(r.Status),
		TotalPrice:      r.TotalPrice,
		ShippingAddress: addr,
		Payment: order.PaymentDetails{
			Provider:              r.PaymentProvider,
			ProviderOrderID:       r.ProviderOrderID,
			ProviderTransactionID: r.ProviderTransactionID,
			ProviderStatus:        r.ProviderStatus,
			PayerReference:        r.PayerReference,
			CreatedAt:             r.PaymentCreatedAt,
			UpdatedAt:             r.PaymentUpdatedAt,
		},
		TrackingNumber:    r.TrackingNumber,
		Carrier:           r.Carrier,
		EstimatedDelivery: r.EstimatedDelivery,
		InvoiceID:         r.InvoiceID,
		InventoryReleased: r.InventoryReleased,
		Deleted:           r.Deleted,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

func decodeAddress(raw []byte) (*order.Address, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var addr order.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		return nil, err
	}
	return &addr, nil
}

func encodeAddress(addr *order.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	return json.Marshal(addr)
}

type orders struct {
	q DBTX
}

func (r orders) Create(ctx context.Context, o *order.Order) error {
	addr, err := encodeAddress(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to encode shipping address: %w", err)
	}

	query := `
		INSERT INTO fulfillment.orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = r.q.Exec(ctx, query,
		o.ID,
		o.UserID,
		string(o.Status),
		o.TotalPrice,
		addr,
		o.Payment.Provider,
		o.Payment.ProviderOrderID,
		o.Payment.ProviderTransactionID,
		o.Payment.ProviderStatus,
		o.Payment.PayerReference,
		o.Payment.CreatedAt,
		o.Payment.UpdatedAt,
		o.TrackingNumber,
		o.Carrier,
		o.EstimatedDelivery,
		o.InvoiceID,
		o.InventoryReleased,
		o.Deleted,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order %s: %w", o.ID, mapError(err))
	}

	queryItem := `
		INSERT INTO fulfillment.order_items (order_id, position, product_id, name, price, quantity, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, item := range o.Items {
		_, err = r.q.Exec(ctx, queryItem, o.ID, i, item.ProductID, item.Name, item.Price, item.Quantity, item.ImageURL)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	if err := r.appendHistory(ctx, o.ID, o.UnsavedHistory()); err != nil {
		return err
	}
	o.MarkSaved()
	return nil
}

func (r orders) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM fulfillment.orders WHERE id = $1 AND NOT deleted FOR UPDATE`
	return r.lockOne(ctx, query, id)
}

func (r orders) FindByProviderReference(ctx context.Context, ref string) (*order.Order, error) {
	if ref == "" {
		return nil, order.ErrOrderNotFound
	}
	query := `
		SELECT ` + orderColumns + ` FROM fulfillment.orders
		WHERE provider_order_id = $1 OR provider_transaction_id = $1
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE
	`
	return r.lockOne(ctx, query, ref)
}

func (r orders) lockOne(ctx context.Context, query string, arg any) (*order.Order, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select order: %w", mapError(err))
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[orderRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan order: %w", mapError(err))
	}

	o, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	if err := loadDetails(ctx, r.q, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r orders) Update(ctx context.Context, o *order.Order) error {
	addr, err := encodeAddress(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to encode shipping address: %w", err)
	}

	query := `
		UPDATE fulfillment.orders
		SET status = $2, shipping_address = $3, payment_provider = $4, provider_order_id = $5,
			provider_transaction_id = $6, provider_status = $7, payer_reference = $8,
			payment_created_at = $9, payment_updated_at = $10, tracking_number = $11, carrier = $12,
			estimated_delivery = $13, inventory_released = $14, deleted = $15, updated_at = $16
		WHERE id = $1
	`
	cmdTag, err := r.q.Exec(ctx, query,
		o.ID,
		string(o.Status),
		addr,
		o.Payment.Provider,
		o.Payment.ProviderOrderID,
		o.Payment.ProviderTransactionID,
		o.Payment.ProviderStatus,
		o.Payment.PayerReference,
		o.Payment.CreatedAt,
		o.Payment.UpdatedAt,
		o.TrackingNumber,
		o.Carrier,
		o.EstimatedDelivery,
		o.InventoryReleased,
		o.Deleted,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order %s: %w", o.ID, mapError(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}

	if err := r.appendHistory(ctx, o.ID, o.UnsavedHistory()); err != nil {
		return err
	}
	o.MarkSaved()
	return nil
}

func (r orders) appendHistory(ctx context.Context, orderID uuid.UUID, entries []order.HistoryEntry) error {
	query := `
		INSERT INTO fulfillment.order_status_history (order_id, status, note, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, e := range entries {
		if _, err := r.q.Exec(ctx, query, orderID, string(e.Status), e.Note, e.ActorID, e.At); err != nil {
			return fmt.Errorf("repository: failed to append status history for order %s: %w", orderID, err)
		}
	}
	return nil
}

// loadDetails fills the items and the status history of o.
func loadDetails(ctx context.Context, q DBTX, o *order.Order) error {
	rows, err := q.Query(ctx, `
		SELECT product_id, name, price, quantity, image_url
		FROM fulfillment.order_items
		WHERE order_id = $1
		ORDER BY position
	`, o.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items for order id %s: %w", o.ID, err)
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[order.Item])
	if err != nil {
		return fmt.Errorf("repository: failed to scan order items for order id %s: %w", o.ID, err)
	}

	rows, err = q.Query(ctx, `
		SELECT status, note, actor_id, created_at
		FROM fulfillment.order_status_history
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to query status history for order id %s: %w", o.ID, err)
	}
	history, err := pgx.CollectRows(rows, pgx.RowToStructByName[order.HistoryEntry])
	if err != nil {
		return fmt.Errorf("repository: failed to scan status history for order id %s: %w", o.ID, err)
	}

	o.Items = items
	o.StatusHistory = history
	o.MarkSaved()
	return nil
}
