package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

const invoiceColumns = `id, order_id, user_id, total_amount, billing_address, payment_status,
	payment_provider, provider_order_id, provider_transaction_id, provider_status, payer_reference,
	payment_created_at, payment_updated_at, created_at, updated_at`

type invoiceRow struct {
	ID                    uuid.UUID       `db:"id"`
	OrderID               uuid.UUID       `db:"order_id"`
	UserID                uuid.UUID       `db:"user_id"`
	TotalAmount           decimal.Decimal `db:"total_amount"`
	BillingAddress        []byte          `db:"billing_address"`
	PaymentStatus         string          `db:"payment_status"`
	PaymentProvider       string          `db:"payment_provider"`
	ProviderOrderID       string          `db:"provider_order_id"`
	ProviderTransactionID string          `db:"provider_transaction_id"`
	ProviderStatus        string          `db:"provider_status"`
	PayerReference        string          `db:"payer_reference"`
	PaymentCreatedAt      *time.Time      `db:"payment_created_at"`
	PaymentUpdatedAt      *time.Time      `db:"payment_updated_at"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

func (r invoiceRow) toInvoice() (*order.Invoice, error) {
	addr, err := decodeAddress(r.BillingAddress)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to decode billing address of invoice %s: %w", r.ID, err)
	}
	return &order.Invoice{
		ID:             r.ID,
		OrderID:        r.OrderID,
		UserID:         r.UserID,
		TotalAmount:    r.TotalAmount,
		BillingAddress: addr,
		PaymentStatus:  order.PaymentStatus(r.PaymentStatus),
		Payment: order.PaymentDetails{
			Provider:              r.PaymentProvider,
			ProviderOrderID:       r.ProviderOrderID,
			ProviderTransactionID: r.ProviderTransactionID,
			ProviderStatus:        r.ProviderStatus,
			PayerReference:        r.PayerReference,
			CreatedAt:             r.PaymentCreatedAt,
			UpdatedAt:             r.PaymentUpdatedAt,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

type invoices struct {
	q DBTX
}

func (r invoices) Create(ctx context.Context, inv *order.Invoice) error {
	addr, err := encodeAddress(inv.BillingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to encode billing address: %w", err)
	}

	query := `
		INSERT INTO fulfillment.invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.q.Exec(ctx, query,
		inv.ID,
		inv.OrderID,
		inv.UserID,
		inv.TotalAmount,
		addr,
		string(inv.PaymentStatus),
		inv.Payment.Provider,
		inv.Payment.ProviderOrderID,
		inv.Payment.ProviderTransactionID,
		inv.Payment.ProviderStatus,
		inv.Payment.PayerReference,
		inv.Payment.CreatedAt,
		inv.Payment.UpdatedAt,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert invoice for order %s: %w", inv.OrderID, mapError(err))
	}
	return nil
}

func (r invoices) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*order.Invoice, error) {
	return getInvoice(ctx, r.q, `SELECT `+invoiceColumns+` FROM fulfillment.invoices WHERE order_id = $1 FOR UPDATE`, orderID)
}

func (r invoices) Update(ctx context.Context, inv *order.Invoice) error {
	addr, err := encodeAddress(inv.BillingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to encode billing address: %w", err)
	}

	query := `
		UPDATE fulfillment.invoices
		SET billing_address = $2, payment_status = $3, payment_provider = $4, provider_order_id = $5,
			provider_transaction_id = $6, provider_status = $7, payer_reference = $8,
			payment_created_at = $9, payment_updated_at = $10, updated_at = $11
		WHERE order_id = $1
	`
	cmdTag, err := r.q.Exec(ctx, query,
		inv.OrderID,
		addr,
		string(inv.PaymentStatus),
		inv.Payment.Provider,
		inv.Payment.ProviderOrderID,
		inv.Payment.ProviderTransactionID,
		inv.Payment.ProviderStatus,
		inv.Payment.PayerReference,
		inv.Payment.CreatedAt,
		inv.Payment.UpdatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update invoice for order %s: %w", inv.OrderID, mapError(err))
	}
	if cmdTag.RowsAffected() == 0 {
		return order.ErrInvoiceNotFound
	}
	return nil
}

func getInvoice(ctx context.Context, q DBTX, query string, orderID uuid.UUID) (*order.Invoice, error) {
	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select invoice for order %s: %w", orderID, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[invoiceRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("repository: failed to scan invoice for order %s: %w", orderID, err)
	}
	return row.toInvoice()
}
