package postgres

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

// testDB is nil unless DB_HOST points at a PostgreSQL instance.
var testDB *db.Postgres

func TestMain(m *testing.M) {
	if os.Getenv("DB_HOST") == "" {
		os.Exit(m.Run())
	}

	cfg := config.PostgresConfig{
		Host:            os.Getenv("DB_HOST"),
		Port:            envOr("DB_PORT", "5432"),
		User:            envOr("DB_USER", "postgres"),
		Password:        envOr("DB_PASSWORD", "123456"),
		DBName:          envOr("DB_NAME", "fulfillment"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
		MigrationsPath:  "../../../migrations",
	}

	var err error
	testDB, err = db.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v (host=%s, port=%s, dbname=%s)", err, cfg.Host, cfg.Port, cfg.DBName)
	}
	if err := testDB.ApplyMigrations(cfg); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	exitCode := m.Run()

	testDB.Close()

	os.Exit(exitCode)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setup(t *testing.T) *Store {
	t.Helper()
	if testDB == nil {
		t.Skip("DB_HOST is not set, skipping PostgreSQL test")
	}

	truncate := func() {
		_, err := testDB.Pool.Exec(context.Background(), `
			TRUNCATE fulfillment.invoices, fulfillment.order_status_history, fulfillment.order_items,
				fulfillment.orders, fulfillment.cart_lines, fulfillment.customer_profiles, fulfillment.products
		`)
		if err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
	}
	truncate()
	t.Cleanup(truncate)

	return NewStore(testDB.Pool, testDB.DB)
}

func seedProduct(t *testing.T, available int) uuid.UUID {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	_, err := testDB.Pool.Exec(context.Background(), `
		INSERT INTO fulfillment.products (id, name, price, available) VALUES ($1, $2, $3, $4)
	`, id, "Desk lamp", decimal.RequireFromString("19.90"), available)
	require.NoError(t, err)
	return id
}

func availableOf(t *testing.T, s *Store, id uuid.UUID) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Available
}

func newOrder(userID, productID uuid.UUID, now time.Time) *order.Order {
	o := &order.Order{
		ID:     uuid.Must(uuid.NewV4()),
		UserID: userID,
		Items: []order.Item{
			{ProductID: productID, Name: "Desk lamp", Price: decimal.RequireFromString("19.90"), Quantity: 2},
		},
		TotalPrice:      decimal.RequireFromString("39.80"),
		Status:          order.StatusPending,
		ShippingAddress: &order.Address{Line1: "1 Main St", City: "Springfield", Country: "US"},
		InvoiceID:       uuid.Must(uuid.NewV4()),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	o.StatusHistory = []order.HistoryEntry{{Status: order.StatusPending, Note: "Order created", ActorID: userID, At: now}}
	return o
}

func TestProducts_DecrementAvailable(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 3)

	err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		available, ok, err := tx.Products().DecrementAvailable(ctx, productID, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, available)

		available, ok, err = tx.Products().DecrementAvailable(ctx, productID, 5)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, available)

		_, _, err = tx.Products().DecrementAvailable(ctx, uuid.Must(uuid.NewV4()), 1)
		assert.ErrorIs(t, err, inventory.ErrProductNotFound)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, availableOf(t, s, productID))
}

func TestProducts_ConcurrentDecrementNeverOversells(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 5)

	const buyers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
				_, ok, err := tx.Products().DecrementAvailable(ctx, productID, 1)
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 0, availableOf(t, s, productID))
}

func TestStore_InTx_CheckConstraintIsInsufficientStock(t *testing.T) {
	s := setup(t)
	productID := seedProduct(t, 1)

	err := s.InTx(context.Background(), func(ctx context.Context, unit order.Tx) error {
		_, err := unit.(*tx).q.Exec(ctx, `UPDATE fulfillment.products SET available = available - 2 WHERE id = $1`, productID)
		return err
	})

	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, 1, availableOf(t, s, productID))
}

func TestStore_InTx_RollsBackOnError(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 4)
	userID := uuid.Must(uuid.NewV4())
	o := newOrder(userID, productID, time.Now().UTC().Truncate(time.Microsecond))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		if _, ok, err := tx.Products().DecrementAvailable(ctx, productID, 2); err != nil || !ok {
			t.Fatalf("decrement failed: ok=%v err=%v", ok, err)
		}
		require.NoError(t, tx.Orders().Create(ctx, o))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, availableOf(t, s, productID))
	_, err = s.GetOrder(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestStore_InTx_RollsBackOnPanic(t *testing.T) {
	s := setup(t)
	productID := seedProduct(t, 4)

	assert.Panics(t, func() {
		_ = s.InTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
			_, _, _ = tx.Products().DecrementAvailable(ctx, productID, 3)
			panic("unexpected")
		})
	})

	assert.Equal(t, 4, availableOf(t, s, productID))
}

func TestOrders_UpdateAppendsOnlyNewHistory(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 10)
	userID := uuid.Must(uuid.NewV4())
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := newOrder(userID, productID, now)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Orders().Create(ctx, o)
	}))
	assert.Empty(t, o.UnsavedHistory())

	for _, to := range []order.Status{order.StatusProcessing, order.StatusShipped} {
		require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
			locked, err := tx.Orders().GetForUpdate(ctx, o.ID)
			require.NoError(t, err)
			assert.Empty(t, locked.UnsavedHistory())
			require.NoError(t, locked.TransitionTo(to, "moved", userID, now.Add(time.Minute)))
			return tx.Orders().Update(ctx, locked)
		}))
	}

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	require.Len(t, got.StatusHistory, 3)
	assert.Equal(t, order.StatusPending, got.StatusHistory[0].Status)
	assert.Equal(t, order.StatusProcessing, got.StatusHistory[1].Status)
	assert.Equal(t, order.StatusShipped, got.StatusHistory[2].Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)
	require.NotNil(t, got.ShippingAddress)
	assert.Equal(t, "Springfield", got.ShippingAddress.City)
}

func TestOrders_FindByProviderReference(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 10)
	o := newOrder(uuid.Must(uuid.NewV4()), productID, time.Now().UTC().Truncate(time.Microsecond))
	o.Payment = order.PaymentDetails{Provider: "paypal", ProviderOrderID: "PP-1", ProviderTransactionID: "CAP-1"}
	o.Deleted = true

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Orders().Create(ctx, o)
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		for _, ref := range []string{"PP-1", "CAP-1"} {
			found, err := tx.Orders().FindByProviderReference(ctx, ref)
			require.NoError(t, err, ref)
			assert.Equal(t, o.ID, found.ID)
		}

		_, err := tx.Orders().FindByProviderReference(ctx, "")
		assert.ErrorIs(t, err, order.ErrOrderNotFound)

		_, err = tx.Orders().GetForUpdate(ctx, o.ID)
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestOrders_GetForUpdateHoldsRowLock(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 10)
	o := newOrder(uuid.Must(uuid.NewV4()), productID, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Orders().Create(ctx, o)
	}))

	locked := make(chan struct{})
	release := make(chan struct{})
	holderDone := make(chan error, 1)
	go func() {
		holderDone <- s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
			if _, err := tx.Orders().GetForUpdate(ctx, o.ID); err != nil {
				close(locked)
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.InTx(ctx, func(ctx context.Context, unit order.Tx) error {
		if _, err := unit.(*tx).q.Exec(ctx, `SET LOCAL lock_timeout = '100ms'`); err != nil {
			return err
		}
		_, err := unit.Orders().GetForUpdate(ctx, o.ID)
		return err
	})
	close(release)

	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	require.NoError(t, <-holderDone)
}

func TestInvoices_CreateAndUpdate(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 10)
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := newOrder(uuid.Must(uuid.NewV4()), productID, now)
	inv := &order.Invoice{
		ID:             o.InvoiceID,
		OrderID:        o.ID,
		UserID:         o.UserID,
		TotalAmount:    o.TotalPrice,
		BillingAddress: o.ShippingAddress,
		PaymentStatus:  order.PaymentUnpaid,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		return tx.Invoices().Create(ctx, inv)
	}))

	err := s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		dup := *inv
		dup.ID = uuid.Must(uuid.NewV4())
		return tx.Invoices().Create(ctx, &dup)
	})
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		got, err := tx.Invoices().GetByOrderID(ctx, o.ID)
		require.NoError(t, err)
		got.PaymentStatus = order.PaymentPaid
		got.Payment.ProviderTransactionID = "CAP-9"
		return tx.Invoices().Update(ctx, got)
	}))

	got, err := s.GetInvoice(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "CAP-9", got.Payment.ProviderTransactionID)
	assert.True(t, o.TotalPrice.Equal(got.TotalAmount))

	err = s.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Invoices().Update(ctx, &order.Invoice{OrderID: uuid.Must(uuid.NewV4())})
	})
	assert.ErrorIs(t, err, order.ErrInvoiceNotFound)
}

func TestCarts_Postgres(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	productID := seedProduct(t, 10)
	userID := uuid.Must(uuid.NewV4())
	carts := s.Carts()

	_, err := carts.AddQuantity(ctx, userID, productID, 1)
	require.NoError(t, err)
	line, err := carts.AddQuantity(ctx, userID, productID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)

	_, err = carts.AddQuantity(ctx, userID, uuid.Must(uuid.NewV4()), 1)
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)

	assert.ErrorIs(t, carts.SetQuantity(ctx, userID, uuid.Must(uuid.NewV4()), 1), cart.ErrLineNotFound)
	require.NoError(t, carts.SetQuantity(ctx, userID, productID, 5))

	lines, err := carts.LinesFor(ctx, userID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)

	require.NoError(t, carts.Clear(ctx, userID))
	lines, err = carts.LinesFor(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.ErrorIs(t, carts.Delete(ctx, userID, productID), cart.ErrLineNotFound)
}
