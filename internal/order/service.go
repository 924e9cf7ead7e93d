package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/metrics"
)

type Service interface {
	CreateOrder(ctx context.Context, actor Actor, shipping *Address) (*Order, *Invoice, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error)
	GetInvoice(ctx context.Context, actor Actor, orderID uuid.UUID) (*Invoice, error)
	ListOrders(ctx context.Context, actor Actor, f Filter) (*Page, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status Status, note string) (*Order, error)
	CancelOrder(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Order, error)
	UpdateTracking(ctx context.Context, actor Actor, id uuid.UUID, upd TrackingUpdate) (*Order, error)
	Stats(ctx context.Context, actor Actor, f Filter) (*Stats, error)
	DeleteOrder(ctx context.Context, actor Actor, id uuid.UUID) error
}

type Option func(*service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, opts ...Option) Service {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s := &service{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, actor Actor, shipping *Address) (*Order, *Invoice, error) {
	var (
		created *Order
		invoice *Invoice
		profile *Profile
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.Carts().LinesFor(ctx, actor.ID)
		if err != nil {
			return apperror.Internal(err, "service: failed to read cart")
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		items := make([]Item, 0, len(lines))
		reserve := make([]inventory.Line, 0, len(lines))
		names := make(map[uuid.UUID]string, len(lines))
		total := decimal.Zero

		for _, line := range lines {
			product, err := tx.Products().GetProduct(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, inventory.ErrProductNotFound) {
					return inventory.ErrProductNotFound
				}
				return apperror.Internal(err, "service: failed to load product")
			}
			if line.Quantity > product.Available {
				return &inventory.StockError{
					ProductID: product.ID,
					Name:      product.Name,
					Requested: line.Quantity,
					Available: product.Available,
				}
			}

			item := Item{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  line.Quantity,
				ImageURL:  product.ImageURL,
			}
			items = append(items, item)
			reserve = append(reserve, inventory.Line{ProductID: product.ID, Quantity: line.Quantity})
			names[product.ID] = product.Name
			total = total.Add(item.Subtotal())
		}

		if err := inventory.NewLedger(tx.Products()).ReserveAll(ctx, reserve); err != nil {
			var stockErr *inventory.StockError
			if errors.As(err, &stockErr) {
				stockErr.Name = names[stockErr.ProductID]
				return stockErr
			}
			return apperror.Classify(err, "service: failed to reserve stock")
		}

		now := s.now()
		orderID, err := uuid.NewV4()
		if err != nil {
			return apperror.Internal(err, "service: failed to generate order id")
		}
		invoiceID, err := uuid.NewV4()
		if err != nil {
			return apperror.Internal(err, "service: failed to generate invoice id")
		}

		o := &Order{
			ID:              orderID,
			UserID:          actor.ID,
			Items:           items,
			TotalPrice:      total,
			Status:          StatusPending,
			StatusHistory:   []HistoryEntry{{Status: StatusPending, Note: "Order created", ActorID: actor.ID, At: now}},
			ShippingAddress: shipping,
			InvoiceID:       invoiceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Orders().Create(ctx, o); err != nil {
			return apperror.Internal(err, "service: failed to create order")
		}

		profile, err = tx.Profiles().GetProfile(ctx, actor.ID)
		if err != nil && !errors.Is(err, ErrProfileNotFound) {
			return apperror.Internal(err, "service: failed to load customer profile")
		}

		billing := shipping
		if billing == nil && profile != nil {
			billing = profile.Address
		}
		inv := &Invoice{
			ID:             invoiceID,
			OrderID:        o.ID,
			UserID:         actor.ID,
			TotalAmount:    total,
			BillingAddress: billing,
			PaymentStatus:  PaymentUnpaid,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Invoices().Create(ctx, inv); err != nil {
			return apperror.Internal(err, "service: failed to create invoice")
		}

		if err := tx.Carts().Clear(ctx, actor.ID); err != nil {
			return apperror.Internal(err, "service: failed to clear cart")
		}

		created, invoice = o, inv
		return nil
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			log.Error().Err(err).Stringer("user_id", actor.ID).Msg("service: failed to create order")
		} else {
			log.Warn().Err(err).Stringer("user_id", actor.ID).Msg("service: checkout rejected")
		}
		metrics.RecordCheckoutFailure(apperror.CodeOf(err))
		return nil, nil, apperror.Classify(err, "service: failed to create order")
	}

	metrics.RecordOrderCreated()
	log.Info().Stringer("order_id", created.ID).Stringer("user_id", actor.ID).Str("total", created.TotalPrice.StringFixed(2)).Msg("service: order created")

	s.notify(ctx, Notification{Kind: NotifyOrderConfirmed, Order: created, Profile: profile})
	return created, invoice, nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, apperror.Internal(err, "service: failed to fetch order")
	}

	if !visibleTo(actor, o) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *service) GetInvoice(ctx context.Context, actor Actor, orderID uuid.UUID) (*Invoice, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}

	inv, err := s.store.GetInvoice(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, apperror.Internal(err, "service: failed to fetch invoice")
	}
	return inv, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor, f Filter) (*Page, error) {
	if !actor.Admin {
		f.UserID = &actor.ID
		f.IncludeDeleted = false
	}
	f.Normalize()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	orders, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, apperror.Internal(err, "service: failed to list orders")
	}
	if orders == nil {
		orders = []Order{}
	}

	return &Page{
		Orders:   orders,
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
		Pages:    PageCount(total, f.PageSize),
	}, nil
}

func (s *service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, status Status, note string) (*Order, error) {
	if !actor.Admin {
		return nil, ErrNotAllowed
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	var previous Status
	updated, profile, err := s.modify(ctx, id, func(ctx context.Context, tx Tx, o *Order) error {
		previous = o.Status
		if err := o.TransitionTo(status, note, actor.ID, s.now()); err != nil {
			return err
		}
		if releasesInventory(status) {
			return ReleaseInventory(ctx, tx.Products(), o)
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Stringer("new_status", status).Msg("service: status update rejected")
		return nil, err
	}

	metrics.RecordTransition(status.String(), "api")
	log.Info().Stringer("order_id", id).Stringer("status", status).Msg("service: order status updated")

	s.notify(ctx, Notification{Kind: NotificationFor(status), Order: updated, Profile: profile, Extra: transitionExtra(previous, note)})
	return updated, nil
}

func (s *service) CancelOrder(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Order, error) {
	var previous Status
	updated, profile, err := s.modify(ctx, id, func(ctx context.Context, tx Tx, o *Order) error {
		if !visibleTo(actor, o) {
			return ErrOrderNotFound
		}
		previous = o.Status
		switch o.Status {
		case StatusDelivered:
			return ErrCannotCancelDelivered
		case StatusCancelled:
			return ErrAlreadyCancelled
		}

		note := reason
		if note == "" {
			note = "Order cancelled"
		}
		if err := o.TransitionTo(StatusCancelled, note, actor.ID, s.now()); err != nil {
			return err
		}
		return ReleaseInventory(ctx, tx.Products(), o)
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Msg("service: cancellation rejected")
		return nil, err
	}

	metrics.RecordTransition(StatusCancelled.String(), "api")
	log.Info().Stringer("order_id", id).Stringer("actor_id", actor.ID).Msg("service: order cancelled")

	extra := transitionExtra(previous, "")
	if reason != "" {
		extra["reason"] = reason
	}
	s.notify(ctx, Notification{Kind: NotifyCancelled, Order: updated, Profile: profile, Extra: extra})
	return updated, nil
}

// UpdateTracking merges the provided shipping fields. A tracking number on a
// processing order ships it.
func (s *service) UpdateTracking(ctx context.Context, actor Actor, id uuid.UUID, upd TrackingUpdate) (*Order, error) {
	if !actor.Admin {
		return nil, ErrNotAllowed
	}
	if upd.TrackingNumber == nil && upd.Carrier == nil && upd.EstimatedDelivery == nil {
		return nil, apperror.Validation("no tracking fields provided")
	}

	shipped := false
	updated, profile, err := s.modify(ctx, id, func(ctx context.Context, tx Tx, o *Order) error {
		now := s.now()
		if upd.TrackingNumber != nil {
			o.TrackingNumber = *upd.TrackingNumber
		}
		if upd.Carrier != nil {
			o.Carrier = *upd.Carrier
		}
		if upd.EstimatedDelivery != nil {
			eta := *upd.EstimatedDelivery
			o.EstimatedDelivery = &eta
		}
		o.UpdatedAt = now

		if upd.TrackingNumber != nil && *upd.TrackingNumber != "" && o.Status == StatusProcessing {
			note := fmt.Sprintf("Shipped with tracking number %s", *upd.TrackingNumber)
			if err := o.TransitionTo(StatusShipped, note, actor.ID, now); err != nil {
				return err
			}
			shipped = true
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Msg("service: tracking update rejected")
		return nil, err
	}

	if shipped {
		metrics.RecordTransition(StatusShipped.String(), "api")
		log.Info().Stringer("order_id", id).Str("tracking_number", updated.TrackingNumber).Msg("service: order shipped")
		s.notify(ctx, Notification{
			Kind:    NotifyShipped,
			Order:   updated,
			Profile: profile,
			Extra:   map[string]string{"tracking_number": updated.TrackingNumber, "carrier": updated.Carrier, "previous_status": StatusProcessing.String()},
		})
	}
	return updated, nil
}

// Stats aggregates over every order for admins and over the caller's own orders otherwise.
func (s *service) Stats(ctx context.Context, actor Actor, f Filter) (*Stats, error) {
	if !actor.Admin {
		f.UserID = &actor.ID
	}
	f.Status = ""
	f.Tracking = ""
	f.IncludeDeleted = false
	if err := f.Validate(); err != nil {
		return nil, err
	}

	stats, err := s.store.OrderStats(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to compute order stats")
		return nil, apperror.Internal(err, "service: failed to compute order stats")
	}

	if stats.CountByStatus == nil {
		stats.CountByStatus = make(map[Status]int, len(AllStatuses))
	}
	for _, st := range AllStatuses {
		if _, ok := stats.CountByStatus[st]; !ok {
			stats.CountByStatus[st] = 0
		}
	}
	if stats.Recent == nil {
		stats.Recent = []Summary{}
	}
	return stats, nil
}

// DeleteOrder hides the order from every default query. The row is kept.
func (s *service) DeleteOrder(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.Admin {
		return ErrNotAllowed
	}

	_, _, err := s.modify(ctx, id, func(ctx context.Context, tx Tx, o *Order) error {
		o.Deleted = true
		o.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Stringer("order_id", id).Stringer("actor_id", actor.ID).Msg("service: order soft-deleted")
	return nil
}

// modify loads the order under lock, applies fn and persists the result in one unit of
// work. It also returns the owner's profile for notifications, nil when there is none.
func (s *service) modify(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Tx, o *Order) error) (*Order, *Profile, error) {
	var (
		updated *Order
		profile *Profile
	)

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return ErrOrderNotFound
			}
			return apperror.Internal(err, "service: failed to load order")
		}

		if err := fn(ctx, tx, o); err != nil {
			return err
		}

		if err := tx.Orders().Update(ctx, o); err != nil {
			return apperror.Internal(err, "service: failed to save order")
		}
		updated = o
		profile = LoadProfile(ctx, tx.Profiles(), o.UserID)
		return nil
	})
	if err != nil {
		return nil, nil, apperror.Classify(err, "service: failed to update order")
	}
	return updated, profile, nil
}

func (s *service) notify(ctx context.Context, n Notification) {
	n.Order = n.Order.Clone()
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		log.Error().Err(err).Stringer("order_id", n.Order.ID).Str("kind", string(n.Kind)).Msg("service: failed to send notification")
	}
}

// ReleaseInventory returns the order's reserved quantities to stock at most once per
// order. It must run in the same unit of work that persists the order.
func ReleaseInventory(ctx context.Context, products inventory.Repository, o *Order) error {
	if o.InventoryReleased {
		log.Debug().Stringer("order_id", o.ID).Msg("service: inventory already released")
		return nil
	}

	if err := inventory.NewLedger(products).ReleaseAll(ctx, o.Lines()); err != nil {
		return apperror.Internal(err, "service: failed to release inventory")
	}
	o.InventoryReleased = true

	metrics.RecordInventoryRelease()
	log.Info().Stringer("order_id", o.ID).Int("items", len(o.Items)).Msg("service: inventory released")
	return nil
}

func releasesInventory(s Status) bool {
	return s == StatusCancelled || s == StatusPaymentFailed
}

func visibleTo(actor Actor, o *Order) bool {
	return actor.Admin || o.UserID == actor.ID
}

// LoadProfile reads the customer record for a notification. A missing or unreadable
// profile yields nil.
func LoadProfile(ctx context.Context, profiles ProfileRepository, userID uuid.UUID) *Profile {
	p, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			log.Warn().Err(err).Stringer("user_id", userID).Msg("service: failed to load customer profile for notification")
		}
		return nil
	}
	return p
}

func transitionExtra(previous Status, note string) map[string]string {
	extra := map[string]string{"previous_status": previous.String()}
	if note != "" {
		extra["note"] = note
	}
	return extra
}
