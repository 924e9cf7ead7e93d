package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

var (
	ErrMissingReference = apperror.New(apperror.KindValidation, "missing_payment_reference", "payment event carries no provider reference")
	ErrPaymentNotOpen   = apperror.New(apperror.KindConflict, "payment_not_open", "order is not awaiting payment")
)

// Verification is the advisory answer of VerifyPayment. It never changes order state.
type Verification struct {
	Verified       bool      `json:"verified"`
	Status         string    `json:"status"`
	OrderID        uuid.UUID `json:"order_id,omitempty"`
	PayerReference string    `json:"payer_reference,omitempty"`
}

type Service interface {
	HandleEvent(ctx context.Context, ev Event) (*Result, error)
	VerifyWebhook(headers http.Header, body []byte) bool
	VerifyPayment(ctx context.Context, actor order.Actor, providerOrderID, payerReference string) (*Verification, error)
	StartPayment(ctx context.Context, actor order.Actor, orderID uuid.UUID) (*order.Order, error)
	CapturePayment(ctx context.Context, actor order.Actor, providerOrderID string) (*Result, error)
	RemoteDetails(ctx context.Context, actor order.Actor, providerOrderID string) (*RemoteOrder, error)
}

type Option func(*service)

func WithEventMarker(m EventMarker) Option {
	return func(s *service) {
		s.marker = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	store         order.Store
	provider      Provider
	notifier      order.Notifier
	marker        EventMarker
	webhookSecret string
	now           func() time.Time
}

func NewService(store order.Store, provider Provider, notifier order.Notifier, webhookSecret string, opts ...Option) Service {
	s := &service{
		store:         store,
		provider:      provider,
		notifier:      notifier,
		webhookSecret: webhookSecret,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleEvent reconciles one provider event against the matching order. Events for
// unknown orders, replays and unrecognized kinds are successful no-ops.
func (s *service) HandleEvent(ctx context.Context, ev Event) (*Result, error) {
	logger := log.With().Str("event_id", ev.ID).Str("event_kind", string(ev.Kind)).Str("transaction_id", ev.TransactionID).Logger()

	if s.seen(ctx, ev.ID) {
		logger.Info().Msg("payment: duplicate event skipped")
		metrics.RecordReconciliation(string(ev.Kind), string(OutcomeDuplicate))
		return &Result{Outcome: OutcomeDuplicate, Message: "event already processed"}, nil
	}

	eff, known := effects[ev.Kind]
	if !known {
		logger.Info().Str("raw_type", ev.RawType).Msg("payment: unhandled event type recorded as no-op")
		metrics.RecordReconciliation(string(EventOther), string(OutcomeIgnored))
		s.mark(ctx, ev.ID)
		return &Result{Outcome: OutcomeIgnored, Message: fmt.Sprintf("unhandled event type %s", ev.RawType)}, nil
	}

	refs := ev.references()
	if len(refs) == 0 {
		return nil, ErrMissingReference
	}

	var (
		res          *Result
		notification *order.Notification
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		o, err := findByReference(ctx, tx.Orders(), refs)
		if err != nil {
			if errors.Is(err, order.ErrOrderNotFound) {
				res = &Result{Outcome: OutcomeNoMatch, Message: "no matching order"}
				return nil
			}
			return apperror.Internal(err, "payment: failed to look up order")
		}

		inv, err := tx.Invoices().GetByOrderID(ctx, o.ID)
		if err != nil {
			if !errors.Is(err, order.ErrInvoiceNotFound) {
				return apperror.Internal(err, "payment: failed to load invoice")
			}
			logger.Warn().Stringer("order_id", o.ID).Msg("payment: order has no invoice")
			inv = nil
		}

		now := s.now()
		previous := o.Status
		s.recordPayment(o, ev, eff, now)
		res = &Result{Outcome: OutcomeRecorded, OrderID: o.ID}

		if eff.target != "" {
			switch {
			case eff.onlyFrom != "" && o.Status != eff.onlyFrom:
				res.Message = fmt.Sprintf("order already %s", o.Status)
			case o.Status == eff.target:
				res.Message = "already applied"
			case order.CanTransition(o.Status, eff.target):
				if err := o.TransitionTo(eff.target, eff.note, order.SystemActor.ID, now); err != nil {
					return err
				}
				res.Outcome = OutcomeApplied
				res.Applied = true
			default:
				res.Outcome = OutcomeRejected
				res.Message = fmt.Sprintf("order is %s and cannot move to %s", o.Status, eff.target)
			}

			if eff.release && o.Status == eff.target {
				if err := order.ReleaseInventory(ctx, tx.Products(), o); err != nil {
					return err
				}
			}
		}

		if inv != nil {
			settleInvoice(inv, eff.paymentStatus, o.Payment, now)
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return apperror.Internal(err, "payment: failed to update invoice")
			}
			res.PaymentStatus = inv.PaymentStatus
		}

		if err := tx.Orders().Update(ctx, o); err != nil {
			return apperror.Internal(err, "payment: failed to save order")
		}
		res.Status = o.Status

		if res.Applied {
			notification = &order.Notification{
				Kind:    order.NotificationFor(eff.target),
				Order:   o.Clone(),
				Profile: order.LoadProfile(ctx, tx.Profiles(), o.UserID),
				Extra:   map[string]string{"payment_status": eff.providerStatus, "previous_status": previous.String()},
			}
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("payment: failed to reconcile event")
		metrics.RecordReconciliation(string(ev.Kind), "error")
		return nil, apperror.Classify(err, "payment: failed to reconcile event")
	}

	// An unmatched event may belong to an order whose reference is not recorded yet,
	// so its redelivery must be reconciled again.
	if res.Outcome != OutcomeNoMatch {
		s.mark(ctx, ev.ID)
	}
	metrics.RecordReconciliation(string(ev.Kind), string(res.Outcome))

	switch res.Outcome {
	case OutcomeNoMatch:
		logger.Info().Strs("references", refs).Msg("payment: no order matches event")
	case OutcomeRejected:
		logger.Warn().Stringer("order_id", res.OrderID).Str("reason", res.Message).Msg("payment: event recorded without status change")
	default:
		logger.Info().Stringer("order_id", res.OrderID).Str("outcome", string(res.Outcome)).Stringer("status", res.Status).Msg("payment: event reconciled")
	}

	if notification != nil {
		metrics.RecordTransition(eff.target.String(), "payment")
		s.notify(ctx, *notification)
	}
	return res, nil
}

func (s *service) VerifyWebhook(headers http.Header, body []byte) bool {
	return s.provider.VerifyWebhookSignature(headers, body, s.webhookSecret)
}

// VerifyPayment asks the provider about a remote order. The answer is advisory: order
// state only moves through HandleEvent. The local order id is only revealed to its
// owner or an admin.
func (s *service) VerifyPayment(ctx context.Context, actor order.Actor, providerOrderID, payerReference string) (*Verification, error) {
	if strings.TrimSpace(providerOrderID) == "" {
		return nil, apperror.Validation("provider order id is required")
	}

	details, err := s.remoteDetails(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Status:         details.Status,
		PayerReference: details.PayerReference,
		Verified:       strings.EqualFold(details.Status, StatusCompleted),
	}
	if payerReference != "" && details.PayerReference != "" && payerReference != details.PayerReference {
		v.Verified = false
	}

	if o, err := s.lookup(ctx, providerOrderID); err == nil {
		if actor.Admin || o.UserID == actor.ID {
			v.OrderID = o.ID
		}
		if !details.Amount.IsZero() && !details.Amount.Equal(o.TotalPrice) {
			log.Warn().Stringer("order_id", o.ID).Str("remote_amount", details.Amount.String()).Str("order_total", o.TotalPrice.String()).Msg("payment: remote amount differs from order total")
			v.Verified = false
		}
	}

	log.Info().Str("provider_order_id", providerOrderID).Bool("verified", v.Verified).Str("status", v.Status).Msg("payment: advisory verification")
	return v, nil
}

// StartPayment creates the remote order for a pending order and records its id. A
// second call returns the already-started order unchanged.
func (s *service) StartPayment(ctx context.Context, actor order.Actor, orderID uuid.UUID) (*order.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, apperror.Internal(err, "payment: failed to load order")
	}
	if !actor.Admin && o.UserID != actor.ID {
		return nil, order.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return nil, ErrPaymentNotOpen
	}
	if o.Payment.ProviderOrderID != "" {
		return o, nil
	}

	items := make([]RemoteItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, RemoteItem{
			SKU:       item.ProductID.String(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	start := time.Now()
	remoteID, err := s.provider.CreateRemoteOrder(ctx, items, o.TotalPrice)
	metrics.RecordProviderCall("create_order", time.Since(start), err == nil)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("payment: failed to create remote order")
		return nil, apperror.Upstream(err, "payment: failed to create remote order")
	}

	var updated *order.Order
	err = s.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		locked, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if locked.Payment.ProviderOrderID != "" {
			log.Warn().Stringer("order_id", orderID).Str("orphan_remote_order", remoteID).Msg("payment: payment started concurrently, keeping first remote order")
			updated = locked
			return nil
		}

		now := s.now()
		locked.Payment.Provider = s.provider.Name()
		locked.Payment.ProviderOrderID = remoteID
		locked.Payment.ProviderStatus = StatusCreated
		locked.Payment.CreatedAt = &now
		locked.Payment.UpdatedAt = &now
		locked.UpdatedAt = now

		if inv, err := tx.Invoices().GetByOrderID(ctx, orderID); err == nil {
			inv.Payment = locked.Payment
			inv.UpdatedAt = now
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return apperror.Internal(err, "payment: failed to update invoice")
			}
		} else if !errors.Is(err, order.ErrInvoiceNotFound) {
			return apperror.Internal(err, "payment: failed to load invoice")
		}

		if err := tx.Orders().Update(ctx, locked); err != nil {
			return apperror.Internal(err, "payment: failed to save order")
		}
		updated = locked
		return nil
	})
	if err != nil {
		return nil, apperror.Classify(err, "payment: failed to record remote order")
	}

	log.Info().Stringer("order_id", orderID).Str("provider_order_id", remoteID).Msg("payment: remote order created")
	return updated, nil
}

// CapturePayment captures the remote order and reconciles the capture result the same
// way as the matching inbound event.
func (s *service) CapturePayment(ctx context.Context, actor order.Actor, providerOrderID string) (*Result, error) {
	if strings.TrimSpace(providerOrderID) == "" {
		return nil, apperror.Validation("provider order id is required")
	}

	o, err := s.lookup(ctx, providerOrderID)
	if err != nil {
		return nil, err
	}
	if !actor.Admin && o.UserID != actor.ID {
		return nil, order.ErrOrderNotFound
	}

	start := time.Now()
	capture, err := s.provider.CaptureRemotePayment(ctx, providerOrderID)
	metrics.RecordProviderCall("capture", time.Since(start), err == nil)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Str("provider_order_id", providerOrderID).Msg("payment: capture failed")
		return nil, apperror.Upstream(err, "payment: failed to capture payment")
	}

	return s.HandleEvent(ctx, Event{
		Kind:           KindForCaptureStatus(capture.Status),
		RawType:        "capture:" + capture.Status,
		TransactionID:  capture.ID,
		OrderReference: providerOrderID,
		PayerReference: capture.PayerReference,
		OccurredAt:     s.now(),
	})
}

func (s *service) RemoteDetails(ctx context.Context, actor order.Actor, providerOrderID string) (*RemoteOrder, error) {
	if !actor.Admin {
		return nil, order.ErrNotAllowed
	}
	return s.remoteDetails(ctx, providerOrderID)
}

func (s *service) remoteDetails(ctx context.Context, providerOrderID string) (*RemoteOrder, error) {
	start := time.Now()
	details, err := s.provider.GetRemoteOrderDetails(ctx, providerOrderID)
	metrics.RecordProviderCall("get_order", time.Since(start), err == nil)
	if err != nil {
		log.Error().Err(err).Str("provider_order_id", providerOrderID).Msg("payment: failed to fetch remote order")
		return nil, apperror.Upstream(err, "payment: failed to fetch remote order")
	}
	return details, nil
}

// lookup finds the order correlated with a provider reference without holding its lock
// past the call.
func (s *service) lookup(ctx context.Context, ref string) (*order.Order, error) {
	var found *order.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		o, err := tx.Orders().FindByProviderReference(ctx, ref)
		if err != nil {
			return err
		}
		found = o
		return nil
	})
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, apperror.Internal(err, "payment: failed to look up order")
	}
	return found, nil
}

func (s *service) recordPayment(o *order.Order, ev Event, eff effect, now time.Time) {
	p := &o.Payment
	if p.Provider == "" {
		p.Provider = s.provider.Name()
	}
	if p.ProviderTransactionID == "" && ev.TransactionID != "" && ev.TransactionID != p.ProviderOrderID {
		p.ProviderTransactionID = ev.TransactionID
	}
	if ev.PayerReference != "" {
		p.PayerReference = ev.PayerReference
	}
	p.ProviderStatus = eff.providerStatus
	if p.CreatedAt == nil {
		created := now
		p.CreatedAt = &created
	}
	updated := now
	p.UpdatedAt = &updated
	o.UpdatedAt = now
}

// settleInvoice applies the payment status. A refund is final and is never
// overwritten by a late capture event.
func settleInvoice(inv *order.Invoice, status order.PaymentStatus, details order.PaymentDetails, now time.Time) {
	inv.Payment = details
	inv.UpdatedAt = now
	if status == "" {
		return
	}
	if inv.PaymentStatus == order.PaymentRefunded && status != order.PaymentRefunded {
		return
	}
	inv.PaymentStatus = status
}

func findByReference(ctx context.Context, orders order.Repository, refs []string) (*order.Order, error) {
	for _, ref := range refs {
		o, err := orders.FindByProviderReference(ctx, ref)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, order.ErrOrderNotFound) {
			return nil, err
		}
	}
	return nil, order.ErrOrderNotFound
}

func (s *service) seen(ctx context.Context, eventID string) bool {
	if eventID == "" || s.marker == nil {
		return false
	}
	seen, err := s.marker.Seen(ctx, eventID)
	if err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("payment: event marker unavailable, reconciling anyway")
		return false
	}
	return seen
}

func (s *service) mark(ctx context.Context, eventID string) {
	if eventID == "" || s.marker == nil {
		return
	}
	if err := s.marker.Mark(ctx, eventID); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("payment: failed to mark event processed")
	}
}

func (s *service) notify(ctx context.Context, n order.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		log.Error().Err(err).Stringer("order_id", n.Order.ID).Str("kind", string(n.Kind)).Msg("payment: failed to send notification")
	}
}
