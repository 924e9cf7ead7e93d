package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing:    true,
		StatusCancelled:     true,
		StatusPaymentFailed: true,
	},
	StatusProcessing: {
		StatusShipped:       true,
		StatusCancelled:     true,
		StatusPaymentFailed: true,
	},
	StatusShipped: {
		StatusDelivered:     true,
		StatusCancelled:     true,
		StatusPaymentFailed: true,
	},
	StatusPaymentFailed: {
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrOrderNotFound         = apperror.New(apperror.KindNotFound, "order_not_found", "order not found")
	ErrInvoiceNotFound       = apperror.New(apperror.KindNotFound, "invoice_not_found", "invoice not found")
	ErrProfileNotFound       = apperror.New(apperror.KindNotFound, "profile_not_found", "customer profile not found")
	ErrEmptyCart             = apperror.New(apperror.KindValidation, "empty_cart", "cart is empty")
	ErrUnknownStatus         = apperror.New(apperror.KindValidation, "unknown_status", "unrecognized order status")
	ErrInvalidTransition     = apperror.New(apperror.KindConflict, "invalid_transition", "invalid order status transition")
	ErrAlreadyCancelled      = apperror.New(apperror.KindConflict, "already_cancelled", "order is already cancelled")
	ErrCannotCancelDelivered = apperror.New(apperror.KindConflict, "cannot_cancel_delivered", "cannot cancel a delivered order")
	ErrNotAllowed            = apperror.New(apperror.KindForbidden, "admin_required", "operation requires an administrator")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (e *TransitionError) Kind() apperror.Kind {
	return apperror.KindConflict
}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// CanTransition reports whether from -> to is permitted. A transition to the same
// status is never permitted.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// TransitionTo moves the order to status to and appends a history entry. On error the
// order is left unchanged.
func (o *Order) TransitionTo(to Status, note string, actorID uuid.UUID, at time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}

	o.Status = to
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		Status:  to,
		Note:    note,
		ActorID: actorID,
		At:      at,
	})
	o.UpdatedAt = at
	return nil
}
