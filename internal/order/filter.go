package order

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	RecentLimit     = 5
)

type SortField string

const (
	SortCreatedAt  SortField = "created_at"
	SortTotalPrice SortField = "total_price"
	SortStatus     SortField = "status"
)

type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort lists newest orders first.
var DefaultSort = Sort{Field: SortCreatedAt, Desc: true}

var sortAliases = map[string]SortField{
	"createdAt":   SortCreatedAt,
	"created_at":  SortCreatedAt,
	"totalPrice":  SortTotalPrice,
	"total_price": SortTotalPrice,
	"status":      SortStatus,
}

// ParseSort reads a sort key such as "totalPrice" or "-createdAt". A leading "-" sorts
// descending. An empty key yields DefaultSort.
func ParseSort(raw string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}

	desc := strings.HasPrefix(raw, "-")
	field, ok := sortAliases[strings.TrimPrefix(raw, "-")]
	if !ok {
		return Sort{}, apperror.Validationf("unsupported sort key %q", raw)
	}
	return Sort{Field: field, Desc: desc}, nil
}

// Filter selects orders for listings and statistics. Zero values mean "any".
type Filter struct {
	UserID         *uuid.UUID
	Status         Status
	From           *time.Time
	To             *time.Time
	Tracking       string
	IncludeDeleted bool
	Sort           Sort
	Page           int
	PageSize       int
}

// Normalize applies paging and sort defaults.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	if f.Sort.Field == "" {
		f.Sort = DefaultSort
	}
}

// Validate rejects an unknown status or an inverted date range.
func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return ErrUnknownStatus
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return apperror.Validation("date range start is after its end")
	}
	return nil
}

// Offset is the number of rows before the requested page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches applies the filter predicate to one order. Date bounds are inclusive and the
// tracking match is a case-insensitive substring.
func (f Filter) Matches(o *Order) bool {
	if o.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.UserID != nil && o.UserID != *f.UserID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && o.CreatedAt.After(*f.To) {
		return false
	}
	if f.Tracking != "" && !strings.Contains(strings.ToLower(o.TrackingNumber), strings.ToLower(f.Tracking)) {
		return false
	}
	return true
}

// PageCount returns the number of pages needed for total rows.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// CountsRevenue reports whether orders in status s contribute to revenue.
func CountsRevenue(s Status) bool {
	return s != StatusCancelled && s != StatusPaymentFailed
}
