// Package memory is an in-process implementation of the order store. A unit of work
// holds a store-wide lock and restores a snapshot when it fails, so it serializes
// every write the way row locks do in Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

type state struct {
	products map[uuid.UUID]inventory.Product
	carts    map[uuid.UUID][]cart.Line
	orders   map[uuid.UUID]*order.Order
	invoices map[uuid.UUID]*order.Invoice
	profiles map[uuid.UUID]order.Profile
}

func newState() *state {
	return &state{
		products: make(map[uuid.UUID]inventory.Product),
		carts:    make(map[uuid.UUID][]cart.Line),
		orders:   make(map[uuid.UUID]*order.Order),
		invoices: make(map[uuid.UUID]*order.Invoice),
		profiles: make(map[uuid.UUID]order.Profile),
	}
}

func (st *state) clone() *state {
	c := newState()
	for id, p := range st.products {
		c.products[id] = p
	}
	for user, lines := range st.carts {
		c.carts[user] = append([]cart.Line(nil), lines...)
	}
	for id, o := range st.orders {
		c.orders[id] = o.Clone()
	}
	for id, inv := range st.invoices {
		copied := *inv
		c.invoices[id] = &copied
	}
	for id, p := range st.profiles {
		c.profiles[id] = p
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		st:  newState(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// AddProduct inserts or replaces a catalog product.
func (s *Store) AddProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) AddProfile(p order.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.profiles[p.UserID] = p
}

// Product returns the current catalog row.
func (s *Store) Product(id uuid.UUID) (inventory.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

// OrderCount returns the number of stored orders, soft-deleted included.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

func (s *Store) InvoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.invoices)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return products{s.st}.GetProduct(ctx, id)
}

// Carts returns a cart repository that locks the store per call.
func (s *Store) Carts() cart.Repository {
	return &lockedCarts{s: s}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, &tx{st: s.st, now: s.now}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.st.orders[id]
	if !ok || o.Deleted {
		return nil, order.ErrOrderNotFound
	}
	return loaded(o), nil
}

func (s *Store) GetInvoice(ctx context.Context, orderID uuid.UUID) (*order.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return invoices{s.st}.GetByOrderID(ctx, orderID)
}

func (s *Store) ListOrders(_ context.Context, f order.Filter) ([]order.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matching(f)
	sortOrders(matched, f.Sort)

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}

	page := make([]order.Order, 0, end-start)
	for _, o := range matched[start:end] {
		page = append(page, *loaded(o))
	}
	return page, total, nil
}

func (s *Store) OrderStats(_ context.Context, f order.Filter) (*order.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matching(f)
	stats := &order.Stats{
		CountByStatus: make(map[order.Status]int),
		TotalOrders:   len(matched),
		Revenue:       decimal.Zero,
	}
	for _, o := range matched {
		stats.CountByStatus[o.Status]++
		if order.CountsRevenue(o.Status) {
			stats.Revenue = stats.Revenue.Add(o.TotalPrice)
		}
	}

	sortOrders(matched, order.DefaultSort)
	for i, o := range matched {
		if i == order.RecentLimit {
			break
		}
		stats.Recent = append(stats.Recent, order.Summary{
			ID:         o.ID,
			UserID:     o.UserID,
			TotalPrice: o.TotalPrice,
			Status:     o.Status,
			CreatedAt:  o.CreatedAt,
		})
	}
	return stats, nil
}

func (s *Store) matching(f order.Filter) []*order.Order {
	var matched []*order.Order
	for _, o := range s.st.orders {
		if f.Matches(o) {
			matched = append(matched, o)
		}
	}
	return matched
}

func sortOrders(orders []*order.Order, by order.Sort) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		var cmp int
		switch by.Field {
		case order.SortTotalPrice:
			cmp = a.TotalPrice.Cmp(b.TotalPrice)
		case order.SortStatus:
			cmp = strings.Compare(string(a.Status), string(b.Status))
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.ID.String(), b.ID.String())
		}
		if by.Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func loaded(o *order.Order) *order.Order {
	c := o.Clone()
	c.MarkSaved()
	return c
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Orders() order.Repository { return orders{t.st} }
func (t *tx) Invoices() order.InvoiceRepository { return invoices{t.st} }
func (t *tx) Products() inventory.Repository { return products{t.st} }
func (t *tx) Carts() cart.Snapshot { return carts{st: t.st, now: t.now} }
func (t *tx) Profiles() order.ProfileRepository { return profiles{t.st} }

type orders struct{ st *state }

func (r orders) Create(_ context.Context, o *order.Order) error {
	o.MarkSaved()
	r.st.orders[o.ID] = o.Clone()
	return nil
}

func (r orders) GetForUpdate(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := r.st.orders[id]
	if !ok || o.Deleted {
		return nil, order.ErrOrderNotFound
	}
	return loaded(o), nil
}

// FindByProviderReference also finds soft-deleted orders so payments keep reconciling.
func (r orders) FindByProviderReference(_ context.Context, ref string) (*order.Order, error) {
	if ref == "" {
		return nil, order.ErrOrderNotFound
	}
	for _, o := range r.st.orders {
		if o.Payment.ProviderOrderID == ref || o.Payment.ProviderTransactionID == ref {
			return loaded(o), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (r orders) Update(_ context.Context, o *order.Order) error {
	if _, ok := r.st.orders[o.ID]; !ok {
		return order.ErrOrderNotFound
	}
	o.MarkSaved()
	r.st.orders[o.ID] = o.Clone()
	return nil
}

type invoices struct{ st *state }

func (r invoices) Create(_ context.Context, inv *order.Invoice) error {
	copied := *inv
	r.st.invoices[inv.OrderID] = &copied
	return nil
}

func (r invoices) GetByOrderID(_ context.Context, orderID uuid.UUID) (*order.Invoice, error) {
	inv, ok := r.st.invoices[orderID]
	if !ok {
		return nil, order.ErrInvoiceNotFound
	}
	copied := *inv
	return &copied, nil
}

func (r invoices) Update(_ context.Context, inv *order.Invoice) error {
	if _, ok := r.st.invoices[inv.OrderID]; !ok {
		return order.ErrInvoiceNotFound
	}
	copied := *inv
	r.st.invoices[inv.OrderID] = &copied
	return nil
}

type products struct{ st *state }

func (r products) GetProduct(_ context.Context, id uuid.UUID) (*inventory.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return &p, nil
}

func (r products) DecrementAvailable(_ context.Context, id uuid.UUID, qty int) (int, bool, error) {
	p, ok := r.st.products[id]
	if !ok {
		return 0, false, inventory.ErrProductNotFound
	}
	if p.Available < qty {
		return p.Available, false, nil
	}
	p.Available -= qty
	r.st.products[id] = p
	return p.Available, true, nil
}

func (r products) IncrementAvailable(_ context.Context, id uuid.UUID, qty int) error {
	p, ok := r.st.products[id]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Available += qty
	r.st.products[id] = p
	return nil
}

type profiles struct{ st *state }

func (r profiles) GetProfile(_ context.Context, userID uuid.UUID) (*order.Profile, error) {
	p, ok := r.st.profiles[userID]
	if !ok {
		return nil, order.ErrProfileNotFound
	}
	return &p, nil
}
