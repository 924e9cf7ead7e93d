package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
)

var sortColumns = map[order.SortField]string{
	order.SortCreatedAt:  "created_at",
	order.SortTotalPrice: "total_price",
	order.SortStatus:     "status",
}

// Reports serves reads that need no lock: single lookups, listings and statistics.
type Reports struct {
	db *sqlx.DB
}

func NewReports(db *sqlx.DB) *Reports {
	return &Reports{db: db}
}

func (r *Reports) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM fulfillment.orders WHERE id = $1 AND NOT deleted`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	o, err := row.toOrder()
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, []*order.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Reports) GetInvoice(ctx context.Context, orderID uuid.UUID) (*order.Invoice, error) {
	var row invoiceRow
	err := r.db.GetContext(ctx, &row, `SELECT `+invoiceColumns+` FROM fulfillment.invoices WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("repository: failed to select invoice for order %s: %w", orderID, err)
	}
	return row.toInvoice()
}

func (r *Reports) ListOrders(ctx context.Context, f order.Filter) ([]order.Order, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM fulfillment.orders`+where), args...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}
	if total == 0 {
		return []order.Order{}, 0, nil
	}

	query := `SELECT ` + orderColumns + ` FROM fulfillment.orders` + where + orderBy(f.Sort) + ` LIMIT ? OFFSET ?`
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), append(args, f.PageSize, f.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to list orders: %w", err)
	}

	ptrs := make([]*order.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.toOrder()
		if err != nil {
			return nil, 0, err
		}
		ptrs = append(ptrs, o)
	}
	if err := r.attach(ctx, ptrs); err != nil {
		return nil, 0, err
	}

	result := make([]order.Order, 0, len(ptrs))
	for _, o := range ptrs {
		result = append(result, *o)
	}
	return result, total, nil
}

type statusCount struct {
	Status  string          `db:"status"`
	Count   int             `db:"count"`
	Revenue decimal.Decimal `db:"revenue"`
}

func (r *Reports) OrderStats(ctx context.Context, f order.Filter) (*order.Stats, error) {
	where, args := whereClause(f)

	var counts []statusCount
	query := `SELECT status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS revenue FROM fulfillment.orders` + where + ` GROUP BY status`
	if err := r.db.SelectContext(ctx, &counts, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: failed to aggregate orders: %w", err)
	}

	stats := &order.Stats{
		CountByStatus: make(map[order.Status]int),
		Revenue:       decimal.Zero,
	}
	for _, c := range counts {
		s := order.Status(c.Status)
		stats.CountByStatus[s] = c.Count
		stats.TotalOrders += c.Count
		if order.CountsRevenue(s) {
			stats.Revenue = stats.Revenue.Add(c.Revenue)
		}
	}

	query = `SELECT id, user_id, total_price, status, created_at FROM fulfillment.orders` + where +
		orderBy(order.DefaultSort) + fmt.Sprintf(` LIMIT %d`, order.RecentLimit)
	if err := r.db.SelectContext(ctx, &stats.Recent, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("repository: failed to select recent orders: %w", err)
	}
	return stats, nil
}

// attach loads items and history for orders with one query per table.
func (r *Reports) attach(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*order.Order, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for _, o := range orders {
		o.Items = []order.Item{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	query, args, err := sqlx.In(`
		SELECT order_id, product_id, name, price, quantity, image_url
		FROM fulfillment.order_items
		WHERE order_id IN (?)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to build order items query: %w", err)
	}
	var items []struct {
		OrderID uuid.UUID `db:"order_id"`
		order.Item
	}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	for _, it := range items {
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it.Item)
		}
	}

	query, args, err = sqlx.In(`
		SELECT order_id, status, note, actor_id, created_at
		FROM fulfillment.order_status_history
		WHERE order_id IN (?)
		ORDER BY id
	`, ids)
	if err != nil {
		return fmt.Errorf("repository: failed to build status history query: %w", err)
	}
	var history []struct {
		OrderID uuid.UUID `db:"order_id"`
		order.HistoryEntry
	}
	if err := r.db.SelectContext(ctx, &history, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("repository: failed to query status history: %w", err)
	}
	for _, h := range history {
		if o, ok := byID[h.OrderID]; ok {
			o.StatusHistory = append(o.StatusHistory, h.HistoryEntry)
		}
	}

	for _, o := range orders {
		o.MarkSaved()
	}
	return nil
}

// whereClause renders f as a WHERE clause with ? placeholders for Rebind.
func whereClause(f order.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.IncludeDeleted {
		conds = append(conds, "NOT deleted")
	}
	if f.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.To)
	}
	if f.Tracking != "" {
		conds = append(conds, `tracking_number ILIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Tracking)+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(s order.Sort) string {
	col, ok := sortColumns[s.Field]
	if !ok {
		col = sortColumns[order.DefaultSort.Field]
	}
	dir := " ASC"
	if s.Desc {
		dir = " DESC"
	}
	return " ORDER BY " + col + dir + ", id" + dir
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
