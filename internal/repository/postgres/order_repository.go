package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/events"
	"github.com/cloud-wave-best-zizon/commerce-service/internal/store"
)

const orderColumns = `id, user_id, status, created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.OrderID, &o.UserID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID string
		var it domain.OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], it)
	}
	return items, rows.Err()
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if isNoRows(err) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	items, err := loadItems(ctx, r.pool, []string{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	return &o, nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, filter domain.OrderFilter) (domain.OrderPage, error) {
	page := filter.Page.Normalize()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id > $1`
	args := []any{page.Cursor}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	args = append(args, page.Limit+1)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var res domain.OrderPage
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, fmt.Errorf("scan order: %w", err)
		}
		res.Items = append(res.Items, o)
	}
	if err := rows.Err(); err != nil {
		return domain.OrderPage{}, err
	}
	rows.Close()

	if len(res.Items) > page.Limit {
		res.Items = res.Items[:page.Limit]
		res.NextCursor = res.Items[page.Limit-1].OrderID
	}
	if len(res.Items) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(res.Items))
	for _, o := range res.Items {
		ids = append(ids, o.OrderID)
	}
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return domain.OrderPage{}, err
	}
	for i := range res.Items {
		res.Items[i].Items = items[res.Items[i].OrderID]
	}
	return res, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+orderColumns,
		orderID, status,
	))
	if isNoRows(err) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	items, err := loadItems(ctx, r.pool, []string{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	return &o, nil
}

// BeginPlacement opens a READ COMMITTED transaction. The conditional UPDATE
// re-evaluates its stock predicate against the latest committed row after
// waiting on a concurrent writer, which is what makes it authoritative.
func (r *OrderRepository) BeginPlacement(ctx context.Context) (store.Placement, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &placement{tx: tx}, nil
}

type placement struct {
	tx pgx.Tx
}

func (p *placement) RequireUser(ctx context.Context, userID string) error {
	var one int
	err := p.tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&one)
	if isNoRows(err) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

func (p *placement) DecrementIfSufficient(ctx context.Context, productID string, quantity int) error {
	tag, err := p.tx.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := p.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return domain.ProductNotFound(productID)
	}
	return domain.InsufficientStock(productID)
}

func (p *placement) CreateOrder(ctx context.Context, order *domain.Order) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.OrderID, order.UserID, order.Status, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range order.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			order.OrderID, i, item.ProductID, item.Quantity, item.UnitPrice)
	}
	if err := p.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (p *placement) AppendEvent(ctx context.Context, event events.OutboxEvent) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
		event.EventID, event.AggregateType, event.AggregateID, event.Type, event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (p *placement) Commit(ctx context.Context) error {
	if err := p.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *placement) Rollback(ctx context.Context) error {
	err := p.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
