package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/storefront-checkout/internal/domain"
)

// ErrNotPaid is returned when delivering an order that was never paid.
var ErrNotPaid = errors.New("order is not paid")

// PaymentIntent is the sandbox's record of a card payment attempt.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `
	id, user_id, status, payment_method_type, total_order_price,
	shipping_details, shipping_phone, shipping_city, shipping_postal_code,
	is_paid, paid_at, is_delivered, delivered_at, created_at, updated_at`

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	addr := order.ShippingAddress
	if addr == nil {
		addr = &domain.ShippingAddress{}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commerce.orders (
			id, user_id, status, payment_method_type, total_order_price,
			shipping_details, shipping_phone, shipping_city, shipping_postal_code,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, order.ID, order.User, order.Status, order.PaymentMethodType, order.TotalOrderPrice,
		addr.Details, addr.Phone, addr.City, addr.PostalCode, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.CartItems {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO commerce.order_items (id, order_id, position, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, i, item.Product, item.Quantity, item.Price)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	order.UpdatedAt = order.CreatedAt
	return nil
}

// GetByID returns nil, nil when the order does not exist.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM commerce.orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}

	if err := r.loadItems(ctx, map[string]*domain.Order{order.ID: order}, []string{order.ID}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByUser returns one page of the user's orders, newest first, and the
// user's total order count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]domain.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM commerce.orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM commerce.orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("select orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	if err := r.loadItems(ctx, orderMap, orderIDs); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}
	return orders, total, nil
}

// MarkPaid flips the order to paid. changed is false when it already was.
// A missing order yields nil, false, nil.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string) (*domain.Order, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commerce.orders
		SET is_paid = TRUE, paid_at = NOW(), status = $2, updated_at = NOW()
		WHERE id = $1 AND NOT is_paid
	`, id, domain.OrderStatusPaid)
	if err != nil {
		return nil, false, fmt.Errorf("update order paid: %w", err)
	}
	return r.afterTransition(ctx, id, result)
}

// MarkDelivered flips a paid order to delivered. It returns ErrNotPaid for
// unpaid orders.
func (r *OrderRepository) MarkDelivered(ctx context.Context, id string) (*domain.Order, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE commerce.orders
		SET is_delivered = TRUE, delivered_at = NOW(), status = $2, updated_at = NOW()
		WHERE id = $1 AND is_paid AND NOT is_delivered
	`, id, domain.OrderStatusDelivered)
	if err != nil {
		return nil, false, fmt.Errorf("update order delivered: %w", err)
	}

	order, changed, err := r.afterTransition(ctx, id, result)
	if err != nil || order == nil {
		return order, changed, err
	}
	if !order.IsPaid {
		return order, false, ErrNotPaid
	}
	return order, changed, nil
}

func (r *OrderRepository) afterTransition(ctx context.Context, id string, result sql.Result) (*domain.Order, bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return order, rowsAffected > 0, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderMap map[string]*domain.Order, orderIDs []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, quantity, price
		FROM commerce.order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.Product, &item.Quantity, &item.Price); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if order, ok := orderMap[orderID]; ok {
			order.CartItems = append(order.CartItems, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		addr        domain.ShippingAddress
		paidAt      sql.NullTime
		deliveredAt sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.User, &order.Status, &order.PaymentMethodType, &order.TotalOrderPrice,
		&addr.Details, &addr.Phone, &addr.City, &addr.PostalCode,
		&order.IsPaid, &paidAt, &order.IsDelivered, &deliveredAt, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.ShippingAddress = &addr
	order.PaidAt = nullTime(paidAt)
	order.DeliveredAt = nullTime(deliveredAt)
	order.CartItems = []domain.OrderItem{}
	return &order, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

type IntentRepository struct {
	db *sql.DB
}

func NewIntentRepository(db *sql.DB) *IntentRepository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) CreateIntent(ctx context.Context, intent *PaymentIntent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO commerce.payment_intents (id, client_secret, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
	`, intent.ID, intent.ClientSecret, intent.Amount, intent.Currency, intent.Status)
	if err != nil {
		return fmt.Errorf("insert payment intent: %w", err)
	}
	return nil
}

// GetIntent returns nil, nil when the intent does not exist.
func (r *IntentRepository) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_secret, amount, currency, status
		FROM commerce.payment_intents
		WHERE id = $1
	`, id).Scan(&intent.ID, &intent.ClientSecret, &intent.Amount, &intent.Currency, &intent.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select payment intent: %w", err)
	}
	return &intent, nil
}

func (r *IntentRepository) UpdateIntentStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE commerce.payment_intents SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update payment intent: %w", err)
	}
	return nil
}
