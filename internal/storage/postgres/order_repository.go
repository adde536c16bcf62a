package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `id, customer_name, phone, address, status, cart, total_minor, delivery_minor, version, created_at, updated_at`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cart, err := json.Marshal(order.Cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.CustomerName, order.Phone, order.Address,
		string(order.Status), cart, order.TotalMinor, order.DeliveryMinor,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

// List возвращает страницу заказов от новых к старым с keyset-курсором
// по (created_at, id). Неизвестный курсор завершает набор: сравнение с
// пустым подзапросом не пропускает ни одной строки.
func (r *orderRepository) List(q domain.Query) (domain.Page[domain.Order], error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Search != "" {
		p := arg("%" + q.Search + "%")
		conds = append(conds, fmt.Sprintf(
			"(id ILIKE %[1]s OR customer_name ILIKE %[1]s OR phone ILIKE %[1]s OR address ILIKE %[1]s OR cart::text ILIKE %[1]s)", p))
	}
	if !q.DateFrom.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(q.DateFrom)))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(q.DateTo)))
	}
	if q.After != "" {
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM orders WHERE id = %s)", arg(q.After)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		// Одна строка сверх лимита отвечает на вопрос hasMore.
		query += fmt.Sprintf(" LIMIT %s", arg(q.Limit+1))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("iterate order rows: %w", err)
	}

	page := domain.Page[domain.Order]{Items: orders}
	if q.Limit > 0 && len(orders) > q.Limit {
		page.Items = orders[:q.Limit]
		page.HasMore = true
	}
	return page, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	cart, err := json.Marshal(order.Cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET customer_name = $1,
		    phone = $2,
		    address = $3,
		    status = $4,
		    cart = $5,
		    total_minor = $6,
		    delivery_minor = $7,
		    version = version + 1,
		    updated_at = $8
		WHERE id = $9
		  AND version = $10
	`,
		order.CustomerName, order.Phone, order.Address, string(order.Status),
		cart, order.TotalMinor, order.DeliveryMinor, order.UpdatedAt,
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *orderRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		cart   []byte
	)
	if err := row.Scan(
		&order.ID, &order.CustomerName, &order.Phone, &order.Address,
		&status, &cart, &order.TotalMinor, &order.DeliveryMinor,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	if len(cart) > 0 {
		if err := json.Unmarshal(cart, &order.Cart); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal cart: %w", err)
		}
	}
	return order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
