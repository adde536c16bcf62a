package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

const productColumns = `id, name, category, images, sizes, version, created_at, updated_at`

func (r *productRepository) Create(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	images, sizes, err := marshalProductFields(product)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		product.ID, product.Name, product.Category, images, sizes,
		product.Version, product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)

	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return product, nil
}

// List возвращает страницу каталога от новых к старым с keyset-курсором
// по (created_at, id).
func (r *productRepository) List(q domain.Query) (domain.Page[domain.Product], error) {
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
			"(id ILIKE %[1]s OR name ILIKE %[1]s OR category ILIKE %[1]s)", p))
	}
	if q.Category != "" {
		conds = append(conds, fmt.Sprintf("LOWER(category) = LOWER(%s)", arg(q.Category)))
	}
	if !q.DateFrom.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(q.DateFrom)))
	}
	if !q.DateTo.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(q.DateTo)))
	}
	if q.After != "" {
		conds = append(conds, fmt.Sprintf(
			"(created_at, id) < (SELECT created_at, id FROM products WHERE id = %s)", arg(q.After)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", arg(q.Limit+1))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return domain.Page[domain.Product]{}, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("iterate product rows: %w", err)
	}

	page := domain.Page[domain.Product]{Items: products}
	if q.Limit > 0 && len(products) > q.Limit {
		page.Items = products[:q.Limit]
		page.HasMore = true
	}
	return page, nil
}

func (r *productRepository) Save(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	images, sizes, err := marshalProductFields(product)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $1,
		    category = $2,
		    images = $3,
		    sizes = $4,
		    version = version + 1,
		    updated_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		product.Name, product.Category, images, sizes, product.UpdatedAt,
		product.ID, product.Version,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.productExists(ctx, product.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrVersionConflict
	}

	return nil
}

func (r *productRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// AdjustStock применяет приращения остатков в одной транзакции: строки
// товаров берутся под FOR UPDATE, батч либо проходит целиком, либо
// откатывается.
func (r *productRepository) AdjustStock(adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, adj := range adjustments {
		var sizesRaw []byte
		err = tx.QueryRowContext(ctx, `
			SELECT sizes FROM products WHERE id = $1 FOR UPDATE
		`, adj.ProductID).Scan(&sizesRaw)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				err = domain.ErrProductNotFound
			}
			return err
		}

		var sizes []domain.SizeVariant
		if err = json.Unmarshal(sizesRaw, &sizes); err != nil {
			err = fmt.Errorf("unmarshal sizes: %w", err)
			return err
		}

		idx := -1
		for i, s := range sizes {
			if s.Size == adj.Size {
				idx = i
				break
			}
		}
		if idx < 0 {
			err = domain.ErrSizeNotFound
			return err
		}
		if sizes[idx].Stock+adj.Quantity < 0 {
			err = domain.ErrStockNegative
			return err
		}
		sizes[idx].Stock += adj.Quantity

		var updated []byte
		if updated, err = json.Marshal(sizes); err != nil {
			err = fmt.Errorf("marshal sizes: %w", err)
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE products
			SET sizes = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2
		`, updated, adj.ProductID); err != nil {
			err = fmt.Errorf("update stock: %w", err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit stock adjustment: %w", err)
	}
	return nil
}

func (r *productRepository) productExists(ctx context.Context, productID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

func marshalProductFields(product domain.Product) ([]byte, []byte, error) {
	images, err := json.Marshal(product.Images)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal images: %w", err)
	}
	sizes, err := json.Marshal(product.Sizes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal sizes: %w", err)
	}
	return images, sizes, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product domain.Product
		images  []byte
		sizes   []byte
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Category, &images, &sizes,
		&product.Version, &product.CreatedAt, &product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &product.Images); err != nil {
			return domain.Product{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &product.Sizes); err != nil {
			return domain.Product{}, fmt.Errorf("unmarshal sizes: %w", err)
		}
	}
	return product, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
