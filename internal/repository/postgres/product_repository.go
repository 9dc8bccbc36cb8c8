package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

const productColumns = `id, name, category, price, stock, created_at, updated_at`

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ProductID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, category, price, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		product.ProductID, product.Name, product.Category, product.Price, product.Stock,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *ProductRepository) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if isNoRows(err) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ProductID] = p
	}
	return out, rows.Err()
}

func (r *ProductRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	page := filter.Page.Normalize()

	query := `SELECT ` + productColumns + ` FROM products WHERE id > $1`
	args := []any{page.Cursor}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(` AND lower(category) = lower($%d)`, len(args))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		query += fmt.Sprintf(` AND price >= $%d`, len(args))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		query += fmt.Sprintf(` AND price <= $%d`, len(args))
	}
	args = append(args, page.Limit+1)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return domain.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var res domain.ProductPage
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return domain.ProductPage{}, fmt.Errorf("scan product: %w", err)
		}
		res.Items = append(res.Items, p)
	}
	if err := rows.Err(); err != nil {
		return domain.ProductPage{}, err
	}

	if len(res.Items) > page.Limit {
		res.Items = res.Items[:page.Limit]
		res.NextCursor = res.Items[page.Limit-1].ProductID
	}
	return res, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products
		SET name = COALESCE($2, name),
			category = COALESCE($3, category),
			price = COALESCE($4, price),
			updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		productID, req.Name, req.Category, req.Price,
	))
	if isNoRows(err) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, productID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// Restock adds quantity unless the result would exceed domain.MaxStock; the
// bound is part of the UPDATE predicate so concurrent restocks cannot pass it.
func (r *ProductRepository) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity > domain.MaxStock {
		return nil, r.restockRejected(ctx, productID)
	}

	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock <= $3
		RETURNING `+productColumns,
		productID, quantity, domain.MaxStock-quantity,
	))
	if isNoRows(err) {
		return nil, r.restockRejected(ctx, productID)
	}
	if err != nil {
		return nil, fmt.Errorf("restock product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) restockRejected(ctx context.Context, productID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.StockOverflow(productID)
}
