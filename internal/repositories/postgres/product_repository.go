package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patchline/api/internal/domain"
	"github.com/patchline/api/internal/repositories"
)

const productColumns = `id, sku, name, description, price_cents, weight_oz, image_url, active, created_at, updated_at`

// ProductRepository reads catalog rows from Postgres.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository constructs a ProductRepository over an open database.
func NewProductRepository(db *sql.DB) (*ProductRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &ProductRepository{db: db}, nil
}

func scanProduct(scan func(dest ...any) error) (domain.Product, error) {
	var product domain.Product
	var id string
	if err := scan(
		&id,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.PriceCents,
		&product.WeightOz,
		&product.ImageURL,
		&product.Active,
		&product.CreatedAt,
		&product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	product.ID = domain.ParseProductID(id)
	return product, nil
}

// List returns catalog entries, optionally limited to active products.
func (r *ProductRepository) List(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products ORDER BY name`, productColumns)
	if activeOnly {
		query = fmt.Sprintf(`SELECT %s FROM products WHERE active ORDER BY name`, productColumns)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate products: %w", err)
	}
	return products, nil
}

// GetByID fetches one catalog entry.
func (r *ProductRepository) GetByID(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id.String()).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, fmt.Errorf("%w: product %s", repositories.ErrNotFound, id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("postgres: query product by id: %w", err)
	}
	return product, nil
}
