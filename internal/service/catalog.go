package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"shopcore/internal/model"
)

var ErrProductNotFound = errors.New("product not found")

type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

const productColumns = `id, name, description, price, category, inventory, image_url, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Inventory,
		&p.ImageURL, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return p, nil
}

func (s *CatalogService) List(ctx context.Context, page, limit int) ([]model.Product, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE is_active`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products
		 WHERE is_active
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows iteration failed: %w", err)
	}

	return products, total, nil
}

type CreateProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Inventory   int             `json:"inventory"`
	ImageURL    string          `json:"image_url"`
}

func (s *CatalogService) Create(ctx context.Context, in CreateProductInput) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO products (name, description, price, category, inventory, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+productColumns,
		in.Name, in.Description, in.Price, in.Category, in.Inventory, in.ImageURL)

	p, err := scanProduct(row)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// UpdateProductInput carries field-level updates; nil fields are left
// unchanged.
type UpdateProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *string          `json:"category"`
	Inventory   *int             `json:"inventory"`
	ImageURL    *string          `json:"image_url"`
	IsActive    *bool            `json:"is_active"`
}

func (s *CatalogService) Update(ctx context.Context, id string, in UpdateProductInput) (*model.Product, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if in.Name != nil {
		addSet("name", *in.Name)
	}
	if in.Description != nil {
		addSet("description", *in.Description)
	}
	if in.Price != nil {
		addSet("price", *in.Price)
	}
	if in.Category != nil {
		addSet("category", *in.Category)
	}
	if in.Inventory != nil {
		addSet("inventory", *in.Inventory)
	}
	if in.ImageURL != nil {
		addSet("image_url", *in.ImageURL)
	}
	if in.IsActive != nil {
		addSet("is_active", *in.IsActive)
	}

	query := `UPDATE products SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + productColumns
	row := s.db.QueryRowContext(ctx, query, args...)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (s *CatalogService) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DecrementInventory applies an atomic inventory decrement. Concurrent
// settlements racing on the same product serialize on this single
// statement; there is no in-process coordination.
func (s *CatalogService) DecrementInventory(ctx context.Context, id string, qty int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET inventory = inventory - $2, updated_at = NOW() WHERE id = $1`,
		id, qty)
	if err != nil {
		return fmt.Errorf("decrement inventory: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}
