package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mercatus/storefront/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, p *domain.Product) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category, stock, images, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, p.ID, p.Name, p.Description, p.Price, p.Category, p.Stock, pq.Array(p.Images), p.CreatedAt)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, category, stock, images, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock, pq.Array(&p.Images), &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundError{Resource: "product", ID: id}
		}
		return nil, err
	}

	return p, nil
}

// Update never touches stock: that column belongs to the ledger.
func (r *Repository) Update(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, category = $5, images = $6, updated_at = NOW()
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, p.Category, pq.Array(p.Images))
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, domain.NotFoundError{Resource: "product", ID: p.ID}
	}

	return r.GetByID(ctx, p.ID)
}

// Delete removes the product row. Order lines keep their snapshots, so
// history is unaffected.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1
	`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.NotFoundError{Resource: "product", ID: id}
	}

	return nil
}

type ListFilter struct {
	Query    string // case-insensitive match against name and description
	Category string
	MinPrice int64 // cents, <0 means unset
	MaxPrice int64 // cents, <0 means unset
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
	switch f.SortBy {
	case "price", "created_at":
	default:
		f.SortBy = "created_at"
		f.SortDesc = true
	}
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Product, int, error) {
	filter.normalize()

	var conditions []string
	var args []any

	if filter.Query != "" {
		args = append(args, "%"+filter.Query+"%")
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.MinPrice >= 0 {
		args = append(args, filter.MinPrice)
		conditions = append(conditions, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice >= 0 {
		args = append(args, filter.MaxPrice)
		conditions = append(conditions, fmt.Sprintf("price <= $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`
		SELECT id, name, description, price, category, stock, images, created_at, updated_at
		FROM products
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, where, filter.SortBy, direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock, pq.Array(&p.Images), &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}
