// Package inventory is the stock ledger: the authoritative per-product
// available-quantity counter over the products.stock column.
package inventory

import (
	"context"
	"database/sql"

	"github.com/mercatus/storefront/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so reservations can
// run inside the order-creation transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Reserve decrements stock for productID if and only if enough is
// available, as a single conditional update. Two concurrent
// reservations for the last unit cannot both succeed: the losing
// statement matches zero rows and nothing is applied.
func (l *Ledger) Reserve(ctx context.Context, q Querier, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ValidationError{Message: "quantity must be positive"}
	}

	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		var available int
		err := q.QueryRowContext(ctx, `
			SELECT stock FROM products WHERE id = $1
		`, productID).Scan(&available)
		if err == sql.ErrNoRows {
			return domain.NotFoundError{Resource: "product", ID: productID}
		}
		if err != nil {
			return err
		}
		return domain.InsufficientStockError{
			ProductID: productID,
			Available: available,
			Requested: quantity,
		}
	}

	return nil
}

// Release returns previously reserved units to the ledger. It is the
// compensating action for order deletion, cancellation, and rolled-back
// assembly.
func (l *Ledger) Release(ctx context.Context, q Querier, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ValidationError{Message: "quantity must be positive"}
	}

	// Zero rows matched means the product was deleted since the order
	// was placed; there is nothing to restore then.
	_, err := q.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	return err
}

// Restock adds admin-supplied units.
func (l *Ledger) Restock(ctx context.Context, productID string, quantity int) (*domain.StockLevel, error) {
	if quantity <= 0 {
		return nil, domain.ValidationError{Message: "quantity must be positive"}
	}

	result, err := l.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, domain.NotFoundError{Resource: "product", ID: productID}
	}

	return l.GetStock(ctx, productID)
}

func (l *Ledger) GetStock(ctx context.Context, productID string) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := l.db.QueryRowContext(ctx, `
		SELECT id, name, stock
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock.ProductID, &stock.Name, &stock.Available)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundError{Resource: "product", ID: productID}
		}
		return nil, err
	}

	return stock, nil
}

func (l *Ledger) ListStock(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, stock
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var levels []domain.StockLevel
	for rows.Next() {
		var stock domain.StockLevel
		if err := rows.Scan(&stock.ProductID, &stock.Name, &stock.Available); err != nil {
			return nil, err
		}
		levels = append(levels, stock)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}
