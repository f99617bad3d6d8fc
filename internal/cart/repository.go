package cart

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/mercatus/storefront/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the user's cart with an empty line list when no cart has
// been created yet. Line names and images are joined live; unit prices
// are the stored add-time snapshots.
func (r *Repository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID, Lines: []domain.CartLine{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UpdatedAt)
	if err == sql.ErrNoRows {
		return cart, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.product_id, COALESCE(p.name, ''), ci.quantity, ci.unit_price,
		       COALESCE(p.images[1], '')
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice, &line.ImageURL); err != nil {
			return nil, err
		}
		cart.Lines = append(cart.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

// AddItem lazily creates the cart, snapshots the product's current
// price, and upserts the line. Adding an already-present product bumps
// its quantity; the accumulated quantity may never exceed available
// stock.
func (r *Repository) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, domain.ValidationError{Message: "quantity must be positive"}
	}

	var price int64
	var stock int
	err := r.db.QueryRowContext(ctx, `
		SELECT price, stock FROM products WHERE id = $1
	`, productID).Scan(&price, &stock)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return nil, err
	}

	if quantity > stock {
		return nil, domain.InsufficientStockError{ProductID: productID, Available: stock, Requested: quantity}
	}

	cartID, err := r.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	// The update arm is conditional so an accumulated line can never
	// outgrow stock; zero rows affected means the bump was rejected.
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		WHERE cart_items.quantity + EXCLUDED.quantity <= $5
	`, cartID, productID, quantity, price, stock)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		var current int
		if err := r.db.QueryRowContext(ctx, `
			SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID).Scan(&current); err != nil {
			return nil, err
		}
		return nil, domain.InsufficientStockError{ProductID: productID, Available: stock, Requested: current + quantity}
	}

	if err := r.touch(ctx, cartID); err != nil {
		return nil, err
	}

	return r.Get(ctx, userID)
}

// UpdateItem sets an existing line's quantity. Zero or negative removes
// the line.
func (r *Repository) UpdateItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return r.RemoveItem(ctx, userID, productID)
	}

	var stock int
	err := r.db.QueryRowContext(ctx, `
		SELECT stock FROM products WHERE id = $1
	`, productID).Scan(&stock)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return nil, err
	}

	if quantity > stock {
		return nil, domain.InsufficientStockError{ProductID: productID, Available: stock, Requested: quantity}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1) AND product_id = $2
	`, userID, productID, quantity)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, domain.NotFoundError{Resource: "cart item", ID: productID}
	}

	return r.Get(ctx, userID)
}

func (r *Repository) RemoveItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1) AND product_id = $2
	`, userID, productID)
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, userID)
}

// Clear empties the cart. Clearing an empty or absent cart is a no-op.
func (r *Repository) Clear(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)
	`, userID)
	return err
}

func (r *Repository) ensureCart(ctx context.Context, userID string) (string, error) {
	// ON CONFLICT DO NOTHING keeps the unique (user_id) constraint
	// race-free when two first-adds arrive together.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New().String(), userID)
	if err != nil {
		return "", err
	}

	var cartID string
	if err := r.db.QueryRowContext(ctx, `
		SELECT id FROM carts WHERE user_id = $1
	`, userID).Scan(&cartID); err != nil {
		return "", err
	}

	return cartID, nil
}

func (r *Repository) touch(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE carts SET updated_at = NOW() WHERE id = $1
	`, cartID)
	return err
}
