package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mercatus/storefront/internal/domain"
	"github.com/mercatus/storefront/internal/inventory"
)

type Repository struct {
	db      *sql.DB
	ledger  *inventory.Ledger
	pricing Pricing
}

func NewRepository(db *sql.DB, ledger *inventory.Ledger, pricing Pricing) *Repository {
	return &Repository{
		db:      db,
		ledger:  ledger,
		pricing: pricing,
	}
}

type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Create assembles and persists an order inside one transaction:
// product resolution, stock reservation, pricing, and the order rows
// either all commit or all roll back, so a failed line releases every
// earlier reservation. The optional idempotency key dedupes retried
// requests; the second return value reports whether a new order was
// created.
func (r *Repository) Create(ctx context.Context, userID string, lines []LineRequest, address domain.ShippingAddress, paymentMethod, idempotencyKey string) (*domain.Order, bool, error) {
	if len(lines) == 0 {
		return nil, false, domain.ValidationError{Message: "no order items"}
	}

	if idempotencyKey != "" {
		existing, err := r.getByIdempotencyKey(ctx, userID, idempotencyKey)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	order := &domain.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		Status:          domain.OrderStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, false, domain.ValidationError{Message: "quantity must be positive"}
		}

		var name, imageURL string
		var price int64
		err := tx.QueryRowContext(ctx, `
			SELECT name, price, COALESCE(images[1], '')
			FROM products
			WHERE id = $1
		`, line.ProductID).Scan(&name, &price, &imageURL)
		if err == sql.ErrNoRows {
			return nil, false, domain.NotFoundError{Resource: "product", ID: line.ProductID}
		}
		if err != nil {
			return nil, false, err
		}

		if err := r.ledger.Reserve(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return nil, false, err
		}

		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			UnitPrice: price,
			ImageURL:  imageURL,
		})
		order.ItemsPrice += price * int64(line.Quantity)
	}

	order.ShippingPrice, order.TaxPrice, order.TotalPrice = r.pricing.Quote(order.ItemsPrice)

	var key sql.NullString
	if idempotencyKey != "" {
		key = sql.NullString{String: idempotencyKey, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status,
			items_price, shipping_price, tax_price, total_price,
			payment_method,
			ship_street, ship_city, ship_state, ship_postal_code, ship_country,
			idempotency_key, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, order.ID, order.UserID, order.Status,
		order.ItemsPrice, order.ShippingPrice, order.TaxPrice, order.TotalPrice,
		order.PaymentMethod,
		address.Street, address.City, address.State, address.PostalCode, address.Country,
		key, order.CreatedAt)
	if err != nil {
		// A concurrent request with the same idempotency key won the
		// insert; this transaction rolls back and releases every
		// reservation it made.
		if isUniqueViolation(err) && idempotencyKey != "" {
			_ = tx.Rollback()
			existing, lookupErr := r.getByIdempotencyKey(ctx, userID, idempotencyKey)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, quantity, unit_price, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.New().String(), order.ID, line.ProductID, line.Name, line.Quantity, line.UnitPrice, line.ImageURL)
		if err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return order, true, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}

	lines, err := r.loadLines(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]

	return order, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+`
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}

	return r.collectOrders(ctx, rows)
}

type ListFilter struct {
	Status domain.OrderStatus
	Page   int
	Limit  int
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
}

// List is the admin view: newest first, optional status filter,
// paginated.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error) {
	filter.normalize()

	where := ""
	args := []any{}
	if filter.Status != "" {
		where = "WHERE status = $1"
		args = append(args, filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		selectOrder, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	orders, err := r.collectOrders(ctx, rows)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStatus applies one edge of the status machine. Unknown targets
// are rejected by the handler before this point; illegal edges return
// InvalidTransitionError. A transition to cancelled releases the
// order's reserved stock in the same transaction.
func (r *Repository) UpdateStatus(ctx context.Context, id string, target domain.OrderStatus) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE id = $1
	`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, domain.NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}

	if !current.CanTransitionTo(target) {
		return nil, domain.InvalidTransitionError{From: current, To: target}
	}

	var result sql.Result
	if target == domain.OrderStatusDelivered {
		result, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $3, is_delivered = TRUE, delivered_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = $2
		`, id, current, target)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`, id, current, target)
	}
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	// Conditional on the observed status, so a concurrent transition
	// loses cleanly instead of being overwritten.
	if rowsAffected == 0 {
		return nil, domain.ConflictError{Message: "order status changed concurrently"}
	}

	if target == domain.OrderStatusCancelled {
		if err := r.releaseOrderStock(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.GetByID(ctx, id)
}

// SetPaymentSession records the checkout session opened for an unpaid
// order. Opening a new session replaces any previous one, so only the
// latest session can confirm the order.
func (r *Repository) SetPaymentSession(ctx context.Context, id, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_session_id = $2, updated_at = NOW()
		WHERE id = $1 AND is_paid = FALSE
	`, id, sessionID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if order.Paid {
			return domain.ConflictError{Message: "order is already paid"}
		}
		return domain.NotFoundError{Resource: "order", ID: id}
	}

	return nil
}

// MarkPaid records the payment correlation exactly once. The order's
// lifecycle status is untouched; paid is an orthogonal flag.
func (r *Repository) MarkPaid(ctx context.Context, id string, payment domain.PaymentResult) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET is_paid = TRUE, paid_at = NOW(),
		    payment_session_id = $2, payment_status = $3, payment_email = $4,
		    updated_at = NOW()
		WHERE id = $1 AND is_paid = FALSE
	`, id, payment.SessionID, payment.Status, payment.PayerEmail)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		order, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if order.Paid {
			return nil, domain.ConflictError{Message: "order is already paid"}
		}
		return nil, domain.NotFoundError{Resource: "order", ID: id}
	}

	return r.GetByID(ctx, id)
}

// Delete removes a pending, unpaid order and returns its reserved
// stock to the ledger as one transaction.
func (r *Repository) Delete(ctx context.Context, id string, identity domain.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID string
	var status domain.OrderStatus
	var paid bool
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, status, is_paid FROM orders WHERE id = $1
	`, id).Scan(&ownerID, &status, &paid)
	if err == sql.ErrNoRows {
		return domain.NotFoundError{Resource: "order", ID: id}
	}
	if err != nil {
		return err
	}

	if !identity.CanAccess(ownerID) {
		return domain.ErrForbidden
	}
	if status != domain.OrderStatusPending {
		return domain.ConflictError{Message: "only pending orders can be deleted"}
	}
	if paid {
		return domain.ConflictError{Message: "paid orders cannot be deleted"}
	}

	if err := r.releaseOrderStock(ctx, tx, id); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM orders WHERE id = $1 AND status = $2
	`, id, domain.OrderStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ConflictError{Message: "order status changed concurrently"}
	}

	return tx.Commit()
}

func (r *Repository) releaseOrderStock(ctx context.Context, tx *sql.Tx, orderID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return err
	}

	type reservedLine struct {
		productID string
		quantity  int
	}
	var reserved []reservedLine

	for rows.Next() {
		var line reservedLine
		if err := rows.Scan(&line.productID, &line.quantity); err != nil {
			_ = rows.Close()
			return err
		}
		reserved = append(reserved, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, line := range reserved {
		if err := r.ledger.Release(ctx, tx, line.productID, line.quantity); err != nil {
			return err
		}
	}

	return nil
}

const selectOrder = `
	SELECT id, user_id, status,
	       items_price, shipping_price, tax_price, total_price,
	       payment_method,
	       ship_street, ship_city, ship_state, ship_postal_code, ship_country,
	       COALESCE(payment_session_id, ''), COALESCE(payment_status, ''), COALESCE(payment_email, ''),
	       is_paid, paid_at, is_delivered, delivered_at, created_at
	FROM orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanOrder(row rowScanner) (*domain.Order, error) {
	order := &domain.Order{}
	var paidAt, deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID, &order.UserID, &order.Status,
		&order.ItemsPrice, &order.ShippingPrice, &order.TaxPrice, &order.TotalPrice,
		&order.PaymentMethod,
		&order.ShippingAddress.Street, &order.ShippingAddress.City, &order.ShippingAddress.State,
		&order.ShippingAddress.PostalCode, &order.ShippingAddress.Country,
		&order.PaymentResult.SessionID, &order.PaymentResult.Status, &order.PaymentResult.PayerEmail,
		&order.Paid, &paidAt, &order.Delivered, &deliveredAt, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}

	return order, nil
}

func (r *Repository) collectOrders(ctx context.Context, rows *sql.Rows) ([]domain.Order, error) {
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lines, err := r.loadLines(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		order := orderMap[id]
		if l, ok := lines[id]; ok {
			order.Lines = l
		}
		orders = append(orders, *order)
	}

	return orders, nil
}

// loadLines fetches lines for all orders in one batched query.
func (r *Repository) loadLines(ctx context.Context, orderIDs []string) (map[string][]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, quantity, unit_price, image_url
		FROM order_items
		WHERE order_id = ANY($1)
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := rows.Scan(&orderID, &line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice, &line.ImageURL); err != nil {
			return nil, err
		}
		lines[orderID] = append(lines[orderID], line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// getByIdempotencyKey is scoped to the requesting user: keys are only
// meaningful within one user's retries, and a key replayed by another
// user must never surface someone else's order.
func (r *Repository) getByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE idempotency_key = $1 AND user_id = $2`, key, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	lines, err := r.loadLines(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[order.ID]

	return order, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
