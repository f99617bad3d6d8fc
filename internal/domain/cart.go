package domain

import "time"

// CartLine quantity is always >= 1; an update to zero or below removes
// the line. UnitPrice is the product price captured when the line was
// first added.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url"`
}

// Cart is the per-user staging area. There is exactly one cart per user,
// created lazily on first add and cleared, not deleted, after checkout.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}
