package domain

import "time"

// Product prices are in cents. Stock is the authoritative purchasable
// quantity and is only mutated through the stock ledger.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Category    string    `json:"category"`
	Stock       int       `json:"stock"`
	Images      []string  `json:"images"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PrimaryImage is the image snapshotted into order lines.
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

type StockLevel struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
}
