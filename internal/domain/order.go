package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// statusTransitions is the closed set of legal lifecycle edges.
// delivered and cancelled are terminal.
var statusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := statusTransitions[status]; !ok {
		return "", ValidationError{Message: "unknown order status: " + s}
	}
	return status, nil
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range statusTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

const (
	PaymentMethodCreditCard = "creditCard"
	PaymentMethodPaypal     = "paypal"
	PaymentMethodStripe     = "stripe"
)

func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPaypal, PaymentMethodStripe:
		return true
	}
	return false
}

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// OrderLine is an immutable snapshot of a product at order-creation time.
// Later edits or deletion of the product do not touch it.
type OrderLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	ImageURL  string `json:"image_url"`
}

type PaymentResult struct {
	SessionID  string `json:"session_id,omitempty"`
	Status     string `json:"status,omitempty"`
	PayerEmail string `json:"payer_email,omitempty"`
}

// Order prices are in cents. TotalPrice is always
// ItemsPrice + ShippingPrice + TaxPrice, computed at assembly.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Lines           []OrderLine     `json:"lines"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentResult   PaymentResult   `json:"payment_result"`
	ItemsPrice      int64           `json:"items_price"`
	ShippingPrice   int64           `json:"shipping_price"`
	TaxPrice        int64           `json:"tax_price"`
	TotalPrice      int64           `json:"total_price"`
	Paid            bool            `json:"paid"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	Delivered       bool            `json:"delivered"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}
