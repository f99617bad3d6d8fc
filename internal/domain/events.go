package domain

import "time"

const (
	TopicOrderCreated = "order.created"
	TopicOrderPaid    = "order.paid"
)

type OrderCreatedEvent struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Lines      []OrderLine `json:"lines"`
	TotalPrice int64       `json:"total_price"`
	Timestamp  time.Time   `json:"timestamp"`
}

type OrderPaidEvent struct {
	OrderID    string    `json:"order_id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	PayerEmail string    `json:"payer_email"`
	Timestamp  time.Time `json:"timestamp"`
}
