package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

type CheckoutRequest struct {
	FullName      string        `json:"full_name"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	PaymentMethod PaymentMethod `json:"payment_method"`
}

func (r CheckoutRequest) Validate() error {
	if strings.TrimSpace(r.FullName) == "" ||
		strings.TrimSpace(r.Phone) == "" ||
		strings.TrimSpace(r.Address) == "" {
		return ErrIncompleteCheckout
	}
	return nil
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
)

type Order struct {
	ID         int64           `json:"id"`
	Status     OrderStatus     `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	FullName   string          `json:"full_name"`
	Phone      string          `json:"phone"`
	Address    string          `json:"address"`
	CreatedAt  time.Time       `json:"created_at"`
}
