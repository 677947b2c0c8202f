package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidStatus = errors.New("invalid order status")

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

var statuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// ParseStatus returns the canonical spelling of s, matched case-insensitively.
// Any value is reachable from any other; only the value set is closed.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	for _, status := range statuses {
		if strings.EqualFold(s, string(status)) {
			return status, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Order struct {
	ID              int64           `json:"id" db:"id"`
	CustomerName    string          `json:"customerName" db:"customer_name"`
	CustomerEmail   string          `json:"customerEmail" db:"customer_email"`
	ShippingAddress string          `json:"shippingAddress" db:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"totalAmount" db:"total_amount"`
	Status          Status          `json:"status" db:"status"`
	OrderDate       time.Time       `json:"orderDate" db:"order_date"`
	ShippedDate     *time.Time      `json:"shippedDate" db:"shipped_date"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
	OrderItems      []OrderItem     `json:"orderItems" db:"-"`
}

type OrderItem struct {
	ID          int64           `json:"id" db:"id"`
	OrderID     int64           `json:"orderId" db:"order_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	ProductName string          `json:"productName" db:"product_name"`
	Quantity    int32           `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice" db:"unit_price"`
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	type plain OrderItem
	return json.Marshal(struct {
		plain
		TotalPrice decimal.Decimal `json:"totalPrice"`
	}{
		plain:      plain(i),
		TotalPrice: i.TotalPrice(),
	})
}

// MoneyScale is the number of fractional digits stored for every amount.
const MoneyScale = 2

// WholeCents reports whether d survives storage at MoneyScale unchanged.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.OrderItems {
		total = total.Add(item.TotalPrice())
	}
	o.TotalAmount = total
}

// Timestamp is the clock reading stored for every order write. Postgres keeps
// microseconds, so anything finer would not survive a round trip.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// TransitionStatus applies requested to a copy of order and returns it along
// with the status it replaced. ShippedDate is set on the first move into
// Shipped and kept from then on.
func TransitionStatus(order Order, requested Status, now time.Time) (Order, Status) {
	previous := order.Status

	order.Status = requested
	order.UpdatedAt = Timestamp(now)

	if requested == StatusShipped && order.ShippedDate == nil {
		shipped := order.UpdatedAt
		order.ShippedDate = &shipped
	}

	return order, previous
}
