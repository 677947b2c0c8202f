package handler

import (
	"github.com/sakashimaa/go-order-service/services/order/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderItemRequest struct {
	ProductID   int64           `json:"productId" validate:"required"`
	ProductName string          `json:"productName" validate:"required,max=100"`
	Quantity    int32           `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0.01,lte=1000000"`
}

type CreateOrderRequest struct {
	CustomerName    string             `json:"customerName" validate:"required,min=2,max=100"`
	CustomerEmail   string             `json:"customerEmail" validate:"required,email"`
	ShippingAddress string             `json:"shippingAddress" validate:"required"`
	OrderItems      []OrderItemRequest `json:"orderItems" validate:"required,dive"`
}

// UpdateOrderRequest replaces the order wholesale. Status is optional and
// keeps the current value when empty.
type UpdateOrderRequest struct {
	CreateOrderRequest
	Status string `json:"status"`
}

func (r *CreateOrderRequest) toDomain() *domain.Order {
	items := make([]domain.OrderItem, len(r.OrderItems))
	for i, item := range r.OrderItems {
		items[i] = domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		}
	}

	return &domain.Order{
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		ShippingAddress: r.ShippingAddress,
		OrderItems:      items,
	}
}
