package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Event type tags. They are the dispatch keys carried by every envelope and
// must stay stable across producer and consumer releases.
const (
	OrderCreatedType       = "OrderCreatedEvent"
	OrderStatusChangedType = "OrderStatusChangedEvent"
	ProductCreatedType     = "ProductCreatedEvent"
	ProductUpdatedType     = "ProductUpdatedEvent"
	ProductDeletedType     = "ProductDeletedEvent"
)

func init() {
	// subscribers read monetary fields as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

type OrderItemInfo struct {
	ProductID int64           `json:"productId"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type OrderCreatedEvent struct {
	OrderID      int64           `json:"orderId"`
	CustomerName string          `json:"customerName"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	CreatedAt    time.Time       `json:"createdAt"`
	Items        []OrderItemInfo `json:"items"`
}

func (OrderCreatedEvent) EventType() string { return OrderCreatedType }

func (e OrderCreatedEvent) PartitionKey() string { return strconv.FormatInt(e.OrderID, 10) }

type OrderStatusChangedEvent struct {
	OrderID   int64     `json:"orderId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ChangedAt time.Time `json:"changedAt"`
}

func (OrderStatusChangedEvent) EventType() string { return OrderStatusChangedType }

func (e OrderStatusChangedEvent) PartitionKey() string { return strconv.FormatInt(e.OrderID, 10) }

type ProductCreatedEvent struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (ProductCreatedEvent) EventType() string { return ProductCreatedType }

func (e ProductCreatedEvent) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }

type ProductUpdatedEvent struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (ProductUpdatedEvent) EventType() string { return ProductUpdatedType }

func (e ProductUpdatedEvent) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }

type ProductDeletedEvent struct {
	ProductID int64     `json:"productId"`
	DeletedAt time.Time `json:"deletedAt"`
}

func (ProductDeletedEvent) EventType() string { return ProductDeletedType }

func (e ProductDeletedEvent) PartitionKey() string { return strconv.FormatInt(e.ProductID, 10) }
