// internal/models/order.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	BaseModel
	OrderNumber   string          `json:"order_number" gorm:"size:32;not null;uniqueIndex"`
	CustomerID    uuid.UUID       `json:"customer_id" gorm:"type:uuid;not null;index"`
	StoreID       uuid.UUID       `json:"store_id" gorm:"type:uuid;not null;index"`
	Status        OrderStatus     `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	PaymentStatus PaymentStatus   `json:"payment_status" gorm:"type:varchar(20);default:'PENDING'"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	PaidAt        *time.Time      `json:"paid_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	RefundedAt    *time.Time      `json:"refunded_at"`

	// Relationships
	Store Store       `json:"store,omitempty" gorm:"foreignKey:StoreID"`
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem is immutable once the order exists.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID       `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `json:"product_id" gorm:"type:uuid;not null;index"`
	Quantity  int             `json:"quantity" gorm:"not null;default:1"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(12,2);not null"`
}
