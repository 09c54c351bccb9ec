// internal/models/product.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	BaseModel
	StoreID      uuid.UUID `json:"store_id" gorm:"type:uuid;not null;index"`
	Name         string    `json:"name" gorm:"size:255;not null"`
	StockType    StockType `json:"stock_type" gorm:"type:varchar(20);not null;default:'LINE'"`
	FixedContent string    `json:"-" gorm:"type:text"`

	// Relationships
	StockLines   []StockLine   `json:"stock_lines,omitempty" gorm:"foreignKey:ProductID"`
	Deliverables []Deliverable `json:"deliverables,omitempty" gorm:"foreignKey:ProductID"`
}

// StockLine is one depletable unit of a LINE product. Claimed lines are
// flagged used and deleted but never removed.
type StockLine struct {
	BaseModel
	ProductID uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	Content   string     `json:"-" gorm:"type:text;not null"`
	IsUsed    bool       `json:"is_used" gorm:"not null;default:false"`
	IsDeleted bool       `json:"is_deleted" gorm:"not null;default:false"`
	UsedAt    *time.Time `json:"used_at"`
	OrderID   *uuid.UUID `json:"order_id" gorm:"type:uuid;index"`
}

// Deliverable is a downloadable file attached to a product. StorageKey
// points at object storage; URL is used as-is when no key is set.
type Deliverable struct {
	BaseModel
	ProductID  uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	Name       string    `json:"name" gorm:"size:255;not null"`
	URL        string    `json:"url" gorm:"type:text"`
	StorageKey string    `json:"storage_key" gorm:"size:512"`
}
