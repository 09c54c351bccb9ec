// internal/models/purchase.go
package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEmptyPurchase = errors.New("purchase carries neither delivered content nor a download url")

// Purchase is the fulfillment record for one order item.
type Purchase struct {
	BaseModel
	OrderID          uuid.UUID  `json:"order_id" gorm:"type:uuid;not null;index"`
	OrderItemID      uuid.UUID  `json:"order_item_id" gorm:"type:uuid;not null;uniqueIndex"`
	ProductID        uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	CustomerID       uuid.UUID  `json:"customer_id" gorm:"type:uuid;not null;index"`
	DeliveredContent *string    `json:"delivered_content,omitempty" gorm:"type:text"`
	StockLineID      *uuid.UUID `json:"stock_line_id,omitempty" gorm:"type:uuid;uniqueIndex"`
	DownloadURL      *string    `json:"download_url,omitempty" gorm:"type:text"`
	IsDownloaded     bool       `json:"is_downloaded" gorm:"default:false"`
	DownloadCount    int        `json:"download_count" gorm:"default:0"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if blank(p.DeliveredContent) && blank(p.DownloadURL) {
		return ErrEmptyPurchase
	}
	return nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// Fulfillment is the per-order claim row. Its unique order_id is what makes
// fulfillment run at most once.
type Fulfillment struct {
	BaseModel
	OrderID     uuid.UUID         `json:"order_id" gorm:"type:uuid;not null;uniqueIndex"`
	Status      FulfillmentStatus `json:"status" gorm:"type:varchar(20);not null;default:'processing'"`
	Summary     JSONB             `json:"summary" gorm:"type:jsonb"`
	CompletedAt *time.Time        `json:"completed_at"`
}
