// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type SellerNotification struct {
	BaseModel
	SellerID uuid.UUID  `json:"seller_id" gorm:"type:uuid;not null;index"`
	Kind     AlertKind  `json:"kind" gorm:"type:varchar(20);not null"`
	Emailed  bool       `json:"emailed" gorm:"default:false"`
	ReadAt   *time.Time `json:"read_at"`
}
