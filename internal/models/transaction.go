// internal/models/transaction.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Transaction is one gateway payment attempt for an order. It is created at
// checkout and afterwards only mutated by reconciliation.
type Transaction struct {
	BaseModel
	OrderID             uuid.UUID         `json:"order_id" gorm:"type:uuid;not null;index"`
	GatewayPaymentID    string            `json:"gateway_payment_id" gorm:"size:64;not null;uniqueIndex"`
	Status              TransactionStatus `json:"status" gorm:"type:varchar(20);default:'PENDING';index"`
	GatewayStatus       string            `json:"gateway_status" gorm:"size:50"`
	GatewayStatusDetail string            `json:"gateway_status_detail" gorm:"size:100"`
	GatewayResponse     datatypes.JSON    `json:"gateway_response,omitempty"`
	ReconciledAt        *time.Time        `json:"reconciled_at"`

	// Relationships
	Order Order `json:"order,omitempty" gorm:"foreignKey:OrderID"`
}
