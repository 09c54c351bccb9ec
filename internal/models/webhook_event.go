// internal/models/webhook_event.go
package models

import (
	"gorm.io/datatypes"
)

type SignatureStatus string

const (
	SignatureStatusValid   SignatureStatus = "valid"
	SignatureStatusMissing SignatureStatus = "missing"
	SignatureStatusInvalid SignatureStatus = "invalid"
	SignatureStatusSkipped SignatureStatus = "skipped"
)

// WebhookEvent is an audit row for one inbound gateway delivery.
type WebhookEvent struct {
	BaseModel
	Topic           string          `json:"topic" gorm:"size:50;index"`
	Action          string          `json:"action,omitempty" gorm:"size:50"`
	PaymentID       string          `json:"payment_id" gorm:"size:64;index"`
	SignatureStatus SignatureStatus `json:"signature_status" gorm:"type:varchar(20)"`
	BodyHash        string          `json:"body_hash" gorm:"size:64;index"`
	Payload         datatypes.JSON  `json:"payload,omitempty"`
	Outcome         string          `json:"outcome" gorm:"size:50"`
	Error           string          `json:"error,omitempty" gorm:"type:text"`
}
