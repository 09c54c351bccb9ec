// internal/models/store.go
package models

import (
	"github.com/google/uuid"
)

type Seller struct {
	BaseModel
	Name  string `json:"name" gorm:"size:255;not null"`
	Email string `json:"email" gorm:"size:255;not null"`

	// Relationships
	PaymentConfig *PaymentConfig `json:"payment_config,omitempty" gorm:"foreignKey:SellerID"`
}

type Store struct {
	BaseModel
	SellerID uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;index"`
	Name     string    `json:"name" gorm:"size:255;not null"`
	Slug     string    `json:"slug" gorm:"size:100;uniqueIndex"`

	// Relationships
	Seller Seller `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}

// PaymentConfig holds the seller's gateway credential. Read-only here.
type PaymentConfig struct {
	BaseModel
	SellerID    uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;uniqueIndex"`
	Provider    string    `json:"provider" gorm:"size:50;not null;default:'mercadopago'"`
	AccessToken string    `json:"-" gorm:"type:text"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
}
