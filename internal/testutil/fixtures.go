// internal/testutil/fixtures.go
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/models"
)

// NewStore creates a seller, its store and, when accessToken is not empty,
// an active gateway credential.
func NewStore(t *testing.T, db *gorm.DB, accessToken string) *models.Store {
	t.Helper()

	seller := &models.Seller{
		Name:  "Test Seller",
		Email: "seller@example.com",
	}
	require.NoError(t, db.Create(seller).Error)

	if accessToken != "" {
		require.NoError(t, db.Create(&models.PaymentConfig{
			SellerID:    seller.ID,
			Provider:    "mercadopago",
			AccessToken: accessToken,
			IsActive:    true,
		}).Error)
	}

	store := &models.Store{
		SellerID: seller.ID,
		Name:     "Test Store",
		Slug:     "store-" + uuid.NewString()[:8],
	}
	require.NoError(t, db.Create(store).Error)
	store.Seller = *seller
	return store
}

func NewProduct(t *testing.T, db *gorm.DB, storeID uuid.UUID, stockType models.StockType, fixedContent string) *models.Product {
	t.Helper()

	product := &models.Product{
		StoreID:      storeID,
		Name:         fmt.Sprintf("%s product", stockType),
		StockType:    stockType,
		FixedContent: fixedContent,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

// NewStockLines adds lines oldest first in argument order.
func NewStockLines(t *testing.T, db *gorm.DB, productID uuid.UUID, contents ...string) []models.StockLine {
	t.Helper()

	lines := make([]models.StockLine, 0, len(contents))
	for _, content := range contents {
		line := models.StockLine{ProductID: productID, Content: content}
		require.NoError(t, db.Create(&line).Error)
		lines = append(lines, line)
	}
	return lines
}

func NewDeliverable(t *testing.T, db *gorm.DB, productID uuid.UUID, url, storageKey string) *models.Deliverable {
	t.Helper()

	deliverable := &models.Deliverable{
		ProductID:  productID,
		Name:       "download",
		URL:        url,
		StorageKey: storageKey,
	}
	require.NoError(t, db.Create(deliverable).Error)
	return deliverable
}

// NewOrder creates an order in status with one item of quantity one per
// product. A nil product yields an item pointing at no product at all.
func NewOrder(t *testing.T, db *gorm.DB, storeID uuid.UUID, status models.OrderStatus, products ...*models.Product) *models.Order {
	t.Helper()

	paymentStatus := models.PaymentStatusPending
	if status == models.OrderStatusPaid {
		paymentStatus = models.PaymentStatusPaid
	}

	order := &models.Order{
		OrderNumber:   "ORD-" + uuid.NewString()[:8],
		CustomerID:    uuid.New(),
		StoreID:       storeID,
		Status:        status,
		PaymentStatus: paymentStatus,
		TotalAmount:   decimal.NewFromInt(int64(10 * len(products))),
	}
	require.NoError(t, db.Create(order).Error)

	for _, product := range products {
		productID := uuid.New()
		if product != nil {
			productID = product.ID
		}
		item := models.OrderItem{
			OrderID:   order.ID,
			ProductID: productID,
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(10),
		}
		require.NoError(t, db.Create(&item).Error)
		order.Items = append(order.Items, item)
	}
	return order
}

func NewTransaction(t *testing.T, db *gorm.DB, orderID uuid.UUID, paymentID string) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		OrderID:          orderID,
		GatewayPaymentID: paymentID,
		Status:           models.TransactionStatusPending,
	}
	require.NoError(t, db.Create(txn).Error)
	return txn
}

func Reload[T any](t *testing.T, db *gorm.DB, id uuid.UUID) *T {
	t.Helper()

	var record T
	require.NoError(t, db.First(&record, "id = ?", id).Error)
	return &record
}
