// internal/services/fulfillment_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/digistore/internal/database"
	"github.com/javajoker/digistore/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrOrderNotPaid  = errors.New("order is not paid")
)

type ItemOutcomeKind string

const (
	ItemFulfilled ItemOutcomeKind = "fulfilled"
	ItemSkipped   ItemOutcomeKind = "skipped"
	ItemFailed    ItemOutcomeKind = "failed"
)

// ItemOutcome is the result of fulfilling one order item. Exactly one of
// PurchaseID (fulfilled), Reason (skipped) or Err (failed) is meaningful.
type ItemOutcome struct {
	OrderItemID uuid.UUID       `json:"order_item_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	Kind        ItemOutcomeKind `json:"kind"`
	Reason      SkipReason      `json:"reason,omitempty"`
	PurchaseID  *uuid.UUID      `json:"purchase_id,omitempty"`
	Err         error           `json:"-"`
	Error       string          `json:"error,omitempty"`
}

type FulfillmentResult struct {
	OrderID          uuid.UUID                `json:"order_id"`
	AlreadyFulfilled bool                     `json:"already_fulfilled"`
	Status           models.FulfillmentStatus `json:"status,omitempty"`
	Items            []ItemOutcome            `json:"items,omitempty"`
}

func (r *FulfillmentResult) count(kind ItemOutcomeKind) int {
	n := 0
	for _, item := range r.Items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

func (r *FulfillmentResult) Fulfilled() int { return r.count(ItemFulfilled) }
func (r *FulfillmentResult) Skipped() int   { return r.count(ItemSkipped) }
func (r *FulfillmentResult) Failed() int    { return r.count(ItemFailed) }

// Fulfiller runs fulfillment for a paid order.
type Fulfiller interface {
	Fulfill(ctx context.Context, orderID uuid.UUID) (*FulfillmentResult, error)
}

type FulfillmentService struct {
	db         *gorm.DB
	allocators map[models.StockType]StockAllocator
	urls       DeliverableURLResolver
	logger     logrus.FieldLogger
}

func NewFulfillmentService(db *gorm.DB, allocators map[models.StockType]StockAllocator, urls DeliverableURLResolver, logger logrus.FieldLogger) *FulfillmentService {
	return &FulfillmentService{
		db:         db,
		allocators: allocators,
		urls:       urls,
		logger:     logger,
	}
}

// Fulfill allocates stock and creates purchases for every item of a paid
// order, at most once per order. The claim row, every stock claim and every
// purchase commit together, so an interrupted run leaves nothing behind and
// can be retried. A run that delivered nothing leaves the claim empty and a
// later call tries again.
func (s *FulfillmentService) Fulfill(ctx context.Context, orderID uuid.UUID) (*FulfillmentResult, error) {
	result := &FulfillmentResult{OrderID: orderID}
	logger := s.logger.WithField("order_id", orderID)

	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.Status != models.OrderStatusPaid {
			return fmt.Errorf("%w: %s", ErrOrderNotPaid, order.Status)
		}

		// Orders fulfilled before claim rows existed
		var existing int64
		if err := tx.Model(&models.Purchase{}).Where("order_id = ?", orderID).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to count purchases: %w", err)
		}
		if existing > 0 {
			result.AlreadyFulfilled = true
			return nil
		}

		claim, err := claimFulfillment(tx, orderID)
		if err != nil {
			return err
		}
		if claim == nil {
			result.AlreadyFulfilled = true
			return nil
		}

		for _, item := range order.Items {
			outcome := s.fulfillItem(ctx, tx, &order, item)
			result.Items = append(result.Items, outcome)

			entry := logger.WithFields(logrus.Fields{
				"order_item_id": item.ID,
				"product_id":    item.ProductID,
				"outcome":       outcome.Kind,
			})
			switch outcome.Kind {
			case ItemSkipped:
				entry.WithField("reason", outcome.Reason).Info("Order item skipped")
			case ItemFailed:
				entry.WithError(outcome.Err).Error("Order item fulfillment failed")
			}
		}

		result.Status = summarize(result)
		now := time.Now()
		if err := tx.Model(claim).Updates(map[string]interface{}{
			"status":       result.Status,
			"summary":      summaryOf(result),
			"completed_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to record fulfillment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.AlreadyFulfilled {
		logger.WithFields(logrus.Fields{
			"status":    result.Status,
			"fulfilled": result.Fulfilled(),
			"skipped":   result.Skipped(),
			"failed":    result.Failed(),
		}).Info("Order fulfillment finished")
	}
	return result, nil
}

// claimFulfillment takes the order's fulfillment row, or returns nil when
// another run holds or completed it. A row left empty by an earlier run is
// taken over, so an order that got nothing delivered can be fulfilled again
// once stock arrives.
func claimFulfillment(tx *gorm.DB, orderID uuid.UUID) (*models.Fulfillment, error) {
	claim := &models.Fulfillment{OrderID: orderID, Status: models.FulfillmentStatusProcessing}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(claim)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim fulfillment: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return claim, nil
	}

	res = tx.Model(&models.Fulfillment{}).
		Where("order_id = ? AND status = ?", orderID, models.FulfillmentStatusEmpty).
		Updates(map[string]interface{}{
			"status":       models.FulfillmentStatusProcessing,
			"completed_at": nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to reclaim fulfillment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var existing models.Fulfillment
	if err := tx.Where("order_id = ?", orderID).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load fulfillment: %w", err)
	}
	return &existing, nil
}

// fulfillItem runs inside its own savepoint: a skip or failure undoes any
// stock this item claimed without touching the other items.
func (s *FulfillmentService) fulfillItem(ctx context.Context, tx *gorm.DB, order *models.Order, item models.OrderItem) ItemOutcome {
	outcome := ItemOutcome{OrderItemID: item.ID, ProductID: item.ProductID}

	err := tx.Transaction(func(itx *gorm.DB) error {
		var product models.Product
		if err := itx.Preload("Deliverables", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).First(&product, "id = ?", item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Skip(SkipProductNotFound)
			}
			return fmt.Errorf("failed to load product: %w", err)
		}

		allocator, ok := s.allocators[product.StockType]
		if !ok {
			return Skip(SkipUnsupportedStockType)
		}

		allocation, err := allocator.Allocate(ctx, itx, AllocationRequest{
			OrderID: order.ID,
			Item:    item,
			Product: &product,
		})
		if err != nil {
			return err
		}

		downloadURL := s.downloadURL(ctx, &product)
		if allocation.Content == nil && downloadURL == nil {
			return Skip(SkipNoDeliverableContent)
		}

		purchase := models.Purchase{
			OrderID:          order.ID,
			OrderItemID:      item.ID,
			ProductID:        product.ID,
			CustomerID:       order.CustomerID,
			DeliveredContent: allocation.Content,
			StockLineID:      allocation.StockLineID,
			DownloadURL:      downloadURL,
		}
		if err := itx.Create(&purchase).Error; err != nil {
			return fmt.Errorf("failed to create purchase: %w", err)
		}

		outcome.PurchaseID = &purchase.ID
		return nil
	})

	var skip *SkipError
	switch {
	case err == nil:
		outcome.Kind = ItemFulfilled
	case errors.As(err, &skip):
		outcome.Kind = ItemSkipped
		outcome.Reason = skip.Reason
		outcome.PurchaseID = nil
	default:
		outcome.Kind = ItemFailed
		outcome.Err = err
		outcome.Error = err.Error()
		outcome.PurchaseID = nil
	}
	return outcome
}

// downloadURL resolves the product's first deliverable. Resolution problems
// only cost the item its download link.
func (s *FulfillmentService) downloadURL(ctx context.Context, product *models.Product) *string {
	if len(product.Deliverables) == 0 || s.urls == nil {
		return nil
	}

	url, err := s.urls.ResolveURL(ctx, product.Deliverables[0])
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"product_id":     product.ID,
			"deliverable_id": product.Deliverables[0].ID,
		}).WithError(err).Warn("Failed to resolve deliverable URL")
		return nil
	}
	if url == "" {
		return nil
	}
	return &url
}

func summarize(result *FulfillmentResult) models.FulfillmentStatus {
	fulfilled := result.Fulfilled()
	switch {
	case fulfilled == 0:
		return models.FulfillmentStatusEmpty
	case fulfilled == len(result.Items):
		return models.FulfillmentStatusCompleted
	default:
		return models.FulfillmentStatusPartial
	}
}

func summaryOf(result *FulfillmentResult) models.JSONB {
	items := make([]interface{}, 0, len(result.Items))
	for _, item := range result.Items {
		entry := map[string]interface{}{
			"order_item_id": item.OrderItemID.String(),
			"product_id":    item.ProductID.String(),
			"kind":          string(item.Kind),
		}
		if item.Reason != "" {
			entry["reason"] = string(item.Reason)
		}
		if item.PurchaseID != nil {
			entry["purchase_id"] = item.PurchaseID.String()
		}
		if item.Error != "" {
			entry["error"] = item.Error
		}
		items = append(items, entry)
	}

	return models.JSONB{
		"fulfilled": result.Fulfilled(),
		"skipped":   result.Skipped(),
		"failed":    result.Failed(),
		"items":     items,
	}
}

type OrderFulfillment struct {
	Order       models.Order        `json:"order"`
	Fulfillment *models.Fulfillment `json:"fulfillment"`
	Purchases   []models.Purchase   `json:"purchases"`
}

func (s *FulfillmentService) GetOrderFulfillment(ctx context.Context, orderID uuid.UUID) (*OrderFulfillment, error) {
	db := s.db.WithContext(ctx)

	var view OrderFulfillment
	if err := db.Preload("Items").First(&view.Order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	var fulfillment models.Fulfillment
	res := db.Where("order_id = ?", orderID).Limit(1).Find(&fulfillment)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to load fulfillment: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		view.Fulfillment = &fulfillment
	}

	if err := db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&view.Purchases).Error; err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}

	return &view, nil
}
