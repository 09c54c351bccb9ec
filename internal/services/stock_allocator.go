// internal/services/stock_allocator.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/digistore/internal/models"
)

type SkipReason string

const (
	SkipProductNotFound      SkipReason = "product_not_found"
	SkipOutOfStock           SkipReason = "out_of_stock"
	SkipKeyAuthDelegated     SkipReason = "keyauth_delegated"
	SkipUnsupportedStockType SkipReason = "unsupported_stock_type"
	SkipNoDeliverableContent SkipReason = "no_deliverable_content"
)

// SkipError marks an item that is deliberately not fulfilled. Returning it
// from inside an item's savepoint rolls back anything the item claimed.
type SkipError struct {
	Reason SkipReason
}

func (e *SkipError) Error() string {
	return "item skipped: " + string(e.Reason)
}

func Skip(reason SkipReason) error {
	return &SkipError{Reason: reason}
}

type AllocationRequest struct {
	OrderID uuid.UUID
	Item    models.OrderItem
	Product *models.Product
}

// Allocation is what a strategy hands back for one order item. Content is
// nil when the strategy has nothing to deliver inline.
type Allocation struct {
	Content     *string
	StockLineID *uuid.UUID
}

// StockAllocator allocates deliverable content for one order item inside tx.
type StockAllocator interface {
	Allocate(ctx context.Context, tx *gorm.DB, req AllocationRequest) (*Allocation, error)
}

func DefaultAllocators() map[models.StockType]StockAllocator {
	return map[models.StockType]StockAllocator{
		models.StockTypeLine:    NewLineAllocator(),
		models.StockTypeFixed:   FixedAllocator{},
		models.StockTypeKeyAuth: KeyAuthAllocator{},
	}
}

const defaultClaimAttempts = 3

// LineAllocator hands out depletable stock lines, oldest first.
type LineAllocator struct {
	maxAttempts int
	now         func() time.Time
}

func NewLineAllocator() *LineAllocator {
	return &LineAllocator{maxAttempts: defaultClaimAttempts, now: time.Now}
}

func (a *LineAllocator) Allocate(ctx context.Context, tx *gorm.DB, req AllocationRequest) (*Allocation, error) {
	line, err := a.ClaimOne(ctx, tx, req.Product.ID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, Skip(SkipOutOfStock)
	}

	content := line.Content
	return &Allocation{Content: &content, StockLineID: &line.ID}, nil
}

// ClaimOne marks the oldest free line of productID as used by orderID and
// returns it, or nil when none is left. The update only succeeds while the
// line is still free, so two claimers can never both win the same line.
func (a *LineAllocator) ClaimOne(ctx context.Context, tx *gorm.DB, productID, orderID uuid.UUID) (*models.StockLine, error) {
	tx = tx.WithContext(ctx)

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		var candidate models.StockLine
		res := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("product_id = ? AND is_used = ? AND is_deleted = ?", productID, false, false).
			Order("created_at ASC").Order("id ASC").
			Limit(1).
			Find(&candidate)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to select stock line: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, nil
		}

		usedAt := a.now()
		claim := tx.Model(&models.StockLine{}).
			Where("id = ? AND is_used = ? AND is_deleted = ?", candidate.ID, false, false).
			Updates(map[string]interface{}{
				"is_used":    true,
				"is_deleted": true,
				"used_at":    usedAt,
				"order_id":   orderID,
			})
		if claim.Error != nil {
			return nil, fmt.Errorf("failed to claim stock line: %w", claim.Error)
		}
		if claim.RowsAffected == 1 {
			candidate.IsUsed = true
			candidate.IsDeleted = true
			candidate.UsedAt = &usedAt
			candidate.OrderID = &orderID
			return &candidate, nil
		}
	}

	return nil, nil
}

// FixedAllocator delivers the product's shared static content.
type FixedAllocator struct{}

func (FixedAllocator) Allocate(_ context.Context, _ *gorm.DB, req AllocationRequest) (*Allocation, error) {
	if strings.TrimSpace(req.Product.FixedContent) == "" {
		return &Allocation{}, nil
	}
	content := req.Product.FixedContent
	return &Allocation{Content: &content}, nil
}

// KeyAuthAllocator never allocates: license keys are issued by the separate
// delivery checker.
type KeyAuthAllocator struct{}

func (KeyAuthAllocator) Allocate(context.Context, *gorm.DB, AllocationRequest) (*Allocation, error) {
	return nil, Skip(SkipKeyAuthDelegated)
}
