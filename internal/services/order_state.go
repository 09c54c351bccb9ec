// internal/services/order_state.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/digistore/internal/database"
	"github.com/javajoker/digistore/internal/models"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid order transition")
)

// Transition describes what ApplyReconciliation did to the order.
type Transition struct {
	OrderID  uuid.UUID          `json:"order_id"`
	SellerID uuid.UUID          `json:"seller_id"`
	Outcome  Outcome            `json:"outcome"`
	From     models.OrderStatus `json:"from"`
	To       models.OrderStatus `json:"to"`
	Changed  bool               `json:"changed"`
	Rejected bool               `json:"rejected,omitempty"`
}

var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending: {models.OrderStatusPaid, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusPaid:    {models.OrderStatusRefunded},
}

func targetStatus(outcome Outcome) (models.OrderStatus, bool) {
	switch outcome {
	case OutcomePaid:
		return models.OrderStatusPaid, true
	case OutcomeCancelled:
		return models.OrderStatusCancelled, true
	case OutcomeRefunded:
		return models.OrderStatusRefunded, true
	default:
		return "", false
	}
}

// NextOrderStatus returns the status an order in current moves to for
// outcome. OutcomeNone and same-state results leave the order unchanged.
func NextOrderStatus(current models.OrderStatus, outcome Outcome) (models.OrderStatus, error) {
	target, ok := targetStatus(outcome)
	if !ok || target == current {
		return current, nil
	}
	for _, allowed := range allowedTransitions[current] {
		if allowed == target {
			return target, nil
		}
	}
	return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

func paymentStatusFor(status models.OrderStatus) models.PaymentStatus {
	switch status {
	case models.OrderStatusPaid:
		return models.PaymentStatusPaid
	case models.OrderStatusCancelled:
		return models.PaymentStatusFailed
	case models.OrderStatusRefunded:
		return models.PaymentStatusRefunded
	default:
		return models.PaymentStatusPending
	}
}

func transactionStatusFor(status models.OrderStatus) models.TransactionStatus {
	switch status {
	case models.OrderStatusPaid:
		return models.TransactionStatusCompleted
	case models.OrderStatusCancelled:
		return models.TransactionStatusFailed
	case models.OrderStatusRefunded:
		return models.TransactionStatusRefunded
	default:
		return models.TransactionStatusPending
	}
}

type OrderStateMachine struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

func NewOrderStateMachine(db *gorm.DB, logger logrus.FieldLogger) *OrderStateMachine {
	return &OrderStateMachine{db: db, logger: logger}
}

// ApplyReconciliation records rec on the transaction and moves its order
// along the allowed transitions, all in one database transaction. A
// transition the table forbids is logged and leaves the order untouched.
func (m *OrderStateMachine) ApplyReconciliation(ctx context.Context, txnID uuid.UUID, rec Reconciliation) (*Transition, error) {
	var transition *Transition

	err := database.WithTransaction(m.db.WithContext(ctx), func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&txn, "id = ?", txnID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return fmt.Errorf("failed to load transaction: %w", err)
		}

		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", txn.OrderID).Error; err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}

		var store models.Store
		if err := tx.Select("id", "seller_id").First(&store, "id = ?", order.StoreID).Error; err != nil {
			return fmt.Errorf("failed to load store: %w", err)
		}

		transition = &Transition{
			OrderID:  order.ID,
			SellerID: store.SellerID,
			Outcome:  rec.Outcome,
			From:     order.Status,
			To:       order.Status,
		}

		next, err := NextOrderStatus(order.Status, rec.Outcome)
		if err != nil {
			transition.Rejected = true
			m.logger.WithFields(logrus.Fields{
				"order_id":   order.ID,
				"payment_id": rec.PaymentID,
				"outcome":    rec.Outcome,
			}).WithError(err).Warn("Ignoring order transition")
		}
		transition.To = next

		now := time.Now()
		txnUpdates := map[string]interface{}{
			"gateway_status":        rec.Status,
			"gateway_status_detail": rec.StatusDetail,
			"reconciled_at":         now,
		}
		if len(rec.RawResponse) > 0 {
			txnUpdates["gateway_response"] = datatypes.JSON(rec.RawResponse)
		}
		if _, mapped := targetStatus(rec.Outcome); mapped && !transition.Rejected {
			txnUpdates["status"] = transactionStatusFor(next)
		}
		if err := tx.Model(&txn).Updates(txnUpdates).Error; err != nil {
			return fmt.Errorf("failed to update transaction: %w", err)
		}

		if next == order.Status {
			return nil
		}

		orderUpdates := map[string]interface{}{
			"status":         next,
			"payment_status": paymentStatusFor(next),
		}
		switch next {
		case models.OrderStatusPaid:
			orderUpdates["paid_at"] = now
		case models.OrderStatusCancelled:
			orderUpdates["cancelled_at"] = now
		case models.OrderStatusRefunded:
			orderUpdates["refunded_at"] = now
		}
		if err := tx.Model(&order).Updates(orderUpdates).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		transition.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	return transition, nil
}
