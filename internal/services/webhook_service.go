// internal/services/webhook_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/models"
	"github.com/javajoker/digistore/internal/utils"
)

const PaymentEventType = "payment"

// Notification is the part of a gateway webhook this service reads.
type Notification struct {
	Type      string
	Action    string
	PaymentID string
}

// ParseNotification decodes a webhook body. The payment id may arrive as a
// JSON string or number.
func ParseNotification(raw []byte) (*Notification, error) {
	var body struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Data   struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	return &Notification{
		Type:      body.Type,
		Action:    body.Action,
		PaymentID: rawID(body.Data.ID),
	}, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

type ProcessStep string

const (
	StepIgnoredEventType          ProcessStep = "ignored_event_type"
	StepIgnoredMissingID          ProcessStep = "ignored_missing_id"
	StepIgnoredUnknownTransaction ProcessStep = "ignored_unknown_transaction"
	StepIgnoredMissingCredential  ProcessStep = "ignored_missing_credential"
	StepReconciled                ProcessStep = "reconciled"
	StepRejectedSignature         ProcessStep = "rejected_signature"
	StepMalformedPayload          ProcessStep = "malformed_payload"
	StepFailed                    ProcessStep = "failed"
)

// ProcessResult describes how far a payment notification got.
type ProcessResult struct {
	PaymentID      string             `json:"payment_id"`
	Step           ProcessStep        `json:"step"`
	Reconciliation *Reconciliation    `json:"reconciliation,omitempty"`
	Transition     *Transition        `json:"transition,omitempty"`
	Fulfillment    *FulfillmentResult `json:"fulfillment,omitempty"`
	FulfillmentErr string             `json:"fulfillment_error,omitempty"`
}

type WebhookService struct {
	db           *gorm.DB
	reconciler   *ReconciliationService
	stateMachine *OrderStateMachine
	fulfiller    Fulfiller
	alerts       *NotificationDispatcher
	logger       logrus.FieldLogger
}

func NewWebhookService(
	db *gorm.DB,
	reconciler *ReconciliationService,
	stateMachine *OrderStateMachine,
	fulfiller Fulfiller,
	alerts *NotificationDispatcher,
	logger logrus.FieldLogger,
) *WebhookService {
	return &WebhookService{
		db:           db,
		reconciler:   reconciler,
		stateMachine: stateMachine,
		fulfiller:    fulfiller,
		alerts:       alerts,
		logger:       logger,
	}
}

// ProcessPayment reconciles one gateway payment and carries its order
// through transition, fulfillment and seller alerts. Unknown payments and
// sellers without credentials are not errors. Fulfillment failures are
// logged and reported in the result, never returned.
func (s *WebhookService) ProcessPayment(ctx context.Context, paymentID string, rawBody []byte) (*ProcessResult, error) {
	result := &ProcessResult{PaymentID: paymentID}
	logger := s.logger.WithField("payment_id", paymentID)

	var txn models.Transaction
	err := s.db.WithContext(ctx).
		Preload("Order.Store.Seller.PaymentConfig").
		Where("gateway_payment_id = ?", paymentID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("No local transaction for payment, ignoring")
			result.Step = StepIgnoredUnknownTransaction
			return result, nil
		}
		return result, fmt.Errorf("failed to load transaction: %w", err)
	}

	seller := txn.Order.Store.Seller
	logger = logger.WithFields(logrus.Fields{
		"order_id":  txn.OrderID,
		"seller_id": seller.ID,
	})

	credential := seller.PaymentConfig
	if credential == nil || !credential.IsActive || credential.AccessToken == "" {
		logger.Warn("Seller has no gateway credential, ignoring payment")
		result.Step = StepIgnoredMissingCredential
		return result, nil
	}

	rec := s.reconciler.Reconcile(ctx, &txn, credential.AccessToken, rawBody)
	result.Reconciliation = &rec

	transition, err := s.stateMachine.ApplyReconciliation(ctx, txn.ID, rec)
	if err != nil {
		return result, fmt.Errorf("failed to apply reconciliation: %w", err)
	}
	result.Transition = transition
	result.Step = StepReconciled

	logger.WithFields(logrus.Fields{
		"gateway_status": rec.Status,
		"source":         rec.Source,
		"outcome":        rec.Outcome,
		"from":           transition.From,
		"to":             transition.To,
		"changed":        transition.Changed,
	}).Info("Payment reconciled")

	switch transition.To {
	case models.OrderStatusPaid:
		fulfillment, err := s.fulfill(ctx, transition.OrderID)
		result.Fulfillment = fulfillment
		if err != nil {
			result.FulfillmentErr = err.Error()
			logger.WithError(err).Error("Order fulfillment failed")
		}
		if transition.Changed {
			s.alerts.Dispatch(transition.SellerID, models.AlertKindApproved)
		}
	case models.OrderStatusRefunded:
		if transition.Changed {
			s.alerts.Dispatch(transition.SellerID, models.AlertKindChargeback)
		}
	}

	return result, nil
}

// fulfill shields the caller from panics inside fulfillment.
func (s *WebhookService) fulfill(ctx context.Context, orderID uuid.UUID) (result *FulfillmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"order_id": orderID,
				"panic":    r,
				"stack":    string(debug.Stack()),
			}).Error("Fulfillment panicked")
			result, err = nil, fmt.Errorf("fulfillment panicked: %v", r)
		}
	}()

	return s.fulfiller.Fulfill(ctx, orderID)
}

// RecordDelivery stores an audit row for an inbound webhook. Failures are
// logged only.
func (s *WebhookService) RecordDelivery(ctx context.Context, event *models.WebhookEvent) {
	if len(event.Payload) > 0 && !json.Valid(event.Payload) {
		event.Payload = nil
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.logger.WithFields(logrus.Fields{
			"payment_id": event.PaymentID,
			"body_hash":  event.BodyHash,
		}).WithError(err).Warn("Failed to record webhook delivery")
	}
}

// NewDeliveryRecord starts an audit row for rawBody.
func NewDeliveryRecord(rawBody []byte, signature SignatureResult) *models.WebhookEvent {
	return &models.WebhookEvent{
		SignatureStatus: signature.Status(),
		BodyHash:        utils.HashBytes(rawBody),
	}
}

func (s *WebhookService) ListDeliveries(ctx context.Context, params utils.PaginationParams, outcome string) ([]models.WebhookEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count webhook events: %w", err)
	}

	var events []models.WebhookEvent
	query = utils.ApplySort(query, params, []string{"created_at", "payment_id", "outcome"})
	if err := utils.ApplyPagination(query, params).Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list webhook events: %w", err)
	}

	return events, total, nil
}
