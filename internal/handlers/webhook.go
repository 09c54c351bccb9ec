// internal/handlers/webhook.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore/internal/models"
	"github.com/javajoker/digistore/internal/services"
)

// The gateway gives up on a delivery after about 30s.
const processingBudget = 25 * time.Second

// PaymentProcessor runs the payment pipeline behind the webhook.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, paymentID string, rawBody []byte) (*services.ProcessResult, error)
	RecordDelivery(ctx context.Context, event *models.WebhookEvent)
}

type WebhookHandler struct {
	validator    *services.SignatureValidator
	processor    PaymentProcessor
	maxBodyBytes int64
	logger       logrus.FieldLogger
}

func NewWebhookHandler(validator *services.SignatureValidator, processor PaymentProcessor, maxBodyBytes int64, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		validator:    validator,
		processor:    processor,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// GET /webhook
func (h *WebhookHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "payment-webhook",
	})
}

// POST /webhook
//
// Answers 401 for a rejected signature and 400 for an unreadable body.
// Everything else, including processing failures, is acknowledged with 200
// so the gateway does not start retrying.
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodyBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}
	if int64(len(rawBody)) > h.maxBodyBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body too large"})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), processingBudget)
	defer cancel()

	signature := h.validator.Verify(rawBody, c.GetHeader(services.SignatureHeader))
	delivery := services.NewDeliveryRecord(rawBody, signature)
	logger := h.logger.WithFields(logrus.Fields{
		"body_hash": delivery.BodyHash,
		"signature": signature,
	})

	if !signature.Accepted(h.validator.Mode()) {
		logger.Warn("Webhook rejected: invalid signature")
		delivery.Outcome = string(services.StepRejectedSignature)
		h.processor.RecordDelivery(ctx, delivery)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	notification, err := services.ParseNotification(rawBody)
	if err != nil {
		logger.WithError(err).Warn("Webhook rejected: malformed payload")
		delivery.Outcome = string(services.StepMalformedPayload)
		h.processor.RecordDelivery(ctx, delivery)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	delivery.Topic = notification.Type
	delivery.Action = notification.Action
	delivery.PaymentID = notification.PaymentID
	delivery.Payload = rawBody

	switch {
	case notification.Type != services.PaymentEventType:
		delivery.Outcome = string(services.StepIgnoredEventType)
	case notification.PaymentID == "":
		delivery.Outcome = string(services.StepIgnoredMissingID)
	default:
		result, err := h.process(ctx, notification.PaymentID, rawBody)
		switch {
		case err != nil:
			logger.WithField("payment_id", notification.PaymentID).WithError(err).Error("Webhook processing failed")
			delivery.Outcome = string(services.StepFailed)
			delivery.Error = err.Error()
		case result != nil:
			delivery.Outcome = string(result.Step)
			delivery.Error = result.FulfillmentErr
		}
	}

	h.processor.RecordDelivery(ctx, delivery)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *WebhookHandler) process(ctx context.Context, paymentID string, rawBody []byte) (result *services.ProcessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("payment processing panicked: %v", r)
		}
	}()

	return h.processor.ProcessPayment(ctx, paymentID, rawBody)
}
