// internal/handlers/admin.go
package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore/internal/services"
	"github.com/javajoker/digistore/internal/utils"
)

type AdminHandler struct {
	webhookService     *services.WebhookService
	fulfillmentService *services.FulfillmentService
	logger             logrus.FieldLogger
}

func NewAdminHandler(webhookService *services.WebhookService, fulfillmentService *services.FulfillmentService, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		webhookService:     webhookService,
		fulfillmentService: fulfillmentService,
		logger:             logger,
	}
}

type reconcileRequest struct {
	PaymentID string `validate:"required,payment_id"`
}

// POST /admin/payments/:paymentId/reconcile
func (h *AdminHandler) ReconcilePayment(c *gin.Context) {
	req := reconcileRequest{PaymentID: c.Param("paymentId")}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	operatorID, _ := utils.GetOperatorIDFromContext(c)
	h.logger.WithFields(logrus.Fields{
		"payment_id":  req.PaymentID,
		"operator_id": operatorID,
	}).Info("Manual reconciliation requested")

	result, err := h.webhookService.ProcessPayment(context.WithoutCancel(c.Request.Context()), req.PaymentID, nil)
	if err != nil {
		h.logger.WithField("payment_id", req.PaymentID).WithError(err).Error("Manual reconciliation failed")
		utils.InternalErrorResponse(c, "Reconciliation failed")
		return
	}
	if result.Step == services.StepIgnoredUnknownTransaction {
		utils.NotFoundResponse(c, "Transaction")
		return
	}

	utils.SuccessResponse(c, result)
}

// GET /admin/orders/:id/fulfillment
func (h *AdminHandler) GetOrderFulfillment(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid order ID", nil)
		return
	}

	view, err := h.fulfillmentService.GetOrderFulfillment(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			utils.NotFoundResponse(c, "Order")
			return
		}
		utils.InternalErrorResponse(c, "")
		return
	}

	utils.SuccessResponse(c, view)
}

// GET /admin/webhook-events
func (h *AdminHandler) GetWebhookEvents(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	events, total, err := h.webhookService.ListDeliveries(c.Request.Context(), params, c.Query("outcome"))
	if err != nil {
		utils.InternalErrorResponse(c, "")
		return
	}

	result := utils.CreatePaginationResult(events, total, params)
	utils.PaginatedResponse(c, result)
}
