// internal/services/reconciliation_service.go
package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/digistore/internal/models"
)

// Outcome is the local meaning of a gateway status.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomePaid      Outcome = "paid"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRefunded  Outcome = "refunded"
)

type ReconciliationSource string

const (
	SourceGateway ReconciliationSource = "gateway"
	SourceCache   ReconciliationSource = "cache"
)

// FallbackPolicy names what reconciliation does when the gateway lookup fails.
type FallbackPolicy string

// FallbackCachedStatus reuses the transaction's last known gateway status,
// or "pending" when none was ever recorded.
const FallbackCachedStatus FallbackPolicy = "cached_status"

const defaultGatewayStatus = "pending"

type Reconciliation struct {
	PaymentID    string               `json:"payment_id"`
	Status       string               `json:"status"`
	StatusDetail string               `json:"status_detail"`
	Outcome      Outcome              `json:"outcome"`
	Source       ReconciliationSource `json:"source"`
	Fallback     FallbackPolicy       `json:"fallback,omitempty"`
	GatewayError string               `json:"gateway_error,omitempty"`
	RawResponse  json.RawMessage      `json:"-"`
}

// MapGatewayStatus translates gateway vocabulary. Chargebacks win over the
// plain status so that "approved" with a chargeback detail is a refund.
func MapGatewayStatus(status, detail string) Outcome {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "charged_back" || strings.Contains(strings.ToLower(detail), "chargeback") {
		return OutcomeRefunded
	}

	switch status {
	case "approved", "processed":
		return OutcomePaid
	case "rejected":
		return OutcomeCancelled
	default:
		return OutcomeNone
	}
}

type ReconciliationService struct {
	gateway  GatewayClient
	fallback FallbackPolicy
	logger   logrus.FieldLogger
}

func NewReconciliationService(gateway GatewayClient, logger logrus.FieldLogger) *ReconciliationService {
	return &ReconciliationService{
		gateway:  gateway,
		fallback: FallbackCachedStatus,
		logger:   logger,
	}
}

// Reconcile asks the gateway for the payment's status. It never fails: when
// the gateway cannot answer, the fallback policy supplies the status and
// inbound (the webhook body, if any) is kept as the audit payload.
func (s *ReconciliationService) Reconcile(ctx context.Context, txn *models.Transaction, accessToken string, inbound []byte) Reconciliation {
	payment, err := s.gateway.GetPaymentStatus(ctx, txn.GatewayPaymentID, accessToken)
	if err == nil {
		return Reconciliation{
			PaymentID:    txn.GatewayPaymentID,
			Status:       payment.Status,
			StatusDetail: payment.StatusDetail,
			Outcome:      MapGatewayStatus(payment.Status, payment.StatusDetail),
			Source:       SourceGateway,
			RawResponse:  payment.Raw,
		}
	}

	status, detail := txn.GatewayStatus, txn.GatewayStatusDetail
	if status == "" {
		status, detail = defaultGatewayStatus, ""
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":     txn.GatewayPaymentID,
		"fallback":       s.fallback,
		"cached_status":  status,
		"transaction_id": txn.ID,
	}).WithError(err).Warn("Gateway status lookup failed, using cached status")

	return Reconciliation{
		PaymentID:    txn.GatewayPaymentID,
		Status:       status,
		StatusDetail: detail,
		Outcome:      MapGatewayStatus(status, detail),
		Source:       SourceCache,
		Fallback:     s.fallback,
		GatewayError: err.Error(),
		RawResponse:  inbound,
	}
}
