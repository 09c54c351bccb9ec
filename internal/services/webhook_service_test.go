// internal/services/webhook_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/models"
	"github.com/javajoker/digistore/internal/testutil"
	"github.com/javajoker/digistore/internal/utils"
)

type WebhookServiceTestSuite struct {
	suite.Suite
	db         *gorm.DB
	gateway    *stubGateway
	notifier   *recordingNotifier
	dispatcher *NotificationDispatcher
	hook       *logtest.Hook
	service    *WebhookService
	store      *models.Store
	ctx        context.Context
}

func (suite *WebhookServiceTestSuite) SetupTest() {
	suite.db = testutil.NewDB(suite.T())
	suite.gateway = newStubGateway()
	suite.notifier = &recordingNotifier{}
	suite.ctx = context.Background()

	logger, hook := nullLogger()
	suite.hook = hook
	suite.service = suite.newService(newTestFulfillment(suite.db, logger), logger)
	suite.store = testutil.NewStore(suite.T(), suite.db, "seller-token")
}

func (suite *WebhookServiceTestSuite) newService(fulfiller Fulfiller, logger *logrus.Logger) *WebhookService {
	suite.dispatcher = NewNotificationDispatcher(suite.notifier, time.Second, logger)
	return NewWebhookService(
		suite.db,
		NewReconciliationService(suite.gateway, logger),
		NewOrderStateMachine(suite.db, logger),
		fulfiller,
		suite.dispatcher,
		logger,
	)
}

func (suite *WebhookServiceTestSuite) lineOrder(paymentID string, contents ...string) *models.Order {
	product := testutil.NewProduct(suite.T(), suite.db, suite.store.ID, models.StockTypeLine, "")
	testutil.NewStockLines(suite.T(), suite.db, product.ID, contents...)
	order := testutil.NewOrder(suite.T(), suite.db, suite.store.ID, models.OrderStatusPending, product)
	testutil.NewTransaction(suite.T(), suite.db, order.ID, paymentID)
	return order
}

func (suite *WebhookServiceTestSuite) purchaseCount(order *models.Order) int64 {
	var n int64
	suite.Require().NoError(suite.db.Model(&models.Purchase{}).Where("order_id = ?", order.ID).Count(&n).Error)
	return n
}

func (suite *WebhookServiceTestSuite) TestApprovedPaymentFulfillsOrder() {
	order := suite.lineOrder("PAY123", "KEY-ABC")
	suite.gateway.set("PAY123", "approved", "accredited")

	result, err := suite.service.ProcessPayment(suite.ctx, "PAY123", []byte(`{"type":"payment","data":{"id":"PAY123"}}`))
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Equal(StepReconciled, result.Step)
	suite.Equal(SourceGateway, result.Reconciliation.Source)
	suite.True(result.Transition.Changed)
	suite.Require().NotNil(result.Fulfillment)
	suite.Equal(1, result.Fulfillment.Fulfilled())
	suite.Equal([]string{"seller-token"}, suite.gateway.tokens)

	reloaded := testutil.Reload[models.Order](suite.T(), suite.db, order.ID)
	suite.Equal(models.OrderStatusPaid, reloaded.Status)
	suite.Equal(models.PaymentStatusPaid, reloaded.PaymentStatus)
	suite.NotNil(reloaded.PaidAt)

	var purchase models.Purchase
	suite.Require().NoError(suite.db.Where("order_id = ?", order.ID).First(&purchase).Error)
	suite.Equal("KEY-ABC", *purchase.DeliveredContent)

	suite.Equal([]sentAlert{{SellerID: suite.store.SellerID, Kind: models.AlertKindApproved}}, suite.notifier.sent())
}

func (suite *WebhookServiceTestSuite) TestDuplicateDeliveriesFulfillOnce() {
	order := suite.lineOrder("PAY123", "KEY-1", "KEY-2")
	suite.gateway.set("PAY123", "approved", "accredited")

	for i := 0; i < 3; i++ {
		result, err := suite.service.ProcessPayment(suite.ctx, "PAY123", nil)
		suite.Require().NoError(err)
		suite.Require().NotNil(result.Fulfillment)
		suite.Equal(i > 0, result.Fulfillment.AlreadyFulfilled)
	}
	suite.dispatcher.Wait()

	suite.EqualValues(1, suite.purchaseCount(order))
	suite.Len(suite.notifier.sent(), 1)
}

func (suite *WebhookServiceTestSuite) TestRedeliveryAfterRestockFulfillsOrder() {
	order := suite.lineOrder("PAY77")
	suite.gateway.set("PAY77", "approved", "accredited")

	result, err := suite.service.ProcessPayment(suite.ctx, "PAY77", nil)
	suite.Require().NoError(err)
	suite.Require().NotNil(result.Fulfillment)
	suite.Equal(models.FulfillmentStatusEmpty, result.Fulfillment.Status)
	suite.Zero(suite.purchaseCount(order))

	testutil.NewStockLines(suite.T(), suite.db, order.Items[0].ProductID, "KEY-LATE")

	result, err = suite.service.ProcessPayment(suite.ctx, "PAY77", nil)
	suite.Require().NoError(err)
	suite.Require().NotNil(result.Fulfillment)
	suite.False(result.Fulfillment.AlreadyFulfilled)
	suite.Equal(models.FulfillmentStatusCompleted, result.Fulfillment.Status)
	suite.EqualValues(1, suite.purchaseCount(order))

	suite.dispatcher.Wait()
	suite.Len(suite.notifier.sent(), 1)
}

func (suite *WebhookServiceTestSuite) TestChargebackRefundsPaidOrder() {
	order := suite.lineOrder("PAY9", "KEY-1")
	suite.gateway.set("PAY9", "approved", "accredited")
	_, err := suite.service.ProcessPayment(suite.ctx, "PAY9", nil)
	suite.Require().NoError(err)

	suite.gateway.set("PAY9", "charged_back", "settled")
	result, err := suite.service.ProcessPayment(suite.ctx, "PAY9", nil)
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Equal(models.OrderStatusPaid, result.Transition.From)
	suite.Equal(models.OrderStatusRefunded, result.Transition.To)
	suite.Nil(result.Fulfillment)

	reloaded := testutil.Reload[models.Order](suite.T(), suite.db, order.ID)
	suite.Equal(models.OrderStatusRefunded, reloaded.Status)
	suite.NotNil(reloaded.RefundedAt)

	// Delivered goods stay delivered
	suite.EqualValues(1, suite.purchaseCount(order))

	sent := suite.notifier.sent()
	suite.Require().Len(sent, 2)
	suite.ElementsMatch([]models.AlertKind{models.AlertKindApproved, models.AlertKindChargeback}, []models.AlertKind{sent[0].Kind, sent[1].Kind})
}

func (suite *WebhookServiceTestSuite) TestChargebackOnPendingOrder() {
	order := suite.lineOrder("PAY123", "KEY-ABC")
	suite.gateway.set("PAY123", "charged_back", "")

	result, err := suite.service.ProcessPayment(suite.ctx, "PAY123", nil)
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Nil(result.Fulfillment)
	reloaded := testutil.Reload[models.Order](suite.T(), suite.db, order.ID)
	suite.Equal(models.OrderStatusRefunded, reloaded.Status)
	suite.Equal(models.PaymentStatusRefunded, reloaded.PaymentStatus)
	suite.Zero(suite.purchaseCount(order))
	suite.Equal([]sentAlert{{SellerID: suite.store.SellerID, Kind: models.AlertKindChargeback}}, suite.notifier.sent())
}

func (suite *WebhookServiceTestSuite) TestRejectedPaymentCancelsOrder() {
	order := suite.lineOrder("PAY5", "KEY-1")
	suite.gateway.set("PAY5", "rejected", "cc_rejected_other_reason")

	result, err := suite.service.ProcessPayment(suite.ctx, "PAY5", nil)
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Equal(models.OrderStatusCancelled, result.Transition.To)
	suite.Nil(result.Fulfillment)
	suite.Zero(suite.purchaseCount(order))
	suite.Empty(suite.notifier.sent())

	var free int64
	suite.Require().NoError(suite.db.Model(&models.StockLine{}).Where("is_used = ?", false).Count(&free).Error)
	suite.EqualValues(1, free)
}

func (suite *WebhookServiceTestSuite) TestUnknownTransactionIsIgnored() {
	result, err := suite.service.ProcessPayment(suite.ctx, "NOPE", nil)
	suite.Require().NoError(err)

	suite.Equal(StepIgnoredUnknownTransaction, result.Step)
	suite.Zero(suite.gateway.calls)
}

func (suite *WebhookServiceTestSuite) TestMissingCredentialIsIgnored() {
	store := testutil.NewStore(suite.T(), suite.db, "")
	order := testutil.NewOrder(suite.T(), suite.db, store.ID, models.OrderStatusPending)
	testutil.NewTransaction(suite.T(), suite.db, order.ID, "PAY77")

	result, err := suite.service.ProcessPayment(suite.ctx, "PAY77", nil)
	suite.Require().NoError(err)

	suite.Equal(StepIgnoredMissingCredential, result.Step)
	suite.Zero(suite.gateway.calls)
	suite.True(hasEntry(suite.hook, logrus.WarnLevel, "Seller has no gateway credential, ignoring payment"))

	reloaded := testutil.Reload[models.Order](suite.T(), suite.db, order.ID)
	suite.Equal(models.OrderStatusPending, reloaded.Status)
}

func (suite *WebhookServiceTestSuite) TestGatewayOutageUsesCachedStatus() {
	order := suite.lineOrder("PAY42", "KEY-1")
	suite.Require().NoError(suite.db.Model(&models.Transaction{}).
		Where("gateway_payment_id = ?", "PAY42").
		Update("gateway_status", "approved").Error)
	suite.gateway.err = errGatewayDown

	body := []byte(`{"type":"payment","data":{"id":"PAY42"}}`)
	result, err := suite.service.ProcessPayment(suite.ctx, "PAY42", body)
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Equal(SourceCache, result.Reconciliation.Source)
	suite.Equal(models.OrderStatusPaid, result.Transition.To)
	suite.EqualValues(1, suite.purchaseCount(order))

	var txn models.Transaction
	suite.Require().NoError(suite.db.Where("gateway_payment_id = ?", "PAY42").First(&txn).Error)
	suite.JSONEq(string(body), string(txn.GatewayResponse))
}

func (suite *WebhookServiceTestSuite) TestFulfillmentPanicIsContained() {
	logger, hook := nullLogger()
	service := suite.newService(panickingFulfiller{}, logger)
	order := suite.lineOrder("PAY13", "KEY-1")
	suite.gateway.set("PAY13", "approved", "")

	result, err := service.ProcessPayment(suite.ctx, "PAY13", nil)
	suite.Require().NoError(err)
	suite.dispatcher.Wait()

	suite.Contains(result.FulfillmentErr, "fulfillment panicked")
	suite.True(hasEntry(hook, logrus.ErrorLevel, "Fulfillment panicked"))

	reloaded := testutil.Reload[models.Order](suite.T(), suite.db, order.ID)
	suite.Equal(models.OrderStatusPaid, reloaded.Status)
	suite.Len(suite.notifier.sent(), 1)
}

func (suite *WebhookServiceTestSuite) TestRecordAndListDeliveries() {
	valid := NewDeliveryRecord([]byte(`{"type":"payment"}`), SignatureValid)
	valid.Topic = "payment"
	valid.Action = "payment.created"
	valid.PaymentID = "PAY1"
	valid.Payload = []byte(`{"type":"payment"}`)
	valid.Outcome = string(StepReconciled)
	suite.service.RecordDelivery(suite.ctx, valid)

	broken := NewDeliveryRecord([]byte(`{not json`), SignatureInvalid)
	broken.Payload = []byte(`{not json`)
	broken.Outcome = string(StepRejectedSignature)
	suite.service.RecordDelivery(suite.ctx, broken)

	params := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
	events, total, err := suite.service.ListDeliveries(suite.ctx, params, "")
	suite.Require().NoError(err)
	suite.EqualValues(2, total)
	suite.Require().Len(events, 2)
	actions := []string{events[0].Action, events[1].Action}
	suite.ElementsMatch([]string{"payment.created", ""}, actions)

	events, total, err = suite.service.ListDeliveries(suite.ctx, params, string(StepRejectedSignature))
	suite.Require().NoError(err)
	suite.EqualValues(1, total)
	suite.Require().Len(events, 1)
	suite.Equal(models.SignatureStatusInvalid, events[0].SignatureStatus)
	suite.Empty(events[0].Payload)
	suite.Equal(utils.HashBytes([]byte(`{not json`)), events[0].BodyHash)
}

func TestWebhookServiceSuite(t *testing.T) {
	suite.Run(t, new(WebhookServiceTestSuite))
}

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		eventType string
		paymentID string
	}{
		{"string id", `{"type":"payment","action":"payment.updated","data":{"id":"PAY123"}}`, "payment", "PAY123"},
		{"numeric id", `{"type":"payment","data":{"id":1234567890}}`, "payment", "1234567890"},
		{"missing id", `{"type":"payment","data":{}}`, "payment", ""},
		{"null id", `{"type":"payment","data":{"id":null}}`, "payment", ""},
		{"other type", `{"type":"plan","data":{"id":"X"}}`, "plan", "X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notification, err := ParseNotification([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.eventType, notification.Type)
			assert.Equal(t, tt.paymentID, notification.PaymentID)
		})
	}

	_, err := ParseNotification([]byte(`{"type":`))
	assert.Error(t, err)
}
