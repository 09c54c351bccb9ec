// internal/services/helpers_test.go
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/models"
)

var errGatewayDown = errors.New("gateway unavailable")

type stubGateway struct {
	mu       sync.Mutex
	payments map[string]*GatewayPayment
	err      error
	calls    int
	tokens   []string
}

func newStubGateway() *stubGateway {
	return &stubGateway{payments: map[string]*GatewayPayment{}}
}

func (g *stubGateway) set(paymentID, status, detail string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[paymentID] = &GatewayPayment{
		ID:           paymentID,
		Status:       status,
		StatusDetail: detail,
		Raw:          []byte(`{"id":"` + paymentID + `","status":"` + status + `","status_detail":"` + detail + `"}`),
	}
}

func (g *stubGateway) GetPaymentStatus(_ context.Context, paymentID, accessToken string) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.tokens = append(g.tokens, accessToken)
	if g.err != nil {
		return nil, g.err
	}
	payment, ok := g.payments[paymentID]
	if !ok {
		return nil, &GatewayError{StatusCode: 404, Message: "payment not found"}
	}
	return payment, nil
}

type sentAlert struct {
	SellerID uuid.UUID
	Kind     models.AlertKind
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []sentAlert
	err    error
	panics bool
}

func (n *recordingNotifier) SendAlert(_ context.Context, sellerID uuid.UUID, kind models.AlertKind) error {
	if n.panics {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, sentAlert{SellerID: sellerID, Kind: kind})
	return n.err
}

func (n *recordingNotifier) sent() []sentAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentAlert(nil), n.alerts...)
}

type panickingFulfiller struct{}

func (panickingFulfiller) Fulfill(context.Context, uuid.UUID) (*FulfillmentResult, error) {
	panic("fulfillment exploded")
}

type staticURLs struct {
	url string
	err error
}

func (s staticURLs) ResolveURL(context.Context, models.Deliverable) (string, error) {
	return s.url, s.err
}

func nullLogger() (*logrus.Logger, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func newTestFulfillment(db *gorm.DB, logger logrus.FieldLogger) *FulfillmentService {
	return NewFulfillmentService(db, DefaultAllocators(), staticURLs{}, logger)
}

func hasEntry(hook *logtest.Hook, level logrus.Level, message string) bool {
	for _, entry := range hook.AllEntries() {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}
