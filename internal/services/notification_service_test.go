// internal/services/notification_service_test.go
package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/digistore/internal/config"
	"github.com/javajoker/digistore/internal/models"
	"github.com/javajoker/digistore/internal/testutil"
)

func TestSendAlertStoresNotification(t *testing.T) {
	db := testutil.NewDB(t)
	logger, _ := nullLogger()
	store := testutil.NewStore(t, db, "token")
	service := NewNotificationService(db, config.EmailConfig{}, logger)

	require.NoError(t, service.SendAlert(context.Background(), store.SellerID, models.AlertKindChargeback))

	var notifications []models.SellerNotification
	require.NoError(t, db.Where("seller_id = ?", store.SellerID).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.AlertKindChargeback, notifications[0].Kind)
	assert.False(t, notifications[0].Emailed)
}

func TestSendAlertUnknownSeller(t *testing.T) {
	db := testutil.NewDB(t)
	logger, _ := nullLogger()

	err := NewNotificationService(db, config.EmailConfig{}, logger).SendAlert(context.Background(), uuid.New(), models.AlertKindApproved)
	assert.Error(t, err)
}

func TestEmailTemplates(t *testing.T) {
	service := &NotificationService{}

	for _, kind := range []models.AlertKind{models.AlertKindApproved, models.AlertKindChargeback, "unknown"} {
		tmpl := service.getEmailTemplate(kind)
		body, err := service.renderTemplate(tmpl.Body, map[string]interface{}{"SellerName": "Ana <script>"})
		require.NoError(t, err)
		assert.NotEmpty(t, tmpl.Subject)
		assert.Contains(t, body, "Ana &lt;script&gt;")
	}
}

func TestDispatcherDeliversInBackground(t *testing.T) {
	notifier := &recordingNotifier{}
	logger, _ := nullLogger()
	dispatcher := NewNotificationDispatcher(notifier, time.Second, logger)
	sellerID := uuid.New()

	dispatcher.Dispatch(sellerID, models.AlertKindApproved)
	dispatcher.Dispatch(sellerID, models.AlertKindChargeback)
	dispatcher.Wait()

	assert.ElementsMatch(t, []sentAlert{
		{SellerID: sellerID, Kind: models.AlertKindApproved},
		{SellerID: sellerID, Kind: models.AlertKindChargeback},
	}, notifier.sent())
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		logger, hook := nullLogger()
		dispatcher := NewNotificationDispatcher(&recordingNotifier{err: errors.New("smtp down")}, time.Second, logger)

		dispatcher.Dispatch(uuid.New(), models.AlertKindApproved)
		dispatcher.Wait()

		assert.True(t, hasEntry(hook, logrus.WarnLevel, "Failed to send seller alert"))
	})

	t.Run("panic", func(t *testing.T) {
		logger, hook := nullLogger()
		dispatcher := NewNotificationDispatcher(&recordingNotifier{panics: true}, time.Second, logger)

		dispatcher.Dispatch(uuid.New(), models.AlertKindApproved)
		dispatcher.Wait()

		assert.True(t, hasEntry(hook, logrus.ErrorLevel, "Seller alert panicked"))
	})
}
