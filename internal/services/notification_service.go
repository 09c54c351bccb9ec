// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/config"
	"github.com/javajoker/digistore/internal/models"
)

// Notifier alerts a seller that something happened. Only the kind of event
// is transmitted, never order details.
type Notifier interface {
	SendAlert(ctx context.Context, sellerID uuid.UUID, kind models.AlertKind) error
}

type NotificationService struct {
	db     *gorm.DB
	email  config.EmailConfig
	logger logrus.FieldLogger
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, email config.EmailConfig, logger logrus.FieldLogger) *NotificationService {
	return &NotificationService{
		db:     db,
		email:  email,
		logger: logger,
	}
}

// SendAlert stores an in-app notification and, when SMTP is configured,
// emails the seller.
func (s *NotificationService) SendAlert(ctx context.Context, sellerID uuid.UUID, kind models.AlertKind) error {
	db := s.db.WithContext(ctx)

	var seller models.Seller
	if err := db.First(&seller, "id = ?", sellerID).Error; err != nil {
		return fmt.Errorf("seller not found: %w", err)
	}

	notification := &models.SellerNotification{
		SellerID: sellerID,
		Kind:     kind,
	}
	if err := db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if s.email.SMTPHost == "" || seller.Email == "" {
		return nil
	}

	tmpl := s.getEmailTemplate(kind)
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"SellerName": seller.Name,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	if err := s.sendEmail(seller.Email, tmpl.Subject, body); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	return db.Model(notification).Update("emailed", true).Error
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	auth := smtp.PlainAuth("", s.email.SMTPUsername, s.email.SMTPPassword, s.email.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.email.FromName, s.email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.email.SMTPHost, s.email.SMTPPort)
	return smtp.SendMail(addr, auth, s.email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(kind models.AlertKind) EmailTemplate {
	templates := map[models.AlertKind]EmailTemplate{
		models.AlertKindApproved: {
			Subject: "New sale approved",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.SellerName}},</h2>
	<p>A payment in your store was approved and the order is being delivered.</p>
	<p>Open your dashboard for details.</p>
</body>
</html>`,
		},
		models.AlertKindChargeback: {
			Subject: "Chargeback received",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.SellerName}},</h2>
	<p>A customer disputed a payment in your store and the order was refunded.</p>
	<p>Open your dashboard for details.</p>
</body>
</html>`,
		},
	}

	if tmpl, exists := templates[kind]; exists {
		return tmpl
	}

	return EmailTemplate{
		Subject: "Store notification",
		Body:    "<p>Hello {{.SellerName}}, there is news about your store.</p>",
	}
}

// NotificationDispatcher sends alerts in the background. Dispatch never
// blocks the caller and alert failures are only logged.
type NotificationDispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   logrus.FieldLogger
	wg       sync.WaitGroup
}

func NewNotificationDispatcher(notifier Notifier, timeout time.Duration, logger logrus.FieldLogger) *NotificationDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NotificationDispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

func (d *NotificationDispatcher) Dispatch(sellerID uuid.UUID, kind models.AlertKind) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		logger := d.logger.WithFields(logrus.Fields{
			"seller_id": sellerID,
			"kind":      kind,
		})
		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", r).Error("Seller alert panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.SendAlert(ctx, sellerID, kind); err != nil {
			logger.WithError(err).Warn("Failed to send seller alert")
			return
		}
		logger.Debug("Seller alert sent")
	}()
}

// Wait blocks until every dispatched alert has finished.
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}
