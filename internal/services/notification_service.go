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

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/models"
)

// Notification templates
const (
	TemplateRequestSent       = "request_sent"
	TemplateRequestReceived   = "request_received"
	TemplateRequestAutoClosed = "request_auto_closed"
	TemplateRequestCancelled  = "request_cancelled"
	TemplateApplicationStatus = "application_status"
)

// NotificationMessage is queued after a transition has committed.
type NotificationMessage struct {
	ApplicationID uuid.UUID
	RequestID     *uuid.UUID
	Recipient     string
	Template      string
	Data          map[string]interface{}
}

// Notifier accepts messages for delivery outside the caller's transaction.
type Notifier interface {
	Enqueue(msg NotificationMessage)
}

type EmailTemplate struct {
	Subject string
	Body    string
}

// Sender delivers one rendered email.
type Sender func(to, subject, body string) error

// NotificationService queues messages and delivers them on background workers.
// A failed delivery is retried with exponential backoff and then recorded as
// failed; it never affects the state change that triggered it.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
	send   Sender
	queue  chan NotificationMessage
	wg     sync.WaitGroup
	once   sync.Once
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	size := config.Workflow.NotificationQueue
	if size < 1 {
		size = 1
	}
	s := &NotificationService{
		db:     db,
		config: config,
		queue:  make(chan NotificationMessage, size),
	}
	s.send = s.sendEmail
	return s
}

// WithSender replaces SMTP delivery.
func (s *NotificationService) WithSender(send Sender) *NotificationService {
	s.send = send
	return s
}

// Start runs the delivery workers until ctx is cancelled or Stop is called.
func (s *NotificationService) Start(ctx context.Context) {
	workers := s.config.Workflow.NotificationWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-s.queue:
					if !ok {
						return
					}
					if err := s.Deliver(ctx, msg); err != nil {
						logrus.WithError(err).WithFields(logrus.Fields{
							"template":       msg.Template,
							"application_id": msg.ApplicationID,
						}).Error("Failed to deliver notification")
					}
				}
			}
		}()
	}
}

// Stop drains the queue and waits for the workers.
func (s *NotificationService) Stop() {
	s.once.Do(func() { close(s.queue) })
	s.wg.Wait()
}

func (s *NotificationService) Enqueue(msg NotificationMessage) {
	if msg.Recipient == "" {
		return
	}
	select {
	case s.queue <- msg:
	default:
		logrus.WithFields(logrus.Fields{
			"template":       msg.Template,
			"application_id": msg.ApplicationID,
		}).Warn("Notification queue full, dropping message")
		metricsSingleton().notifications.WithLabelValues(msg.Template, "dropped").Inc()
	}
}

// Deliver renders and sends one message, recording the outcome.
func (s *NotificationService) Deliver(ctx context.Context, msg NotificationMessage) error {
	tmpl := s.getEmailTemplate(msg.Template)

	data := map[string]interface{}{
		"ApplicationURL": fmt.Sprintf("%s/applications/%s", s.config.Frontend.BaseURL, msg.ApplicationID),
	}
	for k, v := range msg.Data {
		data[k] = v
	}

	subject, err := s.renderTemplate(tmpl.Subject, data)
	if err != nil {
		return fmt.Errorf("failed to render email subject: %w", err)
	}
	body, err := s.renderTemplate(tmpl.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	record := &models.Notification{
		PlanningApplicationID: msg.ApplicationID,
		ValidationRequestID:   msg.RequestID,
		Recipient:             msg.Recipient,
		Template:              msg.Template,
		Subject:               subject,
		Status:                models.NotificationStatusQueued,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	sendErr := backoff.Retry(func() error {
		record.Attempts++
		return s.send(msg.Recipient, subject, body)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 4), ctx))

	if sendErr != nil {
		record.Status = models.NotificationStatusFailed
		record.LastError = sendErr.Error()
		metricsSingleton().notifications.WithLabelValues(msg.Template, "failed").Inc()
	} else {
		now := time.Now()
		record.Status = models.NotificationStatusSent
		record.SentAt = &now
		metricsSingleton().notifications.WithLabelValues(msg.Template, "sent").Inc()
	}

	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return sendErr
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		// Email not configured, just log
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Info("Email would be sent")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
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

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		TemplateRequestSent: {
			Subject: "Action needed on planning application {{.Reference}}",
			Body: `
<p>We need more information about planning application {{.Reference}}.</p>
<p>{{.RequestName}}: please respond by {{.ResponseDue}}.</p>
<p><a href="{{.ApplicationURL}}">View the request</a></p>`,
		},
		TemplateRequestReceived: {
			Subject: "Response received for {{.Reference}}",
			Body: `
<p>The applicant has responded to {{.RequestName}} on {{.Reference}}.</p>
<p><a href="{{.ApplicationURL}}">Review the response</a></p>`,
		},
		TemplateRequestAutoClosed: {
			Subject: "{{.RequestName}} on {{.Reference}} has been accepted",
			Body: `
<p>No response was received by the deadline, so {{.RequestName}} on {{.Reference}} has been accepted.</p>`,
		},
		TemplateRequestCancelled: {
			Subject: "{{.RequestName}} on {{.Reference}} has been cancelled",
			Body: `
<p>{{.RequestName}} on {{.Reference}} is no longer needed.</p>
<p>Reason: {{.Reason}}</p>`,
		},
		TemplateApplicationStatus: {
			Subject: "Planning application {{.Reference}} is now {{.Status}}",
			Body: `
<p>Planning application {{.Reference}} is now {{.Status}}.</p>
<p><a href="{{.ApplicationURL}}">View the application</a></p>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Planning application update",
		Body:    "<p>{{.Message}}</p>",
	}
}
