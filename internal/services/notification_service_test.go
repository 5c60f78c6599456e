package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localgov/planning-backoffice/internal/config"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/testutil"
)

type sentEmail struct {
	to, subject, body string
}

type outbox struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (o *outbox) send(to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func notificationConfig(queue int) *config.Config {
	return &config.Config{
		Frontend: config.FrontendConfig{BaseURL: "https://planning.example.gov.uk"},
		Workflow: config.WorkflowConfig{NotificationWorkers: 2, NotificationQueue: queue},
	}
}

func TestDeliverRendersAndRecords(t *testing.T) {
	db := testutil.NewDB(t)
	box := &outbox{}
	svc := NewNotificationService(db, notificationConfig(10)).WithSender(box.send)

	appID := uuid.New()
	err := svc.Deliver(context.Background(), NotificationMessage{
		ApplicationID: appID,
		Recipient:     "applicant@example.com",
		Template:      TemplateRequestSent,
		Data: map[string]interface{}{
			"Reference":   "26/00123/FUL",
			"RequestName": "Description change #1",
			"ResponseDue": "9 March 2026",
		},
	})
	require.NoError(t, err)

	require.Len(t, box.sent, 1)
	assert.Equal(t, "Action needed on planning application 26/00123/FUL", box.sent[0].subject)
	assert.Contains(t, box.sent[0].body, "please respond by 9 March 2026")
	assert.Contains(t, box.sent[0].body, "https://planning.example.gov.uk/applications/"+appID.String())

	var record models.Notification
	require.NoError(t, db.First(&record, "planning_application_id = ?", appID).Error)
	assert.Equal(t, models.NotificationStatusSent, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.NotNil(t, record.SentAt)
}

func TestDeliverRecordsPermanentFailure(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewNotificationService(db, notificationConfig(10)).WithSender(func(to, subject, body string) error {
		return backoff.Permanent(errors.New("mailbox unavailable"))
	})

	appID := uuid.New()
	err := svc.Deliver(context.Background(), NotificationMessage{
		ApplicationID: appID,
		Recipient:     "applicant@example.com",
		Template:      TemplateApplicationStatus,
		Data:          map[string]interface{}{"Reference": "26/00123/FUL", "Status": "invalidated"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox unavailable")

	var record models.Notification
	require.NoError(t, db.First(&record, "planning_application_id = ?", appID).Error)
	assert.Equal(t, models.NotificationStatusFailed, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Contains(t, record.LastError, "mailbox unavailable")
}

func TestWorkersDrainQueueOnStop(t *testing.T) {
	db := testutil.NewDB(t)
	box := &outbox{}
	svc := NewNotificationService(db, notificationConfig(10)).WithSender(box.send)

	svc.Start(context.Background())
	for i := 0; i < 3; i++ {
		svc.Enqueue(NotificationMessage{
			ApplicationID: uuid.New(),
			Recipient:     "applicant@example.com",
			Template:      TemplateApplicationStatus,
			Data:          map[string]interface{}{"Reference": "26/00123/FUL", "Status": "withdrawn"},
		})
	}
	svc.Enqueue(NotificationMessage{ApplicationID: uuid.New(), Template: TemplateApplicationStatus})
	svc.Stop()

	assert.Len(t, box.sent, 3)
	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	svc := NewNotificationService(testutil.NewDB(t), notificationConfig(1))
	dropped := metricsSingleton().notifications.WithLabelValues(TemplateRequestCancelled, "dropped")
	before := promtest.ToFloat64(dropped)

	msg := NotificationMessage{ApplicationID: uuid.New(), Recipient: "agent@example.com", Template: TemplateRequestCancelled}
	svc.Enqueue(msg)
	svc.Enqueue(msg)

	assert.Equal(t, before+1, promtest.ToFloat64(dropped))
	assert.Len(t, svc.queue, 1)
}
