package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/testutil"
)

// Monday 2 March 2026, 09:00 UTC
var monday = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []NotificationMessage
}

func (n *recordingNotifier) Enqueue(msg NotificationMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.Template)
	}
	return out
}

type fakeStore struct {
	docs map[string]*DocumentInfo
}

func (f *fakeStore) Inspect(ctx context.Context, reference string) (*DocumentInfo, error) {
	info, ok := f.docs[reference]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return info, nil
}

type fakeFees struct {
	mu       sync.Mutex
	balances []FeeBalance
}

func (f *fakeFees) CollectBalance(balance FeeBalance) (*models.FeePayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = append(f.balances, balance)
	return &models.FeePayment{ValidationRequestID: balance.RequestID, Amount: balance.Amount}, nil
}

// fixture wires the lifecycle services against a private SQLite database with
// a clock the test controls.
type fixture struct {
	t        *testing.T
	db       *gorm.DB
	now      time.Time
	notifier *recordingNotifier
	store    *fakeStore
	fees     *fakeFees
	calc     *deadline.Calculator
	audit    *AuditService
	reviews  *ReviewService
	requests *RequestService
	cases    *CaseService
	officer  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:        t,
		db:       testutil.NewDB(t),
		now:      monday,
		notifier: &recordingNotifier{},
		store: &fakeStore{docs: map[string]*DocumentInfo{
			"plans/site-plan-v2.pdf": {Reference: "plans/site-plan-v2.pdf", ContentType: "application/pdf", Permitted: true},
			"plans/elevations.pdf":   {Reference: "plans/elevations.pdf", ContentType: "application/pdf", Permitted: true},
			"plans/notes.docx":       {Reference: "plans/notes.docx", ContentType: "application/msword", Permitted: false},
		}},
		fees: &fakeFees{},
	}
	clock := func() time.Time { return f.now }

	f.calc = deadline.NewCalculator(deadline.NewCalendar(time.UTC), 15).WithClock(clock)
	f.audit = NewAuditService(f.db)
	f.reviews = NewReviewService(f.db, f.audit).WithClock(clock)
	f.requests = NewRequestService(f.db, f.audit, f.calc, f.notifier).
		WithDocumentStore(f.store).
		WithFeeCollector(f.fees).
		WithReviews(f.reviews).
		WithClock(clock)
	f.cases = NewCaseService(f.db, f.audit, f.requests, f.notifier).WithClock(clock)

	f.officer = &models.User{Name: "Case Officer", Email: "officer@example.gov.uk", Role: models.UserRoleAssessor, Status: models.UserStatusActive}
	require.NoError(t, f.officer.SetPassword("Passw0rd!"))
	require.NoError(t, f.db.Create(f.officer).Error)
	return f
}

// application inserts a case directly so no audit entry is written for it.
func (f *fixture) application(status models.ApplicationStatus) *models.PlanningApplication {
	f.t.Helper()
	app := &models.PlanningApplication{
		Reference:         "26/00" + uuid.NewString()[:4] + "/FUL",
		Description:       "Single storey rear extension",
		Status:            status,
		Fee:               decimal.RequireFromString("258.00"),
		ApplicantEmail:    "applicant@example.com",
		AssignedOfficerID: &f.officer.ID,
	}
	require.NoError(f.t, f.db.Create(app).Error)
	return app
}

func (f *fixture) reload(app *models.PlanningApplication) *models.PlanningApplication {
	f.t.Helper()
	var out models.PlanningApplication
	require.NoError(f.t, f.db.First(&out, "id = ?", app.ID).Error)
	return &out
}

func (f *fixture) request(id uuid.UUID) *models.ValidationRequest {
	f.t.Helper()
	var out models.ValidationRequest
	require.NoError(f.t, f.db.Unscoped().First(&out, "id = ?", id).Error)
	return &out
}

func (f *fixture) auditTypes(app *models.PlanningApplication) []string {
	f.t.Helper()
	var logs []models.AuditLog
	require.NoError(f.t, f.db.Where("planning_application_id = ?", app.ID).Order("created_at ASC").Find(&logs).Error)
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.ActivityType)
	}
	return out
}

func (f *fixture) descriptionChange(app *models.PlanningApplication, description string) *models.ValidationRequest {
	f.t.Helper()
	req, err := f.requests.Create(context.Background(), app.ID, f.officer.ID, CreateRequestInput{
		Type:    models.RequestTypeDescriptionChange,
		Payload: map[string]interface{}{"proposed_description": description},
	})
	require.NoError(f.t, err)
	return req
}

func (f *fixture) ctx() context.Context {
	return context.Background()
}

func boolPtr(b bool) *bool {
	return &b
}
