// internal/services/case_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/workflow"
)

// Case events
const (
	EventInvalidate workflow.Event = "invalidate"
	EventValidate   workflow.Event = "validate"
	EventSubmit     workflow.Event = "submit"
	EventDetermine  workflow.Event = "determine"
	EventWithdraw   workflow.Event = "withdraw"
	EventReturn     workflow.Event = "return"
)

func caseStates(statuses ...models.ApplicationStatus) []workflow.State {
	states := make([]workflow.State, len(statuses))
	for i, s := range statuses {
		states[i] = workflow.State(s)
	}
	return states
}

// CaseMachine is the planning application status table.
var CaseMachine = workflow.NewMachine[*models.PlanningApplication]("planning_application",
	workflow.Accessor[*models.PlanningApplication]{
		Get: func(a *models.PlanningApplication) workflow.State { return workflow.State(a.Status) },
		Set: func(a *models.PlanningApplication, s workflow.State) { a.Status = models.ApplicationStatus(s) },
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventInvalidate,
		From:  caseStates(models.ApplicationStatusNotStarted),
		To:    workflow.State(models.ApplicationStatusInvalidated),
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventValidate,
		From:  caseStates(models.ApplicationStatusNotStarted, models.ApplicationStatusInvalidated),
		To:    workflow.State(models.ApplicationStatusInAssessment),
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventSubmit,
		From:  caseStates(models.ApplicationStatusInAssessment),
		To:    workflow.State(models.ApplicationStatusAwaitingDetermination),
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventDetermine,
		From:  caseStates(models.ApplicationStatusAwaitingDetermination),
		To:    workflow.State(models.ApplicationStatusDetermined),
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventWithdraw,
		From: caseStates(models.ApplicationStatusNotStarted, models.ApplicationStatusInvalidated,
			models.ApplicationStatusInAssessment, models.ApplicationStatusAwaitingDetermination),
		To: workflow.State(models.ApplicationStatusWithdrawn),
	},
	workflow.Transition[*models.PlanningApplication]{
		Event: EventReturn,
		From:  caseStates(models.ApplicationStatusNotStarted, models.ApplicationStatusInvalidated),
		To:    workflow.State(models.ApplicationStatusReturned),
	},
)

type CreateApplicationInput struct {
	Reference         string                 `json:"reference" validate:"required,max=50"`
	Description       string                 `json:"description" validate:"required"`
	ApplicantEmail    string                 `json:"applicant_email" validate:"omitempty,email"`
	AgentEmail        string                 `json:"agent_email" validate:"omitempty,email"`
	Fee               decimal.Decimal        `json:"fee"`
	BoundaryGeojson   map[string]interface{} `json:"boundary_geojson,omitempty"`
	ExpiryDate        *time.Time             `json:"expiry_date,omitempty"`
	AssignedOfficerID *uuid.UUID             `json:"assigned_officer_id,omitempty"`
}

type DetermineInput struct {
	Decision string `json:"decision" validate:"required,oneof=granted refused"`
}

type CloseCaseInput struct {
	Reason string `json:"reason" validate:"required"`
}

// CaseService creates planning applications and moves them through their statuses.
type CaseService struct {
	db       *gorm.DB
	audit    *AuditService
	requests *RequestService
	notifier Notifier
	now      func() time.Time
}

func NewCaseService(db *gorm.DB, audit *AuditService, requests *RequestService, notifier Notifier) *CaseService {
	return &CaseService{db: db, audit: audit, requests: requests, notifier: notifier, now: time.Now}
}

func (s *CaseService) WithClock(now func() time.Time) *CaseService {
	s.now = now
	return s
}

func (s *CaseService) Create(actorID uuid.UUID, in CreateApplicationInput) (*models.PlanningApplication, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	if in.Fee.IsNegative() {
		return nil, fieldError("fee", "min", "fee cannot be negative")
	}

	app := &models.PlanningApplication{
		Reference:         strings.TrimSpace(in.Reference),
		Description:       strings.TrimSpace(in.Description),
		Status:            models.ApplicationStatusNotStarted,
		BoundaryGeojson:   models.JSONB(in.BoundaryGeojson),
		Fee:               in.Fee,
		ExpiryDate:        in.ExpiryDate,
		AssignedOfficerID: in.AssignedOfficerID,
		ApplicantEmail:    in.ApplicantEmail,
		AgentEmail:        in.AgentEmail,
	}

	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PlanningApplication{}).Where("reference = ?", app.Reference).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ConflictError{Message: fmt.Sprintf("planning application %s already exists", app.Reference)}
		}
		if err := tx.Create(app).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ConflictError{Message: fmt.Sprintf("planning application %s already exists", app.Reference)}
			}
			return fmt.Errorf("failed to create planning application: %w", err)
		}
		return s.audit.Emit(tx, AuditEntry{
			ApplicationID: app.ID,
			ActivityType:  "application_created",
			Comment:       app.Reference,
			ActorID:       actorRef(actorID),
			ResourceType:  "planning_application",
			ResourceID:    &app.ID,
		})
	})
	if err != nil {
		return nil, classify("create planning application", err)
	}
	return app, nil
}

func (s *CaseService) Get(id uuid.UUID) (*models.PlanningApplication, error) {
	var app models.PlanningApplication
	if err := s.db.Preload("AssignedOfficer").First(&app, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch planning application: %w", err)
	}
	return &app, nil
}

// Invalidate marks the application invalid and sends every pending request to
// the applicant in the same transaction.
func (s *CaseService) Invalidate(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
	return s.transition(ctx, id, actorID, EventInvalidate, "", func(rc *requestContext) error {
		rc.app.InvalidatedAt = &rc.now
		return s.requests.sendPending(rc)
	})
}

// Validate moves the application into assessment. Requests still open block it.
func (s *CaseService) Validate(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
	return s.transition(ctx, id, actorID, EventValidate, "", func(rc *requestContext) error {
		var open []models.ValidationRequest
		if err := rc.tx.Where("planning_application_id = ? AND state = ?", rc.app.ID, models.RequestStateOpen).
			Order("created_at ASC").Limit(1).Find(&open).Error; err != nil {
			return fmt.Errorf("failed to check open requests: %w", err)
		}
		if len(open) > 0 {
			metricsSingleton().conflicts.WithLabelValues("validate").Inc()
			return &ConflictError{Message: fmt.Sprintf("%s is still open; close or cancel it before validating", open[0].DisplayName())}
		}
		rc.app.ValidatedAt = &rc.now
		return nil
	})
}

func (s *CaseService) Submit(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
	return s.transition(ctx, id, actorID, EventSubmit, "", nil)
}

func (s *CaseService) Determine(ctx context.Context, id, actorID uuid.UUID, in DetermineInput) (*models.PlanningApplication, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actorID, EventDetermine, in.Decision, func(rc *requestContext) error {
		rc.app.Decision = in.Decision
		rc.app.DeterminedAt = &rc.now
		return nil
	})
}

// Withdraw closes the application at the applicant's request and cancels any
// request still waiting on them.
func (s *CaseService) Withdraw(ctx context.Context, id, actorID uuid.UUID, in CloseCaseInput) (*models.PlanningApplication, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actorID, EventWithdraw, in.Reason, func(rc *requestContext) error {
		rc.app.WithdrawnAt = &rc.now
		return s.cancelLive(rc, "Application withdrawn: "+in.Reason)
	})
}

// Return sends an invalid application back to the applicant and cancels any
// request still waiting on them.
func (s *CaseService) Return(ctx context.Context, id, actorID uuid.UUID, in CloseCaseInput) (*models.PlanningApplication, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, actorID, EventReturn, in.Reason, func(rc *requestContext) error {
		return s.cancelLive(rc, "Application returned: "+in.Reason)
	})
}

func (s *CaseService) cancelLive(rc *requestContext, reason string) error {
	var live []models.ValidationRequest
	err := rc.tx.Where("planning_application_id = ? AND state IN ?", rc.app.ID,
		[]models.RequestState{models.RequestStatePending, models.RequestStateOpen}).
		Find(&live).Error
	if err != nil {
		return fmt.Errorf("failed to fetch live requests: %w", err)
	}
	for i := range live {
		req := &live[i]
		if err := RequestMachine.Fire(req, EventCancel); err != nil {
			return err
		}
		req.CancelReason = reason
		req.CancelledAt = &rc.now
		if err := rc.tx.Save(req).Error; err != nil {
			return fmt.Errorf("failed to cancel %s: %w", req.DisplayName(), err)
		}
		if err := s.requests.emit(rc, req, "cancelled", reason, EventCancel); err != nil {
			return err
		}
	}
	return nil
}

func (s *CaseService) transition(ctx context.Context, id, actorID uuid.UUID, event workflow.Event, info string,
	effect func(rc *requestContext) error) (*models.PlanningApplication, error) {

	var rc *requestContext
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		app, err := lockApplication(tx, id)
		if err != nil {
			return err
		}
		rc = s.requests.newContext(ctx, tx, app, actorID)
		rc.now = s.now()

		if err := CaseMachine.Fire(app, event); err != nil {
			return err
		}
		if effect != nil {
			if err := effect(rc); err != nil {
				return err
			}
		}
		if err := rc.saveApplication(); err != nil {
			return err
		}

		return s.audit.Emit(tx, AuditEntry{
			ApplicationID: app.ID,
			ActivityType:  "application_" + string(app.Status),
			Info:          info,
			ActorID:       actorRef(actorID),
			ResourceType:  "planning_application",
			ResourceID:    &app.ID,
		})
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("%s planning application", event), err)
	}

	s.requests.committed(rc)
	metricsSingleton().transitions.WithLabelValues(CaseMachine.Name(), "planning_application", string(event)).Inc()
	if s.notifier != nil {
		s.notifier.Enqueue(NotificationMessage{
			ApplicationID: rc.app.ID,
			Recipient:     rc.app.Contact(),
			Template:      TemplateApplicationStatus,
			Data: map[string]interface{}{
				"Reference": rc.app.Reference,
				"Status":    strings.ReplaceAll(string(rc.app.Status), "_", " "),
			},
		})
	}
	return rc.app, nil
}
