// internal/services/request_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/localgov/planning-backoffice/internal/database"
	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/workflow"
)

// Request events
const (
	EventSend        workflow.Event = "send"
	EventRespond     workflow.Event = "respond"
	EventAutoApprove workflow.Event = "auto_approve"
	EventCancel      workflow.Event = "cancel"
)

// RequestMachine is the lifecycle every request type shares.
var RequestMachine = workflow.NewMachine[*models.ValidationRequest]("validation_request",
	workflow.Accessor[*models.ValidationRequest]{
		Get: func(r *models.ValidationRequest) workflow.State { return workflow.State(r.State) },
		Set: func(r *models.ValidationRequest, s workflow.State) { r.State = models.RequestState(s) },
	},
	workflow.Transition[*models.ValidationRequest]{
		Event: EventSend,
		From:  []workflow.State{workflow.State(models.RequestStatePending)},
		To:    workflow.State(models.RequestStateOpen),
	},
	workflow.Transition[*models.ValidationRequest]{
		Event: EventRespond,
		From:  []workflow.State{workflow.State(models.RequestStateOpen)},
		To:    workflow.State(models.RequestStateClosed),
	},
	workflow.Transition[*models.ValidationRequest]{
		Event: EventAutoApprove,
		From:  []workflow.State{workflow.State(models.RequestStateOpen)},
		To:    workflow.State(models.RequestStateClosed),
	},
	workflow.Transition[*models.ValidationRequest]{
		Event: EventCancel,
		From:  []workflow.State{workflow.State(models.RequestStatePending), workflow.State(models.RequestStateOpen)},
		To:    workflow.State(models.RequestStateCancelled),
	},
)

type CreateRequestInput struct {
	Type         models.RequestType     `json:"type" validate:"required"`
	Payload      map[string]interface{} `json:"payload"`
	ResponseDays int                    `json:"response_days,omitempty" validate:"omitempty,min=1,max=60"`
}

type RespondInput struct {
	Approved        *bool                  `json:"approved" validate:"required"`
	RejectionReason string                 `json:"rejection_reason,omitempty"`
	Response        map[string]interface{} `json:"response,omitempty"`
}

// RequestService runs the validation request lifecycle. Every operation locks
// the case and the request, checks the persisted state, writes the new state,
// applies the type's side effect and records the audit entry in one transaction.
// Notifications and fee collection are handed off after commit.
type RequestService struct {
	db         *gorm.DB
	audit      *AuditService
	calculator *deadline.Calculator
	notifier   Notifier
	store      DocumentStore
	fees       FeeCollector
	reviews    *ReviewService
	now        func() time.Time
}

func NewRequestService(db *gorm.DB, audit *AuditService, calculator *deadline.Calculator, notifier Notifier) *RequestService {
	return &RequestService{
		db:         db,
		audit:      audit,
		calculator: calculator,
		notifier:   notifier,
		now:        time.Now,
	}
}

func (s *RequestService) WithDocumentStore(store DocumentStore) *RequestService {
	s.store = store
	return s
}

func (s *RequestService) WithFeeCollector(fees FeeCollector) *RequestService {
	s.fees = fees
	return s
}

func (s *RequestService) WithReviews(reviews *ReviewService) *RequestService {
	s.reviews = reviews
	return s
}

func (s *RequestService) WithClock(now func() time.Time) *RequestService {
	s.now = now
	return s
}

// Capabilities describes what a request type supports.
type Capabilities struct {
	Type           models.RequestType `json:"type"`
	Exclusive      bool               `json:"exclusive"`
	AutoApprovable bool               `json:"auto_approvable"`
	ResponseDays   int                `json:"response_days"`
	Rejectable     bool               `json:"rejectable"`
	ReasonRequired bool               `json:"reason_required"`
}

func RequestCapabilities(t models.RequestType) (Capabilities, bool) {
	kind, ok := requestKinds[t]
	if !ok {
		return Capabilities{}, false
	}
	return Capabilities{
		Type:           t,
		Exclusive:      kind.exclusive,
		AutoApprovable: kind.autoApprovable,
		ResponseDays:   kind.responseDays,
		Rejectable:     kind.rejectable,
		ReasonRequired: kind.reasonRequired,
	}, true
}

func (s *RequestService) Get(requestID uuid.UUID) (*models.ValidationRequest, error) {
	var req models.ValidationRequest
	if err := s.db.First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch validation request: %w", err)
	}
	return &req, nil
}

// Create raises a new request in pending. On a case that has already been
// validated the request is sent straight away.
func (s *RequestService) Create(ctx context.Context, applicationID, actorID uuid.UUID, in CreateRequestInput) (*models.ValidationRequest, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	kind, err := lookupKind(in.Type)
	if err != nil {
		return nil, err
	}

	var req *models.ValidationRequest
	var rc *requestContext
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		app, err := lockApplication(tx, applicationID)
		if err != nil {
			return err
		}
		if app.Closed() {
			return &ConflictError{
				Message: fmt.Sprintf("planning application %s is %s and cannot take new requests", app.Reference, app.Status),
			}
		}

		rc = s.newContext(ctx, tx, app, actorID)
		payload, scope, err := kind.prepare(rc, models.JSONB(in.Payload))
		if err != nil {
			return err
		}

		if kind.exclusive {
			if err := ensureSingleOpen(tx, app.ID, in.Type, scope); err != nil {
				return err
			}
		}

		sequence, err := nextSequence(tx, app.ID, in.Type)
		if err != nil {
			return err
		}

		days := in.ResponseDays
		if days == 0 {
			days = kind.responseDays
		}

		req = &models.ValidationRequest{
			PlanningApplicationID: app.ID,
			UserID:                actorID,
			Type:                  in.Type,
			Sequence:              sequence,
			State:                 models.RequestStatePending,
			ScopeKey:              scope,
			Exclusive:             kind.exclusive,
			ResponseDays:          days,
			Payload:               payload,
		}
		req.CreatedAt = rc.now
		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				metricsSingleton().conflicts.WithLabelValues(string(in.Type)).Inc()
				return &ConflictError{Message: fmt.Sprintf("another %s request is already in progress", strings.ReplaceAll(string(in.Type), "_", " "))}
			}
			return fmt.Errorf("failed to create validation request: %w", err)
		}

		if err := supersedePrevious(tx, req); err != nil {
			return err
		}

		if app.SendsRequestsOnCreate() {
			return s.send(rc, req)
		}
		return nil
	})
	if err != nil {
		return nil, classify("create validation request", err)
	}

	s.committed(rc)
	return req, nil
}

// MarkSent opens a pending request and lets the applicant know about it.
func (s *RequestService) MarkSent(ctx context.Context, requestID, actorID uuid.UUID) (*models.ValidationRequest, error) {
	return s.transition(ctx, requestID, actorID, "send validation request", func(rc *requestContext, req *models.ValidationRequest) error {
		return s.send(rc, req)
	})
}

// Respond records the applicant's answer. Approval applies the type's side
// effect; rejection applies nothing and keeps the reason.
func (s *RequestService) Respond(ctx context.Context, requestID, actorID uuid.UUID, in RespondInput) (*models.ValidationRequest, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}

	return s.transition(ctx, requestID, actorID, "respond to validation request", func(rc *requestContext, req *models.ValidationRequest) error {
		kind, err := lookupKind(req.Type)
		if err != nil {
			return err
		}
		if err := RequestMachine.Fire(req, EventRespond); err != nil {
			return err
		}

		approved := *in.Approved
		reason := strings.TrimSpace(in.RejectionReason)
		if !approved {
			if !kind.rejectable {
				return fieldError("approved", "rejectable", fmt.Sprintf("%s cannot be rejected", req.DisplayName()))
			}
			if kind.reasonRequired && reason == "" {
				return fieldError("rejection_reason", "required", "rejection_reason is required when rejecting")
			}
		}

		req.Approved = &approved
		req.Response = models.JSONB(in.Response)
		if !approved {
			req.RejectionReason = reason
		}
		if kind.checkResponse != nil {
			if err := kind.checkResponse(rc, req); err != nil {
				return err
			}
		}
		if approved {
			if err := kind.approve(rc, req); err != nil {
				return err
			}
		}

		req.ClosedAt = &rc.now
		req.UpdateCounter = true
		if err := rc.tx.Save(req).Error; err != nil {
			return fmt.Errorf("failed to save validation request: %w", err)
		}

		if err := s.emit(rc, req, "received", reason, EventRespond); err != nil {
			return err
		}
		s.notifyOfficer(rc, req, TemplateRequestReceived, nil)
		return nil
	})
}

// AutoApprove accepts an open request on the applicant's behalf. It does nothing
// when the request is already closed; changed reports whether this call closed it.
func (s *RequestService) AutoApprove(ctx context.Context, requestID uuid.UUID) (req *models.ValidationRequest, changed bool, err error) {
	req, err = s.transition(ctx, requestID, uuid.Nil, "auto-approve validation request", func(rc *requestContext, req *models.ValidationRequest) error {
		kind, err := lookupKind(req.Type)
		if err != nil {
			return err
		}
		if !kind.autoApprovable {
			metricsSingleton().autoApprovals.WithLabelValues(string(req.Type), "unsupported").Inc()
			return &InvalidTransitionError{Machine: RequestMachine.Name(), Event: EventAutoApprove, From: workflow.State(req.State)}
		}
		if req.State == models.RequestStateClosed {
			metricsSingleton().autoApprovals.WithLabelValues(string(req.Type), "noop").Inc()
			return nil
		}
		if err := RequestMachine.Fire(req, EventAutoApprove); err != nil {
			return err
		}

		if err := kind.autoApprove(rc, req); err != nil {
			return err
		}

		approved := true
		req.Approved = &approved
		req.AutoClosed = true
		req.ClosedAt = &rc.now
		req.UpdateCounter = true
		if err := rc.tx.Save(req).Error; err != nil {
			return fmt.Errorf("failed to save validation request: %w", err)
		}

		if err := s.emit(rc, req, "auto_closed", "", EventAutoApprove); err != nil {
			return err
		}
		metricsSingleton().autoApprovals.WithLabelValues(string(req.Type), "approved").Inc()
		s.notifyApplicant(rc, req, TemplateRequestAutoClosed, nil)
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return req, changed, nil
}

// Cancel withdraws a pending or open request. A blank reason is rejected before
// anything is read.
func (s *RequestService) Cancel(ctx context.Context, requestID, actorID uuid.UUID, reason string) (*models.ValidationRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fieldError("cancel_reason", "required", "cancel_reason is required")
	}

	return s.transition(ctx, requestID, actorID, "cancel validation request", func(rc *requestContext, req *models.ValidationRequest) error {
		wasOpen := req.State == models.RequestStateOpen
		if err := RequestMachine.Fire(req, EventCancel); err != nil {
			return err
		}

		req.CancelReason = reason
		req.CancelledAt = &rc.now
		if err := rc.tx.Save(req).Error; err != nil {
			return fmt.Errorf("failed to save validation request: %w", err)
		}

		if err := reactivatePrevious(rc.tx, req); err != nil {
			return err
		}

		if err := s.emit(rc, req, "cancelled", reason, EventCancel); err != nil {
			return err
		}
		if wasOpen {
			s.notifyApplicant(rc, req, TemplateRequestCancelled, map[string]interface{}{"Reason": reason})
		}
		return nil
	})
}

// Destroy soft-deletes a request that has not been sent yet. Its sequence number
// stays taken.
func (s *RequestService) Destroy(ctx context.Context, requestID, actorID uuid.UUID) error {
	_, err := s.transition(ctx, requestID, actorID, "delete validation request", func(rc *requestContext, req *models.ValidationRequest) error {
		if req.State != models.RequestStatePending {
			err := &NotDestroyableError{Resource: req.DisplayName(), State: string(req.State)}
			logrus.WithFields(logrus.Fields{
				"validation_request_id": req.ID,
				"state":                 req.State,
			}).Warn(err.Error())
			return err
		}

		if err := rc.tx.Delete(req).Error; err != nil {
			return fmt.Errorf("failed to delete validation request: %w", err)
		}
		return s.emit(rc, req, "deleted", "", "")
	})
	return err
}

// sendPending opens every pending request on the case inside the caller's
// transaction. Used when the case is invalidated.
func (s *RequestService) sendPending(rc *requestContext) error {
	var pending []models.ValidationRequest
	err := rc.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("planning_application_id = ? AND state = ?", rc.app.ID, models.RequestStatePending).
		Order("created_at ASC, sequence ASC").
		Find(&pending).Error
	if err != nil {
		return fmt.Errorf("failed to fetch pending requests: %w", err)
	}
	for i := range pending {
		if err := s.send(rc, &pending[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *RequestService) send(rc *requestContext, req *models.ValidationRequest) error {
	if err := RequestMachine.Fire(req, EventSend); err != nil {
		return err
	}
	req.NotifiedAt = &rc.now
	if err := rc.tx.Save(req).Error; err != nil {
		return fmt.Errorf("failed to save validation request: %w", err)
	}
	if err := s.emit(rc, req, "sent", "", EventSend); err != nil {
		return err
	}

	due := s.calculator.ResponseDue(req.CreatedAt, req.ResponseDays)
	s.notifyApplicant(rc, req, TemplateRequestSent, map[string]interface{}{
		"ResponseDue": due.Format("2 January 2006"),
	})
	return nil
}

// transition loads and locks the case and then the request, runs fn and
// commits. Locks are always taken case first.
func (s *RequestService) transition(ctx context.Context, requestID, actorID uuid.UUID, op string,
	fn func(rc *requestContext, req *models.ValidationRequest) error) (*models.ValidationRequest, error) {

	var req models.ValidationRequest
	if err := s.db.Select("id", "planning_application_id").First(&req, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, classify(op, err)
	}

	var rc *requestContext
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		app, err := lockApplication(tx, req.PlanningApplicationID)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		rc = s.newContext(ctx, tx, app, actorID)
		return fn(rc, &req)
	})
	if err != nil {
		return nil, classify(op, err)
	}

	s.committed(rc)
	return &req, nil
}

func (s *RequestService) newContext(ctx context.Context, tx *gorm.DB, app *models.PlanningApplication, actorID uuid.UUID) *requestContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &requestContext{ctx: ctx, tx: tx, app: app, actorID: actorID, now: s.now(), svc: s}
}

// committed runs the post-commit hooks.
func (s *RequestService) committed(rc *requestContext) {
	if rc == nil {
		return
	}
	for _, fn := range rc.onCommit {
		fn()
	}
}

func (s *RequestService) emit(rc *requestContext, req *models.ValidationRequest, action, info string, event workflow.Event) error {
	if event != "" {
		ev, typ := string(event), string(req.Type)
		rc.afterCommit(func() {
			metricsSingleton().transitions.WithLabelValues(RequestMachine.Name(), typ, ev).Inc()
		})
	}
	return s.audit.Emit(rc.tx, AuditEntry{
		ApplicationID: rc.app.ID,
		ActivityType:  fmt.Sprintf("%s_validation_request_%s", req.Type, action),
		Comment:       req.DisplayName(),
		Info:          info,
		ActorID:       actorRef(rc.actorID),
		ResourceType:  "validation_request",
		ResourceID:    &req.ID,
	})
}

func (s *RequestService) notifyApplicant(rc *requestContext, req *models.ValidationRequest, template string, data map[string]interface{}) {
	s.notify(rc, req, rc.app.Contact(), template, data)
}

func (s *RequestService) notifyOfficer(rc *requestContext, req *models.ValidationRequest, template string, data map[string]interface{}) {
	if rc.app.AssignedOfficerID == nil {
		return
	}
	var officer models.User
	if err := rc.tx.Select("email").First(&officer, "id = ?", *rc.app.AssignedOfficerID).Error; err != nil {
		logFailure(err, "Failed to look up assigned officer", req)
		return
	}
	s.notify(rc, req, officer.Email, template, data)
}

func (s *RequestService) notify(rc *requestContext, req *models.ValidationRequest, recipient, template string, data map[string]interface{}) {
	if s.notifier == nil || recipient == "" {
		return
	}
	msgData := map[string]interface{}{
		"Reference":   rc.app.Reference,
		"RequestName": req.DisplayName(),
	}
	for k, v := range data {
		msgData[k] = v
	}
	requestID := req.ID
	msg := NotificationMessage{
		ApplicationID: rc.app.ID,
		RequestID:     &requestID,
		Recipient:     recipient,
		Template:      template,
		Data:          msgData,
	}
	notifier := s.notifier
	rc.afterCommit(func() { notifier.Enqueue(msg) })
}

func lockApplication(tx *gorm.DB, applicationID uuid.UUID) (*models.PlanningApplication, error) {
	var app models.PlanningApplication
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&app, "id = ?", applicationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load planning application: %w", err)
	}
	return &app, nil
}

func logFailure(err error, message string, req *models.ValidationRequest) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"validation_request_id":   req.ID,
		"planning_application_id": req.PlanningApplicationID,
		"type":                    req.Type,
	}).Error(message)
}
