// internal/services/case_aggregator.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localgov/planning-backoffice/internal/deadline"
	"github.com/localgov/planning-backoffice/internal/models"
)

// RequestView is a request with its deadline worked out for today.
type RequestView struct {
	models.ValidationRequest
	DisplayName          string    `json:"display_name"`
	ResponseDue          time.Time `json:"response_due"`
	DaysUntilResponseDue int       `json:"days_until_response_due"`
	Overdue              bool      `json:"overdue"`
}

// CaseRequests is every request on a case, newest first, with the projections
// derived from current state on each call.
type CaseRequests struct {
	All       []RequestView `json:"all"`
	Pending   []RequestView `json:"pending"`
	Open      []RequestView `json:"open"`
	Closed    []RequestView `json:"closed"`
	Cancelled []RequestView `json:"cancelled"`
	Overdue   []RequestView `json:"overdue"`
}

type RequestFilter struct {
	Type models.RequestType `form:"type"`
}

type CaseAggregator struct {
	db         *gorm.DB
	calculator *deadline.Calculator
}

func NewCaseAggregator(db *gorm.DB, calculator *deadline.Calculator) *CaseAggregator {
	return &CaseAggregator{db: db, calculator: calculator}
}

func (a *CaseAggregator) ListRequests(applicationID uuid.UUID, filter RequestFilter) (*CaseRequests, error) {
	query := a.db.Where("planning_application_id = ?", applicationID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var requests []models.ValidationRequest
	if err := query.Order("created_at DESC, type ASC, sequence DESC").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch validation requests: %w", err)
	}

	out := &CaseRequests{All: make([]RequestView, 0, len(requests))}
	for _, req := range requests {
		v := a.View(req)
		out.All = append(out.All, v)

		switch req.State {
		case models.RequestStatePending:
			out.Pending = append(out.Pending, v)
		case models.RequestStateOpen:
			out.Open = append(out.Open, v)
			if v.Overdue {
				out.Overdue = append(out.Overdue, v)
			}
		case models.RequestStateClosed:
			out.Closed = append(out.Closed, v)
		case models.RequestStateCancelled:
			out.Cancelled = append(out.Cancelled, v)
		}
	}
	return out, nil
}

// Latest returns the most recent request of a type: the newest created_at, and
// the highest sequence on a tie.
func (a *CaseAggregator) Latest(applicationID uuid.UUID, requestType models.RequestType) (*models.ValidationRequest, error) {
	var req models.ValidationRequest
	err := a.db.Where("planning_application_id = ? AND type = ?", applicationID, requestType).
		Order("created_at DESC, sequence DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest request: %w", err)
	}
	return &req, nil
}

// View computes the deadline fields for one request. Only open requests can be overdue.
func (a *CaseAggregator) View(req models.ValidationRequest) RequestView {
	v := RequestView{
		ValidationRequest:    req,
		DisplayName:          req.DisplayName(),
		ResponseDue:          a.calculator.ResponseDue(req.CreatedAt, req.ResponseDays),
		DaysUntilResponseDue: a.calculator.DaysUntilResponseDue(req.CreatedAt, req.ResponseDays),
	}
	v.Overdue = req.State == models.RequestStateOpen && v.DaysUntilResponseDue < 0
	return v
}

// liveRequestsOfType lists pending and open requests of one type and scope on a case.
func liveRequestsOfType(tx *gorm.DB, applicationID uuid.UUID, requestType models.RequestType, scope string) ([]models.ValidationRequest, error) {
	var live []models.ValidationRequest
	err := tx.Where("planning_application_id = ? AND type = ? AND scope_key = ? AND state IN ?",
		applicationID, requestType, scope, []models.RequestState{models.RequestStatePending, models.RequestStateOpen}).
		Order("created_at ASC, sequence ASC").
		Find(&live).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check for live requests: %w", err)
	}
	return live, nil
}

// Documents lists a case's documents, current ones first.
func (a *CaseAggregator) Documents(applicationID uuid.UUID, includeArchived bool) ([]models.Document, error) {
	query := a.db.Where("planning_application_id = ?", applicationID)
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var docs []models.Document
	if err := query.Order("archived ASC, created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}
	return docs, nil
}

func (a *CaseAggregator) Document(documentID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := a.db.First(&doc, "id = ?", documentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}
