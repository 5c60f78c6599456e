// internal/handlers/application.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type ApplicationHandler struct {
	caseService *services.CaseService
	aggregator  *services.CaseAggregator
	audit       *services.AuditService
}

func NewApplicationHandler(caseService *services.CaseService, aggregator *services.CaseAggregator, audit *services.AuditService) *ApplicationHandler {
	return &ApplicationHandler{
		caseService: caseService,
		aggregator:  aggregator,
		audit:       audit,
	}
}

// POST /applications
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	var in services.CreateApplicationInput
	if !bindJSON(c, &in) {
		return
	}

	app, err := h.caseService.Create(currentUser(c), in)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"application": app,
	})
}

// GET /applications/:id
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	app, err := h.caseService.Get(id)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	requests, err := h.aggregator.ListRequests(id, services.RequestFilter{})
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application":         app,
		"validation_requests": requests,
	})
}

// POST /applications/:id/invalidate
func (h *ApplicationHandler) Invalidate(c *gin.Context) {
	h.transition(c, h.caseService.Invalidate)
}

// POST /applications/:id/validate
func (h *ApplicationHandler) Validate(c *gin.Context) {
	h.transition(c, h.caseService.Validate)
}

// POST /applications/:id/submit
func (h *ApplicationHandler) Submit(c *gin.Context) {
	h.transition(c, h.caseService.Submit)
}

// POST /applications/:id/determine
func (h *ApplicationHandler) Determine(c *gin.Context) {
	var in services.DetermineInput
	if !bindJSON(c, &in) {
		return
	}
	h.transition(c, func(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
		return h.caseService.Determine(ctx, id, actorID, in)
	})
}

// POST /applications/:id/withdraw
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	var in services.CloseCaseInput
	if !bindJSON(c, &in) {
		return
	}
	h.transition(c, func(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
		return h.caseService.Withdraw(ctx, id, actorID, in)
	})
}

// POST /applications/:id/return
func (h *ApplicationHandler) Return(c *gin.Context) {
	var in services.CloseCaseInput
	if !bindJSON(c, &in) {
		return
	}
	h.transition(c, func(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error) {
		return h.caseService.Return(ctx, id, actorID, in)
	})
}

// GET /applications/:id/audits
func (h *ApplicationHandler) GetAuditLog(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	logs, total, err := h.audit.ListForApplication(id, params)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, params))
}

func (h *ApplicationHandler) transition(c *gin.Context,
	op func(ctx context.Context, id, actorID uuid.UUID) (*models.PlanningApplication, error)) {

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	app, err := op(c.Request.Context(), id, currentUser(c))
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"application": app,
	})
}
