// internal/handlers/validation_request.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type ValidationRequestHandler struct {
	requestService *services.RequestService
	aggregator     *services.CaseAggregator
}

func NewValidationRequestHandler(requestService *services.RequestService, aggregator *services.CaseAggregator) *ValidationRequestHandler {
	return &ValidationRequestHandler{
		requestService: requestService,
		aggregator:     aggregator,
	}
}

// GET /applications/:id/validation-requests
func (h *ValidationRequestHandler) ListRequests(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var filter services.RequestFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	requests, err := h.aggregator.ListRequests(id, filter)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, requests)
}

// GET /applications/:id/validation-requests/latest/:type
func (h *ValidationRequestHandler) GetLatest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, err := h.aggregator.Latest(id, models.RequestType(c.Param("type")))
	if err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"validation_request": h.aggregator.View(*req),
	})
}

// POST /applications/:id/validation-requests
func (h *ValidationRequestHandler) CreateRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var in services.CreateRequestInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requestService.Create(c.Request.Context(), id, currentUser(c), in)
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"validation_request": h.aggregator.View(*req),
	})
}

// GET /validation-requests/:id
func (h *ValidationRequestHandler) GetRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, err := h.requestService.Get(id)
	if err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"validation_request": h.aggregator.View(*req),
	})
}

// POST /validation-requests/:id/send
func (h *ValidationRequestHandler) MarkSent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, err := h.requestService.MarkSent(c.Request.Context(), id, currentUser(c))
	h.respond(c, req, err)
}

// POST /validation-requests/:id/response
func (h *ValidationRequestHandler) Respond(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var in services.RespondInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.requestService.Respond(c.Request.Context(), id, currentUser(c), in)
	h.respond(c, req, err)
}

// POST /validation-requests/:id/auto-approve
func (h *ValidationRequestHandler) AutoApprove(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	req, _, err := h.requestService.AutoApprove(c.Request.Context(), id)
	h.respond(c, req, err)
}

// POST /validation-requests/:id/cancel
func (h *ValidationRequestHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		CancelReason string `json:"cancel_reason"`
	}
	if !bindJSON(c, &body) {
		return
	}

	req, err := h.requestService.Cancel(c.Request.Context(), id, currentUser(c), body.CancelReason)
	h.respond(c, req, err)
}

// DELETE /validation-requests/:id
func (h *ValidationRequestHandler) DeleteRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.requestService.Destroy(c.Request.Context(), id, currentUser(c)); err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.NoContentResponse(c)
}

// GET /validation-request-types/:type
func (h *ValidationRequestHandler) GetCapabilities(c *gin.Context) {
	caps, ok := services.RequestCapabilities(models.RequestType(c.Param("type")))
	if !ok {
		utils.NotFoundResponse(c, "validation_request")
		return
	}

	utils.SuccessResponse(c, caps)
}

func (h *ValidationRequestHandler) respond(c *gin.Context, req *models.ValidationRequest, err error) {
	if err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"validation_request": h.aggregator.View(*req),
	})
}
