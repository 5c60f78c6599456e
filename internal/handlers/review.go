// internal/handlers/review.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type ReviewHandler struct {
	reviewService *services.ReviewService
}

func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		reviewService: reviewService,
	}
}

// GET /reviews/:owner_type/:owner_id
func (h *ReviewHandler) GetCurrent(c *gin.Context) {
	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.Current(ownerType, ownerID)
	})
}

// GET /reviews/:owner_type/:owner_id/history
func (h *ReviewHandler) GetHistory(c *gin.Context) {
	ownerID, ok := paramID(c, "owner_id")
	if !ok {
		return
	}

	reviews, err := h.reviewService.History(c.Param("owner_type"), ownerID)
	if err != nil {
		respondError(c, err, "review")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"reviews": reviews,
	})
}

// POST /reviews/:owner_type/:owner_id/start
func (h *ReviewHandler) StartAssessment(c *gin.Context) {
	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.StartAssessment(ownerType, ownerID, currentUser(c))
	})
}

// POST /reviews/:owner_type/:owner_id/complete
func (h *ReviewHandler) CompleteAssessment(c *gin.Context) {
	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.CompleteAssessment(ownerType, ownerID, currentUser(c))
	})
}

// POST /reviews/:owner_type/:owner_id/accept
func (h *ReviewHandler) AcceptReview(c *gin.Context) {
	var body struct {
		Comment string `json:"comment"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &body) {
		return
	}

	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.AcceptReview(ownerType, ownerID, currentUser(c), body.Comment)
	})
}

// POST /reviews/:owner_type/:owner_id/edit-and-accept
func (h *ReviewHandler) EditAndAcceptReview(c *gin.Context) {
	var in services.EditAndAcceptInput
	if !bindJSON(c, &in) {
		return
	}

	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.EditAndAcceptReview(ownerType, ownerID, currentUser(c), in)
	})
}

// POST /reviews/:owner_type/:owner_id/return
func (h *ReviewHandler) ReturnToOfficer(c *gin.Context) {
	var in services.ReturnToOfficerInput
	if !bindJSON(c, &in) {
		return
	}

	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.ReturnToOfficer(ownerType, ownerID, currentUser(c), in)
	})
}

// POST /reviews/:owner_type/:owner_id/reopen
func (h *ReviewHandler) ReopenForUpdate(c *gin.Context) {
	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.ReopenForUpdate(ownerType, ownerID, currentUser(c))
	})
}

// PATCH /reviews/:owner_type/:owner_id/owner
func (h *ReviewHandler) UpdateOwner(c *gin.Context) {
	var in services.UpdateOwnerInput
	if !bindJSON(c, &in) {
		return
	}

	h.run(c, func(ownerType string, ownerID uuid.UUID) (*models.Review, error) {
		return h.reviewService.UpdateOwner(ownerType, ownerID, currentUser(c), in)
	})
}

// GET /review-owner-types
func (h *ReviewHandler) GetOwnerTypes(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"owner_types": services.ReviewableOwnerTypes(),
	})
}

func (h *ReviewHandler) run(c *gin.Context, op func(ownerType string, ownerID uuid.UUID) (*models.Review, error)) {
	ownerID, ok := paramID(c, "owner_id")
	if !ok {
		return
	}

	review, err := op(c.Param("owner_type"), ownerID)
	if err != nil {
		respondError(c, err, "review")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"review": review,
	})
}
