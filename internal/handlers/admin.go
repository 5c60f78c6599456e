// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type AdminHandler struct {
	adminService *services.AdminService
	authService  *services.AuthService
	sweeper      *services.AutoApprovalSweeper
}

func NewAdminHandler(adminService *services.AdminService, authService *services.AuthService, sweeper *services.AutoApprovalSweeper) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		authService:  authService,
		sweeper:      sweeper,
	}
}

// GET /admin/dashboard
func (h *AdminHandler) GetDashboard(c *gin.Context) {
	stats, err := h.adminService.GetDashboardStats()
	if err != nil {
		respondError(c, err, "application")
		return
	}

	utils.SuccessResponse(c, stats)
}

// GET /admin/users
func (h *AdminHandler) GetUsers(c *gin.Context) {
	var filter services.AdminUserFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	filter.PaginationParams = utils.GetPaginationParams(c)

	users, total, err := h.adminService.GetUsers(filter)
	if err != nil {
		respondError(c, err, "user")
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(users, total, filter.PaginationParams))
}

// PATCH /admin/users/:id/status
func (h *AdminHandler) UpdateUserStatus(c *gin.Context) {
	userID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.UpdateUserStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.adminService.UpdateUserStatus(userID, currentUser(c), &req)
	if err != nil {
		respondError(c, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user": user,
	})
}

// POST /admin/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req services.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.CreateUser(&req)
	if err != nil {
		respondError(c, err, "user")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"user": user,
	})
}

// GET /admin/validation-requests/overdue
func (h *AdminHandler) GetOverdueRequests(c *gin.Context) {
	overdue, err := h.sweeper.Overdue()
	if err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"validation_requests": overdue,
		"count":               len(overdue),
	})
}

// POST /admin/auto-approvals
func (h *AdminHandler) RunAutoApproval(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err, "validation_request")
		return
	}

	utils.SuccessResponse(c, result)
}
