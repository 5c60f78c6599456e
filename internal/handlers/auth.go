// internal/handlers/auth.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	authResponse, err := h.authService.Login(&req)
	if err != nil {
		respondError(c, err, "user")
		return
	}

	utils.SuccessResponse(c, authResponse)
}

// GET /auth/me
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, err := h.authService.GetUser(currentUser(c))
	if err != nil {
		respondError(c, err, "user")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user": user,
	})
}
