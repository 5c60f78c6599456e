// internal/middleware/auth.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/localgov/planning-backoffice/internal/i18n"
	"github.com/localgov/planning-backoffice/internal/models"
	"github.com/localgov/planning-backoffice/internal/utils"
)

// AuthRequired accepts a Bearer access token and puts the officer's id and
// role on the context.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(parts[1])
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}

// ReviewerRequired lets reviewers and administrators through.
func ReviewerRequired() gin.HandlerFunc {
	return roleRequired(i18n.KeyAuthReviewerRequired, models.UserRoleReviewer, models.UserRoleAdmin)
}

func AdminRequired() gin.HandlerFunc {
	return roleRequired(i18n.KeyAuthAdminRequired, models.UserRoleAdmin)
}

func roleRequired(messageKey string, roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := utils.GetUserRoleFromContext(c)
		for _, allowed := range roles {
			if role == string(allowed) {
				c.Next()
				return
			}
		}
		utils.ForbiddenResponse(c, i18n.T(utils.GetLangFromContext(c), messageKey))
		c.Abort()
	}
}
