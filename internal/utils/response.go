// internal/utils/response.go
package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/localgov/planning-backoffice/internal/i18n"
)

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func SuccessResponseWithMeta(c *gin.Context, data, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: meta})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

func NoContentResponse(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Error: &APIError{Code: code, Message: message, Details: details},
	})
}

// localized writes an error whose message falls back to the translation of key.
func localized(c *gin.Context, status int, code, message, key string, details interface{}, args ...interface{}) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), key, args...)
	}
	ErrorResponse(c, status, code, message, details)
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	localized(c, http.StatusBadRequest, "BAD_REQUEST", message, i18n.KeyValidationInvalid, details, "request")
}

func UnauthorizedResponse(c *gin.Context, message string) {
	localized(c, http.StatusUnauthorized, "UNAUTHORIZED", message, i18n.KeyAuthRequired, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	localized(c, http.StatusForbidden, "FORBIDDEN", message, i18n.KeyAuthAdminRequired, nil)
}

// NotFoundResponse translates "<resource>.not_found".
func NotFoundResponse(c *gin.Context, resource string) {
	localized(c, http.StatusNotFound, "NOT_FOUND", "", resource+".not_found", nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	localized(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, i18n.KeyInternalError, nil)
}

// ValidationErrorResponse returns every field problem at once so the caller can
// redisplay them together.
func ValidationErrorResponse(c *gin.Context, errors []ValidationError) {
	localized(c, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "", i18n.KeyValidationInvalid, errors, "input")
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, ok := c.Get("lang"); ok {
		if s, ok := lang.(string); ok {
			return s
		}
	}
	return "en"
}

// GetUserIDFromContext returns the authenticated officer's id.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func GetUserRoleFromContext(c *gin.Context) (string, bool) {
	role := c.GetString("user_role")
	return role, role != ""
}
