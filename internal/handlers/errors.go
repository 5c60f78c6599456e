// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/localgov/planning-backoffice/internal/i18n"
	"github.com/localgov/planning-backoffice/internal/services"
	"github.com/localgov/planning-backoffice/internal/utils"
)

// respondError maps a service error onto the HTTP response. resource names the
// translation namespace used for 404s.
func respondError(c *gin.Context, err error, resource string) {
	var (
		validation  *services.ValidationErrors
		transition  *services.InvalidTransitionError
		conflict    *services.ConflictError
		destroyable *services.NotDestroyableError
		creatable   *services.NotCreatableError
	)
	lang := utils.GetLangFromContext(c)

	switch {
	case errors.As(err, &validation):
		utils.ValidationErrorResponse(c, validation.Fields)
	case errors.As(err, &transition):
		utils.ErrorResponse(c, 409, "INVALID_STATE", i18n.T(lang, i18n.KeyInvalidState), gin.H{
			"current_state": transition.From,
			"event":         transition.Event,
		})
	case errors.As(err, &conflict):
		utils.ErrorResponse(c, 409, "CONFLICT", conflict.Message, nil)
	case errors.As(err, &destroyable):
		utils.ErrorResponse(c, 409, "NOT_DESTROYABLE", i18n.T(lang, i18n.KeyNotDestroyable), gin.H{
			"state": destroyable.State,
		})
	case errors.As(err, &creatable):
		utils.ErrorResponse(c, 409, "REVIEW_NOT_CREATABLE", i18n.T(lang, i18n.KeyReviewNotCreated), gin.H{
			"reason": creatable.Reason,
		})
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, resource)
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
	case errors.Is(err, services.ErrAccountSuspended):
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyAuthSuspended))
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON decodes and validates the body, writing the error response itself.
func bindJSON(c *gin.Context, dst interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(dst); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	return true
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated officer; AuthRequired guarantees it is set.
func currentUser(c *gin.Context) uuid.UUID {
	id, _ := utils.GetUserIDFromContext(c)
	return id
}
