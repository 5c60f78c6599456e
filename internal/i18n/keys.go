// internal/i18n/keys.go
package i18n

// Translation keys
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthSuspended          = "auth.suspended"
	KeyAuthReviewerRequired   = "auth.reviewer_required"
	KeyAuthAdminRequired      = "auth.admin_required"
	KeyRateLimited            = "auth.rate_limited"

	// Planning applications
	KeyApplicationNotFound = "application.not_found"

	// Validation requests
	KeyRequestNotFound  = "validation_request.not_found"
	KeyRequestDeleted   = "validation_request.deleted"
	KeyRequestConflict  = "validation_request.conflict"
	KeyInvalidState     = "workflow.invalid_state"
	KeyNotDestroyable   = "workflow.not_destroyable"
	KeyReviewNotCreated = "workflow.review_not_creatable"

	// Documents
	KeyDocumentNotFound = "document.not_found"

	// Reviews
	KeyReviewNotFound = "review.not_found"

	// Users
	KeyUserNotFound        = "user.not_found"
	KeyUserPasswordChanged = "user.password_changed"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// Errors
	KeyInternalError = "error.internal"
)
