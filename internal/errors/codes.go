package errors

// Error codes returned in the "error" field. Format: CATEGORY_DETAIL.
// The storefront maps these to its own copy; "message" is a fallback.

const (
	// Authentication
	AuthUnauthorized         = "AUTH_UNAUTHORIZED"
	AuthInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	AuthTokenExpired         = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid         = "AUTH_TOKEN_INVALID"
	AuthTokenRevoked         = "AUTH_TOKEN_REVOKED"
	AuthEmailAlreadyExists   = "AUTH_EMAIL_EXISTS"
	AuthCodeInvalid          = "AUTH_CODE_INVALID"
	AuthCodeExpired          = "AUTH_CODE_EXPIRED"
	AuthCodeAttemptsExceeded = "AUTH_CODE_ATTEMPTS_EXCEEDED"
	RateLimited              = "RATE_LIMITED"

	// Authorization
	AuthzForbidden = "AUTHZ_FORBIDDEN"

	// Validation
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT"
	ValidationRequired      = "VALIDATION_REQUIRED"

	// Resources
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// Mail
	MailDeliveryFailed = "MAIL_DELIVERY_FAILED"

	// Internal
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
)
