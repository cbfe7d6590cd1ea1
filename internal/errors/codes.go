package errors

// Error code constants.
// Format: CATEGORY_SPECIFIC_DETAIL
// The back-office frontend maps these codes to display messages.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED" // login required
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid = "AUTH_TOKEN_INVALID"

	// ==================== Authz (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzRoleRequired = "AUTHZ_ROLE_REQUIRED"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID     = "VALIDATION_INVALID_ID"
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT"
	ValidationRequired      = "VALIDATION_REQUIRED"

	// ==================== Resource (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Documents (DOCUMENT_) ====================
	DocumentNotFound           = "DOCUMENT_NOT_FOUND"
	DocumentEntityNotFound     = "DOCUMENT_ENTITY_NOT_FOUND"     // referenced driver/vehicle/user missing
	DocumentInvalidEntityType  = "DOCUMENT_INVALID_ENTITY_TYPE"  // entity type outside the closed set
	DocumentInvalidType        = "DOCUMENT_INVALID_TYPE"         // document type outside the closed set
	DocumentInvalidStatus      = "DOCUMENT_INVALID_STATUS"       // verification target not approved/rejected
	DocumentAlreadyDecided     = "DOCUMENT_ALREADY_DECIDED"      // re-deciding a decided document
	DocumentFileTooLarge       = "DOCUMENT_FILE_TOO_LARGE"
	DocumentFileTypeNotAllowed = "DOCUMENT_FILE_TYPE_NOT_ALLOWED"
	DocumentInvalidPriority    = "DOCUMENT_INVALID_PRIORITY"

	// ==================== Queue (QUEUE_) ====================
	QueuePublishFailed = "QUEUE_PUBLISH_FAILED"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalStorageError  = "INTERNAL_STORAGE_ERROR"
	InternalExternalAPI   = "INTERNAL_EXTERNAL_API"
)
