package errors

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrorInfo carries a mapped error code and user-facing message.
type ErrorInfo struct {
	Code    string
	Message string
}

// ParseError maps database and infrastructure errors to an ErrorInfo.
// Sensitive driver details are hidden; the context string (e.g. "document",
// "upload") selects a more specific message where possible.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: InternalServerError, Message: "internal server error"}
	}

	errStr := err.Error()
	errStrLower := strings.ToLower(errStr)

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{Code: ResourceNotFound, Message: getNotFoundMessage(context)}
	}

	// Postgres constraint violations surfaced through GORM.
	if strings.Contains(errStrLower, "duplicate key") || strings.Contains(errStrLower, "unique constraint") {
		if strings.Contains(errStrLower, "file_name") {
			return ErrorInfo{Code: ResourceAlreadyExists, Message: "a document with this file name already exists"}
		}
		return ErrorInfo{Code: ResourceAlreadyExists, Message: "the record already exists"}
	}

	if strings.Contains(errStrLower, "foreign key constraint") {
		if strings.Contains(errStrLower, "still referenced") {
			return ErrorInfo{Code: ResourceConflict, Message: "the record is referenced by other data and cannot be removed"}
		}
		return ErrorInfo{Code: ResourceNotFound, Message: "a referenced record does not exist"}
	}

	if strings.Contains(errStrLower, "null value") && strings.Contains(errStrLower, "violates not-null constraint") {
		return ErrorInfo{Code: ValidationRequired, Message: "a required field is missing"}
	}

	if strings.Contains(errStrLower, "connection refused") ||
		strings.Contains(errStrLower, "no such host") ||
		strings.Contains(errStrLower, "timeout") {
		return ErrorInfo{Code: InternalExternalAPI, Message: "an external service is unreachable, please try again later"}
	}

	return ErrorInfo{Code: InternalServerError, Message: getDefaultErrorMessage(context)}
}

func getNotFoundMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "document"):
		return "document not found"
	case strings.Contains(contextLower, "driver"):
		return "driver not found"
	case strings.Contains(contextLower, "vehicle"):
		return "vehicle not found"
	case strings.Contains(contextLower, "user"):
		return "user not found"
	}
	return "the requested record was not found"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "upload"):
		return "upload failed, please try again later"
	case strings.Contains(contextLower, "verify"):
		return "verification failed, please try again later"
	case strings.Contains(contextLower, "delete"):
		return "deletion failed, please try again later"
	}
	return "internal server error, please try again later"
}
