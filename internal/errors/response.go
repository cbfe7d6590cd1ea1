package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the uniform response wrapper for every endpoint.
// Status is "success", "partial" (batch with itemized failures) or "error".
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the envelope shape for failed calls.
type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`   // error code for frontend mapping (codes.go)
	Message string `json:"message"` // human-readable message
}

// RespondSuccess writes a success envelope.
func RespondSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Envelope{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

// RespondPartial writes a "partial" envelope for batch results that carry
// itemized failures. The call itself still succeeded.
func RespondPartial(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Envelope{
		Status:  "partial",
		Message: message,
		Data:    data,
	})
}

// RespondWithError writes an error envelope.
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Status:  "error",
		Error:   errorCode,
		Message: message,
	})
}

// Shorthand helpers for the common cases.

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "access denied"
	}
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func Conflict(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message)
}

func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "internal server error, please try again later"
	}
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}
