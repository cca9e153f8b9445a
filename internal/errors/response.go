package errors

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

// RespondWithError writes an error body. errorCode comes from codes.go;
// message is shown to the user as is.
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func Unauthorized(c *gin.Context, message string) {
	UnauthorizedWithCode(c, AuthUnauthorized, message)
}

func UnauthorizedWithCode(c *gin.Context, errorCode string, message string) {
	if message == "" {
		message = "É necessário fazer login"
	}
	RespondWithError(c, http.StatusUnauthorized, errorCode, message)
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Você não tem permissão para acessar este recurso"
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

// TooManyRequests also sets the Retry-After header.
func TooManyRequests(c *gin.Context, retryAfterSeconds int, message string) {
	if message == "" {
		message = "Muitas solicitações. Tente novamente mais tarde."
	}
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:      RateLimited,
		Message:    message,
		RetryAfter: &retryAfterSeconds,
	})
}

func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "Erro interno. Tente novamente em instantes."
	}
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}

// ValidationError carries per-field messages.
type ValidationError struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func RespondWithValidationError(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusBadRequest, ValidationError{
		Error:   ValidationInvalidInput,
		Message: "Dados inválidos",
		Fields:  fields,
	})
}
