package response

import (
	"errors"
	"net/http"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes, one per taxonomy class.
const (
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeFailedPrecondition = "FAILED_PRECONDITION"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Handle maps a service error onto the response envelope. Errors are
// surfaced verbatim with their taxonomy code; nothing is swallowed here.
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, types.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, err.Error())
	case errors.Is(err, types.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, types.ErrPermissionDenied):
		fail(c, http.StatusForbidden, ErrCodePermissionDenied, err.Error())
	case errors.Is(err, types.ErrAlreadyExists), errors.Is(err, gorm.ErrDuplicatedKey):
		fail(c, http.StatusConflict, ErrCodeAlreadyExists, err.Error())
	case errors.Is(err, types.ErrFailedPrecondition):
		fail(c, http.StatusUnprocessableEntity, ErrCodeFailedPrecondition, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, message)
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodePermissionDenied, message)
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, ErrCodeAlreadyExists, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
