package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for confignode operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument     ErrorCode = 1000
	ErrCodeRegionGroupNotFound ErrorCode = 1001
	ErrCodeRegionGroupExists   ErrorCode = 1002
	ErrCodeInvalidConsistency  ErrorCode = 1003
	ErrCodeReplicaNotRemovable ErrorCode = 1004

	// Server errors (5xx equivalent)
	ErrCodeInternal          ErrorCode = 2000
	ErrCodeUnavailable       ErrorCode = 2001
	ErrCodeResourceExhausted ErrorCode = 2002
)

// ConfigNodeError represents a structured error with code and context
type ConfigNodeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *ConfigNodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ConfigNodeError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts ConfigNodeError to gRPC status
func (e *ConfigNodeError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *ConfigNodeError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidConsistency:
		return codes.InvalidArgument
	case ErrCodeRegionGroupNotFound:
		return codes.NotFound
	case ErrCodeRegionGroupExists:
		return codes.AlreadyExists
	case ErrCodeReplicaNotRemovable:
		return codes.FailedPrecondition
	case ErrCodeResourceExhausted:
		return codes.ResourceExhausted
	case ErrCodeUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// HTTPStatus maps internal error codes to HTTP status codes
func (e *ConfigNodeError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument, ErrCodeInvalidConsistency:
		return http.StatusBadRequest
	case ErrCodeRegionGroupNotFound:
		return http.StatusNotFound
	case ErrCodeRegionGroupExists, ErrCodeReplicaNotRemovable:
		return http.StatusConflict
	case ErrCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewConfigNodeError creates a new ConfigNodeError
func NewConfigNodeError(code ErrorCode, message string, cause error) *ConfigNodeError {
	return &ConfigNodeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *ConfigNodeError) WithDetail(key string, value interface{}) *ConfigNodeError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeInvalidArgument, message, cause)
}

func RegionGroupNotFound(groupID string) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeRegionGroupNotFound, fmt.Sprintf("region group not found: %s", groupID), nil).
		WithDetail("group_id", groupID)
}

func RegionGroupExists(groupID string) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeRegionGroupExists, fmt.Sprintf("region group already exists: %s", groupID), nil).
		WithDetail("group_id", groupID)
}

func InvalidConsistency(groupID, reason string) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeInvalidConsistency, fmt.Sprintf("invalid consistency model for %s: %s", groupID, reason), nil).
		WithDetail("group_id", groupID).
		WithDetail("reason", reason)
}

func ReplicaNotRemovable(groupID string, groupStatus string) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeReplicaNotRemovable, fmt.Sprintf("cannot remove replica from %s while it is %s", groupID, groupStatus), nil).
		WithDetail("group_id", groupID).
		WithDetail("group_status", groupStatus)
}

func ResourceExhausted(resource string, cause error) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted", resource), cause).
		WithDetail("resource", resource)
}

func InternalError(message string, cause error) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *ConfigNodeError {
	return NewConfigNodeError(ErrCodeUnavailable, message, cause)
}

// IsConfigNodeError checks if an error is (or wraps) a ConfigNodeError
func IsConfigNodeError(err error) bool {
	var ce *ConfigNodeError
	return errors.As(err, &ce)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var ce *ConfigNodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}

// HTTPStatusOf returns the HTTP status for any error
func HTTPStatusOf(err error) int {
	var ce *ConfigNodeError
	if errors.As(err, &ce) {
		return ce.HTTPStatus()
	}
	return http.StatusInternalServerError
}
