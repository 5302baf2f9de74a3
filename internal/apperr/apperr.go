// Package apperr holds the error taxonomy shared by the document and sync
// services and its mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown                Code = "UNKNOWN"
	CodeAuthenticationRequired Code = "AUTHENTICATION_REQUIRED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeNotAuthorized          Code = "NOT_AUTHORIZED"
	CodeVersionConflict        Code = "VERSION_CONFLICT"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
)

// Error is a domain error. Two errors match under errors.Is when their codes
// are equal, so callers compare against the sentinels below.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrAuthenticationRequired = &Error{Code: CodeAuthenticationRequired, Message: "please sign in"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "document not found"}
	ErrNotAuthorized          = &Error{Code: CodeNotAuthorized, Message: "not authorized to access this document"}
	ErrVersionConflict        = &Error{Code: CodeVersionConflict, Message: "version conflict"}
	ErrInvalidArgument        = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// New returns an error with the given code and a more specific message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// GetCode extracts the code from any error, CodeUnknown for foreign errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Retryable reports whether a well-behaved client should refetch and retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// Status maps an error onto an HTTP status code.
func Status(err error) int {
	switch GetCode(err) {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeVersionConflict:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Unknown errors are reported
// without their details.
func Respond(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": CodeUnknown})
		return
	}
	body := gin.H{"error": e.Message, "code": e.Code}
	if Retryable(err) {
		body["retryable"] = true
	}
	c.JSON(Status(err), body)
}
