// Package apperrors defines the error taxonomy shared by services and the
// mapping from those errors onto HTTP responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog/log"
)

// ValidationError reports malformed user input. Fields maps an input field to
// its message when the failure is field-specific.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError reports a missing resource
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// AuthorizationError reports an action on a resource the caller does not own,
// or a protected action attempted without a session.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// ConflictError reports a uniqueness violation such as a claimed username
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// StoreError wraps a failure from the backing store
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrUnauthenticated is returned when no account is attached to the request
var ErrUnauthenticated = &AuthorizationError{Message: "Authentication required"}

// Validation builds a ValidationError with a single message
func Validation(msg string) error {
	return &ValidationError{Message: msg}
}

// NotFound builds a NotFoundError for the named resource
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// Forbidden builds an AuthorizationError
func Forbidden(msg string) error {
	return &AuthorizationError{Message: msg}
}

// Conflict builds a ConflictError
func Conflict(msg string) error {
	return &ConflictError{Message: msg}
}

// Store wraps err as a StoreError unless it is nil or already classified.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Classified reports whether err already belongs to the taxonomy
func Classified(err error) bool {
	var (
		ve *ValidationError
		ne *NotFoundError
		ae *AuthorizationError
		ce *ConflictError
		se *StoreError
	)
	return errors.As(err, &ve) || errors.As(err, &ne) || errors.As(err, &ae) ||
		errors.As(err, &ce) || errors.As(err, &se)
}

// FromValidation converts the result of an ozzo-validation call into a
// ValidationError. Nil stays nil.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var ie validation.InternalError
		if errors.As(err, &ie) {
			return &StoreError{Op: "validate", Err: ie.InternalError()}
		}
		return &ValidationError{Message: err.Error()}
	}

	fields := make(map[string]string, len(errs))
	keys := make([]string, 0, len(errs))
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		fields[field] = fieldErr.Error()
		keys = append(keys, field)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+": "+fields[k])
	}
	return &ValidationError{Message: strings.Join(msgs, "; "), Fields: fields}
}

// Status maps err onto an HTTP status code
func Status(err error) int {
	var (
		ve *ValidationError
		ne *NotFoundError
		ae *AuthorizationError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ae):
		return http.StatusForbidden
	case errors.As(err, &ce):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body. Store and unknown errors are
// logged and reported with a generic message.
func Respond(c *gin.Context, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		c.JSON(status, gin.H{"error": "Something went wrong. Please try again."})
		return
	}

	body := gin.H{"error": err.Error()}
	var ve *ValidationError
	if errors.As(err, &ve) && len(ve.Fields) > 0 {
		body["fields"] = ve.Fields
	}
	c.JSON(status, body)
}
