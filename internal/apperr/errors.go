// Package apperr holds the error taxonomy shared by the order core and its
// HTTP surface. Every error carries a machine-readable Code so clients can
// branch on it without parsing messages.
package apperr

import (
	"fmt"
	"sort"
	"strings"
)

const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeSizeUnavailable   = "SIZE_UNAVAILABLE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeNotFound          = "NOT_FOUND"
	CodeNotification      = "NOTIFICATION_FAILED"
)

// ValidationError is malformed or missing input. Fields maps the input field
// name to a human readable message.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "The given data was invalid."
}

func (e *ValidationError) Code() string { return CodeValidation }

// Validation builds a ValidationError for a single field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{
		Message: message,
		Fields:  map[string]string{field: message},
	}
}

// NewValidationError summarises field errors the way the checkout UI expects:
// the first message in field order, plus a count of the rest.
func NewValidationError(fields map[string]string) *ValidationError {
	if len(fields) == 0 {
		return &ValidationError{Message: "The given data was invalid."}
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := fields[keys[0]]
	if n := len(keys) - 1; n > 0 {
		suffix := "error"
		if n > 1 {
			suffix = "errors"
		}
		msg = fmt.Sprintf("%s (and %d more %s)", msg, n, suffix)
	}
	return &ValidationError{Message: msg, Fields: fields}
}

// ErrSizeRequired is returned when a per-size product is ordered without a size.
var ErrSizeRequired = Validation("product_size", "size required")

// SizeUnavailableError means no size row matches the requested size. Available
// lets the client offer a correction.
type SizeUnavailableError struct {
	Requested string
	Available []string
}

func (e *SizeUnavailableError) Error() string {
	return fmt.Sprintf("Size %s is not available for this product. Available sizes: %s.",
		e.Requested, strings.Join(e.Available, ", "))
}

func (e *SizeUnavailableError) Code() string { return CodeSizeUnavailable }

// InsufficientStockError means fewer units are on hand than requested. Size is
// empty for products without size rows.
type InsufficientStockError struct {
	Size      string
	Requested int
	Available int64
}

func (e *InsufficientStockError) Error() string {
	if e.Size == "" {
		return fmt.Sprintf("Insufficient stock. Only %d available.", e.Available)
	}
	return fmt.Sprintf("Insufficient stock for size %s. Only %d available.", e.Size, e.Available)
}

func (e *InsufficientStockError) Code() string { return CodeInsufficientStock }

// NotFoundError is a missing aggregate looked up by identity.
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

func (e *NotFoundError) Code() string { return CodeNotFound }

// NotificationError wraps a failed send. It is only ever logged.
type NotificationError struct {
	Kind     string
	OrderIDs []string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification %s for orders [%s]: %v", e.Kind, strings.Join(e.OrderIDs, ","), e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func (e *NotificationError) Code() string { return CodeNotification }
