package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is retryable: a duplicate record or an exhausted lock retry.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a sale would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState indicates an operation against a closed or finalised record.
	ErrInvalidState = errors.New("invalid state")
)

// FieldErrorer is implemented by errors that carry per-field messages.
type FieldErrorer interface {
	FieldErrors() map[string]string
}

// ValidationError collects field-level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// Add records a message for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Empty reports whether no field messages were recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Err returns e as an error, or nil when no messages were recorded.
func (e *ValidationError) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldErrors returns a copy of the field messages.
func (e *ValidationError) FieldErrors() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		out[k] = v
	}
	return out
}

// StockError reports the line whose quantity exceeds available stock.
type StockError struct {
	Field     string
	ProductID int64
	BranchID  int64
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s: product %d at branch %d requested %d, available %d",
		ErrInsufficientStock.Error(), e.ProductID, e.BranchID, e.Requested, e.Available)
}

// Is lets errors.Is match ErrInsufficientStock.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// FieldErrors maps the offending field to a display message.
func (e *StockError) FieldErrors() map[string]string {
	field := e.Field
	if field == "" {
		field = "quantity"
	}
	return map[string]string{
		field: fmt.Sprintf("exceeds available stock (%d available)", e.Available),
	}
}

// NotFoundError names the record that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     int64
	Field  string
}

// NewNotFound builds a NotFoundError for entity id.
func NewNotFound(entity string, id int64) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Entity + " " + ErrNotFound.Error()
	}
	return fmt.Sprintf("%s %d %s", e.Entity, e.ID, ErrNotFound.Error())
}

// Is lets errors.Is match ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FieldErrors is non-empty only when the lookup came from a request field.
func (e *NotFoundError) FieldErrors() map[string]string {
	if e.Field == "" {
		return nil
	}
	return map[string]string{e.Field: e.Entity + " does not exist"}
}

// InvalidState wraps ErrInvalidState with a description.
func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a description.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// FieldErrors extracts the field message map carried by err, if any.
func FieldErrors(err error) map[string]string {
	var fe FieldErrorer
	if errors.As(err, &fe) {
		return fe.FieldErrors()
	}
	return nil
}

// Kind names the taxonomy member err belongs to, for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "internal"
	}
}
