package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
)

// ValidationError collects per-field messages so the UI can show them next
// to the offending inputs.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records the first message for field; later ones are dropped.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// Err returns e when at least one field failed, nil otherwise.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldError is a single-field ValidationError.
func FieldError(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// ConflictError rejects an action the entity's current state does not allow.
type ConflictError struct {
	Entity string
	ID     int64
	Action string
	From   string
	Reason string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s %s %d: %s", e.Action, e.Entity, e.ID, e.Reason)
	}
	return fmt.Sprintf("cannot %s %s %d from status %s", e.Action, e.Entity, e.ID, e.From)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrStateConflict
}

// NotFoundError covers both missing rows and rows owned by someone else.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	if e.ID == 0 {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NotFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}
