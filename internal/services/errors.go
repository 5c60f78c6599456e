// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/localgov/planning-backoffice/internal/utils"
	"github.com/localgov/planning-backoffice/internal/workflow"
)

// InvalidTransitionError means the persisted state does not allow the operation.
type InvalidTransitionError = workflow.InvalidTransitionError

var ErrNotFound = errors.New("not found")

// ValidationErrors is a field-level problem list the caller can redisplay in one go.
type ValidationErrors struct {
	Fields []utils.ValidationError
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationErrors) Add(field, tag, message string) {
	e.Fields = append(e.Fields, utils.ValidationError{Field: field, Tag: tag, Message: message})
}

// OrNil returns nil when no problems were collected.
func (e *ValidationErrors) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, tag, message string) error {
	v := &ValidationErrors{}
	v.Add(field, tag, message)
	return v
}

// validateStruct runs the struct validator and converts its output.
func validateStruct(s interface{}) error {
	err := utils.ValidateStruct(s)
	if err == nil {
		return nil
	}
	fields := utils.GetValidationErrors(err)
	if len(fields) == 0 {
		return fmt.Errorf("validation failed: %w", err)
	}
	return &ValidationErrors{Fields: fields}
}

// ConflictError is an "already in progress" clash with another live record.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

type NotDestroyableError struct {
	Resource string
	State    string
}

func (e *NotDestroyableError) Error() string {
	return fmt.Sprintf("%s cannot be deleted in state %s", e.Resource, e.State)
}

type NotCreatableError struct {
	Reason string
}

func (e *NotCreatableError) Error() string {
	return "review cannot be created: " + e.Reason
}

// PersistenceError wraps a failed transaction; nothing was applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// classify leaves typed errors alone and wraps anything else as a PersistenceError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		validation  *ValidationErrors
		transition  *InvalidTransitionError
		conflict    *ConflictError
		destroyable *NotDestroyableError
		creatable   *NotCreatableError
		persistence *PersistenceError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &transition), errors.As(err, &conflict),
		errors.As(err, &destroyable), errors.As(err, &creatable), errors.As(err, &persistence),
		errors.Is(err, ErrNotFound):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
