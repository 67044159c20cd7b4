package service

import (
	"errors"
	"fmt"

	"backoffice/internal/database"
)

var (
	// ErrUnauthenticated means the credential was missing or rejected.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrTransitionConflict is returned when concurrent writers kept winning the
	// same rows. The operation left no trace and can be retried as-is.
	ErrTransitionConflict = database.ErrConflict
)

// DeniedError is an authenticated caller lacking the role or module level.
type DeniedError struct {
	Module string
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Module == "" {
		return "access denied: " + e.Reason
	}
	return fmt.Sprintf("access denied to %s: %s", e.Module, e.Reason)
}

// ValidationError is a client-correctable problem with the request payload.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NegativeStockError rejects an adjustment that would take a counter below zero.
type NegativeStockError struct {
	TargetKind string `json:"target_kind"`
	TargetID   string `json:"target_id"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
}

func (e *NegativeStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s %s: requested %d, available %d",
		e.TargetKind, e.TargetID, e.Requested, e.Available)
}

// NotFoundError covers missing products, variants, orders and accounts.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func notFound(kind string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id.String()}
}
