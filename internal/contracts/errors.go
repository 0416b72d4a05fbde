package contracts

import (
	"errors"
	"fmt"
)

// ⭐ SSOT: 도메인 에러 분류는 여기서만 정의
var (
	ErrInsufficientData  = errors.New("insufficient data")
	ErrNotFound          = errors.New("entity not found")
	ErrBusinessRule      = errors.New("business rule violation")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("conflict")
)

// InsufficientDataError is returned when history is too short to forecast.
type InsufficientDataError struct {
	Operation string
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: need at least %d history points, got %d", e.Operation, e.Required, e.Available)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// BusinessRuleError is returned when an operation is rejected by a domain rule.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *BusinessRuleError) Unwrap() error { return ErrBusinessRule }

// TransitionError is returned when a state machine move is not allowed.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError is returned when an optimistic version check fails.
type ConflictError struct {
	Entity          string
	ID              any
	ExpectedVersion int
	ActualVersion   int
}

func (e *ConflictError) Error() string {
	if e.ActualVersion > 0 {
		return fmt.Sprintf("%s %v: version conflict (expected %d, current %d)", e.Entity, e.ID, e.ExpectedVersion, e.ActualVersion)
	}
	return fmt.Sprintf("%s %v: version conflict (expected %d)", e.Entity, e.ID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
