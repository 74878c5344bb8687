package core

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed or out-of-policy input. Callers recover
// by correcting the input; these are never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validation failures shared across the ledger operations.
var (
	ErrEmptyGoalName       = &ValidationError{Reason: "goal name is required"}
	ErrGoalNameTooLong     = &ValidationError{Reason: fmt.Sprintf("goal name too long (max %d characters)", MaxGoalNameLen)}
	ErrInvalidTargetAmount = &ValidationError{Reason: "target amount must be positive"}
	ErrInvalidAmount       = &ValidationError{Reason: "amount must be positive"}
)

// ErrPlanNotFound reports that the referenced plan does not exist.
var ErrPlanNotFound = errors.New("savings plan not found")

// InsufficientBalanceError reports a withdrawal that exceeds the plan's
// balance at the time of the call. The operation leaves no trace when it
// fails with this error.
type InsufficientBalanceError struct {
	Requested float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: cannot withdraw %.2f, only %.2f available", e.Requested, e.Available)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var ie *InsufficientBalanceError
	return errors.As(err, &ie)
}
