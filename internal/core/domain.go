package core

import (
	"math"
	"strings"
	"time"
)

const (
	// MaxGoalNameLen mirrors the upstream form limit.
	MaxGoalNameLen = 100

	// WithdrawalDescription is stored when a withdrawal omits a description.
	WithdrawalDescription = "Withdrawal"
)

type (
	// Plan is a savings goal with a target amount and a cached running
	// balance. CurrentBalance is derived state: it equals the signed sum
	// of the plan's transactions at all times and is mutated only through
	// the ledger engine, never directly.
	Plan struct {
		ID             string
		GoalName       string
		TargetAmount   float64
		CurrentBalance float64
		CreatedAt      time.Time
		Transactions   []Transaction
	}

	// Transaction is a single signed ledger entry against a plan.
	// Positive amounts are contributions, negative amounts are
	// withdrawals. Zero is never a valid stored amount.
	Transaction struct {
		ID          string
		PlanID      string
		Amount      float64
		Description string // empty means no description was given
		CreatedAt   time.Time
	}
)

// Progress returns the plan's progress toward its target as a rounded,
// unclamped percentage. Display layers clamp; the raw value is canonical.
func (p Plan) Progress() int {
	return ProgressPercentage(p.CurrentBalance, p.TargetAmount)
}

// ProgressPercentage computes round(balance/target*100), or 0 when the
// target is not positive.
func ProgressPercentage(balance, target float64) int {
	if target <= 0 {
		return 0
	}
	return int(math.Round(balance / target * 100))
}

// NormalizeGoalName trims the goal name and validates it against policy.
func NormalizeGoalName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyGoalName
	}
	if len(name) > MaxGoalNameLen {
		return "", ErrGoalNameTooLong
	}
	return name, nil
}

// ValidateTargetAmount checks that a plan target is a positive finite number.
func ValidateTargetAmount(target float64) error {
	if math.IsNaN(target) || math.IsInf(target, 0) || target <= 0 {
		return ErrInvalidTargetAmount
	}
	return nil
}

// ValidateAmount checks that a contribution or withdrawal magnitude is a
// positive finite number. The sign is applied by the ledger engine.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
