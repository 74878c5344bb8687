package core

import (
	"testing"
)

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		name    string
		balance float64
		target  float64
		want    int
	}{
		{"empty plan", 0, 15000, 0},
		{"one third", 5000, 15000, 33},
		{"exact half", 5000, 10000, 50},
		{"complete", 10000, 10000, 100},
		{"over target stays unclamped", 12000, 10000, 120},
		{"zero target guards division", 5000, 0, 0},
		{"negative target guards division", 5000, -1, 0},
		{"rounds half up", 125, 1000, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressPercentage(tt.balance, tt.target)
			if got != tt.want {
				t.Errorf("ProgressPercentage(%v, %v) = %d, want %d", tt.balance, tt.target, got, tt.want)
			}
		})
	}
}

func TestPlanProgress(t *testing.T) {
	p := Plan{GoalName: "School Fees", TargetAmount: 15000, CurrentBalance: 5000}
	if got := p.Progress(); got != 33 {
		t.Errorf("Progress() = %d, want 33", got)
	}
}

func TestNormalizeGoalName(t *testing.T) {
	long := make([]byte, MaxGoalNameLen+1)
	for i := range long {
		long[i] = 'a'
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain name", "School Fees", "School Fees", nil},
		{"trims whitespace", "  Emergency Fund  ", "Emergency Fund", nil},
		{"empty", "", "", ErrEmptyGoalName},
		{"whitespace only", "   ", "", ErrEmptyGoalName},
		{"too long", string(long), "", ErrGoalNameTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeGoalName(tt.input)
			if err != tt.wantErr {
				t.Fatalf("NormalizeGoalName(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("NormalizeGoalName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateAmounts(t *testing.T) {
	if err := ValidateTargetAmount(10000); err != nil {
		t.Errorf("ValidateTargetAmount(10000) = %v, want nil", err)
	}
	for _, bad := range []float64{0, -1, -0.01} {
		if err := ValidateTargetAmount(bad); err != ErrInvalidTargetAmount {
			t.Errorf("ValidateTargetAmount(%v) = %v, want ErrInvalidTargetAmount", bad, err)
		}
		if err := ValidateAmount(bad); err != ErrInvalidAmount {
			t.Errorf("ValidateAmount(%v) = %v, want ErrInvalidAmount", bad, err)
		}
	}
	if err := ValidateAmount(0.01); err != nil {
		t.Errorf("ValidateAmount(0.01) = %v, want nil", err)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsValidation(ErrInvalidAmount) {
		t.Error("ErrInvalidAmount should classify as validation error")
	}
	if IsValidation(ErrPlanNotFound) {
		t.Error("ErrPlanNotFound should not classify as validation error")
	}
	ie := &InsufficientBalanceError{Requested: 6000, Available: 5000}
	if !IsInsufficientBalance(ie) {
		t.Error("InsufficientBalanceError should classify as insufficient balance")
	}
	if IsInsufficientBalance(ErrInvalidAmount) {
		t.Error("validation error should not classify as insufficient balance")
	}
}
