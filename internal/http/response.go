package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/blurryplay/savings-tracker/internal/core"
	"github.com/blurryplay/savings-tracker/internal/storage"
)

// transactionJSON is the wire shape of a ledger entry. Description is
// null when the caller gave none.
type transactionJSON struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"planId"`
	Amount      float64   `json:"amount"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// planJSON is the wire shape of a plan, with the derived progress and
// newest-first transaction history.
type planJSON struct {
	ID                 string            `json:"id"`
	GoalName           string            `json:"goalName"`
	TargetAmount       float64           `json:"targetAmount"`
	CurrentBalance     float64           `json:"currentBalance"`
	CreatedAt          time.Time         `json:"createdAt"`
	ProgressPercentage int               `json:"progressPercentage"`
	Contributions      []transactionJSON `json:"contributions"`
}

// annotatedTransactionJSON adds the owning plan's name for history
// listings.
type annotatedTransactionJSON struct {
	transactionJSON
	GoalName string `json:"goalName"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	out := transactionJSON{
		ID:        t.ID,
		PlanID:    t.PlanID,
		Amount:    t.Amount,
		CreatedAt: t.CreatedAt,
	}
	if t.Description != "" {
		desc := t.Description
		out.Description = &desc
	}
	return out
}

func toPlanJSON(p core.Plan) planJSON {
	out := planJSON{
		ID:                 p.ID,
		GoalName:           p.GoalName,
		TargetAmount:       p.TargetAmount,
		CurrentBalance:     p.CurrentBalance,
		CreatedAt:          p.CreatedAt,
		ProgressPercentage: p.Progress(),
		Contributions:      make([]transactionJSON, 0, len(p.Transactions)),
	}
	for _, t := range p.Transactions {
		out.Contributions = append(out.Contributions, toTransactionJSON(t))
	}
	return out
}

func toAnnotatedJSON(rec storage.TransactionRecord) annotatedTransactionJSON {
	return annotatedTransactionJSON{
		transactionJSON: toTransactionJSON(rec.Transaction),
		GoalName:        rec.PlanGoalName,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps error kinds onto HTTP statuses. Validation and
// balance failures are client errors, unknown plans are 404, everything
// else is a 500 with a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var insufficient *core.InsufficientBalanceError
	switch {
	case core.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "Savings plan not found")
	case errors.As(err, &insufficient):
		writeError(w, http.StatusBadRequest, "Insufficient balance. Cannot withdraw more than current balance.")
	default:
		slog.ErrorContext(r.Context(), fallback, "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
