package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/blurryplay/savings-tracker/internal/ledger"
	"github.com/blurryplay/savings-tracker/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "Savings tracker API is running",
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.engine.ListPlans(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "Failed to fetch savings plans")
		return
	}

	out := make([]planJSON, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type createPlanRequest struct {
	GoalName     string  `json:"goalName"`
	TargetAmount float64 `json:"targetAmount"`
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	plan, err := s.engine.CreatePlan(r.Context(), req.GoalName, req.TargetAmount)
	if err != nil {
		writeDomainError(w, r, err, "Failed to create savings plan")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusCreated, toPlanJSON(plan))
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.engine.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err, "Failed to fetch savings plan")
		return
	}
	writeJSON(w, http.StatusOK, toPlanJSON(plan))
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeletePlan(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err, "Failed to delete savings plan")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Savings plan deleted successfully"})
}

type amountRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := s.engine.Contribute(r.Context(), r.PathValue("id"), req.Amount, strings.TrimSpace(req.Description))
	if err != nil {
		writeDomainError(w, r, err, "Failed to add contribution")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]any{
		"contribution": toTransactionJSON(entry.Transaction),
		"plan":         toPlanJSON(entry.Plan),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := s.engine.Withdraw(r.Context(), r.PathValue("id"), req.Amount, strings.TrimSpace(req.Description))
	if err != nil {
		writeDomainError(w, r, err, "Failed to process withdrawal")
		return
	}

	s.invalidateAggregates()
	writeJSON(w, http.StatusOK, map[string]any{
		"withdrawal": toTransactionJSON(entry.Transaction),
		"plan":       toPlanJSON(entry.Plan),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if summary, ok := s.dashboardCache.Get("dashboard"); ok {
		writeJSON(w, http.StatusOK, summary)
		return
	}

	summary, err := s.reporter.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "Failed to fetch dashboard data")
		return
	}

	s.dashboardCache.Set("dashboard", summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := storage.TransactionQuery{
		Limit:  parseIntParam(r, "limit", ledger.DefaultTransactionLimit),
		Offset: parseIntParam(r, "offset", 0),
		PlanID: strings.TrimSpace(r.URL.Query().Get("planId")),
	}
	if query.Limit <= 0 {
		query.Limit = ledger.DefaultTransactionLimit
	}
	if query.Limit > ledger.MaxTransactionLimit {
		query.Limit = ledger.MaxTransactionLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	records, total, err := s.engine.ListTransactions(r.Context(), query)
	if err != nil {
		writeDomainError(w, r, err, "Failed to fetch contributions")
		return
	}

	out := make([]annotatedTransactionJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toAnnotatedJSON(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"total":        total,
		"limit":        query.Limit,
		"offset":       query.Offset,
	})
}

func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	if bundle, ok := s.chartsCache.Get("charts"); ok {
		writeJSON(w, http.StatusOK, bundle)
		return
	}

	bundle := s.reporter.Charts(r.Context())
	s.chartsCache.Set("charts", bundle)
	writeJSON(w, http.StatusOK, bundle)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
