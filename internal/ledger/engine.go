package ledger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blurryplay/savings-tracker/internal/core"
	"github.com/blurryplay/savings-tracker/internal/storage"
)

// Default page size for the transaction history listing.
const (
	DefaultTransactionLimit = 50
	MaxTransactionLimit     = 200
)

// Store is the durable ledger store the engine writes through.
// ApplyTransaction must insert the ledger entry and move the plan
// balance as one atomic unit, or leave no trace at all.
type Store interface {
	CreatePlan(ctx context.Context, p core.Plan) error
	GetPlan(ctx context.Context, id string) (core.Plan, error)
	ListPlans(ctx context.Context) ([]core.Plan, error)
	DeletePlan(ctx context.Context, id string) error
	ApplyTransaction(ctx context.Context, t core.Transaction) (core.Plan, error)
	ListTransactions(ctx context.Context, q storage.TransactionQuery) ([]storage.TransactionRecord, int64, error)
	ReconcilePlan(ctx context.Context, planID string) (storage.ReconcileResult, error)
}

// EventPublisher announces applied ledger entries to downstream
// consumers (the export worker). Publishing is best effort; a failed
// publish never fails the ledger operation.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, txID, planID string) error
}

// Engine is the balance engine: the only component that writes
// transactions and plan balances. It serializes mutating operations per
// plan so a withdrawal's balance check and balance update cannot
// interleave with another writer on the same plan.
type Engine struct {
	store  Store
	events EventPublisher // may be nil

	mu        sync.Mutex
	planLocks map[string]*sync.Mutex
}

func NewEngine(store Store, events EventPublisher) *Engine {
	return &Engine{
		store:     store,
		events:    events,
		planLocks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(planID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.planLocks[planID]
	if !ok {
		l = &sync.Mutex{}
		e.planLocks[planID] = l
	}
	return l
}

func (e *Engine) forgetLock(planID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.planLocks, planID)
}

// LedgerEntry pairs an applied transaction with the plan state it left
// behind, as returned by Contribute and Withdraw.
type LedgerEntry struct {
	Transaction core.Transaction
	Plan        core.Plan
}

// CreatePlan validates and persists a new savings plan with a zero
// balance.
func (e *Engine) CreatePlan(ctx context.Context, goalName string, targetAmount float64) (core.Plan, error) {
	name, err := core.NormalizeGoalName(goalName)
	if err != nil {
		return core.Plan{}, err
	}
	if err := core.ValidateTargetAmount(targetAmount); err != nil {
		return core.Plan{}, err
	}

	p := core.Plan{
		ID:           uuid.NewString(),
		GoalName:     name,
		TargetAmount: targetAmount,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreatePlan(ctx, p); err != nil {
		return core.Plan{}, err
	}
	return p, nil
}

// Contribute appends a positive ledger entry and moves the plan balance
// up by the same amount, atomically.
func (e *Engine) Contribute(ctx context.Context, planID string, amount float64, description string) (LedgerEntry, error) {
	if err := core.ValidateAmount(amount); err != nil {
		return LedgerEntry{}, err
	}

	l := e.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	t := core.Transaction{
		ID:          uuid.NewString(),
		PlanID:      planID,
		Amount:      amount,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	plan, err := e.store.ApplyTransaction(ctx, t)
	if err != nil {
		return LedgerEntry{}, err
	}

	e.publish(ctx, t)
	return LedgerEntry{Transaction: t, Plan: plan}, nil
}

// Withdraw appends a negative ledger entry after checking the amount
// against the balance read at the start of the operation. The per-plan
// lock keeps that check and the balance update serialized, so two
// concurrent withdrawals cannot both pass validation against a stale
// balance.
func (e *Engine) Withdraw(ctx context.Context, planID string, amount float64, description string) (LedgerEntry, error) {
	if err := core.ValidateAmount(amount); err != nil {
		return LedgerEntry{}, err
	}

	l := e.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if amount > plan.CurrentBalance {
		return LedgerEntry{}, &core.InsufficientBalanceError{
			Requested: amount,
			Available: plan.CurrentBalance,
		}
	}

	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = core.WithdrawalDescription
	}
	t := core.Transaction{
		ID:          uuid.NewString(),
		PlanID:      planID,
		Amount:      -amount,
		Description: desc,
		CreatedAt:   time.Now().UTC(),
	}
	updated, err := e.store.ApplyTransaction(ctx, t)
	if err != nil {
		return LedgerEntry{}, err
	}

	e.publish(ctx, t)
	return LedgerEntry{Transaction: t, Plan: updated}, nil
}

// DeletePlan removes a plan and all of its transactions as one unit.
func (e *Engine) DeletePlan(ctx context.Context, planID string) error {
	l := e.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	if err := e.store.DeletePlan(ctx, planID); err != nil {
		return err
	}
	e.forgetLock(planID)
	return nil
}

// GetPlan returns a single plan with its transactions, newest first.
func (e *Engine) GetPlan(ctx context.Context, planID string) (core.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// ListPlans returns all plans, newest first, each with its transactions.
func (e *Engine) ListPlans(ctx context.Context) ([]core.Plan, error) {
	return e.store.ListPlans(ctx)
}

// ListTransactions returns a page of the transaction history. Limits
// outside [1, MaxTransactionLimit] and negative offsets fall back to
// the defaults.
func (e *Engine) ListTransactions(ctx context.Context, q storage.TransactionQuery) ([]storage.TransactionRecord, int64, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultTransactionLimit
	}
	if q.Limit > MaxTransactionLimit {
		q.Limit = MaxTransactionLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return e.store.ListTransactions(ctx, q)
}

// Reconcile recomputes a plan's balance from its transactions and
// repairs drift, under the same per-plan lock the mutators use.
func (e *Engine) Reconcile(ctx context.Context, planID string) (storage.ReconcileResult, error) {
	l := e.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	return e.store.ReconcilePlan(ctx, planID)
}

func (e *Engine) publish(ctx context.Context, t core.Transaction) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishTransactionRecorded(ctx, t.ID, t.PlanID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"transaction_id", t.ID,
			"plan_id", t.PlanID,
			"error", err)
	}
}
