package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/blurryplay/savings-tracker/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states for the transaction export queue.
const (
	SyncPending = "pending"
	SyncDone    = "synced"
	SyncError   = "error"
)

// balanceEpsilon bounds the float drift tolerated before reconciliation
// considers a cached balance wrong.
const balanceEpsilon = 1e-6

// SQLiteRepository is the durable ledger store. It owns the plans and
// transactions tables and provides the atomic multi-write the ledger
// engine relies on.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreatePlan persists a new plan. The caller assigns the id and the
// creation timestamp; the balance starts at zero.
func (r *SQLiteRepository) CreatePlan(ctx context.Context, p core.Plan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plans (id, goal_name, target_amount, current_balance, created_at)
		 VALUES (?, ?, ?, 0, ?)`,
		p.ID, p.GoalName, p.TargetAmount, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}

	slog.InfoContext(ctx, "Plan created",
		"id", p.ID,
		"goal_name", p.GoalName,
		"target_amount", p.TargetAmount)
	return nil
}

// GetPlan loads a plan and its transactions, newest first.
func (r *SQLiteRepository) GetPlan(ctx context.Context, id string) (core.Plan, error) {
	return r.getPlan(ctx, r.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *SQLiteRepository) getPlan(ctx context.Context, q querier, id string) (core.Plan, error) {
	var p core.Plan
	err := q.QueryRowContext(ctx,
		`SELECT id, goal_name, target_amount, current_balance, created_at
		 FROM plans WHERE id = ?`, id).
		Scan(&p.ID, &p.GoalName, &p.TargetAmount, &p.CurrentBalance, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Plan{}, core.ErrPlanNotFound
	}
	if err != nil {
		return core.Plan{}, fmt.Errorf("select plan: %w", err)
	}

	txs, err := r.planTransactions(ctx, q, id)
	if err != nil {
		return core.Plan{}, err
	}
	p.Transactions = txs
	return p, nil
}

func (r *SQLiteRepository) planTransactions(ctx context.Context, q querier, planID string) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, plan_id, amount, COALESCE(description, ''), created_at
		 FROM transactions WHERE plan_id = ?
		 ORDER BY created_at DESC, rowid DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("select plan transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// ListPlans returns every plan with its transactions, plans and
// transactions both ordered newest first.
func (r *SQLiteRepository) ListPlans(ctx context.Context) ([]core.Plan, error) {
	plans, err := r.Plans(ctx)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		txs, err := r.planTransactions(ctx, r.db, plans[i].ID)
		if err != nil {
			return nil, err
		}
		plans[i].Transactions = txs
	}
	return plans, nil
}

// Plans returns every plan without transaction lists, newest first.
// Aggregations only need goal names, targets and cached balances.
func (r *SQLiteRepository) Plans(ctx context.Context) ([]core.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, goal_name, target_amount, current_balance, created_at
		 FROM plans ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("select plans: %w", err)
	}
	defer rows.Close()

	var plans []core.Plan
	for rows.Next() {
		var p core.Plan
		if err := rows.Scan(&p.ID, &p.GoalName, &p.TargetAmount, &p.CurrentBalance, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// DeletePlan removes a plan and cascades to its transactions as one unit.
func (r *SQLiteRepository) DeletePlan(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete plan: %w", err)
	}
	defer tx.Rollback()

	// Explicit child delete; the FK cascade is a safety net.
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE plan_id = ?`, id); err != nil {
		return fmt.Errorf("delete plan transactions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plan rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrPlanNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete plan: %w", err)
	}

	slog.InfoContext(ctx, "Plan deleted", "id", id)
	return nil
}

// ApplyTransaction inserts a ledger entry and moves the plan balance by
// its amount inside a single store transaction. Withdrawals carry a
// conditional balance guard so the cached balance can never go negative
// even if callers race past the engine's per-plan lock.
func (r *SQLiteRepository) ApplyTransaction(ctx context.Context, t core.Transaction) (core.Plan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Plan{}, fmt.Errorf("begin apply transaction: %w", err)
	}
	defer tx.Rollback()

	var res sql.Result
	if t.Amount < 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE plans SET current_balance = current_balance + ?
			 WHERE id = ? AND current_balance + ? >= -?`,
			t.Amount, t.PlanID, t.Amount, balanceEpsilon)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE plans SET current_balance = current_balance + ? WHERE id = ?`,
			t.Amount, t.PlanID)
	}
	if err != nil {
		return core.Plan{}, fmt.Errorf("update plan balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Plan{}, fmt.Errorf("balance update rows affected: %w", err)
	}
	if affected == 0 {
		var balance float64
		err := tx.QueryRowContext(ctx, `SELECT current_balance FROM plans WHERE id = ?`, t.PlanID).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.Plan{}, core.ErrPlanNotFound
		}
		if err != nil {
			return core.Plan{}, fmt.Errorf("select balance: %w", err)
		}
		return core.Plan{}, &core.InsufficientBalanceError{Requested: -t.Amount, Available: balance}
	}

	var description any
	if t.Description != "" {
		description = t.Description
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, plan_id, amount, description, sync_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.PlanID, t.Amount, description, SyncPending, t.CreatedAt); err != nil {
		return core.Plan{}, fmt.Errorf("insert transaction: %w", err)
	}

	plan, err := r.getPlan(ctx, tx, t.PlanID)
	if err != nil {
		return core.Plan{}, err
	}

	if err := tx.Commit(); err != nil {
		return core.Plan{}, fmt.Errorf("commit apply transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction applied",
		"id", t.ID,
		"plan_id", t.PlanID,
		"amount", t.Amount,
		"balance", plan.CurrentBalance)
	return plan, nil
}

// TransactionRecord is a ledger entry annotated with its owning plan,
// as served by the transaction history listing and the export worker.
type TransactionRecord struct {
	core.Transaction
	PlanGoalName string
	SyncStatus   string
}

// TransactionQuery filters and pages the transaction history listing.
type TransactionQuery struct {
	Limit  int
	Offset int
	PlanID string // empty means all plans
}

// ListTransactions returns a page of the transaction history, newest
// first, together with the total count for the same filter.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, q TransactionQuery) ([]TransactionRecord, int64, error) {
	where := ""
	args := []any{}
	if q.PlanID != "" {
		where = " WHERE t.plan_id = ?"
		args = append(args, q.PlanID)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions t`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.plan_id, t.amount, COALESCE(t.description, ''), t.created_at, p.goal_name, t.sync_status
		 FROM transactions t JOIN plans p ON p.id = t.plan_id`+where+`
		 ORDER BY t.created_at DESC, t.rowid DESC
		 LIMIT ? OFFSET ?`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.Amount, &rec.Description, &rec.CreatedAt, &rec.PlanGoalName, &rec.SyncStatus); err != nil {
			return nil, 0, fmt.Errorf("scan transaction record: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// TransactionsSince returns every transaction created at or after the
// given instant, across all plans. A zero time returns the full ledger.
func (r *SQLiteRepository) TransactionsSince(ctx context.Context, since time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, amount, COALESCE(description, ''), created_at
		 FROM transactions WHERE created_at >= ?
		 ORDER BY created_at ASC, rowid ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("select transactions since: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.PlanID, &t.Amount, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountContributions counts positive-amount ledger entries across all
// plans. Withdrawals are excluded.
func (r *SQLiteRepository) CountContributions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE amount > 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return n, nil
}

// GetTransaction loads a single ledger entry with its plan annotation.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (TransactionRecord, error) {
	var rec TransactionRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT t.id, t.plan_id, t.amount, COALESCE(t.description, ''), t.created_at, p.goal_name, t.sync_status
		 FROM transactions t JOIN plans p ON p.id = t.plan_id
		 WHERE t.id = ?`, id).
		Scan(&rec.ID, &rec.PlanID, &rec.Amount, &rec.Description, &rec.CreatedAt, &rec.PlanGoalName, &rec.SyncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return TransactionRecord{}, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return TransactionRecord{}, fmt.Errorf("select transaction: %w", err)
	}
	return rec, nil
}

// PendingTransactions returns ledger entries still waiting for export.
func (r *SQLiteRepository) PendingTransactions(ctx context.Context, limit int) ([]TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.plan_id, t.amount, COALESCE(t.description, ''), t.created_at, p.goal_name, t.sync_status
		 FROM transactions t JOIN plans p ON p.id = t.plan_id
		 WHERE t.sync_status = ?
		 ORDER BY t.created_at ASC
		 LIMIT ?`, SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending transactions: %w", err)
	}
	defer rows.Close()

	var records []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.Amount, &rec.Description, &rec.CreatedAt, &rec.PlanGoalName, &rec.SyncStatus); err != nil {
			return nil, fmt.Errorf("scan pending transaction: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkSynced records a successful export of a ledger entry.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncDone, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

// MarkSyncError records a failed export attempt.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncError, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// ReconcileResult reports one plan's cached balance against the signed
// sum of its transactions.
type ReconcileResult struct {
	PlanID   string
	Cached   float64
	Computed float64
	Repaired bool
}

// ReconcilePlan recomputes a plan's balance from its transactions and
// repairs the cached value when it drifted. The check and the repair
// run in one store transaction.
func (r *SQLiteRepository) ReconcilePlan(ctx context.Context, planID string) (ReconcileResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("begin reconcile: %w", err)
	}
	defer tx.Rollback()

	result := ReconcileResult{PlanID: planID}
	err = tx.QueryRowContext(ctx, `SELECT current_balance FROM plans WHERE id = ?`, planID).Scan(&result.Cached)
	if errors.Is(err, sql.ErrNoRows) {
		return ReconcileResult{}, core.ErrPlanNotFound
	}
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("select cached balance: %w", err)
	}

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE plan_id = ?`, planID).
		Scan(&result.Computed); err != nil {
		return ReconcileResult{}, fmt.Errorf("sum transactions: %w", err)
	}

	if math.Abs(result.Cached-result.Computed) > balanceEpsilon {
		if _, err := tx.ExecContext(ctx,
			`UPDATE plans SET current_balance = ? WHERE id = ?`, result.Computed, planID); err != nil {
			return ReconcileResult{}, fmt.Errorf("repair balance: %w", err)
		}
		result.Repaired = true
		slog.WarnContext(ctx, "Balance drift repaired",
			"plan_id", planID,
			"cached", result.Cached,
			"computed", result.Computed)
	}

	if err := tx.Commit(); err != nil {
		return ReconcileResult{}, fmt.Errorf("commit reconcile: %w", err)
	}
	return result, nil
}

// PlanIDs returns the ids of every plan, for reconciliation sweeps.
func (r *SQLiteRepository) PlanIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM plans`)
	if err != nil {
		return nil, fmt.Errorf("select plan ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan plan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
