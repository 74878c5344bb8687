package worker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/blurryplay/savings-tracker/internal/core"
	"github.com/blurryplay/savings-tracker/internal/events"
	"github.com/blurryplay/savings-tracker/internal/export/memory"
	"github.com/blurryplay/savings-tracker/internal/storage"
)

func newTestWorker(t *testing.T) (*ExportWorker, *storage.SQLiteRepository, *memory.Store, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "worker.db")
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	sheet := memory.New()
	return NewExportWorker(repo, sheet, 10), repo, sheet, dbPath
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository, amount float64) core.Transaction {
	t.Helper()
	ctx := context.Background()
	plan := core.Plan{
		ID:           uuid.NewString(),
		GoalName:     "School Fees",
		TargetAmount: 10000,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	tx := core.Transaction{
		ID:        uuid.NewString(),
		PlanID:    plan.ID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := repo.ApplyTransaction(ctx, tx); err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	return tx
}

func TestHandleTransactionMessage(t *testing.T) {
	w, repo, sheet, _ := newTestWorker(t)
	ctx := context.Background()
	tx := seedTransaction(t, repo, 2500)

	msg := events.NewTransactionRecordedMessage(tx.ID, tx.PlanID)
	if err := w.HandleTransactionMessage(ctx, msg); err != nil {
		t.Fatalf("HandleTransactionMessage: %v", err)
	}

	rows := sheet.Rows()
	if len(rows) != 1 {
		t.Fatalf("sheet rows = %d, want 1", len(rows))
	}
	if rows[0].ID != tx.ID || rows[0].PlanGoalName != "School Fees" {
		t.Errorf("exported row = %+v", rows[0])
	}

	rec, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if rec.SyncStatus != storage.SyncDone {
		t.Errorf("sync status = %q, want %q", rec.SyncStatus, storage.SyncDone)
	}
}

func TestHandleTransactionMessageUnknownID(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	msg := events.NewTransactionRecordedMessage("missing", "plan")
	if err := w.HandleTransactionMessage(context.Background(), msg); err == nil {
		t.Error("unknown transaction id should fail so the message is requeued")
	}
}

func TestProcessPendingDrainsBacklog(t *testing.T) {
	w, repo, sheet, _ := newTestWorker(t)
	ctx := context.Background()

	txs := []core.Transaction{
		seedTransaction(t, repo, 100),
		seedTransaction(t, repo, 200),
		seedTransaction(t, repo, -50),
	}

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if got := len(sheet.Rows()); got != len(txs) {
		t.Fatalf("exported rows = %d, want %d", got, len(txs))
	}

	pending, err := repo.PendingTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("PendingTransactions: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after drain = %d, want 0", len(pending))
	}

	// A second sweep is a no-op.
	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("second ProcessPending: %v", err)
	}
	if got := len(sheet.Rows()); got != len(txs) {
		t.Errorf("rows after second sweep = %d, want %d", got, len(txs))
	}
}

func TestFailedAppendMarksSyncError(t *testing.T) {
	w, repo, sheet, _ := newTestWorker(t)
	ctx := context.Background()
	tx := seedTransaction(t, repo, 100)
	sheet.FailAppends(true)

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}

	rec, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if rec.SyncStatus != storage.SyncError {
		t.Errorf("sync status = %q, want %q", rec.SyncStatus, storage.SyncError)
	}
}

func TestReconcileAllRepairsDrift(t *testing.T) {
	w, repo, _, dbPath := newTestWorker(t)
	ctx := context.Background()
	tx := seedTransaction(t, repo, 1000)

	// Corrupt the cached balance through a second connection, bypassing
	// the repository.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `UPDATE plans SET current_balance = 4242 WHERE id = ?`, tx.PlanID); err != nil {
		t.Fatalf("corrupt balance: %v", err)
	}

	repaired, err := w.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if repaired != 1 {
		t.Errorf("repaired = %d, want 1", repaired)
	}

	plan, err := repo.GetPlan(ctx, tx.PlanID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if plan.CurrentBalance != 1000 {
		t.Errorf("balance after reconcile = %v, want 1000", plan.CurrentBalance)
	}

	// Clean state reconciles without repairs.
	repaired, err = w.ReconcileAll(ctx)
	if err != nil {
		t.Fatalf("second ReconcileAll: %v", err)
	}
	if repaired != 0 {
		t.Errorf("repaired on clean state = %d, want 0", repaired)
	}
}
