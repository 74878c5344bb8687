// Package worker runs the background export and reconciliation jobs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blurryplay/savings-tracker/internal/events"
	"github.com/blurryplay/savings-tracker/internal/export"
	"github.com/blurryplay/savings-tracker/internal/storage"
)

// Storage is the slice of the repository the worker needs.
type Storage interface {
	GetTransaction(ctx context.Context, id string) (storage.TransactionRecord, error)
	PendingTransactions(ctx context.Context, limit int) ([]storage.TransactionRecord, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
	PlanIDs(ctx context.Context) ([]string, error)
	ReconcilePlan(ctx context.Context, planID string) (storage.ReconcileResult, error)
}

// ExportWorker copies committed ledger entries from SQLite to an
// external sheet and periodically verifies cached balances.
type ExportWorker struct {
	storage   Storage
	sheet     export.TransactionWriter
	batchSize int
}

func NewExportWorker(st Storage, sheet export.TransactionWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   st,
		sheet:     sheet,
		batchSize: batchSize,
	}
}

// HandleTransactionMessage processes one event from the queue. The
// message carries only identifiers; the record is fetched fresh.
func (w *ExportWorker) HandleTransactionMessage(ctx context.Context, msg *events.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "processing transaction message",
		"transaction_id", msg.TransactionID,
		"plan_id", msg.PlanID)

	rec, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.exportRecord(ctx, rec); err != nil {
		return fmt.Errorf("export transaction: %w", err)
	}
	return nil
}

// ProcessPending exports ledger entries still marked pending. This is
// the backup path for lost queue messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.PendingTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "processing pending transactions", "count", len(pending))

	for _, rec := range pending {
		if err := w.exportRecord(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "failed to export transaction",
				"transaction_id", rec.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck drains a larger pending backlog once at boot, to
// recover from worker downtime.
func (w *ExportWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.PendingTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "no pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "found pending transactions on startup", "count", len(pending))

	synced := 0
	failed := 0
	for _, rec := range pending {
		if err := w.exportRecord(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "failed to export transaction during startup",
				"transaction_id", rec.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

// ReconcileAll recomputes every plan's balance from its transaction
// history and repairs drift. Returns the number of repaired plans.
func (w *ExportWorker) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := w.storage.PlanIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list plan ids: %w", err)
	}

	repaired := 0
	for _, id := range ids {
		res, err := w.storage.ReconcilePlan(ctx, id)
		if err != nil {
			slog.ErrorContext(ctx, "failed to reconcile plan", "plan_id", id, "error", err)
			continue
		}
		if res.Repaired {
			slog.WarnContext(ctx, "repaired drifted balance",
				"plan_id", id,
				"cached", res.Cached,
				"computed", res.Computed)
			repaired++
		}
	}

	if repaired > 0 {
		slog.InfoContext(ctx, "reconciliation sweep repaired plans",
			"plans", len(ids), "repaired", repaired)
	}
	return repaired, nil
}

// RunPeriodic loops the pending-export and reconciliation sweeps until
// the context is cancelled.
func (w *ExportWorker) RunPeriodic(ctx context.Context, syncInterval, reconcileInterval time.Duration) error {
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()
	reconcileTicker := time.NewTicker(reconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-syncTicker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "pending export sweep failed", "error", err)
			}
		case <-reconcileTicker.C:
			if _, err := w.ReconcileAll(ctx); err != nil {
				slog.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportRecord(ctx context.Context, rec storage.TransactionRecord) error {
	ref, err := w.sheet.Append(ctx, rec)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, rec.ID); markErr != nil {
			slog.ErrorContext(ctx, "failed to mark sync error",
				"transaction_id", rec.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, rec.ID); err != nil {
		// The append itself worked; the entry will be retried and
		// deduplicated by transaction id on the sheet side.
		slog.ErrorContext(ctx, "failed to mark as synced",
			"transaction_id", rec.ID, "error", err)
	}

	slog.InfoContext(ctx, "exported transaction",
		"transaction_id", rec.ID,
		"sheet_ref", ref,
		"goal_name", rec.PlanGoalName,
		"amount", rec.Amount)
	return nil
}
