package export

import (
	"context"

	"github.com/blurryplay/savings-tracker/internal/storage"
)

// TransactionWriter appends committed ledger entries to an external
// sheet or log.
type TransactionWriter interface {
	Append(ctx context.Context, rec storage.TransactionRecord) (rowRef string, err error)
}
