// Package memory is an in-process TransactionWriter used in tests and
// local development when no spreadsheet is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blurryplay/savings-tracker/internal/storage"
)

type Store struct {
	mu   sync.Mutex
	rows []storage.TransactionRecord
	fail bool
}

func New() *Store {
	return &Store{}
}

// FailAppends makes every subsequent Append fail, for exercising error
// paths.
func (s *Store) FailAppends(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, rec storage.TransactionRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("append disabled")
	}
	s.rows = append(s.rows, rec)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of everything appended so far.
func (s *Store) Rows() []storage.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.TransactionRecord(nil), s.rows...)
}
