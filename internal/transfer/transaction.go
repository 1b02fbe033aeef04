package transfer

import (
	"context"
	"errors"
	"fmt"

	"mapkeep/internal/logging"
	"mapkeep/internal/store"
)

type snapshot struct {
	value  []byte
	exists bool
}

// Transaction records the raw bytes of a set of keys so a failed multi-step
// write can put them back exactly as they were.
type Transaction struct {
	driver store.Driver
	keys   []string
	saved  map[string]snapshot
	done   bool
}

// Begin snapshots keys.
func Begin(ctx context.Context, d store.Driver, keys ...string) (*Transaction, error) {
	tx := &Transaction{driver: d, keys: keys, saved: make(map[string]snapshot, len(keys))}
	for _, k := range keys {
		v, ok, err := d.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", k, err)
		}
		tx.saved[k] = snapshot{value: v, exists: ok}
	}
	return tx, nil
}

// Commit ends the transaction, keeping every write made since Begin.
func (tx *Transaction) Commit() {
	tx.done = true
	logging.Audit(logging.AuditEvent{Type: logging.AuditImportCommit, Success: true})
}

// Rollback restores every snapshotted key: previous bytes are written back,
// keys that did not exist are removed. Rollback after Commit is a no-op.
func (tx *Transaction) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true

	var errs []error
	for _, k := range tx.keys {
		s := tx.saved[k]
		var err error
		if s.exists {
			err = tx.driver.Set(ctx, k, s.value)
		} else {
			err = tx.driver.Remove(ctx, k)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %q: %w", k, err))
		}
	}
	err := errors.Join(errs...)
	logging.Audit(logging.AuditEvent{Type: logging.AuditImportRollback, Success: err == nil})
	return err
}
