package overrides

import (
	"context"
	"fmt"

	"mapkeep/internal/keys"
	"mapkeep/internal/logging"
	"mapkeep/internal/store"
)

// Migrator upgrades legacy records before a load. Implementations must be
// best-effort: failures are theirs to log, never the caller's to handle.
type Migrator interface {
	Migrate(ctx context.Context, id keys.Identity)
}

// Store loads and saves override records through a persistence driver.
//
// The store does not lock per identity. Callers treat save followed by a
// reload as their unit of atomicity.
type Store struct {
	driver   store.Driver
	migrator Migrator
}

// NewStore returns a store over driver. migrator may be nil.
func NewStore(driver store.Driver, migrator Migrator) *Store {
	return &Store{driver: driver, migrator: migrator}
}

// Driver returns the underlying persistence driver.
func (s *Store) Driver() store.Driver {
	return s.driver
}

// Load returns the record for id. A missing key yields an empty record.
func (s *Store) Load(ctx context.Context, id keys.Identity) (*Record, error) {
	rec := NewRecord(id)
	if err := s.Reload(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reload re-reads rec from storage in place.
func (s *Store) Reload(ctx context.Context, rec *Record) error {
	if rec.detached {
		rec.apply(StorageObject{})
		return nil
	}
	if s.migrator != nil {
		s.migrator.Migrate(ctx, rec.Identity)
	}

	obj, _, err := store.GetJSON[StorageObject](ctx, s.driver, rec.Key())
	if err != nil {
		return fmt.Errorf("load %s: %w", rec.Identity, err)
	}
	rec.apply(obj)
	logging.StoreDebug("Loaded %s (empty=%v)", rec.Key(), rec.IsEmpty())
	return nil
}

// Save persists rec. Empty records are removed rather than written.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.detached {
		return nil
	}
	key := rec.Key()
	if rec.IsEmpty() {
		if err := s.driver.Remove(ctx, key); err != nil {
			return fmt.Errorf("save %s: %w", rec.Identity, err)
		}
		logging.Audit(logging.AuditEvent{Type: logging.AuditRecordRemoved, Key: key, Success: true})
		return nil
	}
	if err := store.SetJSON(ctx, s.driver, key, rec.Object()); err != nil {
		return fmt.Errorf("save %s: %w", rec.Identity, err)
	}
	logging.Audit(logging.AuditEvent{Type: logging.AuditRecordSaved, Key: key, Success: true})
	return nil
}

// Clear removes the stored record and reloads rec in place, so pointers held
// by other components stay current.
func (s *Store) Clear(ctx context.Context, rec *Record) error {
	if rec.detached {
		return nil
	}
	if err := s.driver.Remove(ctx, rec.Key()); err != nil {
		return fmt.Errorf("clear %s: %w", rec.Identity, err)
	}
	logging.Audit(logging.AuditEvent{Type: logging.AuditRecordCleared, Key: rec.Key(), Success: true})
	return s.Reload(ctx, rec)
}
