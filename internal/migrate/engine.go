// Package migrate upgrades legacy override records to the current key layout.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mapkeep/internal/keys"
	"mapkeep/internal/logging"
	"mapkeep/internal/store"
)

// ErrNoLegacyData is returned by Force when there is nothing to migrate.
var ErrNoLegacyData = errors.New("migrate: no legacy data")

// State is the migration state of one identity.
type State int

const (
	Unmigrated State = iota
	Migrated
)

func (s State) String() string {
	if s == Migrated {
		return "migrated"
	}
	return "unmigrated"
}

// Engine migrates v1 records into v2 keys. The legacy entry is never removed.
type Engine struct {
	driver store.Driver

	mu    sync.Mutex
	state map[string]State
}

// NewEngine returns an engine writing through driver.
func NewEngine(driver store.Driver) *Engine {
	return &Engine{driver: driver, state: make(map[string]State)}
}

// State returns the in-process state of id.
func (e *Engine) State(id keys.Identity) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[keys.V2Key(id)]
}

// Migrate runs the migration for id at most once per process. Failures are
// logged and swallowed; id is considered migrated afterwards either way.
func (e *Engine) Migrate(ctx context.Context, id keys.Identity) {
	k := keys.V2Key(id)

	e.mu.Lock()
	if e.state[k] == Migrated {
		e.mu.Unlock()
		return
	}
	e.state[k] = Migrated
	e.mu.Unlock()

	if err := e.migrate(ctx, id); err != nil {
		logging.MigrateWarn("Migration of %s failed, continuing without overrides: %v", id, err)
	}
}

func (e *Engine) migrate(ctx context.Context, id keys.Identity) error {
	_, marked, err := e.driver.Get(ctx, keys.MigratedKey(id))
	if err != nil {
		return fmt.Errorf("read marker: %w", err)
	}
	if marked {
		return nil
	}

	_, hasV2, err := e.driver.Get(ctx, keys.V2Key(id))
	if err != nil {
		return fmt.Errorf("read v2: %w", err)
	}
	if hasV2 {
		return nil
	}

	err = e.transform(ctx, id)
	if errors.Is(err, ErrNoLegacyData) {
		return nil
	}
	return err
}

// Force re-runs the transformation for id, ignoring state and marker.
func (e *Engine) Force(ctx context.Context, id keys.Identity) error {
	e.mu.Lock()
	e.state[keys.V2Key(id)] = Migrated
	e.mu.Unlock()
	return e.transform(ctx, id)
}

func (e *Engine) transform(ctx context.Context, id keys.Identity) error {
	timer := logging.StartTimer(logging.CategoryMigrate, "transform")
	defer timer.Stop()

	legacy, ok, err := store.GetJSON[LegacyObject](ctx, e.driver, keys.V1Key(id))
	if err != nil {
		return fmt.Errorf("read v1: %w", err)
	}
	if !ok || legacy.IsEmpty() {
		return ErrNoLegacyData
	}

	obj := Transform(legacy, id.MapID)
	if obj.IsEmpty() {
		if err := e.driver.Remove(ctx, keys.V2Key(id)); err != nil {
			return fmt.Errorf("write v2: %w", err)
		}
	} else if err := store.SetJSON(ctx, e.driver, keys.V2Key(id), obj); err != nil {
		return fmt.Errorf("write v2: %w", err)
	}
	if err := e.driver.Set(ctx, keys.MigratedKey(id), []byte("true")); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}

	logging.Migrate("Migrated %s from %s", id, keys.V1Key(id))
	logging.Audit(logging.AuditEvent{Type: logging.AuditRecordMigrated, Key: keys.V2Key(id), Success: true})
	return nil
}
