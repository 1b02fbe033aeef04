package overrides

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"mapkeep/internal/keys"
	"mapkeep/internal/logging"
)

// Maps binds one game and user to the records of several maps. Mini-map
// pages show more than one map at a time; regular pages hold exactly one.
//
// Maps is safe for concurrent use. Each record has its own lock, held across
// a mutation and the save that follows it, so two requests never interleave
// on one record. Readers get snapshots.
type Maps struct {
	store   *Store
	current keys.Identity
	hasUser bool
	// records is fixed at construction; only the entries are mutated.
	records map[int]*entry
}

type entry struct {
	mu  sync.Mutex
	rec *Record
}

// NewMaps creates records for every map id under current's game and user.
// current.MapID is always included. hasUser false means no signed-in user:
// the current record is then detached and never persisted.
func NewMaps(s *Store, current keys.Identity, hasUser bool, mapIDs ...int) *Maps {
	m := &Maps{
		store:   s,
		current: current,
		hasUser: hasUser,
		records: make(map[int]*entry),
	}
	m.records[current.MapID] = &entry{rec: NewRecord(current)}
	for _, id := range mapIDs {
		if _, ok := m.records[id]; !ok {
			m.records[id] = &entry{rec: NewRecord(current.WithMap(id))}
		}
	}
	return m
}

// Identity returns the identity of the current map.
func (m *Maps) Identity() keys.Identity {
	return m.current
}

// Store returns the backing store.
func (m *Maps) Store() *Store {
	return m.store
}

// Current returns a snapshot of the current map's record.
func (m *Maps) Current() *Record {
	if !m.hasUser {
		return Detached()
	}
	rec, _ := m.Record(m.current.MapID)
	return rec
}

// Record returns a snapshot of the record of mapID, if that map is bound.
func (m *Maps) Record(mapID int) (*Record, bool) {
	e, ok := m.records[mapID]
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Snapshot(), true
}

// Update applies fn to the current map's record and saves it, holding the
// record's lock throughout. When fn or the save fails the record keeps its
// previous state and nothing is written. On success Update returns a
// snapshot of the saved record.
func (m *Maps) Update(ctx context.Context, fn func(*Record) error) (*Record, error) {
	if !m.hasUser {
		rec := Detached()
		if err := fn(rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	return m.UpdateMap(ctx, m.current.MapID, fn)
}

// UpdateMap is Update for the record of mapID.
func (m *Maps) UpdateMap(ctx context.Context, mapID int, fn func(*Record) error) (*Record, error) {
	e, ok := m.records[mapID]
	if !ok {
		return nil, fmt.Errorf("overrides: map %d is not bound", mapID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.rec.Snapshot()
	if err := fn(e.rec); err != nil {
		*e.rec = *before
		return nil, err
	}
	if err := m.store.Save(ctx, e.rec); err != nil {
		*e.rec = *before
		return nil, err
	}
	return e.rec.Snapshot(), nil
}

// MapIDs returns the bound map ids in ascending order.
func (m *Maps) MapIDs() []int {
	out := make([]int, 0, len(m.records))
	for id := range m.records {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// LoadAll reloads every bound record concurrently.
func (m *Maps) LoadAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range m.records {
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			return m.store.Reload(ctx, e.rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logging.StoreDebug("Loaded %d map records for %s", len(m.records), m.current)
	return nil
}

// SaveAll saves every bound record concurrently.
func (m *Maps) SaveAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range m.records {
		g.Go(func() error {
			e.mu.Lock()
			defer e.mu.Unlock()
			return m.store.Save(ctx, e.rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logging.StoreDebug("Saved %d map records for %s", len(m.records), m.current)
	return nil
}

// ClearCurrent clears the current map's record. Without a user it does
// nothing.
func (m *Maps) ClearCurrent(ctx context.Context) error {
	if !m.hasUser {
		return nil
	}
	e := m.records[m.current.MapID]
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.store.Clear(ctx, e.rec)
}
