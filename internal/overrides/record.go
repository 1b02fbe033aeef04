// Package overrides holds the per-identity override record and the store that
// loads, saves and clears it through a persistence driver.
package overrides

import (
	"math"

	"mapkeep/internal/keys"
)

// DuplicateTolerance is the coordinate distance under which two notes with
// the same description are the same note.
const DuplicateTolerance = 1e-4

// Note is a user annotation pinned to a map coordinate.
type Note struct {
	ID          string  `json:"id"`
	MapID       int     `json:"map_id"`
	UserID      int     `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Color       *string `json:"color"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Category    *int    `json:"category"`
}

// SameAs reports whether n and o describe the same note.
func (n Note) SameAs(o Note) bool {
	return math.Abs(n.Latitude-o.Latitude) <= DuplicateTolerance &&
		math.Abs(n.Longitude-o.Longitude) <= DuplicateTolerance &&
		n.Description == o.Description
}

// Preset is a named group of categories.
type Preset struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Categories []int  `json:"categories"`
	Order      int    `json:"order"`
}

// StorageObject is the persisted v2 shape. Empty fields are omitted.
type StorageObject struct {
	LocationIDs          []int    `json:"locationIds,omitempty"`
	CategoryIDs          []int    `json:"categoryIds,omitempty"`
	VisibleCategoriesIDs []int    `json:"visibleCategoriesIds,omitempty"`
	Notes                []Note   `json:"notes,omitempty"`
	Presets              []Preset `json:"presets,omitempty"`
	PresetOrder          []int    `json:"presetOrder,omitempty"`
}

// IsEmpty reports whether the object carries no user state.
func (o StorageObject) IsEmpty() bool {
	return len(o.LocationIDs)+len(o.CategoryIDs)+len(o.VisibleCategoriesIDs)+len(o.Notes)+len(o.Presets) == 0
}

// Record is the live override state for one identity.
type Record struct {
	Identity keys.Identity

	Found   *IDSet
	Tracked *IDSet
	Visible *IDSet

	Notes       []Note
	Presets     []Preset
	PresetOrder []int

	// detached records are never persisted.
	detached bool
}

// NewRecord returns an empty record for id.
func NewRecord(id keys.Identity) *Record {
	return &Record{
		Identity: id,
		Found:    &IDSet{},
		Tracked:  &IDSet{},
		Visible:  &IDSet{},
	}
}

// Detached returns an empty record that Save and Clear ignore.
func Detached() *Record {
	r := NewRecord(keys.Identity{})
	r.detached = true
	return r
}

// IsDetached reports whether the record is bound to storage.
func (r *Record) IsDetached() bool {
	return r.detached
}

// IsEmpty reports whether the record has nothing worth persisting.
func (r *Record) IsEmpty() bool {
	return r.Found.Len()+r.Tracked.Len()+r.Visible.Len()+len(r.Notes)+len(r.Presets) == 0
}

// Key returns the current storage key of the record.
func (r *Record) Key() string {
	return keys.LatestKey(r.Identity)
}

// Object converts the record to its persisted form.
func (r *Record) Object() StorageObject {
	obj := StorageObject{
		LocationIDs:          r.Found.IDsPresent(),
		CategoryIDs:          r.Tracked.IDsPresent(),
		VisibleCategoriesIDs: r.Visible.IDsPresent(),
	}
	if len(r.Notes) > 0 {
		obj.Notes = append([]Note(nil), r.Notes...)
	}
	if len(r.Presets) > 0 {
		obj.Presets = clonePresets(r.Presets)
		obj.PresetOrder = append([]int(nil), r.PresetOrder...)
	}
	return obj
}

// apply replaces the record state with obj.
func (r *Record) apply(obj StorageObject) {
	r.Found = NewIDSet(obj.LocationIDs...)
	r.Tracked = NewIDSet(obj.CategoryIDs...)
	r.Visible = NewIDSet(obj.VisibleCategoriesIDs...)
	r.Notes = append([]Note(nil), obj.Notes...)
	r.Presets = clonePresets(obj.Presets)
	r.PresetOrder = append([]int(nil), obj.PresetOrder...)
}

// Snapshot returns a deep copy of the record.
func (r *Record) Snapshot() *Record {
	cp := NewRecord(r.Identity)
	cp.apply(r.Object())
	cp.PresetOrder = append([]int(nil), r.PresetOrder...)
	cp.detached = r.detached
	return cp
}

func clonePresets(in []Preset) []Preset {
	if in == nil {
		return nil
	}
	out := make([]Preset, len(in))
	for i, p := range in {
		p.Categories = append([]int(nil), p.Categories...)
		out[i] = p
	}
	return out
}
