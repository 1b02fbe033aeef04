package migrate

import (
	"sort"
	"strconv"

	"mapkeep/internal/overrides"
)

// LegacyObject is the v1 record shape: one object per game and user, with
// sets stored as id-keyed boolean maps.
type LegacyObject struct {
	Locations         map[string]bool    `json:"locations,omitempty"`
	Categories        map[string]bool    `json:"categories,omitempty"`
	VisibleCategories map[string]bool    `json:"visible_categories,omitempty"`
	Notes             []overrides.Note   `json:"notes,omitempty"`
	Presets           []overrides.Preset `json:"presets,omitempty"`
	PresetOrder       []int              `json:"preset_order,omitempty"`
}

// IsEmpty reports whether the legacy object holds any user state.
func (l LegacyObject) IsEmpty() bool {
	return len(trueIDs(l.Locations))+len(trueIDs(l.Categories))+len(trueIDs(l.VisibleCategories))+
		len(l.Notes)+len(l.Presets) == 0
}

// Transform converts a legacy object into the v2 shape for mapID. Only true
// entries carry over; notes pinned to another map are dropped.
func Transform(l LegacyObject, mapID int) overrides.StorageObject {
	obj := overrides.StorageObject{
		LocationIDs:          trueIDs(l.Locations),
		CategoryIDs:          trueIDs(l.Categories),
		VisibleCategoriesIDs: trueIDs(l.VisibleCategories),
	}
	for _, n := range l.Notes {
		if n.MapID != 0 && n.MapID != mapID {
			continue
		}
		obj.Notes = append(obj.Notes, n)
	}
	if len(l.Presets) > 0 {
		obj.Presets = l.Presets
		obj.PresetOrder = l.PresetOrder
	}
	return obj
}

func trueIDs(m map[string]bool) []int {
	var out []int
	for k, v := range m {
		if !v {
			continue
		}
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
