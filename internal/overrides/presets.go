package overrides

import "slices"

// DefaultPresetIDs are the built-in preset ids the host application puts in
// a preset ordering. They never refer to an entry in Record.Presets.
var DefaultPresetIDs = []int{-1}

// AddPreset appends a preset and records ordering, with the new id appended,
// as the display order. Ids stay dense: the new id is len(Presets)+1.
func (r *Record) AddPreset(title string, categories []int, ordering []int) Preset {
	p := Preset{
		ID:         len(r.Presets) + 1,
		Title:      title,
		Categories: append([]int(nil), categories...),
		Order:      len(ordering),
	}
	r.Presets = append(r.Presets, p)
	r.PresetOrder = append(append([]int(nil), ordering...), p.ID)
	return p
}

// DeletePreset removes the preset with id, renumbers the rest to 1..N and
// rewrites PresetOrder accordingly. Ids in sentinels (DefaultPresetIDs when
// nil) are left untouched; an ordering holding nothing else collapses to
// empty. It reports whether the preset existed.
func (r *Record) DeletePreset(id int, sentinels []int) bool {
	if sentinels == nil {
		sentinels = DefaultPresetIDs
	}
	idx := slices.IndexFunc(r.Presets, func(p Preset) bool { return p.ID == id })
	if idx < 0 {
		return false
	}

	r.Presets = slices.Delete(r.Presets, idx, idx+1)
	for i := range r.Presets {
		r.Presets[i].ID = i + 1
	}

	order := make([]int, 0, len(r.PresetOrder))
	onlySentinels := true
	for _, pid := range r.PresetOrder {
		switch {
		case slices.Contains(sentinels, pid):
			order = append(order, pid)
			continue
		case pid == id:
			continue
		case pid > id:
			pid--
		}
		onlySentinels = false
		order = append(order, pid)
	}
	if onlySentinels {
		order = nil
	}
	r.PresetOrder = order
	return true
}

// ReorderPresets replaces the display order.
func (r *Record) ReorderPresets(ordering []int) {
	r.PresetOrder = append([]int(nil), ordering...)
}

// FindPreset returns the preset with id.
func (r *Record) FindPreset(id int) (Preset, bool) {
	for _, p := range r.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}
