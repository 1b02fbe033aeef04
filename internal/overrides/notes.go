package overrides

import (
	"slices"

	"github.com/google/uuid"
)

// AddNote appends n unless an equal note (see Note.SameAs) already exists.
// A note without an id gets a fresh one. The stored note and whether it was
// inserted are returned.
func (r *Record) AddNote(n Note) (Note, bool) {
	for _, existing := range r.Notes {
		if existing.SameAs(n) {
			return existing, false
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r.Notes = append(r.Notes, n)
	return n, true
}

// UpdateNote replaces the note whose id matches n.ID, keeping its position.
func (r *Record) UpdateNote(n Note) bool {
	idx := r.noteIndex(n.ID)
	if idx < 0 {
		return false
	}
	r.Notes[idx] = n
	return true
}

// DeleteNote removes the note with id.
func (r *Record) DeleteNote(id string) bool {
	idx := r.noteIndex(id)
	if idx < 0 {
		return false
	}
	r.Notes = slices.Delete(r.Notes, idx, idx+1)
	return true
}

// FindNote returns the note with id.
func (r *Record) FindNote(id string) (Note, bool) {
	idx := r.noteIndex(id)
	if idx < 0 {
		return Note{}, false
	}
	return r.Notes[idx], true
}

func (r *Record) noteIndex(id string) int {
	return slices.IndexFunc(r.Notes, func(n Note) bool { return n.ID == id })
}
