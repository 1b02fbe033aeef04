package overrides

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrNonNumericKey is returned when a string-keyed write uses a key that is
// not a decimal integer.
var ErrNonNumericKey = errors.New("overrides: key is not numeric")

// IDSet is a set of integer ids with a sparse boolean view keyed by the
// decimal string form of each id. The zero value is ready to use.
type IDSet struct {
	ids map[int]struct{}
}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...int) *IDSet {
	s := &IDSet{}
	for _, id := range ids {
		s.SetPresent(id, true)
	}
	return s
}

// Contains reports whether id is in the set.
func (s *IDSet) Contains(id int) bool {
	if s == nil || s.ids == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// SetPresent adds id when present is true and removes it otherwise.
func (s *IDSet) SetPresent(id int, present bool) {
	if !present {
		delete(s.ids, id)
		return
	}
	if s.ids == nil {
		s.ids = make(map[int]struct{})
	}
	s.ids[id] = struct{}{}
}

// IDsPresent returns the members in ascending order.
func (s *IDSet) IDsPresent() []int {
	if s == nil || len(s.ids) == 0 {
		return nil
	}
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of members.
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Get is the string-keyed read. Non-numeric keys read as false.
func (s *IDSet) Get(key string) bool {
	id, err := strconv.Atoi(key)
	if err != nil {
		return false
	}
	return s.Contains(id)
}

// Set is the string-keyed write.
func (s *IDSet) Set(key string, present bool) error {
	id, err := strconv.Atoi(key)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrNonNumericKey, key)
	}
	s.SetPresent(id, present)
	return nil
}

// Bools returns the sparse boolean view: every member maps to true.
func (s *IDSet) Bools() map[string]bool {
	out := make(map[string]bool, s.Len())
	for _, id := range s.IDsPresent() {
		out[strconv.Itoa(id)] = true
	}
	return out
}

// Replace drops every member and inserts ids.
func (s *IDSet) Replace(ids []int) {
	s.ids = nil
	for _, id := range ids {
		s.SetPresent(id, true)
	}
}

// Clone returns an independent copy.
func (s *IDSet) Clone() *IDSet {
	return NewIDSet(s.IDsPresent()...)
}

// MarshalJSON encodes the set as a sorted array of ids.
func (s *IDSet) MarshalJSON() ([]byte, error) {
	ids := s.IDsPresent()
	if ids == nil {
		ids = []int{}
	}
	return json.Marshal(ids)
}

// UnmarshalJSON decodes an array of ids.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	s.Replace(ids)
	return nil
}
