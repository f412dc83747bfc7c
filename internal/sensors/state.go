package sensors

import "fmt"

// State holds the last decoded value of every field for one device session.
// A nil value means the field was not seen since the last Reset.
//
// State is owned by a single session goroutine and is not safe for
// concurrent use.
type State struct {
	fields []Field
	index  map[string]int
	values []any
}

// NewState returns a State tracking fields, with every value absent.
func NewState(fields []Field) *State {
	s := &State{
		fields: fields,
		index:  make(map[string]int, len(fields)),
		values: make([]any, len(fields)),
	}
	for i, f := range fields {
		s.index[f.ID] = i
	}
	return s
}

// Reset marks every field absent.
func (s *State) Reset() {
	for i := range s.values {
		s.values[i] = nil
	}
}

// Set stores v for the field id. Setting nil clears the field.
func (s *State) Set(id string, v any) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("unknown field %q", id)
	}
	s.values[i] = v
	return nil
}

// Get returns the value of id and whether it is present.
func (s *State) Get(id string) (any, bool) {
	i, ok := s.index[id]
	if !ok || s.values[i] == nil {
		return nil, false
	}
	return s.values[i], true
}

// Has reports whether id currently holds a value.
func (s *State) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Values returns the present, publishable values in field order.
func (s *State) Values() []Reading {
	out := make([]Reading, 0, len(s.values))
	for i, f := range s.fields {
		if !f.Publish || s.values[i] == nil {
			continue
		}
		out = append(out, Reading{ID: f.ID, Value: s.values[i]})
	}
	return out
}

// Fields returns the tracked field descriptors.
func (s *State) Fields() []Field {
	return s.fields
}
