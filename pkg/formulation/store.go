package formulation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EntryID identifies a constraint entry for as long as it lives in a Store.
type EntryID uint64

// Entry is one user-authored constraint.
type Entry struct {
	ID         EntryID
	Constraint Constraint
}

// MarshalJSON flattens the variant for API consumers.
func (e Entry) MarshalJSON() ([]byte, error) {
	var kind, subject string
	var rel Relation
	var value float64
	if e.Constraint != nil {
		kind = e.Constraint.Kind().String()
		subject = e.Constraint.Subject()
		rel = e.Constraint.Relation()
		value = e.Constraint.Value()
	}
	return json.Marshal(struct {
		ID       EntryID  `json:"id"`
		Kind     string   `json:"kind"`
		Subject  string   `json:"subject"`
		Relation Relation `json:"relation"`
		Value    float64  `json:"value"`
	}{e.ID, kind, subject, rel, value})
}

// Field names the editable parts of an Entry.
type Field string

const (
	FieldSubject  Field = "subject"
	FieldRelation Field = "relation"
	FieldValue    Field = "value"
)

// ParseField accepts the field names used by the local API.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case FieldSubject, FieldRelation, FieldValue:
		return f, nil
	case "item":
		return FieldSubject, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

var errUnknownSubject = errors.New("not in the catalog")

// Store holds the ordered constraint entries of a single view. It is not
// safe for concurrent use; the owner serializes access.
type Store struct {
	vocab   Vocabulary
	entries []Entry
	lastID  EntryID
}

// NewStore returns an empty store whose new entries draw subjects from vocab.
func NewStore(vocab Vocabulary) *Store {
	return &Store{vocab: vocab}
}

// SetVocabulary swaps the vocabulary used by later Add and Update calls.
// Existing entries keep their subjects even when they are no longer listed.
func (s *Store) SetVocabulary(vocab Vocabulary) {
	s.vocab = vocab
}

// Vocabulary returns the active vocabulary.
func (s *Store) Vocabulary() Vocabulary {
	return s.vocab
}

// Add appends a defaulted entry of the given kind and returns it.
func (s *Store) Add(kind Kind) Entry {
	return s.Append(NewConstraint(kind, s.vocab.first(kind), DefaultRelation(kind), 0))
}

// Append stores an already built constraint as a new entry.
func (s *Store) Append(c Constraint) Entry {
	s.lastID++
	e := Entry{ID: s.lastID, Constraint: c}
	s.entries = append(s.entries, e)
	return e
}

// Update replaces one field of the entry identified by id. Unknown ids are
// ignored. Invalid input is rejected with a *ValidationError.
func (s *Store) Update(id EntryID, field Field, raw string) error {
	i := s.index(id)
	if i < 0 {
		return nil
	}
	c := s.entries[i].Constraint
	subject, rel, value := c.Subject(), c.Relation(), c.Value()

	switch field {
	case FieldSubject:
		name := strings.TrimSpace(raw)
		if !s.vocab.Contains(c.Kind(), name) {
			return &ValidationError{ID: id, Field: field, Input: raw, Err: errUnknownSubject}
		}
		subject = name
	case FieldRelation:
		r, err := ParseRelation(raw)
		if err != nil {
			return &ValidationError{ID: id, Field: field, Input: raw, Err: err}
		}
		rel = r
	case FieldValue:
		v, err := parseValue(raw)
		if err != nil {
			return &ValidationError{ID: id, Field: field, Input: raw, Err: err}
		}
		value = v
	default:
		return &ValidationError{ID: id, Field: field, Input: raw, Err: errors.New("unknown field")}
	}

	s.entries[i].Constraint = c.with(subject, rel, value)
	return nil
}

// Remove deletes the entry identified by id, if present.
func (s *Store) Remove(id EntryID) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
}

// Get returns the entry identified by id.
func (s *Store) Get(id EntryID) (Entry, bool) {
	i := s.index(id)
	if i < 0 {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Entries returns a copy of the entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports the number of entries.
func (s *Store) Len() int { return len(s.entries) }

func (s *Store) index(id EntryID) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func parseValue(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a number", strings.TrimSpace(raw))
	}
	return v, nil
}
