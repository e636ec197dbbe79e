package topic

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultPredicatePrefix anchors literals whose predicate is not registered.
	DefaultPredicatePrefix = "has_"
	// DefaultValueMarker precedes the value the solver binds in a positive answer.
	DefaultValueMarker = "Y = "
	// NoModels is the solver's sentinel for an unsatisfiable query.
	NoModels = "no models"
)

var (
	// ErrDuplicateTopic is returned when two entries share an ID or marker.
	ErrDuplicateTopic = errors.New("duplicate topic")
	// ErrInvalidTopic is returned for entries missing an ID or marker.
	ErrInvalidTopic = errors.New("invalid topic")
)

// Registry is an ordered, immutable set of topics.
type Registry struct {
	topics      []Topic
	index       map[ID]int
	prefix      string
	valueMarker string
}

// NewRegistry validates and indexes the given topics. Empty prefix or value
// marker fall back to the defaults.
func NewRegistry(prefix, valueMarker string, topics ...Topic) (*Registry, error) {
	if prefix == "" {
		prefix = DefaultPredicatePrefix
	}
	if valueMarker == "" {
		valueMarker = DefaultValueMarker
	}

	r := &Registry{
		topics:      make([]Topic, 0, len(topics)),
		index:       make(map[ID]int, len(topics)),
		prefix:      prefix,
		valueMarker: valueMarker,
	}
	markers := make(map[string]ID, len(topics))
	for _, t := range topics {
		if t.ID == "" || t.Marker == "" {
			return nil, fmt.Errorf("%w: id=%q marker=%q", ErrInvalidTopic, t.ID, t.Marker)
		}
		if _, ok := r.index[t.ID]; ok {
			return nil, fmt.Errorf("%w: id %q", ErrDuplicateTopic, t.ID)
		}
		if other, ok := markers[t.Marker]; ok {
			return nil, fmt.Errorf("%w: marker %q used by %q and %q", ErrDuplicateTopic, t.Marker, other, t.ID)
		}
		markers[t.Marker] = t.ID
		r.index[t.ID] = len(r.topics)
		r.topics = append(r.topics, t)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error.
func MustNewRegistry(prefix, valueMarker string, topics ...Topic) *Registry {
	r, err := NewRegistry(prefix, valueMarker, topics...)
	if err != nil {
		panic(err)
	}
	return r
}

// Topics returns the registered topics in declaration order.
func (r *Registry) Topics() []Topic {
	out := make([]Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// Lookup returns the topic registered under id.
func (r *Registry) Lookup(id ID) (Topic, bool) {
	i, ok := r.index[id]
	if !ok {
		return Topic{}, false
	}
	return r.topics[i], true
}

// Rank orders topics for display; unregistered IDs sort after all registered ones.
func (r *Registry) Rank(id ID) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return len(r.topics)
}

// Prefix returns the generic predicate prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// ValueMarker returns the value marker in effect for t.
func (r *Registry) ValueMarker(t Topic) string {
	if t.ValueMarker != "" {
		return t.ValueMarker
	}
	return r.valueMarker
}

// Locate finds the earliest registered marker in text that stands as a whole
// predicate name. It returns the topic and the marker's byte offset.
func (r *Registry) Locate(text string) (Topic, int, bool) {
	best, bestAt := -1, -1
	for i, t := range r.topics {
		at := IndexPredicate(text, t.Marker)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return Topic{}, -1, false
	}
	return r.topics[best], bestAt, true
}

// Match returns the topic whose marker appears in literal.
func (r *Registry) Match(literal string) (Topic, bool) {
	t, _, ok := r.Locate(literal)
	return t, ok
}

// IndexPredicate returns the offset of the first occurrence of name in text
// that is not part of a longer identifier, or -1.
func IndexPredicate(text, name string) int {
	if name == "" {
		return -1
	}
	from := 0
	for from <= len(text)-len(name) {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return -1
		}
		at := from + i
		end := at + len(name)
		before := at == 0 || !isIdentByte(text[at-1])
		after := end == len(text) || !isIdentByte(text[end])
		if before && after {
			return at
		}
		from = at + 1
	}
	return -1
}

// IndexPrefix returns the offset of the first identifier in text that starts
// with prefix, or -1.
func IndexPrefix(text, prefix string) int {
	if prefix == "" {
		return -1
	}
	from := 0
	for from <= len(text)-len(prefix) {
		i := strings.Index(text[from:], prefix)
		if i < 0 {
			return -1
		}
		at := from + i
		if at == 0 || !isIdentByte(text[at-1]) {
			return at
		}
		from = at + 1
	}
	return -1
}

// PredicateName returns the identifier at the start of literal, skipping
// leading whitespace. It returns "" when literal does not start with one.
func PredicateName(literal string) string {
	s := strings.TrimLeft(literal, " \t\r\n")
	end := 0
	for end < len(s) && isIdentByte(s[end]) {
		end++
	}
	return s[:end]
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
