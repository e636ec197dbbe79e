package topic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryOrder(t *testing.T) {
	r := Default()
	topics := r.Topics()
	require.Len(t, topics, 8)
	assert.Equal(t, Autism, topics[0].ID)
	assert.Equal(t, Certification, topics[len(topics)-1].ID)
	assert.Equal(t, 0, r.Rank(Autism))
	assert.Equal(t, len(topics), r.Rank("has_rash"))
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry("", "",
		Topic{ID: "a", Marker: "has_a"},
		Topic{ID: "a", Marker: "has_b"},
	)
	assert.True(t, errors.Is(err, ErrDuplicateTopic))

	_, err = NewRegistry("", "",
		Topic{ID: "a", Marker: "has_a"},
		Topic{ID: "b", Marker: "has_a"},
	)
	assert.True(t, errors.Is(err, ErrDuplicateTopic))

	_, err = NewRegistry("", "", Topic{ID: "a"})
	assert.True(t, errors.Is(err, ErrInvalidTopic))
}

func TestMatchRequiresWholePredicate(t *testing.T) {
	r := Default()

	tp, ok := r.Match("has_ra(j, yes, no).")
	require.True(t, ok)
	assert.Equal(t, Arthritis, tp.ID)

	_, ok = r.Match("has_rash(j).")
	assert.False(t, ok, "has_ra must not match inside has_rash")

	tp, ok = r.Match("design_approved(a320). certification_approved(a320).")
	require.True(t, ok)
	assert.Equal(t, Certification, tp.ID)
}

func TestLocateReturnsEarliestMarker(t *testing.T) {
	r := Default()
	tp, at, ok := r.Locate("note has_copd(x). has_autism(x).")
	require.True(t, ok)
	assert.Equal(t, COPD, tp.ID)
	assert.Equal(t, 5, at)
}

func TestIndexHelpers(t *testing.T) {
	assert.Equal(t, 2, IndexPrefix("{ has_x(j).", "has_"))
	assert.Equal(t, -1, IndexPrefix("washes_(j)", "has_"))
	assert.Equal(t, -1, IndexPredicate("has_autism_x(j)", "has_autism"))
	assert.Equal(t, "has_autism", PredicateName("  has_autism(J)."))
	assert.Equal(t, "", PredicateName("(J)."))
}

func TestValueMarkerOverride(t *testing.T) {
	r := MustNewRegistry("", "",
		Topic{ID: "a", Marker: "has_a"},
		Topic{ID: "b", Marker: "has_b", ValueMarker: "S = "},
	)
	a, _ := r.Lookup("a")
	b, _ := r.Lookup("b")
	assert.Equal(t, DefaultValueMarker, r.ValueMarker(a))
	assert.Equal(t, "S = ", r.ValueMarker(b))
	assert.Equal(t, DefaultPredicatePrefix, r.Prefix())
}

func TestSeverityRuleString(t *testing.T) {
	assert.Equal(t, "window(1) as int -4", NumericWindow(1, -4).String())
	assert.Equal(t, "window(6)", Window(6).String())
	assert.Equal(t, "to-end minus 2", ToEnd(2).String())
	assert.Equal(t, "none", NoSeverity().String())
}
