// Package topic declares the screened conditions and certification groups
// tracked through a conversation, and the per-topic rules used to read the
// solver's answers.
package topic

import "fmt"

// ID identifies a topic. Unregistered predicates use their predicate name.
type ID string

// LiteralStart selects where a ready query literal begins.
type LiteralStart int

const (
	// StartAtMarker anchors the literal at the topic's predicate marker.
	StartAtMarker LiteralStart = iota
	// StartAtBody keeps the whole status body, so fact clauses that precede
	// the query predicate are sent along with it.
	StartAtBody
)

// RuleKind enumerates severity extraction strategies.
type RuleKind int

const (
	// RuleNone means a positive answer carries no severity.
	RuleNone RuleKind = iota
	// RuleWindow reads Width characters after the value marker.
	RuleWindow
	// RuleToEnd reads from the value marker to the end of the answer,
	// dropping TrimTail trailing characters.
	RuleToEnd
)

// SeverityRule describes how a severity is cut out of a positive answer.
type SeverityRule struct {
	Kind     RuleKind
	Width    int
	TrimTail int
	// Numeric parses the window as an integer and adds Offset to it.
	Numeric bool
	Offset  int
}

// Window returns a rule reading n characters after the value marker.
func Window(n int) SeverityRule {
	return SeverityRule{Kind: RuleWindow, Width: n}
}

// NumericWindow returns a rule reading n characters as an integer shifted by offset.
func NumericWindow(n, offset int) SeverityRule {
	return SeverityRule{Kind: RuleWindow, Width: n, Numeric: true, Offset: offset}
}

// ToEnd returns a rule reading to the end of the answer minus trim characters.
func ToEnd(trim int) SeverityRule {
	return SeverityRule{Kind: RuleToEnd, TrimTail: trim}
}

// NoSeverity returns a rule for topics whose positive answer is a fixed message.
func NoSeverity() SeverityRule {
	return SeverityRule{Kind: RuleNone}
}

// String describes the rule for listings and logs.
func (r SeverityRule) String() string {
	switch r.Kind {
	case RuleWindow:
		if r.Numeric {
			return fmt.Sprintf("window(%d) as int %+d", r.Width, r.Offset)
		}
		return fmt.Sprintf("window(%d)", r.Width)
	case RuleToEnd:
		return fmt.Sprintf("to-end minus %d", r.TrimTail)
	default:
		return "none"
	}
}

// Topic is one registry entry.
type Topic struct {
	ID     ID
	Label  string
	Marker string

	// NegativeSentinels are phrases whose presence anywhere in the answer
	// means no satisfying assignment was found.
	NegativeSentinels []string
	// NegativeLiterals are whole answers (after trimming) that mean the same.
	NegativeLiterals []string

	// ValueMarker overrides the registry's value marker when set.
	ValueMarker string
	Severity    SeverityRule

	// RequiredFacts is the number of fact clauses a ready literal must carry
	// besides the query clause. Zero disables the check.
	RequiredFacts int
	Start         LiteralStart

	// NegativeLine is the display line for a negative outcome.
	NegativeLine string
	// PositiveLine is the display line for a positive outcome. A %s verb, if
	// present, receives the severity.
	PositiveLine string
}

// HasSeverity reports whether a positive outcome for the topic carries a severity.
func (t Topic) HasSeverity() bool {
	return t.Severity.Kind != RuleNone
}
