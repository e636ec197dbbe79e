package domain

import "github.com/ashureev/caspchat/internal/topic"

// OutcomeStatus is the normalized reading of a solver answer.
type OutcomeStatus string

const (
	// StatusIndeterminate marks a topic whose query is in flight or failed this round.
	StatusIndeterminate OutcomeStatus = "indeterminate"
	// StatusNegative means the solver found no satisfying assignment.
	StatusNegative OutcomeStatus = "negative"
	// StatusPositive means the solver found one; Severity may be set.
	StatusPositive OutcomeStatus = "positive"
	// StatusUnclassified means the answer could not be read.
	StatusUnclassified OutcomeStatus = "unclassified"
)

// Outcome is the per-topic result of a solver answer.
type Outcome struct {
	Topic    topic.ID      `json:"topic"`
	Status   OutcomeStatus `json:"status"`
	Severity string        `json:"severity,omitempty"`
	// Line is the display line shown to the user and fed back to the model.
	Line string `json:"line,omitempty"`
	// Note explains an Unclassified outcome.
	Note string `json:"note,omitempty"`
}

// Known reports whether the outcome carries a solver verdict worth reporting.
func (o Outcome) Known() bool {
	return o.Status != StatusIndeterminate && o.Status != ""
}
