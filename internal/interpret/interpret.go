// Package interpret reads raw solver answers into normalized per-topic outcomes.
package interpret

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/solver"
	"github.com/ashureev/caspchat/internal/topic"
)

// unknownTopic keys outcomes whose literal has no readable predicate name.
const unknownTopic topic.ID = "unknown"

var (
	errNoValueMarker = errors.New("value marker not found")
	errEmptyWindow   = errors.New("severity window is empty")
	errNotNumeric    = errors.New("severity window is not an integer")
)

// Interpreter applies the registry's per-topic rules to solver answers.
type Interpreter struct {
	registry *topic.Registry
}

// New returns an Interpreter backed by registry.
func New(registry *topic.Registry) *Interpreter {
	return &Interpreter{registry: registry}
}

// InterpretAll interprets each result in order.
func (in *Interpreter) InterpretAll(results []solver.Result) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(results))
	for _, r := range results {
		out = append(out, in.Interpret(r.Literal, r.Raw))
	}
	return out
}

// Interpret maps one answer to an outcome. It never fails: anything it cannot
// read becomes an Unclassified outcome with a note.
func (in *Interpreter) Interpret(literal, raw string) domain.Outcome {
	tp, ok := in.registry.Match(literal)
	if !ok {
		id := topic.ID(topic.PredicateName(literal))
		if id == "" {
			id = unknownTopic
		}
		return unclassified(id, string(id), fmt.Sprintf("no registered topic for literal %q", literal))
	}

	if isNegative(tp, raw) {
		return domain.Outcome{
			Topic:  tp.ID,
			Status: domain.StatusNegative,
			Line:   tp.NegativeLine,
		}
	}

	if !tp.HasSeverity() {
		return domain.Outcome{
			Topic:  tp.ID,
			Status: domain.StatusPositive,
			Line:   tp.PositiveLine,
		}
	}

	severity, err := Extract(tp.Severity, raw, in.registry.ValueMarker(tp))
	if err != nil {
		return unclassified(tp.ID, tp.Label, err.Error())
	}
	return domain.Outcome{
		Topic:    tp.ID,
		Status:   domain.StatusPositive,
		Severity: severity,
		Line:     strings.Replace(tp.PositiveLine, "%s", severity, 1),
	}
}

func isNegative(tp topic.Topic, raw string) bool {
	for _, s := range tp.NegativeSentinels {
		if strings.Contains(raw, s) {
			return true
		}
	}
	trimmed := strings.TrimSpace(raw)
	for _, l := range tp.NegativeLiterals {
		if trimmed == l {
			return true
		}
	}
	return false
}

// Extract applies rule to the text following the first occurrence of marker
// in raw. Windows are measured in characters, not bytes.
func Extract(rule topic.SeverityRule, raw, marker string) (string, error) {
	at := strings.Index(raw, marker)
	if at < 0 {
		return "", fmt.Errorf("%w: %q", errNoValueMarker, marker)
	}
	tail := []rune(raw[at+len(marker):])

	var window string
	switch rule.Kind {
	case topic.RuleWindow:
		n := min(rule.Width, len(tail))
		window = string(tail[:n])
	case topic.RuleToEnd:
		n := len(tail) - rule.TrimTail
		if n > 0 {
			window = string(tail[:n])
		}
	default:
		return "", nil
	}
	if strings.TrimSpace(window) == "" {
		return "", errEmptyWindow
	}

	if !rule.Numeric {
		return window, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(window))
	if err != nil {
		return "", fmt.Errorf("%w: %q", errNotNumeric, window)
	}
	return strconv.Itoa(n + rule.Offset), nil
}

func unclassified(id topic.ID, label, note string) domain.Outcome {
	return domain.Outcome{
		Topic:  id,
		Status: domain.StatusUnclassified,
		Line:   fmt.Sprintf("{RESULTS: %s COULD NOT BE CLASSIFIED}", strings.ToUpper(label)),
		Note:   note,
	}
}
