package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/caspchat/internal/topic"
)

const readyFlag = "true"

var (
	ErrNoOpenBrace  = errors.New("status segment does not open with '{'")
	ErrNoCloseBrace = errors.New("status segment is not closed with '}'")
	ErrNoFlag       = errors.New("status segment has no readiness flag")
	ErrNotReady     = errors.New("status segment is not ready")
	ErrNoPredicate  = errors.New("status segment has no query predicate")
	ErrMissingFacts = errors.New("status segment is missing required facts")
)

// Status is the gate's verdict for one status segment.
type Status struct {
	Raw     string   `json:"raw"`
	Ready   bool     `json:"ready"`
	Literal string   `json:"literal,omitempty"`
	Topic   topic.ID `json:"topic,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Gate decides whether status segments carry a query ready for the solver.
type Gate struct {
	registry *topic.Registry
}

// NewGate returns a gate that locates literals with the given registry.
func NewGate(registry *topic.Registry) *Gate {
	return &Gate{registry: registry}
}

// Evaluate parses one raw status segment. Anything malformed is reported as
// pending with a reason; Evaluate never fails.
func (g *Gate) Evaluate(raw string) Status {
	st := Status{Raw: raw}

	flag, body, err := splitStatus(raw)
	if err != nil {
		st.Reason = err.Error()
		return st
	}
	if !strings.EqualFold(flag, readyFlag) {
		st.Reason = fmt.Sprintf("%s: flag %q", ErrNotReady, flag)
		return st
	}

	literal, id, err := g.extract(body)
	if err != nil {
		st.Topic = id
		st.Reason = err.Error()
		return st
	}

	st.Ready = true
	st.Literal = literal
	st.Topic = id
	return st
}

// EvaluateAll runs Evaluate over segments in order.
func (g *Gate) EvaluateAll(segments []string) []Status {
	out := make([]Status, len(segments))
	for i, s := range segments {
		out[i] = g.Evaluate(s)
	}
	return out
}

// Ready returns the literals of the ready statuses, in order.
func Ready(statuses []Status) []string {
	var out []string
	for _, st := range statuses {
		if st.Ready {
			out = append(out, st.Literal)
		}
	}
	return out
}

func (g *Gate) extract(body string) (string, topic.ID, error) {
	tp, at, ok := g.registry.Locate(body)
	if !ok {
		at = topic.IndexPrefix(body, g.registry.Prefix())
		if at < 0 {
			return "", "", ErrNoPredicate
		}
		literal := strings.TrimSpace(body[at:])
		return literal, topic.ID(topic.PredicateName(literal)), nil
	}

	literal := body[at:]
	if tp.Start == topic.StartAtBody {
		literal = body
	}
	literal = strings.TrimSpace(literal)

	if tp.RequiredFacts > 0 {
		facts := 0
		for _, c := range Clauses(literal) {
			if topic.IndexPredicate(c, tp.Marker) < 0 {
				facts++
			}
		}
		if facts < tp.RequiredFacts {
			return "", tp.ID, fmt.Errorf("%w: have %d, need %d", ErrMissingFacts, facts, tp.RequiredFacts)
		}
	}
	return literal, tp.ID, nil
}

// splitStatus tokenizes `{ FLAG , BODY }` with optional trailing periods and
// whitespace. BODY is returned trimmed.
func splitStatus(raw string) (flag, body string, err error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return "", "", ErrNoOpenBrace
	}
	end := strings.LastIndexByte(s, '}')
	if end < 0 {
		return "", "", ErrNoCloseBrace
	}
	inner := s[1:end]

	comma := strings.IndexByte(inner, ',')
	if comma < 0 {
		flag = strings.TrimSpace(inner)
	} else {
		flag = strings.TrimSpace(inner[:comma])
		body = strings.TrimSpace(inner[comma+1:])
	}
	if flag == "" {
		return "", "", ErrNoFlag
	}
	return flag, body, nil
}

// Clauses splits a literal into its period-terminated clauses. Periods inside
// parentheses, quotes or numbers do not end a clause. The returned clauses
// are trimmed and exclude the terminating period.
func Clauses(literal string) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case (c == ')' || c == ']') && depth > 0:
			depth--
		case c == '.' && depth == 0:
			if i+1 < len(literal) && !isSpace(literal[i+1]) {
				continue
			}
			if clause := strings.TrimSpace(literal[start:i]); clause != "" {
				out = append(out, clause)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(literal[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
