// Package session holds the per-conversation state carried between rounds.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/topic"
)

// Session is the state of one live conversation. Rounds are serialized with
// LockRound; the state mutex only protects readers taking snapshots while a
// round is being merged.
type Session struct {
	ID        string
	CreatedAt time.Time

	round sync.Mutex
	// evicted is set, under the round lock, once the manager has dropped the
	// session. A round that acquires the lock afterwards must start over.
	evicted bool

	mu             sync.RWMutex
	history        []domain.Turn
	outcomes       map[topic.ID]domain.Outcome
	lastQueryBatch []string
	lastActive     time.Time
	rounds         int
}

// New returns a session whose history starts with greeting, if any.
func New(id, greeting string, now time.Time) *Session {
	s := &Session{
		ID:         id,
		CreatedAt:  now,
		outcomes:   make(map[topic.ID]domain.Outcome),
		lastActive: now,
	}
	if greeting != "" {
		s.history = append(s.history, domain.Turn{Role: domain.RoleAssistant, Text: greeting, At: now})
	}
	return s
}

// LockRound blocks until no other round is running on the session.
func (s *Session) LockRound() {
	s.round.Lock()
}

// UnlockRound releases the round lock.
func (s *Session) UnlockRound() {
	s.round.Unlock()
}

// busy reports whether a round currently holds the session.
func (s *Session) busy() bool {
	if !s.round.TryLock() {
		return true
	}
	s.round.Unlock()
	return false
}

// BeginRound marks the given topics Indeterminate. Topics not addressed in
// this round keep their previous outcome.
func (s *Session) BeginRound(topics []topic.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range topics {
		s.outcomes[id] = domain.Outcome{Topic: id, Status: domain.StatusIndeterminate}
	}
}

// Merge overwrites the outcome of every topic present in outcomes.
func (s *Session) Merge(outcomes []domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		s.outcomes[o.Topic] = o
	}
}

// Record appends the user text and the reply to history and keeps statuses
// as the batch echoed in the next prompt.
func (s *Session) Record(userText, reply string, statuses []string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		domain.Turn{Role: domain.RoleUser, Text: userText, At: now},
		domain.Turn{Role: domain.RoleAssistant, Text: reply, At: now},
	)
	s.lastQueryBatch = append([]string(nil), statuses...)
	s.lastActive = now
	s.rounds++
}

// Touch marks the session active without recording a round.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// LastActive returns the time of the last round or touch.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// History returns a copy of the conversation so far.
func (s *Session) History() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Turn(nil), s.history...)
}

// Rounds returns the number of completed rounds.
func (s *Session) Rounds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rounds
}

// Outcome returns the current outcome for id.
func (s *Session) Outcome(id topic.ID) (domain.Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[id]
	return o, ok
}

// Outcomes returns every tracked outcome in registry order.
func (s *Session) Outcomes(reg *topic.Registry) []domain.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedOutcomes(reg, false)
}

func (s *Session) sortedOutcomes(reg *topic.Registry, knownOnly bool) []domain.Outcome {
	out := make([]domain.Outcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if knownOnly && !o.Known() {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := reg.Rank(out[i].Topic), reg.Rank(out[j].Topic)
		if ri != rj {
			return ri < rj
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// Prompt builds the user payload for the next model call: the previous
// round's status segments, the known outcome lines, then the user's message.
func (s *Session) Prompt(userText string, reg *topic.Registry) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := make([]string, 0, len(s.outcomes))
	for _, o := range s.sortedOutcomes(reg, true) {
		if o.Line != "" {
			lines = append(lines, o.Line)
		}
	}

	var b strings.Builder
	b.WriteString("CURRENT QUERIES: ")
	b.WriteString(strings.Join(s.lastQueryBatch, ","))
	b.WriteString("\nQUERY RESULTS (if any): ")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\nUSER MESSAGE: ")
	b.WriteString(userText)
	return b.String()
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID             string           `json:"session_id"`
	CreatedAt      time.Time        `json:"created_at"`
	LastActive     time.Time        `json:"last_active"`
	Rounds         int              `json:"rounds"`
	History        []domain.Turn    `json:"history"`
	Outcomes       []domain.Outcome `json:"outcomes"`
	LastQueryBatch []string         `json:"last_query_batch"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot(reg *topic.Registry) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:             s.ID,
		CreatedAt:      s.CreatedAt,
		LastActive:     s.lastActive,
		Rounds:         s.rounds,
		History:        append([]domain.Turn(nil), s.history...),
		Outcomes:       s.sortedOutcomes(reg, false),
		LastQueryBatch: append([]string{}, s.lastQueryBatch...),
	}
}
