package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/interpret"
	"github.com/ashureev/caspchat/internal/llm"
	"github.com/ashureev/caspchat/internal/metrics"
	"github.com/ashureev/caspchat/internal/protocol"
	"github.com/ashureev/caspchat/internal/session"
	"github.com/ashureev/caspchat/internal/solver"
	"github.com/ashureev/caspchat/internal/store"
	"github.com/ashureev/caspchat/internal/topic"
)

const ledgerWriteTimeout = 5 * time.Second

var (
	// ErrEmptyMessage is returned for blank user messages.
	ErrEmptyMessage = errors.New("message is required")
	// ErrUnknownTopic is returned for topic ids missing from the registry.
	ErrUnknownTopic = errors.New("unknown topic")
	// ErrModelUnavailable wraps failures of the language model call. The
	// session is left untouched when it is returned.
	ErrModelUnavailable = errors.New("language model unavailable")
)

// Deps are the collaborators of a Service. Ledger, Metrics, ConversationLog
// and Logger are optional.
type Deps struct {
	Model           llm.Model
	Registry        *topic.Registry
	Dispatcher      *solver.Dispatcher
	Sessions        *session.Manager
	Ledger          store.Ledger
	Metrics         *metrics.Metrics
	ConversationLog ConversationLogger
	Delimiter       rune
	Logger          *slog.Logger
}

// Service runs conversation rounds: model call, segmentation, readiness
// gate, solver dispatch, interpretation and session merge.
type Service struct {
	model       llm.Model
	registry    *topic.Registry
	gate        *protocol.Gate
	dispatcher  *solver.Dispatcher
	interpreter *interpret.Interpreter
	sessions    *session.Manager
	ledger      store.Ledger
	metrics     *metrics.Metrics
	convLog     ConversationLogger
	delim       rune
	logger      *slog.Logger
	now         func() time.Time
}

// NewService wires a Service from deps.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Model == nil:
		return nil, fmt.Errorf("agent service: model is required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("agent service: topic registry is required")
	case deps.Dispatcher == nil:
		return nil, fmt.Errorf("agent service: dispatcher is required")
	case deps.Sessions == nil:
		return nil, fmt.Errorf("agent service: session manager is required")
	}
	if deps.ConversationLog == nil {
		deps.ConversationLog = noopConversationLogger{}
	}
	if deps.Delimiter == 0 {
		deps.Delimiter = protocol.DefaultDelimiter
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Service{
		model:       deps.Model,
		registry:    deps.Registry,
		gate:        protocol.NewGate(deps.Registry),
		dispatcher:  deps.Dispatcher,
		interpreter: interpret.New(deps.Registry),
		sessions:    deps.Sessions,
		ledger:      deps.Ledger,
		metrics:     deps.Metrics,
		convLog:     deps.ConversationLog,
		delim:       deps.Delimiter,
		logger:      deps.Logger,
		now:         time.Now,
	}, nil
}

// Registry returns the topic registry rounds are evaluated against.
func (s *Service) Registry() *topic.Registry {
	return s.registry
}

// Chat runs one round for sessionID. Rounds of the same session are
// serialized; different sessions run independently.
//
// Once the model has replied the round always completes: solver calls are
// bounded by their own timeouts and are not cut short by ctx.
func (s *Service) Chat(ctx context.Context, sessionID, channel, message string) (*RoundResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}
	start := s.now()

	sess, created := s.sessions.Acquire(sessionID)
	defer sess.UnlockRound()
	if created {
		s.metrics.SetActiveSessions(s.sessions.Len())
	}

	seq := sess.Rounds() + 1
	s.convLog.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Seq:        seq,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: message,
	})

	prompt := sess.Prompt(message, s.registry)
	utterance, err := s.model.Generate(ctx, sess.History(), prompt)
	if err != nil {
		result := roundModelError
		if ctx.Err() != nil {
			result = roundCanceled
		}
		s.metrics.ObserveRound(result, s.now().Sub(start))
		s.logger.Error("Model call failed", "session_id", sessionID, "seq", seq, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	roundCtx := context.WithoutCancel(ctx)
	turn := protocol.Segment(utterance, s.delim)
	statuses := s.gate.EvaluateAll(turn.Segments)
	literals := protocol.Ready(statuses)
	s.metrics.ObserveSegments(len(literals), len(statuses)-len(literals))

	sess.BeginRound(addressedTopics(statuses))
	results := s.dispatcher.Dispatch(roundCtx, literals)
	outcomes := s.interpreter.InterpretAll(results)
	for _, o := range outcomes {
		s.metrics.ObserveOutcome(string(o.Topic), string(o.Status))
	}

	now := s.now()
	sess.Merge(outcomes)
	sess.Record(message, turn.Reply, turn.Segments, now)

	answers := make([]string, len(results))
	for i, r := range results {
		answers[i] = r.Raw
	}
	round := domain.Round{
		SessionID: sessionID,
		Seq:       seq,
		UserText:  message,
		Reply:     turn.Reply,
		Statuses:  turn.Segments,
		Literals:  literals,
		Answers:   answers,
		Outcomes:  outcomes,
		CreatedAt: now,
	}
	s.recordRound(roundCtx, round)

	s.convLog.Log(ConversationLogEvent{
		SessionID:  sessionID,
		Seq:        seq,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "assistant_message",
		ContentRaw: utterance,
		Content:    cleanForReadability(turn.Reply),
		Meta: map[string]any{
			"statuses":       len(statuses),
			"ready":          len(literals),
			"answers":        len(results),
			"reply_fallback": turn.ReplyFallback,
		},
	})

	elapsed := s.now().Sub(start)
	s.metrics.ObserveRound(roundOK, elapsed)
	s.logger.Info("Round completed",
		"session_id", sessionID,
		"seq", seq,
		"segments", len(statuses),
		"ready", len(literals),
		"answers", len(results),
		"duration_ms", elapsed.Milliseconds(),
	)

	return &RoundResult{
		SessionID:       sessionID,
		Seq:             seq,
		ConditionStatus: nonNil(turn.Segments),
		Message:         turn.Reply,
		QueryResult:     answers,
		Outcomes:        nonNil(outcomes),
		Statuses:        statuses,
		ReplyFallback:   turn.ReplyFallback,
	}, nil
}

func (s *Service) recordRound(ctx context.Context, round domain.Round) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerWriteTimeout)
	defer cancel()
	if err := s.ledger.RecordRound(ctx, round); err != nil {
		s.logger.Warn("Failed to record round", "session_id", round.SessionID, "seq", round.Seq, "error", err)
	}
}

// Snapshot returns the state of a live session.
func (s *Service) Snapshot(sessionID string) (session.Snapshot, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(s.registry), nil
}

// Outcomes returns every topic outcome tracked by a live session.
func (s *Service) Outcomes(sessionID string) ([]domain.Outcome, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Outcomes(s.registry), nil
}

// Outcome returns the outcome of one topic. A registered topic the session
// has not addressed yet reads as indeterminate.
func (s *Service) Outcome(sessionID string, id topic.ID) (domain.Outcome, error) {
	if _, ok := s.registry.Lookup(id); !ok {
		return domain.Outcome{}, fmt.Errorf("%w: %q", ErrUnknownTopic, id)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return domain.Outcome{}, err
	}
	if o, ok := sess.Outcome(id); ok {
		return o, nil
	}
	return domain.Outcome{Topic: id, Status: domain.StatusIndeterminate}, nil
}

// Reset drops the live session and its ledger rows.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if !s.sessions.Delete(sessionID) {
		return session.ErrSessionNotFound
	}
	s.metrics.SetActiveSessions(s.sessions.Len())
	s.convLog.Log(ConversationLogEvent{SessionID: sessionID, Channel: "system", EventType: "session_reset"})

	if s.ledger == nil {
		return nil
	}
	if _, err := s.ledger.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session rounds: %w", err)
	}
	return nil
}

// Rounds returns the ledger rows of a session.
func (s *Service) Rounds(ctx context.Context, sessionID string, limit int) ([]domain.Round, error) {
	if s.ledger == nil {
		return []domain.Round{}, nil
	}
	rounds, err := s.ledger.ListRounds(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	return nonNil(rounds), nil
}

// SessionExpired is the TTL worker callback for evicted sessions.
func (s *Service) SessionExpired(sessionID string) {
	s.metrics.SetActiveSessions(s.sessions.Len())
	s.convLog.Log(ConversationLogEvent{SessionID: sessionID, Channel: "system", EventType: "session_expired"})
}

// addressedTopics lists the topics of the ready statuses, without repeats.
func addressedTopics(statuses []protocol.Status) []topic.ID {
	var out []topic.ID
	seen := make(map[topic.ID]bool)
	for _, st := range statuses {
		if !st.Ready || st.Topic == "" || seen[st.Topic] {
			continue
		}
		seen[st.Topic] = true
		out = append(out, st.Topic)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
