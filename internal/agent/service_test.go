package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/session"
	"github.com/ashureev/caspchat/internal/solver"
	"github.com/ashureev/caspchat/internal/topic"
)

// scriptedModel replays canned utterances and records what it was sent.
type scriptedModel struct {
	mu        sync.Mutex
	replies   []string
	err       error
	prompts   []string
	histories [][]domain.Turn
}

func (m *scriptedModel) Generate(_ context.Context, history []domain.Turn, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.histories = append(m.histories, history)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

func (m *scriptedModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[len(m.prompts)-1]
}

// newSolverServer answers with the first entry whose key appears in the
// posted literal. Keys mapped to "" get a 500.
func newSolverServer(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var literal string
		if err := json.NewDecoder(r.Body).Decode(&literal); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		for key, answer := range answers {
			if strings.Contains(literal, key) {
				if answer == "" {
					http.Error(w, "solver error", http.StatusInternalServerError)
					return
				}
				_, _ = io.WriteString(w, answer)
				return
			}
		}
		_, _ = io.WriteString(w, "no models")
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fakeLedger struct {
	mu     sync.Mutex
	rounds []domain.Round
	err    error
}

func (l *fakeLedger) RecordRound(_ context.Context, r domain.Round) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.rounds = append(l.rounds, r)
	return nil
}

func (l *fakeLedger) ListRounds(_ context.Context, sessionID string, _ int) ([]domain.Round, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Round
	for _, r := range l.rounds {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *fakeLedger) DeleteSession(_ context.Context, sessionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.rounds[:0]
	var n int64
	for _, r := range l.rounds {
		if r.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	l.rounds = kept
	return n, nil
}

func (l *fakeLedger) PruneRounds(context.Context, time.Duration) (int64, error) { return 0, nil }
func (l *fakeLedger) Ping(context.Context) error                              { return nil }
func (l *fakeLedger) Close() error                                            { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	svc      *Service
	model    *scriptedModel
	sessions *session.Manager
	ledger   *fakeLedger
}

func newTestEnv(t *testing.T, model *scriptedModel, answers map[string]string) *testEnv {
	t.Helper()
	srv := newSolverServer(t, answers)
	logger := quietLogger()
	dispatcher := solver.NewDispatcher(
		solver.NewClient(srv.URL, srv.Client()),
		solver.Options{Mode: solver.ModeConcurrent, Concurrency: 2, Timeout: 2 * time.Second},
		logger,
		nil,
	)
	sessions := session.NewManager("Hello!")
	ledger := &fakeLedger{}
	svc, err := NewService(Deps{
		Model:      model,
		Registry:   topic.Default(),
		Dispatcher: dispatcher,
		Sessions:   sessions,
		Ledger:     ledger,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &testEnv{svc: svc, model: model, sessions: sessions, ledger: ledger}
}

func TestChatRoundDispatchesReadyQueries(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"{true, has_autism(j).}.~{false, has_dementia(j).}.~Thanks, one more question.",
	}}
	env := newTestEnv(t, model, map[string]string{"has_autism": "% has_autism(j, Y)\n Y = 7\n"})

	got, err := env.svc.Chat(context.Background(), "s1", ChannelHTTP, "my son avoids eye contact")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got.Message != "Thanks, one more question." || got.Seq != 1 {
		t.Errorf("unexpected reply: %+v", got)
	}
	if len(got.ConditionStatus) != 2 || len(got.QueryResult) != 1 {
		t.Fatalf("unexpected payload shape: %+v", got)
	}
	if len(got.Outcomes) != 1 {
		t.Fatalf("expected one outcome, got %+v", got.Outcomes)
	}
	autism := got.Outcomes[0]
	if autism.Topic != topic.Autism || autism.Status != domain.StatusPositive || autism.Severity != "3" {
		t.Errorf("unexpected autism outcome: %+v", autism)
	}

	snap, err := env.svc.Snapshot("s1")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.History) != 3 || snap.History[1].Text != "my son avoids eye contact" {
		t.Errorf("unexpected history: %+v", snap.History)
	}
	if len(snap.LastQueryBatch) != 2 {
		t.Errorf("unexpected last batch: %v", snap.LastQueryBatch)
	}
	if len(env.ledger.rounds) != 1 || env.ledger.rounds[0].Literals[0] != "has_autism(j)." {
		t.Errorf("unexpected ledger rows: %+v", env.ledger.rounds)
	}

	first := model.histories[0]
	if len(first) != 1 || first[0].Role != domain.RoleAssistant {
		t.Errorf("first call should see only the greeting, got %+v", first)
	}
}

func TestChatFeedsResultsIntoNextPrompt(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"{true, has_copd(j).}.~Let me check.",
		"{false, has_dementia(j).}.~Any memory problems?",
	}}
	env := newTestEnv(t, model, map[string]string{"has_copd": "no models"})
	ctx := context.Background()

	if _, err := env.svc.Chat(ctx, "s1", ChannelHTTP, "I cough"); err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.Chat(ctx, "s1", ChannelHTTP, "ok")
	if err != nil {
		t.Fatal(err)
	}

	want := "CURRENT QUERIES: {true, has_copd(j).}.\n" +
		"QUERY RESULTS (if any): {SCREENING RESULTS: NO COPD}\n" +
		"USER MESSAGE: ok"
	if got := model.lastPrompt(); got != want {
		t.Errorf("second prompt:\n%q\nwant\n%q", got, want)
	}
	if len(second.Outcomes) != 0 {
		t.Errorf("no ready queries in round two, got outcomes %+v", second.Outcomes)
	}
	sess, err := env.sessions.Get("s1")
	if err != nil {
		t.Fatal(err)
	}
	if o, _ := sess.Outcome(topic.COPD); o.Status != domain.StatusNegative {
		t.Errorf("COPD outcome should persist across rounds, got %+v", o)
	}
}

func TestChatIsolatesSolverFailures(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"{true, has_autism(j).}.~{true, has_copd(j).}.~Checking both.",
	}}
	env := newTestEnv(t, model, map[string]string{
		"has_autism": "",
		"has_copd":   "no models",
	})

	got, err := env.svc.Chat(context.Background(), "s1", ChannelHTTP, "go")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(got.QueryResult) != 1 || len(got.Outcomes) != 1 || got.Outcomes[0].Topic != topic.COPD {
		t.Fatalf("expected only the COPD answer to survive, got %+v", got)
	}

	sess, _ := env.sessions.Get("s1")
	autism, ok := sess.Outcome(topic.Autism)
	if !ok || autism.Status != domain.StatusIndeterminate {
		t.Errorf("failed topic should stay indeterminate, got %+v", autism)
	}
}

func TestChatModelFailureLeavesSessionUntouched(t *testing.T) {
	model := &scriptedModel{err: errors.New("quota exceeded")}
	env := newTestEnv(t, model, nil)

	_, err := env.svc.Chat(context.Background(), "s1", ChannelHTTP, "hello")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	snap, _ := env.svc.Snapshot("s1")
	if snap.Rounds != 0 || len(snap.History) != 1 {
		t.Errorf("session changed after model failure: %+v", snap)
	}
	if len(env.ledger.rounds) != 0 {
		t.Error("no round should be recorded")
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{}, nil)
	if _, err := env.svc.Chat(context.Background(), "s1", ChannelHTTP, "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if env.sessions.Len() != 0 {
		t.Fatal("an empty message must not create a session")
	}
}

func TestChatLedgerFailureDoesNotFailRound(t *testing.T) {
	model := &scriptedModel{replies: []string{"Just chatting."}}
	env := newTestEnv(t, model, nil)
	env.ledger.err = errors.New("disk full")

	got, err := env.svc.Chat(context.Background(), "s1", ChannelHTTP, "hi")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if got.Message != "Just chatting." || len(got.ConditionStatus) != 0 {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestResetDropsSessionAndRounds(t *testing.T) {
	model := &scriptedModel{replies: []string{"Hi."}}
	env := newTestEnv(t, model, nil)
	ctx := context.Background()

	if err := env.svc.Reset(ctx, "s1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := env.svc.Chat(ctx, "s1", ChannelHTTP, "hi"); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	rounds, err := env.svc.Rounds(ctx, "s1", 0)
	if err != nil || len(rounds) != 0 {
		t.Fatalf("expected no rounds after reset, got %d, %v", len(rounds), err)
	}
}

func TestSessionsRunRoundsIndependently(t *testing.T) {
	replies := make([]string, 8)
	for i := range replies {
		replies[i] = fmt.Sprintf("{true, has_copd(p%d).}.~ok", i)
	}
	env := newTestEnv(t, &scriptedModel{replies: replies}, map[string]string{"has_copd": "no models"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Chat(context.Background(), fmt.Sprintf("s%d", i%4), ChannelHTTP, "hi"); err != nil {
				t.Errorf("Chat() error = %v", err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		snap, err := env.svc.Snapshot(fmt.Sprintf("s%d", i))
		if err != nil || snap.Rounds != 2 {
			t.Errorf("session s%d: rounds=%d err=%v", i, snap.Rounds, err)
		}
	}
}
