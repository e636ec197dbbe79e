package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/topic"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndListRounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	first := domain.Round{
		SessionID: "s1",
		Seq:       1,
		UserText:  "I cough a lot",
		Reply:     "How long?",
		Statuses:  []string{"{false, has_copd(j).}"},
		CreatedAt: at,
	}
	second := domain.Round{
		SessionID: "s1",
		Seq:       2,
		UserText:  "Months",
		Reply:     "Noted.",
		Statuses:  []string{"{true, has_copd(j).}"},
		Literals:  []string{"has_copd(j)."},
		Answers:   []string{"no models"},
		Outcomes: []domain.Outcome{
			{Topic: topic.COPD, Status: domain.StatusNegative, Line: "{SCREENING RESULTS: NO COPD}"},
		},
		CreatedAt: at.Add(time.Minute),
	}
	other := domain.Round{SessionID: "s2", Seq: 1, UserText: "hi", Reply: "hello", CreatedAt: at}

	for _, r := range []domain.Round{second, first, other} {
		if err := s.RecordRound(ctx, r); err != nil {
			t.Fatalf("RecordRound(%d) error = %v", r.Seq, err)
		}
	}

	got, err := s.ListRounds(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListRounds() error = %v", err)
	}
	want := []domain.Round{first, second}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("ListRounds() mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.ListRounds(ctx, "s1", 1)
	if err != nil || len(limited) != 1 || limited[0].Seq != 1 {
		t.Fatalf("ListRounds(limit=1) = %+v, %v", limited, err)
	}
}

func TestRecordRoundRejectsDuplicateSeq(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := domain.Round{SessionID: "s1", Seq: 1, UserText: "a", Reply: "b"}
	if err := s.RecordRound(ctx, r); err != nil {
		t.Fatalf("RecordRound() error = %v", err)
	}
	if err := s.RecordRound(ctx, r); err == nil {
		t.Fatal("expected a constraint error for a duplicate sequence number")
	}
}

func TestDeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	rounds := []domain.Round{
		{SessionID: "old", Seq: 1, CreatedAt: now.Add(-48 * time.Hour)},
		{SessionID: "new", Seq: 1, CreatedAt: now.Add(-time.Hour)},
		{SessionID: "new", Seq: 2, CreatedAt: now.Add(-time.Minute)},
	}
	for _, r := range rounds {
		if err := s.RecordRound(ctx, r); err != nil {
			t.Fatalf("RecordRound() error = %v", err)
		}
	}

	pruned, err := s.PruneRounds(ctx, 24*time.Hour)
	if err != nil || pruned != 1 {
		t.Fatalf("PruneRounds() = %d, %v; want 1", pruned, err)
	}

	deleted, err := s.DeleteSession(ctx, "new")
	if err != nil || deleted != 2 {
		t.Fatalf("DeleteSession() = %d, %v; want 2", deleted, err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
