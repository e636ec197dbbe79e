// Package store provides the round ledger used for diagnostics.
package store

import (
	"context"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
)

// Ledger records completed rounds. It is write-mostly: live sessions are
// never rebuilt from it.
type Ledger interface {
	// RecordRound appends a completed round.
	RecordRound(ctx context.Context, round domain.Round) error

	// ListRounds returns the rounds of a session in sequence order. A
	// non-positive limit returns all of them.
	ListRounds(ctx context.Context, sessionID string, limit int) ([]domain.Round, error)

	// DeleteSession removes every round of a session.
	DeleteSession(ctx context.Context, sessionID string) (int64, error)

	// PruneRounds removes rounds older than olderThan.
	PruneRounds(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
