package session

import (
	"context"
	"log/slog"
	"time"
)

const ttlWorkerInterval = time.Minute

// CleanupCallback is called for each session evicted by the TTL worker.
type CleanupCallback func(sessionID string)

// Pruner drops ledger rows older than a retention window.
type Pruner interface {
	PruneRounds(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StartTTLWorker runs a background goroutine that periodically evicts
// sessions idle for longer than ttl and prunes the round ledger.
func StartTTLWorker(ctx context.Context, mgr *Manager, ttl time.Duration, pruner Pruner, retention time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(ttlWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", ttlWorkerInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupExpiredSessions(ctx, mgr, ttl, pruner, retention, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupExpiredSessions(ctx context.Context, mgr *Manager, ttl time.Duration, pruner Pruner, retention time.Duration, onCleanup CleanupCallback) int {
	cleaned := 0
	for _, id := range mgr.Expired(ttl) {
		if !mgr.evictIdle(id, ttl) {
			continue
		}
		cleaned++
		if onCleanup != nil {
			onCleanup(id)
		}
	}
	if cleaned > 0 {
		slog.Info("TTL worker cleanup completed", "cleaned", cleaned)
	}

	if pruner == nil || retention <= 0 {
		return cleaned
	}
	if deleted, err := pruner.PruneRounds(ctx, retention); err != nil {
		slog.Error("TTL worker failed to prune round ledger", "error", err)
	} else if deleted > 0 {
		slog.Info("TTL worker pruned round ledger", "count", deleted)
	}
	return cleaned
}
