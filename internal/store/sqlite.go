package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts   = 3
	writeRetryDelay = 50 * time.Millisecond
)

// SQLiteStore implements Ledger using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating if needed) the ledger database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL keeps ledger writes from blocking snapshot reads.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS rounds (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		user_text TEXT NOT NULL,
		reply TEXT NOT NULL,
		statuses_json TEXT NOT NULL,
		literals_json TEXT NOT NULL,
		answers_json TEXT NOT NULL,
		outcomes_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_created ON rounds(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RecordRound appends a completed round, retrying on lock contention.
func (s *SQLiteStore) RecordRound(ctx context.Context, round domain.Round) error {
	statuses, err := marshalList(round.Statuses)
	if err != nil {
		return fmt.Errorf("encode statuses: %w", err)
	}
	literals, err := marshalList(round.Literals)
	if err != nil {
		return fmt.Errorf("encode literals: %w", err)
	}
	answers, err := marshalList(round.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	outcomes, err := marshalList(round.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}

	createdAt := round.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	query := `
	INSERT INTO rounds (
		session_id, seq, user_text, reply,
		statuses_json, literals_json, answers_json, outcomes_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, "record round", writeAttempts, writeRetryDelay, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			round.SessionID, round.Seq, round.UserText, round.Reply,
			statuses, literals, answers, outcomes, createdAt.UnixMilli(),
		)
		return err
	})
}

// ListRounds returns a session's rounds ordered by sequence number.
func (s *SQLiteStore) ListRounds(ctx context.Context, sessionID string, limit int) ([]domain.Round, error) {
	query := `
		SELECT session_id, seq, user_text, reply,
		       statuses_json, literals_json, answers_json, outcomes_json, created_at
		FROM rounds WHERE session_id = ? ORDER BY seq`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close rounds rows", "error", closeErr)
		}
	}()

	var rounds []domain.Round
	for rows.Next() {
		var r domain.Round
		var statuses, literals, answers, outcomes string
		var createdAt int64
		if err := rows.Scan(
			&r.SessionID, &r.Seq, &r.UserText, &r.Reply,
			&statuses, &literals, &answers, &outcomes, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan round row: %w", err)
		}
		if err := unmarshalList(statuses, &r.Statuses); err != nil {
			return nil, fmt.Errorf("decode statuses: %w", err)
		}
		if err := unmarshalList(literals, &r.Literals); err != nil {
			return nil, fmt.Errorf("decode literals: %w", err)
		}
		if err := unmarshalList(answers, &r.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
		if err := unmarshalList(outcomes, &r.Outcomes); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		rounds = append(rounds, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rounds: %w", err)
	}
	return rounds, nil
}

// DeleteSession removes every round recorded for sessionID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete session rounds", writeAttempts, writeRetryDelay, func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM rounds WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// PruneRounds removes rounds created more than olderThan ago.
func (s *SQLiteStore) PruneRounds(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := s.now().Add(-olderThan).UnixMilli()
	result, err := s.db.ExecContext(ctx, `DELETE FROM rounds WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("prune rounds: %w", err)
	}
	return result.RowsAffected()
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalList[T any](data string, out *[]T) error {
	return json.Unmarshal([]byte(data), out)
}
