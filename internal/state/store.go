// Package state provides the durable coordination store shared by the
// agents: per-account send counters, the agent lock table, and per-agent
// watermarks. Everything lives in Postgres so a restarted process resumes
// where it left off.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store provides database operations for coordination state
type Store struct {
	db *sql.DB
}

// NewStore creates a new state store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle so the rate limiter and the
// Postgres lock backend can share the same connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the coordination tables if they do not exist.
// Safe to call on every startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS send_counters (
			account_name TEXT PRIMARY KEY,
			daily_count INTEGER NOT NULL DEFAULT 0,
			hourly_count INTEGER NOT NULL DEFAULT 0,
			hour_start TIMESTAMPTZ,
			last_send_at TIMESTAMPTZ,
			reset_date DATE NOT NULL DEFAULT CURRENT_DATE,
			cooldown_until TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS agent_locks (
			resource_id TEXT PRIMARY KEY,
			holder TEXT NOT NULL,
			acquired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_watermarks (
			agent_name TEXT PRIMARY KEY,
			watermark TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS invitations (
			lead_id TEXT PRIMARY KEY,
			invitation_id TEXT NOT NULL,
			account_name TEXT NOT NULL,
			checks INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_locks_expires ON agent_locks (expires_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetWatermark returns the last processed timestamp for an agent.
// A zero time means the agent has never completed a batch.
func (s *Store) GetWatermark(ctx context.Context, agentName string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT watermark FROM agent_watermarks WHERE agent_name = $1`,
		agentName).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark for %s: %w", agentName, err)
	}
	return ts, nil
}

// SetWatermark advances the agent's watermark. Callers must only advance it
// after a batch has been fully processed; a crash between processing and the
// advance causes reprocessing, which downstream updates tolerate.
func (s *Store) SetWatermark(ctx context.Context, agentName string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_watermarks (agent_name, watermark, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (agent_name) DO UPDATE SET watermark = $2, updated_at = now()`,
		agentName, ts)
	if err != nil {
		return fmt.Errorf("set watermark for %s: %w", agentName, err)
	}
	return nil
}

// AccountUsage is a read-only snapshot of one account's send counters,
// surfaced by the status endpoint and the daily report.
type AccountUsage struct {
	Account       string     `json:"account"`
	DailyCount    int        `json:"daily_count"`
	HourlyCount   int        `json:"hourly_count"`
	LastSendAt    *time.Time `json:"last_send_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// GetUsage returns today's counters for all accounts. Counters from a
// previous day are reported as zero since the limiter resets them lazily.
func (s *Store) GetUsage(ctx context.Context) ([]AccountUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_name, daily_count, hourly_count, last_send_at, cooldown_until, reset_date
		 FROM send_counters ORDER BY account_name`)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	defer rows.Close()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var usage []AccountUsage
	for rows.Next() {
		var u AccountUsage
		var resetDate time.Time
		if err := rows.Scan(&u.Account, &u.DailyCount, &u.HourlyCount,
			&u.LastSendAt, &u.CooldownUntil, &resetDate); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		if !sameDay(resetDate, today) {
			u.DailyCount = 0
			u.HourlyCount = 0
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
