// Package ratelimit enforces the per-account send budget that keeps
// LinkedIn accounts in good standing: a hard daily cap, an hourly bucket,
// a randomized minimum gap between sends, and a local sending window.
// Counters live in Postgres so limits survive restarts; on any store
// error the limiter fails closed.
package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrBudgetExceeded is returned by RecordSend when the guarded increment
// finds no budget left. Callers treat it like a CanSend denial, not a
// store failure.
var ErrBudgetExceeded = errors.New("send budget exceeded")

// Options configures a Limiter.
type Options struct {
	DailyCap    int
	HourlyCap   int
	MinInterval time.Duration
	MaxInterval time.Duration
	WindowStart int // minutes since midnight, inclusive
	WindowEnd   int // minutes since midnight, exclusive
	Location    *time.Location
}

// Decision is the outcome of a CanSend check. Reason is set when a send
// is denied so callers can log why the account was skipped.
type Decision struct {
	Allowed bool
	Reason  string
}

// Limiter checks and records sends against the send_counters table.
type Limiter struct {
	db   *sql.DB
	opts Options

	// overridable for tests
	now func() time.Time
	gap func() time.Duration
}

// NewLimiter creates a limiter over db. Location defaults to UTC.
func NewLimiter(db *sql.DB, opts Options) *Limiter {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	l := &Limiter{db: db, opts: opts, now: time.Now}
	l.gap = func() time.Duration {
		spread := opts.MaxInterval - opts.MinInterval
		if spread <= 0 {
			return opts.MinInterval
		}
		return opts.MinInterval + time.Duration(rand.Int63n(int64(spread)))
	}
	return l
}

// CanSend reports whether the account may send right now. The minimum gap
// is drawn fresh on every check so send times do not form a fixed cadence.
// Any database error denies the send.
func (l *Limiter) CanSend(ctx context.Context, account string) (Decision, error) {
	now := l.now()

	if !l.inWindow(now) {
		return Decision{Reason: "outside sending window"}, nil
	}

	var (
		daily, hourly int
		hourStart     sql.NullTime
		lastSend      sql.NullTime
		resetDate     time.Time
		cooldown      sql.NullTime
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT daily_count, hourly_count, hour_start, last_send_at, reset_date, cooldown_until
		 FROM send_counters WHERE account_name = $1`, account).
		Scan(&daily, &hourly, &hourStart, &lastSend, &resetDate, &cooldown)
	if err == sql.ErrNoRows {
		return Decision{Allowed: true}, nil
	}
	if err != nil {
		return Decision{Reason: "counter store unavailable"},
			fmt.Errorf("read counters for %s: %w", account, err)
	}

	if cooldown.Valid && now.Before(cooldown.Time) {
		return Decision{Reason: fmt.Sprintf("account cooling down until %s",
			cooldown.Time.UTC().Format(time.RFC3339))}, nil
	}

	// Counters from a previous day are stale; the day rollover happens
	// inside RecordSend, so treat them as zero here.
	today := now.In(l.opts.Location)
	if !sameCivilDay(resetDate, today, l.opts.Location) {
		daily = 0
		hourly = 0
		hourStart = sql.NullTime{}
	}

	if daily >= l.opts.DailyCap {
		return Decision{Reason: fmt.Sprintf("daily cap reached (%d/%d)", daily, l.opts.DailyCap)}, nil
	}
	if l.opts.HourlyCap > 0 && hourStart.Valid &&
		hourStart.Time.UTC().Truncate(time.Hour).Equal(now.UTC().Truncate(time.Hour)) &&
		hourly >= l.opts.HourlyCap {
		return Decision{Reason: fmt.Sprintf("hourly cap reached (%d/%d)", hourly, l.opts.HourlyCap)}, nil
	}
	if lastSend.Valid {
		if elapsed := now.Sub(lastSend.Time); elapsed < l.gap() {
			return Decision{Reason: fmt.Sprintf("minimum interval not elapsed (last send %s ago)",
				elapsed.Round(time.Second))}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// RecordSend claims one send in a single guarded statement. The day and
// hour rollovers are folded into the upsert so concurrent writers and
// crash-retries cannot double-reset, and the caps plus the minimum-gap
// floor are re-checked inside the same statement: two racing processes
// that both passed CanSend cannot both claim the last slot, because only
// one conditional increment lands. Zero rows affected means the budget is
// gone and the caller must not send.
func (l *Limiter) RecordSend(ctx context.Context, account string) error {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO send_counters (account_name, daily_count, hourly_count, hour_start, last_send_at, reset_date, updated_at)
		 VALUES ($1, 1, 1, date_trunc('hour', now()), now(), CURRENT_DATE, now())
		 ON CONFLICT (account_name) DO UPDATE SET
			daily_count = CASE WHEN send_counters.reset_date = CURRENT_DATE
				THEN send_counters.daily_count + 1 ELSE 1 END,
			hourly_count = CASE WHEN send_counters.hour_start = date_trunc('hour', now())
				AND send_counters.reset_date = CURRENT_DATE
				THEN send_counters.hourly_count + 1 ELSE 1 END,
			hour_start = date_trunc('hour', now()),
			last_send_at = now(),
			reset_date = CURRENT_DATE,
			updated_at = now()
		 WHERE (send_counters.reset_date < CURRENT_DATE OR send_counters.daily_count < $2)
		   AND ($3 <= 0 OR send_counters.reset_date < CURRENT_DATE
				OR send_counters.hour_start IS DISTINCT FROM date_trunc('hour', now())
				OR send_counters.hourly_count < $3)
		   AND (send_counters.last_send_at IS NULL
				OR send_counters.last_send_at <= now() - make_interval(secs => $4))`,
		account, l.opts.DailyCap, l.opts.HourlyCap, l.opts.MinInterval.Seconds())
	if err != nil {
		return fmt.Errorf("record send for %s: %w", account, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record send for %s: %w", account, err)
	}
	if rows == 0 {
		return fmt.Errorf("record send for %s: %w", account, ErrBudgetExceeded)
	}
	return nil
}

// SetCooldown parks the account until the deadline. Used when the provider
// returns a rate-limit error so the next cycles rotate to another account.
func (l *Limiter) SetCooldown(ctx context.Context, account string, until time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO send_counters (account_name, cooldown_until, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (account_name) DO UPDATE SET cooldown_until = $2, updated_at = now()`,
		account, until)
	if err != nil {
		return fmt.Errorf("set cooldown for %s: %w", account, err)
	}
	return nil
}

// Remaining returns how many sends the account has left today. A store
// error returns 0 so budget-driven allocation also fails closed.
func (l *Limiter) Remaining(ctx context.Context, account string) (int, error) {
	var daily int
	var resetDate time.Time
	err := l.db.QueryRowContext(ctx,
		`SELECT daily_count, reset_date FROM send_counters WHERE account_name = $1`,
		account).Scan(&daily, &resetDate)
	if err == sql.ErrNoRows {
		return l.opts.DailyCap, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read remaining for %s: %w", account, err)
	}
	if !sameCivilDay(resetDate, l.now().In(l.opts.Location), l.opts.Location) {
		return l.opts.DailyCap, nil
	}
	if daily >= l.opts.DailyCap {
		return 0, nil
	}
	return l.opts.DailyCap - daily, nil
}

func (l *Limiter) inWindow(now time.Time) bool {
	local := now.In(l.opts.Location)
	mins := local.Hour()*60 + local.Minute()
	return mins >= l.opts.WindowStart && mins < l.opts.WindowEnd
}

func sameCivilDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
