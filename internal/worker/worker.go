// Package worker contains the three polling agents: the Lead Finder
// (classification and scoring), the Sales Manager (allocation and daily
// reporting) and the Outreach agent (rate-limited sending, acceptance
// polling and response handling). The agents never talk to each other;
// the lead sheet and the coordination store are the only shared surfaces,
// so any agent can crash and restart without the others noticing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/distlock"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/ratelimit"
)

// cycleTimeout bounds a single poll cycle so a stuck provider call cannot
// wedge an agent past its next tick.
const cycleTimeout = 2 * time.Minute

func getHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "sales-agent"
	}
	return h
}

// newWorkerID builds a unique worker identity used as the lock holder and
// in allocation records.
func newWorkerID(name string) string {
	return fmt.Sprintf("%s-%s-%d", name, getHostname(), time.Now().UnixNano()%10000)
}

// watermarkStore is the slice of the coordination store the pollers use to
// resume where the previous run stopped.
type watermarkStore interface {
	GetWatermark(ctx context.Context, agentName string) (time.Time, error)
	SetWatermark(ctx context.Context, agentName string, ts time.Time) error
}

// lockFactory mints TTL locks; satisfied by *distlock.Factory.
type lockFactory interface {
	Lock(resourceID string) distlock.Locker
}

// isStatusConflict reports whether a sheet update lost an optimistic race.
func isStatusConflict(err error) bool {
	return errors.Is(err, leadstore.ErrStatusConflict)
}

// sendBudget is the slice of the rate limiter the agents consult.
type sendBudget interface {
	CanSend(ctx context.Context, account string) (ratelimit.Decision, error)
	RecordSend(ctx context.Context, account string) error
	SetCooldown(ctx context.Context, account string, until time.Time) error
	Remaining(ctx context.Context, account string) (int, error)
}
