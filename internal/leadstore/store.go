// Package leadstore provides access to the shared lead sheet. The sheet is
// the only coordination surface between the agents and the humans who review
// the pipeline, so every write goes through an optimistic status check: an
// update names the status it expects, and loses cleanly when another agent
// got there first.
package leadstore

import (
	"context"
	"errors"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

var (
	// ErrNotFound is returned when no lead with the given ID exists.
	ErrNotFound = errors.New("leadstore: lead not found")
	// ErrStatusConflict is returned when a conditional update finds the
	// lead in a different status than the caller expected.
	ErrStatusConflict = errors.New("leadstore: lead status changed since read")
)

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Statuses     []domain.ContactStatus
	UpdatedAfter time.Time
	AllocatedTo  string
}

func (f Filter) matches(l domain.Lead) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if l.ContactStatus == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.UpdatedAfter.IsZero() && !l.LastUpdated.After(f.UpdatedAfter) {
		return false
	}
	if f.AllocatedTo != "" && l.AllocatedTo != f.AllocatedTo {
		return false
	}
	return true
}

// Store is the lead sheet abstraction the agents work against.
type Store interface {
	// List returns leads matching the filter, in sheet order.
	List(ctx context.Context, f Filter) ([]domain.Lead, error)

	// Update writes the lead back conditionally: it only succeeds when the
	// stored lead is still in expectedStatus. Pass the lead's current
	// status as read; a concurrent transition surfaces as
	// ErrStatusConflict and the caller drops the lead for this cycle.
	Update(ctx context.Context, lead domain.Lead, expectedStatus domain.ContactStatus) error

	// Append adds new leads to the end of the sheet.
	Append(ctx context.Context, leads []domain.Lead) error
}
