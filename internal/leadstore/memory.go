package leadstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

// Memory is an in-process Store used by tests and by the import tool's
// dry-run mode. It applies the same conditional-update semantics as the
// sheet so agent logic exercised against it behaves identically.
type Memory struct {
	mu    sync.Mutex
	leads []domain.Lead
}

// NewMemory creates a Memory store seeded with the given leads.
func NewMemory(leads ...domain.Lead) *Memory {
	m := &Memory{}
	m.leads = append(m.leads, leads...)
	return m
}

func (m *Memory) List(ctx context.Context, f Filter) ([]domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Lead
	for _, l := range m.leads {
		if f.matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, lead domain.Lead, expectedStatus domain.ContactStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.leads {
		if l.ID != lead.ID {
			continue
		}
		if l.ContactStatus != expectedStatus {
			return fmt.Errorf("%w: %s is %q, expected %q",
				ErrStatusConflict, lead.ID, l.ContactStatus, expectedStatus)
		}
		lead.LastUpdated = time.Now().UTC()
		m.leads[i] = lead
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, lead.ID)
}

func (m *Memory) Append(ctx context.Context, leads []domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, l := range leads {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.LastUpdated = now
		m.leads = append(m.leads, l)
	}
	return nil
}

// Get returns a copy of the lead with the given ID, for test assertions.
func (m *Memory) Get(id string) (domain.Lead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Lead{}, false
}
