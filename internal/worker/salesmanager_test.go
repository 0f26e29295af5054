package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/report"
)

func newTestSalesManager(store leadstore.Store, budget sendBudget, locks lockFactory) *SalesManager {
	sm := NewSalesManager(store, budget, locks, newFakeWatermarks(), nil, SalesManagerConfig{
		MaxAllocationsPerCycle: 20,
		SpeakerRatio:           0.6,
		QualityThreshold:       7.0,
		Accounts:               []string{"primary"},
	})
	sm.ctx = context.Background()
	return sm
}

func qualifiedLead(id string, class domain.Classification, score float64) domain.Lead {
	return domain.Lead{
		ID: id, Name: "Lead " + id, Position: "CTO", Company: "Acme",
		LinkedInURL:    "https://linkedin.com/in/" + id,
		Classification: class, QualityScore: score,
		ContactStatus: domain.StatusNotContacted,
	}
}

func TestAllocationMarksLeads(t *testing.T) {
	store := leadstore.NewMemory(
		qualifiedLead("s1", domain.ClassSpeaker, 9.0),
		qualifiedLead("p1", domain.ClassSponsor, 8.5),
		qualifiedLead("low", domain.ClassSpeaker, 3.0), // below threshold
	)
	sm := newTestSalesManager(store, newFakeBudget(map[string]int{"primary": 45}), &fakeLockFactory{})

	sm.runAllocation()

	for _, id := range []string{"s1", "p1"} {
		lead, _ := store.Get(id)
		if lead.ContactStatus != domain.StatusAllocated {
			t.Errorf("%s status = %s, want Allocated", id, lead.ContactStatus)
		}
		if lead.AllocatedTo == "" || lead.AllocatedAt == nil {
			t.Errorf("%s missing allocation stamp", id)
		}
	}
	low, _ := store.Get("low")
	if low.ContactStatus != domain.StatusNotContacted {
		t.Errorf("below-threshold lead allocated: %s", low.ContactStatus)
	}
}

func TestAllocationCappedByRemainingBudget(t *testing.T) {
	var leads []domain.Lead
	for i := 0; i < 30; i++ {
		leads = append(leads, qualifiedLead(fmt.Sprintf("s%d", i), domain.ClassSpeaker, 9.0))
	}
	store := leadstore.NewMemory(leads...)
	// only 5 sends left today
	sm := newTestSalesManager(store, newFakeBudget(map[string]int{"primary": 5}), &fakeLockFactory{})

	sm.runAllocation()

	allocated, _ := store.List(context.Background(), leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusAllocated},
	})
	if len(allocated) != 5 {
		t.Errorf("allocated = %d, want 5 (budget cap)", len(allocated))
	}
}

func TestAllocationCountsPendingAgainstBudget(t *testing.T) {
	pending := qualifiedLead("pending", domain.ClassSpeaker, 9.0)
	pending.ContactStatus = domain.StatusAllocated
	store := leadstore.NewMemory(
		pending,
		qualifiedLead("s1", domain.ClassSpeaker, 9.0),
		qualifiedLead("s2", domain.ClassSpeaker, 8.0),
	)
	// budget 2, one slot already taken by the pending lead
	sm := newTestSalesManager(store, newFakeBudget(map[string]int{"primary": 2}), &fakeLockFactory{})

	sm.runAllocation()

	allocated, _ := store.List(context.Background(), leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusAllocated},
	})
	if len(allocated) != 2 {
		t.Errorf("allocated total = %d, want 2 (pending counts against budget)", len(allocated))
	}
}

func TestAllocationSkipsWhenLockHeld(t *testing.T) {
	store := leadstore.NewMemory(qualifiedLead("s1", domain.ClassSpeaker, 9.0))
	locks := &fakeLockFactory{heldResources: map[string]bool{allocationLockResource: true}}
	sm := newTestSalesManager(store, newFakeBudget(map[string]int{"primary": 45}), locks)

	sm.runAllocation()

	lead, _ := store.Get("s1")
	if lead.ContactStatus != domain.StatusNotContacted {
		t.Errorf("allocation ran despite held lock: %s", lead.ContactStatus)
	}
}

// countingSender tallies report deliveries.
type countingSender struct{ sent int }

func (s *countingSender) Send(ctx context.Context, subject, body string) error {
	s.sent++
	return nil
}

func newReportingSalesManager(store leadstore.Store, marks watermarkStore, sender report.Sender) *SalesManager {
	sm := NewSalesManager(store, newFakeBudget(map[string]int{"primary": 45}), &fakeLockFactory{},
		marks, report.NewReporter(store, nil, sender), SalesManagerConfig{
			Accounts: []string{"primary"},
		})
	sm.ctx = context.Background()
	return sm
}

func TestDailyReportSurvivesRestart(t *testing.T) {
	store := leadstore.NewMemory()
	marks := newFakeWatermarks()
	sender := &countingSender{}

	sm := newReportingSalesManager(store, marks, sender)
	sm.maybeSendDailyReport()
	sm.maybeSendDailyReport()
	if sender.sent != 1 {
		t.Fatalf("reports sent = %d, want 1 from one instance", sender.sent)
	}

	// a restarted instance loses lastReportDay but shares the durable record
	restarted := newReportingSalesManager(store, marks, sender)
	restarted.maybeSendDailyReport()
	if sender.sent != 1 {
		t.Errorf("reports sent = %d, want 1 after restart on the same day", sender.sent)
	}
}

func TestAllocationSixtyFortyEndToEnd(t *testing.T) {
	var leads []domain.Lead
	for i := 0; i < 18; i++ {
		leads = append(leads, qualifiedLead(fmt.Sprintf("spk%d", i), domain.ClassSpeaker, 9.0))
	}
	for i := 0; i < 12; i++ {
		leads = append(leads, qualifiedLead(fmt.Sprintf("spn%d", i), domain.ClassSponsor, 9.0))
	}
	store := leadstore.NewMemory(leads...)
	sm := newTestSalesManager(store, newFakeBudget(map[string]int{"primary": 20}), &fakeLockFactory{})

	sm.runAllocation()

	allocated, _ := store.List(context.Background(), leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusAllocated},
	})
	speakers, sponsors := countByClass(allocated)
	if speakers != 12 || sponsors != 8 {
		t.Errorf("split = %d/%d, want 12/8 at budget 20", speakers, sponsors)
	}
}
