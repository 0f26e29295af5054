package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/report"
)

// SalesManagerConfig tunes the sales manager poller.
type SalesManagerConfig struct {
	CoordinationInterval   time.Duration
	ReportInterval         time.Duration
	MaxAllocationsPerCycle int
	SpeakerRatio           float64
	QualityThreshold       float64
	Accounts               []string
}

// SalesManager allocates qualified leads to the outreach pipeline and
// produces the daily report. Allocation runs under a coordination lock so
// two sales manager instances never double-allocate, and every allocation
// is additionally guarded by the sheet's conditional update.
type SalesManager struct {
	store      leadstore.Store
	budget     sendBudget
	locks      lockFactory
	watermarks watermarkStore
	reporter   *report.Reporter // optional
	workerID   string
	cfg        SalesManagerConfig

	// Stats
	leadsAllocated int64
	reportsSent    int64
	errors         int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex

	lastReportDay string
}

const (
	allocationLockResource = "sales-manager:allocation"
	reportWatermarkAgent   = "sales-manager-report"
)

// NewSalesManager creates the sales manager poller. reporter may be nil to
// disable daily reporting.
func NewSalesManager(store leadstore.Store, budget sendBudget, locks lockFactory,
	watermarks watermarkStore, reporter *report.Reporter, cfg SalesManagerConfig) *SalesManager {
	if cfg.CoordinationInterval <= 0 {
		cfg.CoordinationInterval = 15 * time.Minute
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Hour
	}
	if cfg.SpeakerRatio <= 0 || cfg.SpeakerRatio >= 1 {
		cfg.SpeakerRatio = 0.6
	}
	if cfg.MaxAllocationsPerCycle <= 0 {
		cfg.MaxAllocationsPerCycle = 20
	}
	return &SalesManager{
		store:      store,
		budget:     budget,
		locks:      locks,
		watermarks: watermarks,
		reporter:   reporter,
		workerID:   newWorkerID("sales-manager"),
		cfg:        cfg,
	}
}

// Start begins the coordination and report loops.
func (sm *SalesManager) Start() error {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		return fmt.Errorf("sales manager already running")
	}
	sm.running = true
	sm.ctx, sm.cancel = context.WithCancel(context.Background())
	sm.mu.Unlock()

	log.Printf("[SalesManager] Starting with coordination interval: %v", sm.cfg.CoordinationInterval)

	sm.wg.Add(1)
	go sm.coordinationLoop()

	if sm.reporter != nil {
		sm.wg.Add(1)
		go sm.reportLoop()
	}
	return nil
}

// Stop gracefully stops the poller.
func (sm *SalesManager) Stop() {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = false
	sm.mu.Unlock()

	log.Printf("[SalesManager] Stopping...")
	sm.cancel()
	sm.wg.Wait()
	log.Printf("[SalesManager] Stopped. Allocated: %d leads, Reports: %d, Errors: %d",
		atomic.LoadInt64(&sm.leadsAllocated),
		atomic.LoadInt64(&sm.reportsSent),
		atomic.LoadInt64(&sm.errors))
}

// Stats returns the poller's counters for the status endpoint.
func (sm *SalesManager) Stats() map[string]int64 {
	return map[string]int64{
		"leads_allocated": atomic.LoadInt64(&sm.leadsAllocated),
		"reports_sent":    atomic.LoadInt64(&sm.reportsSent),
		"errors":          atomic.LoadInt64(&sm.errors),
	}
}

func (sm *SalesManager) coordinationLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.cfg.CoordinationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.runAllocation()
		}
	}
}

func (sm *SalesManager) reportLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.cfg.ReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.maybeSendDailyReport()
		}
	}
}

// runAllocation performs one allocation cycle under the coordination lock.
func (sm *SalesManager) runAllocation() {
	ctx, cancel := context.WithTimeout(sm.ctx, cycleTimeout)
	defer cancel()

	lock := sm.locks.Lock(allocationLockResource)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		atomic.AddInt64(&sm.errors, 1)
		log.Printf("[SalesManager] Failed to acquire allocation lock: %v", err)
		return
	}
	if !acquired {
		log.Printf("[SalesManager] Allocation lock held elsewhere, skipping cycle")
		return
	}
	defer lock.Release(ctx)

	n, err := sm.allocate(ctx)
	if err != nil {
		atomic.AddInt64(&sm.errors, 1)
		log.Printf("[SalesManager] Allocation cycle failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SalesManager] Allocated %d leads", n)
	}
}

// allocate picks qualified leads up to the remaining send budget and marks
// them Allocated. Returns how many leads were claimed.
func (sm *SalesManager) allocate(ctx context.Context) (int, error) {
	remaining, err := sm.remainingBudget(ctx)
	if err != nil {
		return 0, err
	}
	budget := remaining
	if budget > sm.cfg.MaxAllocationsPerCycle {
		budget = sm.cfg.MaxAllocationsPerCycle
	}
	if budget <= 0 {
		return 0, nil
	}

	// Leave room for leads already allocated but not yet sent.
	pending, err := sm.store.List(ctx, leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusAllocated, domain.StatusInvitationSent},
	})
	if err != nil {
		return 0, err
	}
	budget -= len(pending)
	if budget <= 0 {
		return 0, nil
	}

	leads, err := sm.store.List(ctx, leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusNotContacted},
	})
	if err != nil {
		return 0, err
	}

	var qualified []domain.Lead
	for _, l := range leads {
		if l.HasQualityScore() && l.QualityScore >= sm.cfg.QualityThreshold {
			qualified = append(qualified, l)
		}
	}

	picked := allocateLeads(qualified, budget, sm.cfg.SpeakerRatio)

	now := time.Now().UTC()
	allocated := 0
	for _, lead := range picked {
		lead.ContactStatus = domain.StatusAllocated
		lead.AllocatedTo = sm.workerID
		lead.AllocatedAt = &now
		err := sm.store.Update(ctx, lead, domain.StatusNotContacted)
		if err != nil {
			if isStatusConflict(err) {
				continue
			}
			return allocated, err
		}
		allocated++
		atomic.AddInt64(&sm.leadsAllocated, 1)
	}
	return allocated, nil
}

// remainingBudget sums today's unused sends across all accounts.
func (sm *SalesManager) remainingBudget(ctx context.Context) (int, error) {
	total := 0
	for _, account := range sm.cfg.Accounts {
		n, err := sm.budget.Remaining(ctx, account)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// maybeSendDailyReport sends at most one report per civil day. The last
// report time is persisted as a watermark, so a restart or a second host
// sees the send even after the report lock expires; the in-memory day is
// only a fast path.
func (sm *SalesManager) maybeSendDailyReport() {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	if sm.lastReportDay == today {
		return
	}

	ctx, cancel := context.WithTimeout(sm.ctx, cycleTimeout)
	defer cancel()

	lock := sm.locks.Lock("sales-manager:report:" + today)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		return
	}
	defer lock.Release(ctx)

	// Re-check under the lock against the durable record.
	last, err := sm.watermarks.GetWatermark(ctx, reportWatermarkAgent)
	if err != nil {
		atomic.AddInt64(&sm.errors, 1)
		log.Printf("[SalesManager] Failed to read report watermark: %v", err)
		return
	}
	if last.UTC().Format("2006-01-02") == today {
		sm.lastReportDay = today
		return
	}

	if err := sm.reporter.SendDaily(ctx); err != nil {
		atomic.AddInt64(&sm.errors, 1)
		log.Printf("[SalesManager] Daily report failed: %v", err)
		return
	}
	if err := sm.watermarks.SetWatermark(ctx, reportWatermarkAgent, now); err != nil {
		atomic.AddInt64(&sm.errors, 1)
		log.Printf("[SalesManager] Failed to persist report watermark: %v", err)
	}
	sm.lastReportDay = today
	atomic.AddInt64(&sm.reportsSent, 1)
	log.Printf("[SalesManager] Daily report sent")
}
