package worker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/prospect"
)

// LeadFinderConfig tunes the lead finder poller.
type LeadFinderConfig struct {
	PollInterval     time.Duration
	MaxLeadsPerCycle int
	DefaultScore     float64
}

// LeadFinder scans new leads in the sheet, classifies them into the
// Speaker or Sponsor track and attaches a quality score. It only ever
// touches leads that are still Not Contacted; everything downstream
// belongs to the other agents.
type LeadFinder struct {
	store      leadstore.Store
	classifier *prospect.Classifier
	watermarks watermarkStore
	workerID   string
	cfg        LeadFinderConfig

	// Stats
	leadsProcessed int64
	leadsSkipped   int64
	errors         int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

const leadFinderAgent = "lead-finder"

// NewLeadFinder creates the lead finder poller.
func NewLeadFinder(store leadstore.Store, classifier *prospect.Classifier, watermarks watermarkStore, cfg LeadFinderConfig) *LeadFinder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Minute
	}
	if cfg.MaxLeadsPerCycle <= 0 {
		cfg.MaxLeadsPerCycle = 50
	}
	return &LeadFinder{
		store:      store,
		classifier: classifier,
		watermarks: watermarks,
		workerID:   newWorkerID(leadFinderAgent),
		cfg:        cfg,
	}
}

// Start begins the polling loop.
func (lf *LeadFinder) Start() error {
	lf.mu.Lock()
	if lf.running {
		lf.mu.Unlock()
		return fmt.Errorf("lead finder already running")
	}
	lf.running = true
	lf.ctx, lf.cancel = context.WithCancel(context.Background())
	lf.mu.Unlock()

	log.Printf("[LeadFinder] Starting with poll interval: %v", lf.cfg.PollInterval)

	lf.wg.Add(1)
	go lf.pollLoop()
	return nil
}

// Stop gracefully stops the poller.
func (lf *LeadFinder) Stop() {
	lf.mu.Lock()
	if !lf.running {
		lf.mu.Unlock()
		return
	}
	lf.running = false
	lf.mu.Unlock()

	log.Printf("[LeadFinder] Stopping...")
	lf.cancel()
	lf.wg.Wait()
	log.Printf("[LeadFinder] Stopped. Processed: %d leads, Skipped: %d, Errors: %d",
		atomic.LoadInt64(&lf.leadsProcessed),
		atomic.LoadInt64(&lf.leadsSkipped),
		atomic.LoadInt64(&lf.errors))
}

// Stats returns the poller's counters for the status endpoint.
func (lf *LeadFinder) Stats() map[string]int64 {
	return map[string]int64{
		"leads_processed": atomic.LoadInt64(&lf.leadsProcessed),
		"leads_skipped":   atomic.LoadInt64(&lf.leadsSkipped),
		"errors":          atomic.LoadInt64(&lf.errors),
	}
}

func (lf *LeadFinder) pollLoop() {
	defer lf.wg.Done()

	ticker := time.NewTicker(lf.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lf.ctx.Done():
			return
		case <-ticker.C:
			lf.processNewLeads()
		}
	}
}

// processNewLeads runs one classification cycle. The watermark only moves
// after the whole batch is written back, so a crash mid-batch replays the
// batch; reclassifying an already-classified lead writes the same values.
func (lf *LeadFinder) processNewLeads() {
	ctx, cancel := context.WithTimeout(lf.ctx, cycleTimeout)
	defer cancel()

	watermark, err := lf.watermarks.GetWatermark(ctx, leadFinderAgent)
	if err != nil {
		atomic.AddInt64(&lf.errors, 1)
		log.Printf("[LeadFinder] Failed to read watermark: %v", err)
		return
	}

	leads, err := lf.store.List(ctx, leadstore.Filter{
		Statuses:     []domain.ContactStatus{domain.StatusNotContacted},
		UpdatedAfter: watermark,
	})
	if err != nil {
		atomic.AddInt64(&lf.errors, 1)
		log.Printf("[LeadFinder] Failed to list leads: %v", err)
		return
	}
	if len(leads) == 0 {
		return
	}
	// process oldest first so the watermark can track completed work; the
	// sheet's row order says nothing about update time
	sort.Slice(leads, func(i, j int) bool {
		return leads[i].LastUpdated.Before(leads[j].LastUpdated)
	})
	if len(leads) > lf.cfg.MaxLeadsPerCycle {
		leads = leads[:lf.cfg.MaxLeadsPerCycle]
	}
	log.Printf("[LeadFinder] Processing %d new leads", len(leads))

	// The watermark stops at the last lead finished before the first
	// transient failure, so a failed lead is rescanned next cycle instead
	// of being stranded behind the watermark forever. Leads enriched after
	// the failure are replayed too, which is harmless: their own write
	// bumped LastUpdated, and enriched leads are skipped above the
	// watermark anyway.
	newWatermark := watermark
	failed := false
	for _, lead := range leads {
		// our own write bumps LastUpdated past the watermark; already
		// enriched leads just move the watermark along
		if lead.Classification != "" && lead.HasQualityScore() {
			if !failed && lead.LastUpdated.After(newWatermark) {
				newWatermark = lead.LastUpdated
			}
			continue
		}
		if err := lf.enrichLead(ctx, lead); err != nil {
			atomic.AddInt64(&lf.errors, 1)
			log.Printf("[LeadFinder] Failed to enrich lead %s: %v", lead.ID, err)
			failed = true
			continue
		}
		if !failed && lead.LastUpdated.After(newWatermark) {
			newWatermark = lead.LastUpdated
		}
	}

	if err := lf.watermarks.SetWatermark(ctx, leadFinderAgent, newWatermark); err != nil {
		atomic.AddInt64(&lf.errors, 1)
		log.Printf("[LeadFinder] Failed to advance watermark: %v", err)
	}
}

func (lf *LeadFinder) enrichLead(ctx context.Context, lead domain.Lead) error {
	class, fromRules := lf.classifier.Classify(ctx, lead)
	lead.Classification = class
	if !fromRules {
		lead.Notes = appendNote(lead.Notes, "classification needs review")
	}

	score := prospect.Score(lead)
	if score == 0 && lf.cfg.DefaultScore > 0 {
		score = lf.cfg.DefaultScore
	}
	if err := domain.ValidateQualityScore(score); err != nil {
		return err
	}
	lead.QualityScore = score

	err := lf.store.Update(ctx, lead, domain.StatusNotContacted)
	if err != nil {
		// another agent already moved this lead; drop it for this cycle
		if isStatusConflict(err) {
			atomic.AddInt64(&lf.leadsSkipped, 1)
			return nil
		}
		return err
	}
	atomic.AddInt64(&lf.leadsProcessed, 1)
	return nil
}

func appendNote(notes, addition string) string {
	if notes == "" {
		return addition
	}
	return notes + "; " + addition
}
