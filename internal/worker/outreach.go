package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/linkedin"
	"github.com/innovatorsguild/sales-agents/internal/prospect"
	"github.com/innovatorsguild/sales-agents/internal/ratelimit"
	"github.com/innovatorsguild/sales-agents/internal/state"
)

// invitationNoteLimit caps the note attached to a connection request; the
// provider rejects longer ones.
const invitationNoteLimit = 300

// providerCooldown is how long an account rests after the provider
// throttles it.
const providerCooldown = time.Hour

// outreachAccount is the provider surface the agent needs per account;
// satisfied by *linkedin.AccountClient.
type outreachAccount interface {
	Name() string
	FindConnection(ctx context.Context, profileURL string) (linkedin.Connection, error)
	SendInvitation(ctx context.Context, providerID, message string) (string, error)
	SendMessage(ctx context.Context, providerID, text string) (string, error)
	CheckInvitation(ctx context.Context, invitationID string) (linkedin.Invitation, error)
	PollMessages(ctx context.Context, after time.Time) ([]linkedin.IncomingMessage, error)
}

// invitationStore persists pending invitations; satisfied by *state.Store.
type invitationStore interface {
	RecordInvitation(ctx context.Context, inv state.Invitation) error
	GetInvitation(ctx context.Context, leadID string) (*state.Invitation, error)
	IncrementInvitationChecks(ctx context.Context, leadID string) (int, error)
	DeleteInvitation(ctx context.Context, leadID string) error
}

// OutreachConfig tunes the outreach poller.
type OutreachConfig struct {
	PollInterval        time.Duration
	AcceptanceInterval  time.Duration
	ResponseInterval    time.Duration
	MaxAcceptanceChecks int
}

// Outreach works the Allocated queue: it sends the personalised message to
// direct connections, sends invitations to everyone else, polls pending
// invitations for acceptance, and turns incoming replies into Responded
// leads. Every send passes the rate limiter first and every lead is worked
// under a TTL lock.
type Outreach struct {
	store      leadstore.Store
	budget     sendBudget
	locks      lockFactory
	invites    invitationStore
	watermarks watermarkStore
	accounts   []outreachAccount
	generator  *prospect.Generator
	analyser   *prospect.Analyser
	workerID   string
	cfg        OutreachConfig

	// Stats
	messagesSent       int64
	invitationsSent    int64
	acceptances        int64
	responsesProcessed int64
	leadsFailed        int64
	errors             int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

const responseWatermarkAgent = "outreach-responses"

// NewOutreach creates the outreach poller over the configured accounts.
func NewOutreach(store leadstore.Store, budget sendBudget, locks lockFactory,
	invites invitationStore, watermarks watermarkStore, manager *linkedin.Manager,
	generator *prospect.Generator, analyser *prospect.Analyser, cfg OutreachConfig) *Outreach {

	accounts := make([]outreachAccount, 0, len(manager.Accounts()))
	for _, a := range manager.Accounts() {
		accounts = append(accounts, a)
	}
	return newOutreach(store, budget, locks, invites, watermarks, accounts, generator, analyser, cfg)
}

func newOutreach(store leadstore.Store, budget sendBudget, locks lockFactory,
	invites invitationStore, watermarks watermarkStore, accounts []outreachAccount,
	generator *prospect.Generator, analyser *prospect.Analyser, cfg OutreachConfig) *Outreach {

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.AcceptanceInterval <= 0 {
		cfg.AcceptanceInterval = 30 * time.Minute
	}
	if cfg.ResponseInterval <= 0 {
		cfg.ResponseInterval = 10 * time.Minute
	}
	if cfg.MaxAcceptanceChecks <= 0 {
		cfg.MaxAcceptanceChecks = 14
	}
	return &Outreach{
		store:      store,
		budget:     budget,
		locks:      locks,
		invites:    invites,
		watermarks: watermarks,
		accounts:   accounts,
		generator:  generator,
		analyser:   analyser,
		workerID:   newWorkerID("outreach"),
		cfg:        cfg,
	}
}

// Start begins the send, acceptance and response loops.
func (o *Outreach) Start() error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("outreach already running")
	}
	o.running = true
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.mu.Unlock()

	log.Printf("[Outreach] Starting with poll interval: %v, %d accounts",
		o.cfg.PollInterval, len(o.accounts))

	o.wg.Add(3)
	go o.sendLoop()
	go o.acceptanceLoop()
	go o.responseLoop()
	return nil
}

// Stop gracefully stops the poller.
func (o *Outreach) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	log.Printf("[Outreach] Stopping...")
	o.cancel()
	o.wg.Wait()
	log.Printf("[Outreach] Stopped. Messages: %d, Invitations: %d, Responses: %d, Errors: %d",
		atomic.LoadInt64(&o.messagesSent),
		atomic.LoadInt64(&o.invitationsSent),
		atomic.LoadInt64(&o.responsesProcessed),
		atomic.LoadInt64(&o.errors))
}

// Stats returns the poller's counters for the status endpoint.
func (o *Outreach) Stats() map[string]int64 {
	return map[string]int64{
		"messages_sent":       atomic.LoadInt64(&o.messagesSent),
		"invitations_sent":    atomic.LoadInt64(&o.invitationsSent),
		"acceptances":         atomic.LoadInt64(&o.acceptances),
		"responses_processed": atomic.LoadInt64(&o.responsesProcessed),
		"leads_failed":        atomic.LoadInt64(&o.leadsFailed),
		"errors":              atomic.LoadInt64(&o.errors),
	}
}

func (o *Outreach) sendLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.processAllocatedLeads()
		}
	}
}

func (o *Outreach) acceptanceLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.AcceptanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.checkPendingInvitations()
		}
	}
}

func (o *Outreach) responseLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.ResponseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.processResponses()
		}
	}
}

// processAllocatedLeads runs one send cycle. It walks the Allocated queue
// under per-lead locks; the rate limiter's randomized minimum interval
// means a cycle usually sends at most one message per account.
func (o *Outreach) processAllocatedLeads() {
	ctx, cancel := context.WithTimeout(o.ctx, cycleTimeout)
	defer cancel()

	leads, err := o.store.List(ctx, leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusAllocated},
	})
	if err != nil {
		atomic.AddInt64(&o.errors, 1)
		log.Printf("[Outreach] Failed to list allocated leads: %v", err)
		return
	}

	for _, lead := range leads {
		sent, err := o.workLead(ctx, lead)
		if err != nil {
			atomic.AddInt64(&o.errors, 1)
			log.Printf("[Outreach] Failed to work lead %s: %v", lead.ID, err)
			continue
		}
		if !sent {
			// every account is over budget or cooling down; later leads
			// would hit the same wall
			return
		}
	}
}

// workLead attempts to contact one lead. Returns false when no account had
// budget, which ends the cycle.
func (o *Outreach) workLead(ctx context.Context, lead domain.Lead) (bool, error) {
	lock := o.locks.Lock("lead:" + lead.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return true, err
	}
	if !acquired {
		return true, nil
	}
	defer lock.Release(ctx)

	if linkedin.ProfileIdentifier(lead.LinkedInURL) == "" {
		return true, o.failLead(ctx, lead, "invalid linkedin url")
	}

	budgetSeen := false
	var message string
	for _, account := range o.accounts {
		decision, err := o.budget.CanSend(ctx, account.Name())
		if err != nil {
			return true, err
		}
		if !decision.Allowed {
			log.Printf("[Outreach] Account %s unavailable: %s", account.Name(), decision.Reason)
			continue
		}
		budgetSeen = true

		// generate only once an account has budget so model tokens are
		// not spent on leads every account then declines
		if message == "" {
			message, err = o.generator.Generate(ctx, lead)
			if err != nil {
				return true, err
			}
		}

		done, err := o.sendVia(ctx, account, lead, message)
		switch {
		case errors.Is(err, ratelimit.ErrBudgetExceeded):
			// another process claimed this account's last slot after our
			// CanSend; treat it like any other denial
			log.Printf("[Outreach] Account %s budget claimed elsewhere", account.Name())
			continue
		case errors.Is(err, linkedin.ErrRateLimited):
			// park the account and try the next one
			if cdErr := o.budget.SetCooldown(ctx, account.Name(), time.Now().Add(providerCooldown)); cdErr != nil {
				log.Printf("[Outreach] Failed to set cooldown for %s: %v", account.Name(), cdErr)
			}
			continue
		case errors.Is(err, linkedin.ErrProfileNotFound):
			return true, o.failLead(ctx, lead, "profile not found")
		case err != nil:
			return true, err
		}
		return done, nil
	}
	return budgetSeen, nil
}

// sendVia performs the connection check and the appropriate send through
// one account. The budget slot is claimed before the provider call, so two
// processes racing past CanSend cannot both spend the last slot; a provider
// failure after the claim wastes one slot, which errs on the safe side.
func (o *Outreach) sendVia(ctx context.Context, account outreachAccount, lead domain.Lead, message string) (bool, error) {
	conn, err := account.FindConnection(ctx, lead.LinkedInURL)
	if err != nil {
		return true, err
	}

	now := time.Now().UTC()
	if conn.Connected {
		if err := o.budget.RecordSend(ctx, account.Name()); err != nil {
			return true, err
		}
		if _, err := account.SendMessage(ctx, conn.ProviderID, message); err != nil {
			return true, err
		}
		lead.ContactStatus = domain.StatusMessageSent
		lead.MessageSent = message
		lead.MessageSentAt = &now
		lead.Notes = appendNote(lead.Notes, "messaged via "+account.Name())
		if err := o.store.Update(ctx, lead, domain.StatusAllocated); err != nil {
			if isStatusConflict(err) {
				return true, nil
			}
			return true, err
		}
		atomic.AddInt64(&o.messagesSent, 1)
		log.Printf("[Outreach] Message sent to lead %s via %s", lead.ID, account.Name())
		return true, nil
	}

	note := message
	if len(note) > invitationNoteLimit {
		note = note[:invitationNoteLimit-3] + "..."
	}
	if err := o.budget.RecordSend(ctx, account.Name()); err != nil {
		return true, err
	}
	invID, err := account.SendInvitation(ctx, conn.ProviderID, note)
	if err != nil {
		return true, err
	}
	if err := o.invites.RecordInvitation(ctx, state.Invitation{
		LeadID:       lead.ID,
		InvitationID: invID,
		AccountName:  account.Name(),
	}); err != nil {
		return true, err
	}
	lead.ContactStatus = domain.StatusInvitationSent
	lead.Notes = appendNote(lead.Notes, fmt.Sprintf("invitation %s sent via %s", invID, account.Name()))
	if err := o.store.Update(ctx, lead, domain.StatusAllocated); err != nil {
		if isStatusConflict(err) {
			return true, nil
		}
		return true, err
	}
	atomic.AddInt64(&o.invitationsSent, 1)
	log.Printf("[Outreach] Invitation sent to lead %s via %s", lead.ID, account.Name())
	return true, nil
}

// checkPendingInvitations polls the provider for each InvitationSent lead.
// Accepted invitations move the lead back to Allocated so the send loop
// delivers the message; invitations that exhaust their checks fail the
// lead so the slot frees up.
func (o *Outreach) checkPendingInvitations() {
	ctx, cancel := context.WithTimeout(o.ctx, cycleTimeout)
	defer cancel()

	leads, err := o.store.List(ctx, leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusInvitationSent},
	})
	if err != nil {
		atomic.AddInt64(&o.errors, 1)
		log.Printf("[Outreach] Failed to list pending invitations: %v", err)
		return
	}

	for _, lead := range leads {
		if err := o.checkInvitation(ctx, lead); err != nil {
			atomic.AddInt64(&o.errors, 1)
			log.Printf("[Outreach] Failed to check invitation for lead %s: %v", lead.ID, err)
		}
	}
}

func (o *Outreach) checkInvitation(ctx context.Context, lead domain.Lead) error {
	lock := o.locks.Lock("lead:" + lead.ID)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		return err
	}
	defer lock.Release(ctx)

	inv, err := o.invites.GetInvitation(ctx, lead.ID)
	if err != nil {
		return err
	}
	if inv == nil {
		// sheet says invitation sent but we have no record of it; a human
		// likely edited the status, leave the lead for them
		return nil
	}

	account := o.accountByName(inv.AccountName)
	if account == nil {
		return fmt.Errorf("invitation for lead %s references unknown account %q", lead.ID, inv.AccountName)
	}

	result, err := account.CheckInvitation(ctx, inv.InvitationID)
	if err != nil {
		return err
	}

	switch {
	case result.Accepted:
		lead.ContactStatus = domain.StatusAllocated
		lead.Notes = appendNote(lead.Notes, "invitation accepted")
		if err := o.store.Update(ctx, lead, domain.StatusInvitationSent); err != nil {
			if isStatusConflict(err) {
				return nil
			}
			return err
		}
		atomic.AddInt64(&o.acceptances, 1)
		log.Printf("[Outreach] Invitation accepted by lead %s", lead.ID)
		return o.invites.DeleteInvitation(ctx, lead.ID)

	case result.Status == "declined":
		if err := o.failLead(ctx, lead, "invitation declined"); err != nil {
			return err
		}
		return o.invites.DeleteInvitation(ctx, lead.ID)

	default:
		checks, err := o.invites.IncrementInvitationChecks(ctx, lead.ID)
		if err != nil {
			return err
		}
		if checks >= o.cfg.MaxAcceptanceChecks {
			if err := o.failLead(ctx, lead, "invitation not accepted after repeated checks"); err != nil {
				return err
			}
			return o.invites.DeleteInvitation(ctx, lead.ID)
		}
		return nil
	}
}

func (o *Outreach) accountByName(name string) outreachAccount {
	for _, a := range o.accounts {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// processResponses pulls new incoming messages across all accounts and
// matches them to MessageSent leads by profile identifier. The watermark
// only advances after the batch lands; a replayed message matches nothing
// because its lead already moved to Responded.
func (o *Outreach) processResponses() {
	ctx, cancel := context.WithTimeout(o.ctx, cycleTimeout)
	defer cancel()

	since, err := o.watermarks.GetWatermark(ctx, responseWatermarkAgent)
	if err != nil {
		atomic.AddInt64(&o.errors, 1)
		log.Printf("[Outreach] Failed to read response watermark: %v", err)
		return
	}
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}

	awaiting, err := o.store.List(ctx, leadstore.Filter{
		Statuses: []domain.ContactStatus{domain.StatusMessageSent},
	})
	if err != nil {
		atomic.AddInt64(&o.errors, 1)
		log.Printf("[Outreach] Failed to list awaiting leads: %v", err)
		return
	}
	byProfile := make(map[string]domain.Lead, len(awaiting))
	for _, l := range awaiting {
		if id := linkedin.ProfileIdentifier(l.LinkedInURL); id != "" {
			byProfile[id] = l
		}
	}

	newWatermark := since
	for _, account := range o.accounts {
		msgs, err := account.PollMessages(ctx, since)
		if err != nil {
			atomic.AddInt64(&o.errors, 1)
			log.Printf("[Outreach] Failed to poll messages on %s: %v", account.Name(), err)
			// do not advance the watermark past unpolled messages
			return
		}
		for _, msg := range msgs {
			if msg.ReceivedAt.After(newWatermark) {
				newWatermark = msg.ReceivedAt
			}
			lead, ok := byProfile[linkedin.ProfileIdentifier(msg.SenderURL)]
			if !ok {
				continue
			}
			if err := o.handleResponse(ctx, lead, msg); err != nil {
				atomic.AddInt64(&o.errors, 1)
				log.Printf("[Outreach] Failed to handle response for lead %s: %v", lead.ID, err)
				return
			}
		}
	}

	if newWatermark.After(since) {
		if err := o.watermarks.SetWatermark(ctx, responseWatermarkAgent, newWatermark); err != nil {
			atomic.AddInt64(&o.errors, 1)
			log.Printf("[Outreach] Failed to advance response watermark: %v", err)
		}
	}
}

func (o *Outreach) handleResponse(ctx context.Context, lead domain.Lead, msg linkedin.IncomingMessage) error {
	analysis := o.analyser.Analyse(ctx, msg.Text, lead.MessageSent)

	receivedAt := msg.ReceivedAt.UTC()
	lead.ContactStatus = domain.StatusResponded
	lead.Response = msg.Text
	lead.ResponseReceivedAt = &receivedAt
	lead.ResponseSentiment = analysis.Sentiment
	lead.ResponseIntent = analysis.Intent
	if analysis.KeyInfo != "" {
		lead.Notes = appendNote(lead.Notes, analysis.KeyInfo)
	}

	if err := o.store.Update(ctx, lead, domain.StatusMessageSent); err != nil {
		if isStatusConflict(err) {
			return nil
		}
		return err
	}
	atomic.AddInt64(&o.responsesProcessed, 1)
	log.Printf("[Outreach] Response from lead %s: sentiment=%s intent=%s",
		lead.ID, analysis.Sentiment, analysis.Intent)
	return nil
}

func (o *Outreach) failLead(ctx context.Context, lead domain.Lead, reason string) error {
	from := lead.ContactStatus
	lead.ContactStatus = domain.StatusFailed
	lead.Notes = appendNote(lead.Notes, "failed: "+reason)
	err := o.store.Update(ctx, lead, from)
	if err != nil {
		if isStatusConflict(err) {
			return nil
		}
		return err
	}
	atomic.AddInt64(&o.leadsFailed, 1)
	log.Printf("[Outreach] Lead %s failed: %s", lead.ID, reason)
	return nil
}
