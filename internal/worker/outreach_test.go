package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/linkedin"
	"github.com/innovatorsguild/sales-agents/internal/prospect"
	"github.com/innovatorsguild/sales-agents/internal/ratelimit"
)

func newTestOutreach(t *testing.T, store leadstore.Store, budget sendBudget,
	accounts []outreachAccount, invites invitationStore) *Outreach {
	t.Helper()
	gen, err := prospect.NewGenerator(nil, "Innovators Guild", "2025-11-20")
	if err != nil {
		t.Fatal(err)
	}
	o := newOutreach(store, budget, &fakeLockFactory{}, invites, newFakeWatermarks(),
		accounts, gen, prospect.NewAnalyser(nil), OutreachConfig{MaxAcceptanceChecks: 3})
	o.ctx = context.Background()
	return o
}

func allocatedLead(id string) domain.Lead {
	return domain.Lead{
		ID: id, Name: "Jane Doe", Position: "CTO", Company: "Acme Software",
		LinkedInURL:    "https://linkedin.com/in/" + id,
		Classification: domain.ClassSpeaker, QualityScore: 8.0,
		ContactStatus: domain.StatusAllocated, AllocatedTo: "sales-manager-x",
	}
}

func TestSendMessageToDirectConnection(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	account := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Distance: 1, Connected: true}},
	}
	budget := newFakeBudget(map[string]int{"primary": 10})
	o := newTestOutreach(t, store, budget, []outreachAccount{account}, newFakeInvites())

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusMessageSent {
		t.Errorf("status = %s, want Message Sent", lead.ContactStatus)
	}
	if lead.MessageSent == "" || lead.MessageSentAt == nil {
		t.Error("message content or timestamp not recorded")
	}
	if budget.sends["primary"] != 1 {
		t.Errorf("sends = %d, want 1", budget.sends["primary"])
	}
	if len(account.sentMessages) != 1 {
		t.Errorf("provider messages = %d, want 1", len(account.sentMessages))
	}
}

func TestSendInvitationToNonConnection(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	account := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Distance: 2}},
	}
	invites := newFakeInvites()
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, invites)

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusInvitationSent {
		t.Errorf("status = %s, want Invitation Sent", lead.ContactStatus)
	}
	inv, _ := invites.GetInvitation(context.Background(), "l1")
	if inv == nil || inv.InvitationID != "inv-p1" || inv.AccountName != "primary" {
		t.Errorf("invitation record = %+v", inv)
	}
	if len(account.sentInvitations) != 1 {
		t.Errorf("provider invitations = %d, want 1", len(account.sentInvitations))
	}
	// the invite id goes in the notes too so a human can audit the sheet
	// without access to the coordination store
	if !strings.Contains(lead.Notes, "invitation inv-p1 sent via primary") {
		t.Errorf("invite id missing from notes: %q", lead.Notes)
	}
}

func TestSendSkipsWhenBudgetExhausted(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"), allocatedLead("l2"))
	account := &fakeAccount{
		name: "primary",
		connections: map[string]linkedin.Connection{
			"l1": {ProviderID: "p1", Connected: true},
			"l2": {ProviderID: "p2", Connected: true},
		},
	}
	// budget 1: first lead sends, second finds every account denied
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 1}),
		[]outreachAccount{account}, newFakeInvites())

	o.processAllocatedLeads()

	l1, _ := store.Get("l1")
	l2, _ := store.Get("l2")
	if l1.ContactStatus != domain.StatusMessageSent {
		t.Errorf("l1 status = %s, want Message Sent", l1.ContactStatus)
	}
	if l2.ContactStatus != domain.StatusAllocated {
		t.Errorf("l2 status = %s, want still Allocated", l2.ContactStatus)
	}
}

func TestSendRotatesToBackupOnProviderRateLimit(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	primary := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
		sendErr:     linkedin.ErrRateLimited,
	}
	backup := &fakeAccount{
		name:        "backup",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
	}
	budget := newFakeBudget(map[string]int{"primary": 10, "backup": 10})
	o := newTestOutreach(t, store, budget, []outreachAccount{primary, backup}, newFakeInvites())

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusMessageSent {
		t.Errorf("status = %s, want Message Sent via backup", lead.ContactStatus)
	}
	if len(backup.sentMessages) != 1 {
		t.Errorf("backup messages = %d, want 1", len(backup.sentMessages))
	}
	if _, parked := budget.cooldowns["primary"]; !parked {
		t.Error("primary not parked in cooldown after provider rate limit")
	}
}

func TestSendRotatesWhenBudgetClaimLost(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	primary := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
	}
	backup := &fakeAccount{
		name:        "backup",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
	}
	// CanSend says yes but the claim loses the race: another process took
	// primary's last slot between the check and the record
	budget := newFakeBudget(map[string]int{"primary": 10, "backup": 10})
	budget.recordErr = map[string]error{"primary": ratelimit.ErrBudgetExceeded}
	o := newTestOutreach(t, store, budget, []outreachAccount{primary, backup}, newFakeInvites())

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusMessageSent {
		t.Errorf("status = %s, want Message Sent via backup", lead.ContactStatus)
	}
	if len(primary.sentMessages) != 0 {
		t.Errorf("primary messages = %d, want 0 after lost claim", len(primary.sentMessages))
	}
	if len(backup.sentMessages) != 1 {
		t.Errorf("backup messages = %d, want 1", len(backup.sentMessages))
	}
}

func TestSendSkipsGenerationWhenNoBudget(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	account := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
	}
	model := &stubGenerator{response: "Hi Jane"}
	gen, err := prospect.NewGenerator(model, "Innovators Guild", "2025-11-20")
	if err != nil {
		t.Fatal(err)
	}
	o := newOutreach(store, newFakeBudget(map[string]int{"primary": 0}), &fakeLockFactory{},
		newFakeInvites(), newFakeWatermarks(), []outreachAccount{account},
		gen, prospect.NewAnalyser(nil), OutreachConfig{MaxAcceptanceChecks: 3})
	o.ctx = context.Background()

	o.processAllocatedLeads()

	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0 when no account has budget", model.calls)
	}
	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusAllocated {
		t.Errorf("status = %s, want still Allocated", lead.ContactStatus)
	}
}

func TestSendFailsLeadOnMissingProfile(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	account := &fakeAccount{name: "primary", findErr: linkedin.ErrProfileNotFound}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusFailed {
		t.Errorf("status = %s, want Failed", lead.ContactStatus)
	}
}

func TestSendFailsLeadOnMalformedURL(t *testing.T) {
	bad := allocatedLead("l1")
	bad.LinkedInURL = "not a profile url"
	store := leadstore.NewMemory(bad)
	account := &fakeAccount{name: "primary"}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusFailed {
		t.Errorf("status = %s, want Failed", lead.ContactStatus)
	}
	if !strings.Contains(lead.Notes, "invalid linkedin url") {
		t.Errorf("expected failure reason in notes, got %q", lead.Notes)
	}
}

func TestSendSkipsLockedLead(t *testing.T) {
	store := leadstore.NewMemory(allocatedLead("l1"))
	account := &fakeAccount{
		name:        "primary",
		connections: map[string]linkedin.Connection{"l1": {ProviderID: "p1", Connected: true}},
	}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())
	o.locks = &fakeLockFactory{heldResources: map[string]bool{"lead:l1": true}}

	o.processAllocatedLeads()

	lead, _ := store.Get("l1")
	if lead.ContactStatus != domain.StatusAllocated {
		t.Errorf("status = %s, want untouched Allocated", lead.ContactStatus)
	}
}

func TestAcceptanceMovesLeadBackToAllocated(t *testing.T) {
	lead := allocatedLead("l1")
	lead.ContactStatus = domain.StatusInvitationSent
	store := leadstore.NewMemory(lead)

	invites := newFakeInvites()
	invites.RecordInvitation(context.Background(),
		stateInvitation("l1", "inv-p1", "primary"))

	account := &fakeAccount{
		name:      "primary",
		invStatus: map[string]linkedin.Invitation{"inv-p1": {ID: "inv-p1", Status: "accepted", Accepted: true}},
	}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, invites)

	o.checkPendingInvitations()

	got, _ := store.Get("l1")
	if got.ContactStatus != domain.StatusAllocated {
		t.Errorf("status = %s, want Allocated after acceptance", got.ContactStatus)
	}
	if inv, _ := invites.GetInvitation(context.Background(), "l1"); inv != nil {
		t.Error("invitation record not cleaned up after acceptance")
	}
}

func TestAcceptanceFailsLeadAfterMaxChecks(t *testing.T) {
	lead := allocatedLead("l1")
	lead.ContactStatus = domain.StatusInvitationSent
	store := leadstore.NewMemory(lead)

	invites := newFakeInvites()
	invites.RecordInvitation(context.Background(),
		stateInvitation("l1", "inv-p1", "primary"))

	account := &fakeAccount{
		name:      "primary",
		invStatus: map[string]linkedin.Invitation{"inv-p1": {ID: "inv-p1", Status: "pending"}},
	}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, invites)

	// MaxAcceptanceChecks is 3 in the test config
	for i := 0; i < 3; i++ {
		o.checkPendingInvitations()
	}

	got, _ := store.Get("l1")
	if got.ContactStatus != domain.StatusFailed {
		t.Errorf("status = %s, want Failed after exhausted checks", got.ContactStatus)
	}
}

func TestResponseMovesLeadToResponded(t *testing.T) {
	lead := allocatedLead("l1")
	lead.ContactStatus = domain.StatusMessageSent
	lead.MessageSent = "Hi Jane..."
	store := leadstore.NewMemory(lead)

	account := &fakeAccount{
		name: "primary",
		messages: []linkedin.IncomingMessage{{
			ChatID:     "chat-1",
			SenderURL:  "https://linkedin.com/in/l1",
			Text:       "Yes, I'd be interested!",
			ReceivedAt: time.Now().UTC(),
		}},
	}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())

	o.processResponses()

	got, _ := store.Get("l1")
	if got.ContactStatus != domain.StatusResponded {
		t.Errorf("status = %s, want Responded", got.ContactStatus)
	}
	if got.ResponseSentiment != domain.SentimentPositive {
		t.Errorf("sentiment = %s, want positive", got.ResponseSentiment)
	}
	if got.ResponseIntent != domain.IntentInterested {
		t.Errorf("intent = %s, want interested", got.ResponseIntent)
	}
	if got.Response == "" || got.ResponseReceivedAt == nil {
		t.Error("response text or timestamp not recorded")
	}
}

func TestResponseAdvancesWatermarkAfterBatch(t *testing.T) {
	received := time.Now().UTC().Round(time.Second)
	account := &fakeAccount{
		name: "primary",
		messages: []linkedin.IncomingMessage{{
			SenderURL:  "https://linkedin.com/in/unknown",
			Text:       "hello",
			ReceivedAt: received,
		}},
	}
	o := newTestOutreach(t, leadstore.NewMemory(), newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())
	marks := newFakeWatermarks()
	o.watermarks = marks

	o.processResponses()

	got, _ := marks.GetWatermark(context.Background(), responseWatermarkAgent)
	if !got.Equal(received) {
		t.Errorf("watermark = %v, want %v", got, received)
	}
}

func TestResponseIgnoresUnknownSenders(t *testing.T) {
	lead := allocatedLead("l1")
	lead.ContactStatus = domain.StatusMessageSent
	store := leadstore.NewMemory(lead)

	account := &fakeAccount{
		name: "primary",
		messages: []linkedin.IncomingMessage{{
			SenderURL:  "https://linkedin.com/in/someone-else",
			Text:       "who dis",
			ReceivedAt: time.Now().UTC(),
		}},
	}
	o := newTestOutreach(t, store, newFakeBudget(map[string]int{"primary": 10}),
		[]outreachAccount{account}, newFakeInvites())

	o.processResponses()

	got, _ := store.Get("l1")
	if got.ContactStatus != domain.StatusMessageSent {
		t.Errorf("status = %s, want untouched Message Sent", got.ContactStatus)
	}
}
