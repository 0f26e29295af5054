package worker

import (
	"context"
	"sync"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/distlock"
	"github.com/innovatorsguild/sales-agents/internal/linkedin"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/ratelimit"
	"github.com/innovatorsguild/sales-agents/internal/state"
)

// fakeLock always acquires unless held is set.
type fakeLock struct {
	held     bool
	acquired *int
}

func (f *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	if f.acquired != nil {
		*f.acquired++
	}
	return true, nil
}

func (f *fakeLock) Release(ctx context.Context) error { return nil }

type fakeLockFactory struct {
	heldResources map[string]bool
	acquisitions  int
}

func (f *fakeLockFactory) Lock(resourceID string) distlock.Locker {
	return &fakeLock{held: f.heldResources[resourceID], acquired: &f.acquisitions}
}

// fakeBudget is a deterministic in-memory rate limiter.
type fakeBudget struct {
	mu        sync.Mutex
	remaining map[string]int
	denied    map[string]string // account -> denial reason
	recordErr map[string]error  // account -> RecordSend failure
	cooldowns map[string]time.Time
	sends     map[string]int
}

func newFakeBudget(remaining map[string]int) *fakeBudget {
	return &fakeBudget{
		remaining: remaining,
		denied:    map[string]string{},
		recordErr: map[string]error{},
		cooldowns: map[string]time.Time{},
		sends:     map[string]int{},
	}
}

func (f *fakeBudget) CanSend(ctx context.Context, account string) (ratelimit.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reason, ok := f.denied[account]; ok {
		return ratelimit.Decision{Reason: reason}, nil
	}
	if until, ok := f.cooldowns[account]; ok && time.Now().Before(until) {
		return ratelimit.Decision{Reason: "cooling down"}, nil
	}
	if f.remaining[account] <= 0 {
		return ratelimit.Decision{Reason: "daily cap reached"}, nil
	}
	return ratelimit.Decision{Allowed: true}, nil
}

func (f *fakeBudget) RecordSend(ctx context.Context, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.recordErr[account]; ok {
		return err
	}
	f.remaining[account]--
	f.sends[account]++
	return nil
}

func (f *fakeBudget) SetCooldown(ctx context.Context, account string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldowns[account] = until
	return nil
}

func (f *fakeBudget) Remaining(ctx context.Context, account string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining[account], nil
}

// fakeWatermarks keeps watermarks in memory.
type fakeWatermarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func newFakeWatermarks() *fakeWatermarks {
	return &fakeWatermarks{marks: map[string]time.Time{}}
}

func (f *fakeWatermarks) GetWatermark(ctx context.Context, agent string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks[agent], nil
}

func (f *fakeWatermarks) SetWatermark(ctx context.Context, agent string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks[agent] = ts
	return nil
}

// fakeInvites keeps invitation records in memory.
type fakeInvites struct {
	mu      sync.Mutex
	records map[string]*state.Invitation
}

func newFakeInvites() *fakeInvites {
	return &fakeInvites{records: map[string]*state.Invitation{}}
}

func (f *fakeInvites) RecordInvitation(ctx context.Context, inv state.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv.CreatedAt = time.Now()
	f.records[inv.LeadID] = &inv
	return nil
}

func (f *fakeInvites) GetInvitation(ctx context.Context, leadID string) (*state.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.records[leadID]; ok {
		cp := *inv
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeInvites) IncrementInvitationChecks(ctx context.Context, leadID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[leadID].Checks++
	return f.records[leadID].Checks, nil
}

func (f *fakeInvites) DeleteInvitation(ctx context.Context, leadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, leadID)
	return nil
}

// stubGenerator is a canned llm.Generator that counts its calls.
type stubGenerator struct {
	response string
	calls    int
}

func (s *stubGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	s.calls++
	return s.response, nil
}

func stateInvitation(leadID, invID, account string) state.Invitation {
	return state.Invitation{LeadID: leadID, InvitationID: invID, AccountName: account}
}

// fakeAccount scripts the provider's behaviour for one account.
type fakeAccount struct {
	name        string
	connections map[string]linkedin.Connection // profile identifier -> connection
	invStatus   map[string]linkedin.Invitation
	messages    []linkedin.IncomingMessage
	sendErr     error
	findErr     error

	sentMessages    []string
	sentInvitations []string
}

func (f *fakeAccount) Name() string { return f.name }

func (f *fakeAccount) FindConnection(ctx context.Context, profileURL string) (linkedin.Connection, error) {
	if f.findErr != nil {
		return linkedin.Connection{}, f.findErr
	}
	return f.connections[linkedin.ProfileIdentifier(profileURL)], nil
}

func (f *fakeAccount) SendInvitation(ctx context.Context, providerID, message string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sentInvitations = append(f.sentInvitations, providerID)
	return "inv-" + providerID, nil
}

func (f *fakeAccount) SendMessage(ctx context.Context, providerID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sentMessages = append(f.sentMessages, providerID)
	return "msg-" + providerID, nil
}

func (f *fakeAccount) CheckInvitation(ctx context.Context, invitationID string) (linkedin.Invitation, error) {
	return f.invStatus[invitationID], nil
}

func (f *fakeAccount) PollMessages(ctx context.Context, after time.Time) ([]linkedin.IncomingMessage, error) {
	var out []linkedin.IncomingMessage
	for _, m := range f.messages {
		if m.ReceivedAt.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}
