package domain

import (
	"fmt"
	"time"
)

// ContactStatus enumerates the lifecycle states of a lead.
type ContactStatus string

const (
	StatusNotContacted   ContactStatus = "Not Contacted"
	StatusAllocated      ContactStatus = "Allocated"
	StatusInvitationSent ContactStatus = "Invitation Sent"
	StatusMessageSent    ContactStatus = "Message Sent"
	StatusResponded      ContactStatus = "Responded"
	StatusClosed         ContactStatus = "Closed"
	StatusFailed         ContactStatus = "Failed"
)

// validTransitions is the single source of truth for the lead lifecycle.
// The Invitation Sent -> Allocated edge re-queues a lead for the message
// send once its connection invitation has been accepted.
var validTransitions = map[ContactStatus][]ContactStatus{
	StatusNotContacted:   {StatusAllocated, StatusFailed},
	StatusAllocated:      {StatusInvitationSent, StatusMessageSent, StatusFailed},
	StatusInvitationSent: {StatusAllocated, StatusFailed},
	StatusMessageSent:    {StatusResponded, StatusFailed},
	StatusResponded:      {StatusClosed, StatusFailed},
	StatusClosed:         {},
	StatusFailed:         {},
}

// Valid reports whether s is a member of the lifecycle enum.
func (s ContactStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal returns true if the lead is in a final state. Terminal leads
// are retained for audit, never deleted.
func (s ContactStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal edge in
// the lifecycle. Self-transitions are allowed: classification and scoring
// update a lead in place without advancing it.
func (s ContactStatus) CanTransition(next ContactStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return !s.IsTerminal()
	}
	for _, t := range validTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns a descriptive error for an illegal transition.
func ValidateTransition(from, to ContactStatus) error {
	if !from.Valid() {
		return fmt.Errorf("invalid contact status %q", from)
	}
	if !to.Valid() {
		return fmt.Errorf("invalid contact status %q", to)
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal transition %q -> %q", from, to)
	}
	return nil
}

// Classification is the lead category assigned by the Lead Finder.
type Classification string

const (
	ClassSpeaker Classification = "Speaker"
	ClassSponsor Classification = "Sponsor"
	ClassOther   Classification = "Other"
)

// Sentiment of a lead's response.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Intent detected in a lead's response.
type Intent string

const (
	IntentInterested     Intent = "interested"
	IntentNotInterested  Intent = "not_interested"
	IntentRequestingInfo Intent = "requesting_info"
)

// Lead represents one prospect tracked through the outreach lifecycle.
// The linkedin_url is the natural secondary key: intake de-duplicates on it.
type Lead struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Position    string `json:"position"`
	Company     string `json:"company"`
	LinkedInURL string `json:"linkedin_url"`

	Classification Classification `json:"classification,omitempty"`
	QualityScore   float64        `json:"quality_score,omitempty"` // 1.0-10.0, 0 = unset

	ContactStatus ContactStatus `json:"contact_status"`
	AllocatedTo   string        `json:"allocated_to,omitempty"`
	AllocatedAt   *time.Time    `json:"allocated_at,omitempty"`

	MessageSent        string     `json:"message_sent,omitempty"`
	MessageSentAt      *time.Time `json:"message_sent_at,omitempty"`
	Response           string     `json:"response,omitempty"`
	ResponseReceivedAt *time.Time `json:"response_received_at,omitempty"`
	ResponseSentiment  Sentiment  `json:"response_sentiment,omitempty"`
	ResponseIntent     Intent     `json:"response_intent,omitempty"`

	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// HasQualityScore reports whether a score has been assigned.
func (l *Lead) HasQualityScore() bool {
	return l.QualityScore >= 1.0
}

// ValidateQualityScore enforces the 1.0-10.0 range once a score is set.
func ValidateQualityScore(score float64) error {
	if score < 1.0 || score > 10.0 {
		return fmt.Errorf("quality score %.2f outside [1.0, 10.0]", score)
	}
	return nil
}

// FirstName extracts the given name used in message personalisation.
func (l *Lead) FirstName() string {
	for i, r := range l.Name {
		if r == ' ' {
			return l.Name[:i]
		}
	}
	if l.Name == "" {
		return "there"
	}
	return l.Name
}

// SendResult captures the outcome of one LinkedIn send attempt.
type SendResult struct {
	Success     bool
	MessageID   string
	InviteID    string
	AccountUsed string
	Timestamp   time.Time
	Err         string
}

// ResponseAnalysis is the sentiment/intent classification of a reply.
type ResponseAnalysis struct {
	Sentiment  Sentiment
	Intent     Intent
	KeyInfo    string
	Confidence float64 // 0.0-1.0
}
