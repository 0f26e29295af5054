package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/llm"
)

type fakeSender struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeSender) Send(ctx context.Context, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

type fakeGen struct {
	response string
	err      error
}

func (f *fakeGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	return f.response, f.err
}

func ts(t time.Time) *time.Time { return &t }

func TestPreviousDayMetrics(t *testing.T) {
	day := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	inDay := day.Add(14 * time.Hour)
	dayBefore := day.Add(-10 * time.Hour)

	leads := []domain.Lead{
		{ID: "l1", MessageSentAt: ts(inDay)},
		{ID: "l2", MessageSentAt: ts(inDay), Response: "yes!",
			ResponseReceivedAt: ts(inDay.Add(time.Hour)),
			ResponseSentiment:  domain.SentimentPositive},
		{ID: "l3", AllocatedAt: ts(inDay)},
		{ID: "l4", MessageSentAt: ts(dayBefore)}, // previous day only
		{ID: "l5", Response: "no", ResponseReceivedAt: ts(inDay.Add(2 * time.Hour)),
			ResponseSentiment: domain.SentimentNegative},
	}

	m := PreviousDayMetrics(leads, day)
	assert.Equal(t, "2025-06-09", m.Day)
	assert.Equal(t, 4, m.LeadsProcessed)
	assert.Equal(t, 2, m.MessagesSent)
	assert.Equal(t, 2, m.ResponsesReceived)
	assert.Equal(t, 1, m.PositiveResponses)
	assert.Equal(t, 1, m.NegativeResponses)
	assert.Equal(t, 0, m.NeutralResponses)
	assert.InDelta(t, 100.0, m.ResponseRate, 0.01)
}

func TestPreviousDayMetricsNoActivity(t *testing.T) {
	m := PreviousDayMetrics(nil, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))
	assert.Zero(t, m.MessagesSent)
	assert.Zero(t, m.ResponseRate)
}

func TestSendDailyAssemblesReport(t *testing.T) {
	day := time.Date(2025, 6, 10, 9, 15, 0, 0, time.UTC)
	yesterday := day.AddDate(0, 0, -1).Add(3 * time.Hour)

	store := leadstore.NewMemory(
		domain.Lead{ID: "l1", ContactStatus: domain.StatusMessageSent,
			MessageSentAt: ts(yesterday), LastUpdated: yesterday},
		domain.Lead{ID: "l2", ContactStatus: domain.StatusFailed,
			Notes: "failed: profile not found", AllocatedAt: ts(yesterday), LastUpdated: yesterday},
	)
	sender := &fakeSender{}
	r := NewReporter(store, &fakeGen{response: "Strong day. Keep the speaker ratio."}, sender)
	r.now = func() time.Time { return day }

	require.NoError(t, r.SendDaily(context.Background()))
	require.Len(t, sender.bodies, 1)

	assert.Contains(t, sender.subjects[0], "2025-06-09")
	body := sender.bodies[0]
	assert.Contains(t, body, "PERFORMANCE METRICS")
	assert.Contains(t, body, "Messages Sent: 1")
	assert.Contains(t, body, "AGENT SELF-REVIEW")
	assert.Contains(t, body, "failed: profile not found")
	assert.Contains(t, body, "Strong day. Keep the speaker ratio.")
}

func TestSendDailyInsightsFallback(t *testing.T) {
	store := leadstore.NewMemory()
	sender := &fakeSender{}
	r := NewReporter(store, &fakeGen{err: errors.New("throttled")}, sender)

	require.NoError(t, r.SendDaily(context.Background()))
	assert.Contains(t, sender.bodies[0], fallbackInsights)
}

func TestSendDailyPropagatesDeliveryError(t *testing.T) {
	store := leadstore.NewMemory()
	r := NewReporter(store, nil, &fakeSender{err: errors.New("ses unavailable")})

	err := r.SendDaily(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver daily report")
}

func TestFormatReportSelfReviewEmpty(t *testing.T) {
	body := FormatReport(Metrics{Day: "2025-06-09"}, nil, "all quiet", time.Now())
	assert.Contains(t, body, "All decisions were made with high confidence.")
}

func TestCollectSelfReviewFiltersByDay(t *testing.T) {
	day := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	leads := []domain.Lead{
		{ID: "l1", Notes: "classification needs review", LastUpdated: day.Add(10 * time.Hour)},
		{ID: "l2", Notes: "classification needs review", LastUpdated: day.AddDate(0, 0, -3)},
		{ID: "l3", Notes: "messaged via primary", LastUpdated: day.Add(11 * time.Hour)},
	}

	items := collectSelfReview(leads, day)
	require.Len(t, items, 1)
	assert.Equal(t, "l1", items[0].LeadID)
}
