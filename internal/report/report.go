// Package report builds the daily performance report and delivers it by
// email through AWS SES v2. Metrics cover the previous civil day; insights
// come from the model when one is configured, with a static fallback so
// the report always goes out.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/pkg/logger"
)

// Metrics aggregates one day's funnel activity.
type Metrics struct {
	Day               string
	LeadsProcessed    int
	MessagesSent      int
	ResponsesReceived int
	PositiveResponses int
	NegativeResponses int
	NeutralResponses  int
	ResponseRate      float64
}

// ReviewItem is one flagged decision surfaced in the self-review section.
type ReviewItem struct {
	LeadID string
	Note   string
}

// Sender delivers a finished report; satisfied by *EmailSender.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// Reporter assembles and delivers the daily report.
type Reporter struct {
	store  leadstore.Store
	gen    llm.Generator // optional
	sender Sender

	now func() time.Time
}

// NewReporter creates a reporter. gen may be nil.
func NewReporter(store leadstore.Store, gen llm.Generator, sender Sender) *Reporter {
	return &Reporter{store: store, gen: gen, sender: sender, now: time.Now}
}

// SendDaily builds yesterday's report and emails it.
func (r *Reporter) SendDaily(ctx context.Context) error {
	leads, err := r.store.List(ctx, leadstore.Filter{})
	if err != nil {
		return fmt.Errorf("collect leads for report: %w", err)
	}

	yesterday := r.now().UTC().AddDate(0, 0, -1)
	metrics := PreviousDayMetrics(leads, yesterday)
	review := collectSelfReview(leads, yesterday)
	insights := r.generateInsights(ctx, metrics)

	body := FormatReport(metrics, review, insights, r.now().UTC())
	subject := fmt.Sprintf("InG Sales Department - Daily Report - %s", metrics.Day)

	if err := r.sender.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("deliver daily report: %w", err)
	}
	logger.Info("daily report delivered", "day", metrics.Day,
		"messages_sent", metrics.MessagesSent, "responses", metrics.ResponsesReceived)
	return nil
}

// PreviousDayMetrics aggregates funnel counts for leads that had activity
// on the given day: allocated, messaged, or responded.
func PreviousDayMetrics(leads []domain.Lead, day time.Time) Metrics {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	inDay := func(t *time.Time) bool {
		return t != nil && !t.Before(dayStart) && t.Before(dayEnd)
	}

	m := Metrics{Day: dayStart.Format("2006-01-02")}
	for _, l := range leads {
		active := inDay(l.MessageSentAt) || inDay(l.ResponseReceivedAt) || inDay(l.AllocatedAt)
		if !active {
			continue
		}
		m.LeadsProcessed++
		if inDay(l.MessageSentAt) {
			m.MessagesSent++
		}
		if inDay(l.ResponseReceivedAt) && l.Response != "" {
			m.ResponsesReceived++
			switch l.ResponseSentiment {
			case domain.SentimentPositive:
				m.PositiveResponses++
			case domain.SentimentNegative:
				m.NegativeResponses++
			default:
				m.NeutralResponses++
			}
		}
	}
	if m.MessagesSent > 0 {
		m.ResponseRate = float64(m.ResponsesReceived) / float64(m.MessagesSent) * 100
	}
	return m
}

// collectSelfReview surfaces leads whose notes flag an uncertain decision
// made during the reporting day.
func collectSelfReview(leads []domain.Lead, day time.Time) []ReviewItem {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var items []ReviewItem
	for _, l := range leads {
		if l.Notes == "" {
			continue
		}
		if l.LastUpdated.Before(dayStart) || !l.LastUpdated.Before(dayEnd) {
			continue
		}
		if strings.Contains(l.Notes, "needs review") || strings.Contains(l.Notes, "failed:") {
			items = append(items, ReviewItem{LeadID: l.ID, Note: l.Notes})
		}
	}
	return items
}

const insightsSystemPrompt = `You are a sales analytics assistant. Analyze performance metrics and generate insights for a daily sales report.

Focus on:
- Key metrics (leads processed, messages sent, responses received)
- Response rates and trends
- Recommendations for improvement
- Flag any concerning patterns

Write in a clear, professional tone suitable for email report.`

const fallbackInsights = "Performance metrics collected. Review recommended."

func (r *Reporter) generateInsights(ctx context.Context, m Metrics) string {
	if r.gen == nil {
		return fallbackInsights
	}
	prompt := fmt.Sprintf(`Generate daily report insights:

Metrics:
- Leads processed: %d
- Messages sent: %d
- Responses received: %d
- Response rate: %.1f%%
- Positive responses: %d

Insights and recommendations:`,
		m.LeadsProcessed, m.MessagesSent, m.ResponsesReceived, m.ResponseRate, m.PositiveResponses)

	insights, err := r.gen.Generate(ctx, llm.Request{
		System:      insightsSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil || strings.TrimSpace(insights) == "" {
		if err != nil {
			logger.Warn("llm insights generation failed, using fallback", "error", err.Error())
		}
		return fallbackInsights
	}
	return strings.TrimSpace(insights)
}

const sectionRule = "═══════════════════════════════════════════════════════════"

// FormatReport renders the plain-text report body.
func FormatReport(m Metrics, review []ReviewItem, insights string, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "InG AI Sales Department - Daily Report\n")
	fmt.Fprintf(&b, "Date: %s (Previous Day)\n\n", m.Day)

	fmt.Fprintf(&b, "%s\n📊 PERFORMANCE METRICS (Previous Day: %s)\n%s\n\n", sectionRule, m.Day, sectionRule)
	fmt.Fprintf(&b, "✅ Leads Processed: %d\n", m.LeadsProcessed)
	fmt.Fprintf(&b, "📤 Messages Sent: %d\n", m.MessagesSent)
	fmt.Fprintf(&b, "📥 Responses Received: %d\n", m.ResponsesReceived)
	fmt.Fprintf(&b, "📈 Response Rate: %.2f%%\n", m.ResponseRate)
	fmt.Fprintf(&b, "👍 Positive Responses: %d\n", m.PositiveResponses)
	fmt.Fprintf(&b, "👎 Negative Responses: %d\n", m.NegativeResponses)
	fmt.Fprintf(&b, "❓ Neutral Responses: %d\n\n", m.NeutralResponses)

	fmt.Fprintf(&b, "%s\n🤖 AGENT SELF-REVIEW\n%s\n\n", sectionRule, sectionRule)
	if len(review) == 0 {
		b.WriteString("✅ All decisions were made with high confidence.\n\n")
	} else {
		for _, item := range review {
			fmt.Fprintf(&b, "⚠️ Lead %s: %s\n", item.LeadID, item.Note)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s\n💡 INSIGHTS & RECOMMENDATIONS\n%s\n\n", sectionRule, sectionRule)
	fmt.Fprintf(&b, "%s\n\n", insights)

	fmt.Fprintf(&b, "%s\n\nGenerated by InG AI Sales Department\nReport Time: %s\n",
		sectionRule, generatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}
