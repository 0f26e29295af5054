package leadstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

// Column order of the lead sheet. The header row is validated on first read
// so a reordered sheet fails loudly instead of writing fields into the
// wrong columns.
var sheetHeader = []string{
	"ID",
	"Name",
	"Position",
	"Company",
	"LinkedIn URL",
	"Classification",
	"Quality Score",
	"Contact Status",
	"Allocated To",
	"Allocated At",
	"Message Sent",
	"Message Sent At",
	"Response",
	"Response Received At",
	"Response Sentiment",
	"Response Intent",
	"Notes",
	"Created At",
	"Last Updated",
}

const timeLayout = time.RFC3339

func validateHeader(row []string) error {
	if len(row) < len(sheetHeader) {
		return fmt.Errorf("leadstore: header has %d columns, want %d", len(row), len(sheetHeader))
	}
	for i, want := range sheetHeader {
		if !strings.EqualFold(strings.TrimSpace(row[i]), want) {
			return fmt.Errorf("leadstore: header column %d is %q, want %q", i, row[i], want)
		}
	}
	return nil
}

func leadToRow(l domain.Lead) []any {
	return []any{
		l.ID,
		l.Name,
		l.Position,
		l.Company,
		l.LinkedInURL,
		string(l.Classification),
		formatScore(l.QualityScore),
		string(l.ContactStatus),
		l.AllocatedTo,
		formatTime(l.AllocatedAt),
		l.MessageSent,
		formatTime(l.MessageSentAt),
		l.Response,
		formatTime(l.ResponseReceivedAt),
		string(l.ResponseSentiment),
		string(l.ResponseIntent),
		l.Notes,
		formatTimeValue(l.CreatedAt),
		formatTimeValue(l.LastUpdated),
	}
}

func leadFromRow(row []string) (domain.Lead, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	l := domain.Lead{
		ID:                cell(0),
		Name:              cell(1),
		Position:          cell(2),
		Company:           cell(3),
		LinkedInURL:       cell(4),
		Classification:    domain.Classification(cell(5)),
		AllocatedTo:       cell(8),
		MessageSent:       cell(10),
		Response:          cell(12),
		ResponseSentiment: domain.Sentiment(cell(14)),
		ResponseIntent:    domain.Intent(cell(15)),
		Notes:             cell(16),
	}
	if l.ID == "" {
		return domain.Lead{}, fmt.Errorf("leadstore: row has no lead ID")
	}

	if s := cell(6); s != "" {
		score, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Lead{}, fmt.Errorf("leadstore: lead %s: bad quality score %q", l.ID, s)
		}
		l.QualityScore = score
	}

	status := domain.ContactStatus(cell(7))
	if status == "" {
		status = domain.StatusNotContacted
	}
	if !status.Valid() {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: unknown status %q", l.ID, status)
	}
	l.ContactStatus = status

	var err error
	if l.AllocatedAt, err = parseTimePtr(cell(9)); err != nil {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: allocated at: %w", l.ID, err)
	}
	if l.MessageSentAt, err = parseTimePtr(cell(11)); err != nil {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: message sent at: %w", l.ID, err)
	}
	if l.ResponseReceivedAt, err = parseTimePtr(cell(13)); err != nil {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: response received at: %w", l.ID, err)
	}
	if l.CreatedAt, err = parseTimeValue(cell(17)); err != nil {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: created at: %w", l.ID, err)
	}
	if l.LastUpdated, err = parseTimeValue(cell(18)); err != nil {
		return domain.Lead{}, fmt.Errorf("leadstore: lead %s: last updated: %w", l.ID, err)
	}
	return l, nil
}

func formatScore(s float64) string {
	if s == 0 {
		return ""
	}
	return strconv.FormatFloat(s, 'f', 1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatTimeValue(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimeValue(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
