package leadstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

func headerRow() []any {
	out := make([]any, len(sheetHeader))
	for i, h := range sheetHeader {
		out[i] = h
	}
	return out
}

func sheetRow(id, name, status string) []any {
	return []any{id, name, "CTO", "Acme", "https://linkedin.com/in/" + id,
		"Speaker", "8.0", status, "", "", "", "", "", "", "", "", "",
		"2025-06-01T10:00:00Z", "2025-06-01T10:00:00Z"}
}

// sheetsServer fakes the two values endpoints the store touches.
type sheetsServer struct {
	rows    [][]any
	puts    []valueRange
	appends []valueRange
}

func (s *sheetsServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"values": s.rows})
		case r.Method == http.MethodPut:
			var vr valueRange
			json.NewDecoder(r.Body).Decode(&vr)
			s.puts = append(s.puts, vr)
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":append"):
			var vr valueRange
			json.NewDecoder(r.Body).Decode(&vr)
			s.appends = append(s.appends, vr)
			w.Write([]byte(`{}`))
		default:
			http.Error(w, "unexpected request", http.StatusBadRequest)
		}
	}
}

func newTestStore(t *testing.T, srv *sheetsServer) *SheetsStore {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	return &SheetsStore{
		httpc:         ts.Client(),
		baseURL:       ts.URL,
		spreadsheetID: "sheet-1",
		sheetName:     "Leads",
	}
}

func TestListFiltersByStatus(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{
		headerRow(),
		sheetRow("l1", "Jane Doe", "Not Contacted"),
		sheetRow("l2", "Raj Patel", "Allocated"),
		sheetRow("l3", "Ana Silva", "Not Contacted"),
	}}
	store := newTestStore(t, srv)

	leads, err := store.List(context.Background(),
		Filter{Statuses: []domain.ContactStatus{domain.StatusNotContacted}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("len(leads) = %d, want 2", len(leads))
	}
	if leads[0].ID != "l1" || leads[1].ID != "l3" {
		t.Errorf("got IDs %s, %s; want l1, l3", leads[0].ID, leads[1].ID)
	}
}

func TestListSkipsBadRows(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{
		headerRow(),
		sheetRow("l1", "Jane Doe", "Not Contacted"),
		sheetRow("l2", "Bad Status", "Teleported"),
		{""}, // blank row
		sheetRow("l3", "Ana Silva", "Allocated"),
	}}
	store := newTestStore(t, srv)

	leads, err := store.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("len(leads) = %d, want 2 (bad row skipped)", len(leads))
	}
}

func TestListRejectsReorderedHeader(t *testing.T) {
	hdr := headerRow()
	hdr[0], hdr[1] = hdr[1], hdr[0]
	srv := &sheetsServer{rows: [][]any{hdr}}
	store := newTestStore(t, srv)

	_, err := store.List(context.Background(), Filter{})
	if err == nil {
		t.Fatal("expected header validation error")
	}
}

func TestUpdateWritesRow(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{
		headerRow(),
		sheetRow("l1", "Jane Doe", "Not Contacted"),
		sheetRow("l2", "Raj Patel", "Not Contacted"),
	}}
	store := newTestStore(t, srv)

	lead := domain.Lead{
		ID: "l2", Name: "Raj Patel", Position: "CTO", Company: "Acme",
		LinkedInURL:    "https://linkedin.com/in/l2",
		Classification: domain.ClassSpeaker, QualityScore: 8.0,
		ContactStatus: domain.StatusAllocated, AllocatedTo: "outreach-1",
	}
	err := store.Update(context.Background(), lead, domain.StatusNotContacted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(srv.puts) != 1 {
		t.Fatalf("puts = %d, want 1", len(srv.puts))
	}
	row := srv.puts[0].Values[0]
	if row[7] != "Allocated" {
		t.Errorf("written status = %v, want Allocated", row[7])
	}
	if row[8] != "outreach-1" {
		t.Errorf("written allocated_to = %v, want outreach-1", row[8])
	}
}

func TestUpdateStatusConflict(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{
		headerRow(),
		sheetRow("l1", "Jane Doe", "Allocated"),
	}}
	store := newTestStore(t, srv)

	lead := domain.Lead{ID: "l1", ContactStatus: domain.StatusAllocated}
	err := store.Update(context.Background(), lead, domain.StatusNotContacted)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}
	if len(srv.puts) != 0 {
		t.Error("conflicting update still wrote to the sheet")
	}
}

func TestUpdateUnknownLead(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{headerRow()}}
	store := newTestStore(t, srv)

	err := store.Update(context.Background(),
		domain.Lead{ID: "ghost"}, domain.StatusNotContacted)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendStampsTimestamps(t *testing.T) {
	srv := &sheetsServer{rows: [][]any{headerRow()}}
	store := newTestStore(t, srv)

	err := store.Append(context.Background(), []domain.Lead{
		{ID: "l9", Name: "New Lead", ContactStatus: domain.StatusNotContacted},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(srv.appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(srv.appends))
	}
	row := srv.appends[0].Values[0]
	if row[17] == "" || row[18] == "" {
		t.Error("created/updated timestamps not stamped on append")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	sent := time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC)
	lead := domain.Lead{
		ID: "l1", Name: "Jane Doe", Position: "VP Engineering", Company: "Acme",
		LinkedInURL:    "https://linkedin.com/in/jane-doe",
		Classification: domain.ClassSponsor, QualityScore: 6.5,
		ContactStatus: domain.StatusMessageSent, AllocatedTo: "outreach-1",
		MessageSent: "Hi Jane...", MessageSentAt: &sent,
		Notes:     "follow up next week",
		CreatedAt: sent.Add(-48 * time.Hour), LastUpdated: sent,
	}

	raw := leadToRow(lead)
	row := make([]string, len(raw))
	for i, c := range raw {
		row[i] = c.(string)
	}
	got, err := leadFromRow(row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != lead.ID || got.ContactStatus != lead.ContactStatus ||
		got.QualityScore != lead.QualityScore || got.Notes != lead.Notes {
		t.Errorf("round trip mismatch: got %+v", got)
	}
	if got.MessageSentAt == nil || !got.MessageSentAt.Equal(sent) {
		t.Errorf("MessageSentAt = %v, want %v", got.MessageSentAt, sent)
	}
}

func TestMemoryConditionalUpdate(t *testing.T) {
	m := NewMemory(domain.Lead{ID: "l1", ContactStatus: domain.StatusNotContacted})

	lead := domain.Lead{ID: "l1", ContactStatus: domain.StatusAllocated, AllocatedTo: "w1"}
	if err := m.Update(context.Background(), lead, domain.StatusNotContacted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// second writer raced and loses
	other := domain.Lead{ID: "l1", ContactStatus: domain.StatusAllocated, AllocatedTo: "w2"}
	err := m.Update(context.Background(), other, domain.StatusNotContacted)
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("err = %v, want ErrStatusConflict", err)
	}

	got, _ := m.Get("l1")
	if got.AllocatedTo != "w1" {
		t.Errorf("AllocatedTo = %s, want w1", got.AllocatedTo)
	}
}
