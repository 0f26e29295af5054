package leadstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/pkg/httpretry"
	"github.com/innovatorsguild/sales-agents/internal/pkg/logger"
)

const (
	sheetsAPIBase = "https://sheets.googleapis.com/v4/spreadsheets"
	sheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
)

// SheetsStore implements Store against the Google Sheets values API using a
// service account. Conditional updates re-read the target row immediately
// before writing; the sheet has no transactions, so the expected-status
// check plus the lock held by the caller is what keeps agents from
// clobbering each other.
type SheetsStore struct {
	httpc         httpretry.HTTPDoer
	baseURL       string
	spreadsheetID string
	sheetName     string
}

// NewSheetsStore authenticates with the service account credentials file and
// returns a store bound to one spreadsheet tab.
func NewSheetsStore(ctx context.Context, spreadsheetID, sheetName, credentialsFile string, timeout time.Duration) (*SheetsStore, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(creds, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse sheets credentials: %w", err)
	}
	client := conf.Client(ctx)
	client.Timeout = timeout

	return &SheetsStore{
		httpc:         httpretry.NewRetryClient(client, 3),
		baseURL:       sheetsAPIBase,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

type valueRange struct {
	Range  string  `json:"range,omitempty"`
	Values [][]any `json:"values"`
}

// List reads the whole sheet and returns leads matching the filter.
// Rows that fail to parse are skipped; the sheet is hand-edited and one
// bad row must not stall the pipeline.
func (s *SheetsStore) List(ctx context.Context, f Filter) ([]domain.Lead, error) {
	rows, err := s.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var leads []domain.Lead
	for i, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		lead, err := leadFromRow(row)
		if err != nil {
			// row index is 1-based and the header is row 1
			logger.Warn("skipping unparseable sheet row", "row", i+2, "error", err.Error())
			continue
		}
		if f.matches(lead) {
			leads = append(leads, lead)
		}
	}
	return leads, nil
}

// Update rewrites the lead's row after confirming it is still in
// expectedStatus. Returns ErrStatusConflict when another agent moved the
// lead between the caller's read and this write.
func (s *SheetsStore) Update(ctx context.Context, lead domain.Lead, expectedStatus domain.ContactStatus) error {
	rows, err := s.readAll(ctx)
	if err != nil {
		return err
	}

	rowNum := 0
	var current domain.Lead
	for i, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		got, err := leadFromRow(row)
		if err != nil || got.ID != lead.ID {
			continue
		}
		rowNum = i + 2
		current = got
		break
	}
	if rowNum == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, lead.ID)
	}
	if current.ContactStatus != expectedStatus {
		return fmt.Errorf("%w: %s is %q, expected %q",
			ErrStatusConflict, lead.ID, current.ContactStatus, expectedStatus)
	}

	lead.LastUpdated = time.Now().UTC()
	body := valueRange{Values: [][]any{leadToRow(lead)}}
	rng := fmt.Sprintf("%s!A%d:S%d", s.sheetName, rowNum, rowNum)
	u := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
		s.baseURL, s.spreadsheetID, url.PathEscape(rng))
	return s.call(ctx, http.MethodPut, u, body, nil)
}

// Append adds leads to the end of the sheet.
func (s *SheetsStore) Append(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	now := time.Now().UTC()
	values := make([][]any, 0, len(leads))
	for _, l := range leads {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
		}
		l.LastUpdated = now
		values = append(values, leadToRow(l))
	}
	rng := fmt.Sprintf("%s!A:S", s.sheetName)
	u := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		s.baseURL, s.spreadsheetID, url.PathEscape(rng))
	return s.call(ctx, http.MethodPost, u, valueRange{Values: values}, nil)
}

// readAll fetches the full lead range including the header row.
func (s *SheetsStore) readAll(ctx context.Context) ([][]string, error) {
	rng := fmt.Sprintf("%s!A:S", s.sheetName)
	u := fmt.Sprintf("%s/%s/values/%s", s.baseURL, s.spreadsheetID, url.PathEscape(rng))

	var out struct {
		Values [][]any `json:"values"`
	}
	if err := s.call(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Values) == 0 {
		return nil, fmt.Errorf("leadstore: sheet %s is empty", s.sheetName)
	}

	rows := make([][]string, len(out.Values))
	for i, raw := range out.Values {
		row := make([]string, len(raw))
		for j, cell := range raw {
			row[j] = fmt.Sprint(cell)
		}
		rows[i] = row
	}
	if err := validateHeader(rows[0]); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SheetsStore) call(ctx context.Context, method, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("leadstore: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("leadstore: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("leadstore: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("leadstore: sheets API returned %d: %s", resp.StatusCode, snippet)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("leadstore: decode response: %w", err)
		}
	}
	return nil
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
