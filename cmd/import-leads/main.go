package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/innovatorsguild/sales-agents/internal/config"
	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/leadstore"
	"github.com/innovatorsguild/sales-agents/internal/linkedin"
)

// import-leads loads prospects from a CSV export into the shared lead
// sheet. Rows are validated, deduplicated against the sheet by LinkedIn
// profile URL and appended as Not Contacted; the running agents pick them
// up on their next cycle.

var csvHeader = []string{"name", "position", "company", "linkedin_url"}

func main() {
	var (
		file       = flag.String("file", "", "CSV file to import (name,position,company,linkedin_url)")
		configPath = flag.String("config", "config/config.yaml", "config file path")
		dryRun     = flag.Bool("dry-run", false, "validate and report without writing to the sheet")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: import-leads -file leads.csv [-config config/config.yaml] [-dry-run]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}

	f, err := os.Open(*file)
	if err != nil {
		fatalf("failed to open %s: %v", *file, err)
	}
	defer f.Close()

	candidates, skipped, err := readLeads(f)
	if err != nil {
		fatalf("failed to read %s: %v", *file, err)
	}
	fmt.Printf("Parsed %d leads from %s (%d rows skipped)\n", len(candidates), *file, skipped)

	store, err := leadstore.NewSheetsStore(ctx, cfg.Sheets.SpreadsheetID,
		cfg.Sheets.SheetName, cfg.Sheets.CredentialsFile, cfg.Sheets.Timeout())
	if err != nil {
		fatalf("failed to open lead sheet: %v", err)
	}

	existing, err := store.List(ctx, leadstore.Filter{})
	if err != nil {
		fatalf("failed to read lead sheet: %v", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, lead := range existing {
		if id := linkedin.ProfileIdentifier(lead.LinkedInURL); id != "" {
			seen[id] = true
		}
	}

	fresh := make([]domain.Lead, 0, len(candidates))
	duplicates := 0
	for _, lead := range candidates {
		id := linkedin.ProfileIdentifier(lead.LinkedInURL)
		if seen[id] {
			duplicates++
			continue
		}
		seen[id] = true
		fresh = append(fresh, lead)
	}
	fmt.Printf("%d already in the sheet, %d to import\n", duplicates, len(fresh))

	if *dryRun {
		for _, lead := range fresh {
			fmt.Printf("  would import: %s (%s at %s)\n", lead.Name, lead.Position, lead.Company)
		}
		fmt.Println("Dry run, nothing written")
		return
	}
	if len(fresh) == 0 {
		fmt.Println("Nothing to import")
		return
	}

	if err := store.Append(ctx, fresh); err != nil {
		fatalf("failed to append leads: %v", err)
	}
	fmt.Printf("Imported %d leads\n", len(fresh))
}

// readLeads parses the CSV, skipping rows that are incomplete or carry an
// unusable profile URL. Skipped rows are reported but never abort the run.
func readLeads(r io.Reader) ([]domain.Lead, int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("missing header row: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, 0, err
	}

	var leads []domain.Lead
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}
		lead, ok := leadFromCSVRow(row)
		if !ok {
			fmt.Fprintf(os.Stderr, "skipping line %d: missing name or invalid linkedin_url\n", line)
			skipped++
			continue
		}
		leads = append(leads, lead)
	}
	return leads, skipped, nil
}

func validateHeader(header []string) error {
	if len(header) < len(csvHeader) {
		return fmt.Errorf("expected columns %s, got %d columns", strings.Join(csvHeader, ","), len(header))
	}
	for i, want := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("expected column %d to be %q, got %q", i+1, want, header[i])
		}
	}
	return nil
}

func leadFromCSVRow(row []string) (domain.Lead, bool) {
	if len(row) < len(csvHeader) {
		return domain.Lead{}, false
	}
	name := strings.TrimSpace(row[0])
	profileURL := strings.TrimSpace(row[3])
	if name == "" || linkedin.ProfileIdentifier(profileURL) == "" {
		return domain.Lead{}, false
	}
	return domain.Lead{
		ID:            uuid.NewString(),
		Name:          name,
		Position:      strings.TrimSpace(row[1]),
		Company:       strings.TrimSpace(row[2]),
		LinkedInURL:   profileURL,
		ContactStatus: domain.StatusNotContacted,
	}, true
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(1)
}
