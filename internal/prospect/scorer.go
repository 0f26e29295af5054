package prospect

import (
	"strings"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

var (
	highValuePositions   = []string{"CTO", "CEO", "FOUNDER", "VP", "DIRECTOR"}
	mediumValuePositions = []string{"HEAD", "LEAD", "MANAGER", "ENGINEER"}
	techCompanyKeywords  = []string{"TECH", "SOFTWARE", "SYSTEMS", "SOLUTIONS", "DIGITAL", "DATA"}
)

// Score rates a lead on the 1-10 scale from three factors: position match
// (0-4), company relevance (0-3) and profile completeness (0-3).
func Score(lead domain.Lead) float64 {
	total := positionScore(lead.Position) + companyScore(lead.Company) + completenessScore(lead)
	if total > 10.0 {
		return 10.0
	}
	if total < 1.0 {
		return 1.0
	}
	return total
}

func positionScore(position string) float64 {
	if position == "" {
		return 0.0
	}
	upper := strings.ToUpper(position)
	for _, kw := range highValuePositions {
		if strings.Contains(upper, kw) {
			return 4.0
		}
	}
	for _, kw := range mediumValuePositions {
		if strings.Contains(upper, kw) {
			return 2.5
		}
	}
	return 1.0
}

func companyScore(company string) float64 {
	if company == "" {
		return 0.0
	}
	upper := strings.ToUpper(company)
	for _, kw := range techCompanyKeywords {
		if strings.Contains(upper, kw) {
			return 3.0
		}
	}
	return 2.0
}

func completenessScore(lead domain.Lead) float64 {
	score := 0.0
	if lead.Name != "" {
		score += 0.5
	}
	if lead.Position != "" {
		score += 0.5
	}
	if lead.Company != "" {
		score += 0.5
	}
	if lead.LinkedInURL != "" {
		score += 1.0
	}
	if lead.Notes != "" {
		score += 0.5
	}
	if score > 3.0 {
		return 3.0
	}
	return score
}
