package worker

import (
	"sort"

	"github.com/innovatorsguild/sales-agents/internal/domain"
)

// allocateLeads picks up to budget leads for outreach, interleaving the
// Speaker and Sponsor tracks toward the configured speaker ratio. The
// budget is a hard cap (it reflects the remaining daily send allowance);
// the ratio is a soft target, so when one track runs dry the other fills
// the remainder. Within each track, higher-scored leads go first.
func allocateLeads(candidates []domain.Lead, budget int, speakerRatio float64) []domain.Lead {
	if budget <= 0 || len(candidates) == 0 {
		return nil
	}

	var speakers, sponsors []domain.Lead
	for _, l := range candidates {
		switch l.Classification {
		case domain.ClassSpeaker:
			speakers = append(speakers, l)
		case domain.ClassSponsor:
			sponsors = append(sponsors, l)
		}
	}
	byScoreDesc(speakers)
	byScoreDesc(sponsors)

	picked := make([]domain.Lead, 0, budget)
	si, pi := 0, 0
	speakersTaken := 0
	for len(picked) < budget && (si < len(speakers) || pi < len(sponsors)) {
		ideal := speakerRatio * float64(len(picked)+1)
		takeSpeaker := float64(speakersTaken) < ideal
		if takeSpeaker && si >= len(speakers) {
			takeSpeaker = false
		}
		if !takeSpeaker && pi >= len(sponsors) {
			takeSpeaker = true
		}
		if takeSpeaker {
			picked = append(picked, speakers[si])
			si++
			speakersTaken++
		} else {
			picked = append(picked, sponsors[pi])
			pi++
		}
	}
	return picked
}

func byScoreDesc(leads []domain.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].QualityScore > leads[j].QualityScore
	})
}
