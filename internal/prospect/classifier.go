// Package prospect holds the lead intelligence pipeline: classification
// into Speaker/Sponsor/Other, quality scoring, personalised message
// generation, and response analysis. Each stage is rule-based first with
// an optional LLM pass for the cases the rules cannot decide; with no
// model configured everything still works deterministically.
package prospect

import (
	"context"
	"strings"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/pkg/logger"
)

var speakerKeywords = []string{
	"CTO", "CHIEF TECHNOLOGY OFFICER",
	"FOUNDER", "CO-FOUNDER",
	"ENGINEER", "ENGINEERING",
	"TECHNICAL LEAD", "TECH LEAD",
	"VP ENGINEERING", "VP OF ENGINEERING",
	"HEAD OF ENGINEERING",
	"SOFTWARE ARCHITECT",
	"TECHNICAL DIRECTOR",
}

var sponsorKeywords = []string{
	"CEO", "CHIEF EXECUTIVE OFFICER",
	"CFO", "CHIEF FINANCIAL OFFICER",
	"CMO", "CHIEF MARKETING OFFICER",
	"VP", "VICE PRESIDENT",
	"DIRECTOR", "MANAGING DIRECTOR",
	"HEAD OF BUSINESS",
	"BUSINESS DEVELOPMENT",
	"SALES DIRECTOR",
	"MARKETING DIRECTOR",
}

const classifierSystemPrompt = `You are a lead classification assistant for a tech event sales team. Your task is to classify leads as "Speaker" or "Sponsor" based on their position and company context.

Classification Rules:
- Speaker: Technical roles (CTO, Engineer, Founder, Technical Lead, VP Engineering)
- Sponsor: Business/executive roles (CEO, CFO, CMO, VP Business, Director, Head of Business Development)
- If position matches both categories, classify as "Speaker"

Respond with ONLY the classification: "Speaker", "Sponsor", or "Other". No explanation needed.`

// Classifier assigns each lead to the Speaker or Sponsor track. Keyword
// rules decide the clear cases; the LLM only sees positions neither
// keyword list matches.
type Classifier struct {
	gen llm.Generator // optional
}

// NewClassifier creates a classifier. gen may be nil.
func NewClassifier(gen llm.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify returns the lead's track and whether the decision came from the
// rules. Ties between the keyword lists go to Speaker.
func (c *Classifier) Classify(ctx context.Context, lead domain.Lead) (domain.Classification, bool) {
	position := strings.ToUpper(lead.Position)

	speakerHits := countHits(position, speakerKeywords)
	sponsorHits := countHits(position, sponsorKeywords)

	switch {
	case speakerHits > 0 && speakerHits >= sponsorHits:
		return domain.ClassSpeaker, true
	case sponsorHits > 0:
		return domain.ClassSponsor, true
	}

	if c.gen == nil {
		return domain.ClassOther, true
	}
	return c.classifyWithLLM(ctx, lead), false
}

func (c *Classifier) classifyWithLLM(ctx context.Context, lead domain.Lead) domain.Classification {
	prompt := "Classify this lead:\nName: " + lead.Name +
		"\nPosition: " + lead.Position +
		"\nCompany: " + lead.Company +
		"\n\nClassification:"

	resp, err := c.gen.Generate(ctx, llm.Request{
		System:      classifierSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   10,
	})
	if err != nil {
		logger.Warn("llm classification failed, defaulting to Other",
			"lead_id", lead.ID, "error", err.Error())
		return domain.ClassOther
	}

	switch strings.TrimSpace(resp) {
	case "Speaker":
		return domain.ClassSpeaker
	case "Sponsor":
		return domain.ClassSponsor
	}
	return domain.ClassOther
}

func countHits(s string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			n++
		}
	}
	return n
}
