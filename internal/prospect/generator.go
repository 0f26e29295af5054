package prospect

import (
	"context"
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/pkg/logger"
)

// maxMessageLen caps generated messages; the provider rejects very long
// invitation notes and long messages read as spam anyway.
const maxMessageLen = 1000

const speakerTemplate = `Hi {{ first_name }},

We're hosting an {{ event_name }} event on {{ event_date }} - a curated gathering of the most ambitious engineers, founders, and innovators building the future.

Your work at {{ company }} leading {{ specific_area }} is exactly the kind of perspective our community needs to hear. I think you'd be a perfect fit.

Interested in speaking?

Best,

Ayub

Innovators Guild

https://innovators.london`

const sponsorTemplate = `Hi {{ first_name }},

I've been following {{ company }}'s work in {{ known_for }} - really impressed!

We run {{ event_name }} events that bring together ambitious leaders and emerging companies. I think your team would find real value in being part of it.

Would you be open to a quick chat about sponsoring or collaborating on an event?

Best,

Ayub

Innovators Guild

https://innovators.london`

const generatorSystemPrompt = `You are a sales assistant writing personalised LinkedIn messages for Innovators Guild events. Messages must be:
- Personal and friendly
- Professional but conversational
- Match the lead's track (Speaker or Sponsor)
- For Speakers: Mention their work at their company leading their area
- For Sponsors: Mention following the company's work in what it is known for
- Include signature: "Best, Ayub\n\nInnovators Guild\n\nhttps://innovators.london"

Respond with ONLY the message text. No explanations.`

// Generator produces the personalised outreach message for a lead. With a
// model configured it writes a bespoke message and falls back to the track
// template on any failure; without one, the templates are the output.
type Generator struct {
	gen       llm.Generator // optional
	engine    *liquid.Engine
	speaker   *liquid.Template
	sponsor   *liquid.Template
	eventName string
	eventDate string
}

// NewGenerator parses the message templates. gen may be nil.
func NewGenerator(gen llm.Generator, eventName, eventDate string) (*Generator, error) {
	engine := liquid.NewEngine()
	speaker, err := engine.ParseString(speakerTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse speaker template: %w", err)
	}
	sponsor, err := engine.ParseString(sponsorTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse sponsor template: %w", err)
	}
	if eventName == "" {
		eventName = "Innovators Guild"
	}
	return &Generator{
		gen:       gen,
		engine:    engine,
		speaker:   speaker,
		sponsor:   sponsor,
		eventName: eventName,
		eventDate: eventDate,
	}, nil
}

// Generate returns the outreach message for the lead, capped at
// maxMessageLen.
func (g *Generator) Generate(ctx context.Context, lead domain.Lead) (string, error) {
	if g.gen != nil {
		msg, err := g.generateWithLLM(ctx, lead)
		if err == nil {
			return msg, nil
		}
		logger.Warn("llm message generation failed, using template",
			"lead_id", lead.ID, "error", err.Error())
	}
	return g.fromTemplate(lead)
}

func (g *Generator) fromTemplate(lead domain.Lead) (string, error) {
	tpl := g.speaker
	if lead.Classification == domain.ClassSponsor {
		tpl = g.sponsor
	}

	company := lead.Company
	if company == "" {
		company = "your company"
	}
	area := lead.Position
	if area == "" {
		area = "innovation"
	}

	out, err := tpl.RenderString(map[string]any{
		"first_name":    lead.FirstName(),
		"company":       company,
		"specific_area": area,
		"known_for":     company,
		"event_name":    g.eventName,
		"event_date":    g.eventDate,
	})
	if err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return capMessage(out), nil
}

func (g *Generator) generateWithLLM(ctx context.Context, lead domain.Lead) (string, error) {
	class := lead.Classification
	if class == "" {
		class = domain.ClassSpeaker
	}
	prompt := fmt.Sprintf(`Generate a LinkedIn message for an %s event:
Name: %s
Position: %s
Company: %s
Track: %s
Event Date: %s

Write a personalised message in the Innovators Guild style. Include the signature at the end.`,
		g.eventName, lead.Name, lead.Position, lead.Company, class, g.eventDate)

	resp, err := g.gen.Generate(ctx, llm.Request{
		System:      generatorSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}
	msg := strings.TrimSpace(resp)
	if msg == "" {
		return "", fmt.Errorf("model returned empty message")
	}
	return capMessage(msg), nil
}

func capMessage(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	return msg[:maxMessageLen-3] + "..."
}
