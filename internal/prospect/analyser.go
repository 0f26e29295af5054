package prospect

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/innovatorsguild/sales-agents/internal/domain"
	"github.com/innovatorsguild/sales-agents/internal/llm"
	"github.com/innovatorsguild/sales-agents/internal/pkg/logger"
)

var (
	positiveKeywords      = []string{"interested", "yes", "sure", "great", "sounds good", "let's", "would love"}
	negativeKeywords      = []string{"no", "not interested", "not now", "busy", "sorry"}
	interestedKeywords    = []string{"interested", "yes", "tell me more", "details", "when"}
	notInterestedKeywords = []string{"no", "not interested", "not now"}
)

const analyserSystemPrompt = `You are analyzing a LinkedIn message response to determine sentiment and intent.

Sentiment options: "positive", "negative", "neutral"
Intent options: "interested", "not_interested", "requesting_info"

Respond in JSON format:
{
  "sentiment": "positive|negative|neutral",
  "intent": "interested|not_interested|requesting_info",
  "key_info": "brief summary of key information",
  "confidence": 0.0-1.0
}

When uncertain, choose neutral sentiment.`

// Analyser determines the sentiment and intent of a lead's reply. The LLM
// path is preferred when configured; any failure falls back to keyword
// rules, never to an error, because a response must always advance the
// lead's state.
type Analyser struct {
	gen llm.Generator // optional
}

// NewAnalyser creates an analyser. gen may be nil.
func NewAnalyser(gen llm.Generator) *Analyser {
	return &Analyser{gen: gen}
}

// Analyse inspects the lead's reply text. originalMessage gives the model
// context and may be empty.
func (a *Analyser) Analyse(ctx context.Context, responseText, originalMessage string) domain.ResponseAnalysis {
	if a.gen != nil {
		if analysis, err := a.analyseWithLLM(ctx, responseText, originalMessage); err == nil {
			return analysis
		} else {
			logger.Warn("llm response analysis failed, using rules", "error", err.Error())
		}
	}
	return analyseRuleBased(responseText)
}

func (a *Analyser) analyseWithLLM(ctx context.Context, responseText, originalMessage string) (domain.ResponseAnalysis, error) {
	if originalMessage == "" {
		originalMessage = "N/A"
	}
	prompt := "Analyze this response from a lead:\n\nOriginal message sent: " + originalMessage +
		"\nLead's response: " + responseText + "\n\nAnalysis:"

	resp, err := a.gen.Generate(ctx, llm.Request{
		System:      analyserSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		return domain.ResponseAnalysis{}, err
	}

	var parsed struct {
		Sentiment  string  `json:"sentiment"`
		Intent     string  `json:"intent"`
		KeyInfo    string  `json:"key_info"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp)), &parsed); err != nil {
		return domain.ResponseAnalysis{}, err
	}

	analysis := domain.ResponseAnalysis{
		Sentiment:  domain.Sentiment(parsed.Sentiment),
		Intent:     domain.Intent(parsed.Intent),
		KeyInfo:    parsed.KeyInfo,
		Confidence: parsed.Confidence,
	}
	if !validSentiment(analysis.Sentiment) {
		analysis.Sentiment = domain.SentimentNeutral
	}
	if !validIntent(analysis.Intent) {
		analysis.Intent = domain.IntentRequestingInfo
	}
	if analysis.Confidence <= 0 {
		analysis.Confidence = 0.7
	}
	return analysis, nil
}

func analyseRuleBased(responseText string) domain.ResponseAnalysis {
	lower := strings.ToLower(responseText)

	positive := countHits(lower, positiveKeywords)
	negative := countHits(lower, negativeKeywords)

	sentiment := domain.SentimentNeutral
	if positive > negative {
		sentiment = domain.SentimentPositive
	} else if negative > positive {
		sentiment = domain.SentimentNegative
	}

	intent := domain.IntentRequestingInfo
	if countHits(lower, interestedKeywords) > 0 {
		intent = domain.IntentInterested
	} else if countHits(lower, notInterestedKeywords) > 0 {
		intent = domain.IntentNotInterested
	}
	// "not interested" contains "interested"; the negative phrasing wins
	if strings.Contains(lower, "not interested") {
		intent = domain.IntentNotInterested
	}

	keyInfo := responseText
	if len(keyInfo) > 100 {
		keyInfo = keyInfo[:100]
	}
	return domain.ResponseAnalysis{
		Sentiment:  sentiment,
		Intent:     intent,
		KeyInfo:    keyInfo,
		Confidence: 0.6,
	}
}

// extractJSON pulls the first JSON object out of a model reply that may be
// wrapped in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func validSentiment(s domain.Sentiment) bool {
	return s == domain.SentimentPositive || s == domain.SentimentNegative || s == domain.SentimentNeutral
}

func validIntent(i domain.Intent) bool {
	return i == domain.IntentInterested || i == domain.IntentNotInterested || i == domain.IntentRequestingInfo
}
