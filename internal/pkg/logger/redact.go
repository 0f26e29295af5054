package logger

import (
	"regexp"
	"strings"
)

var profileURLRegex = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/[\w\-%.]+/?`)

func redactPIIValue(key, val string) string {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "linkedin") || strings.Contains(lower, "profile_url") {
		return RedactProfileURL(val)
	}
	if lower == "name" || strings.Contains(lower, "lead_name") {
		return RedactName(val)
	}
	// Redact any embedded profile URLs in generic fields
	return profileURLRegex.ReplaceAllStringFunc(val, RedactProfileURL)
}

// RedactProfileURL masks the vanity slug of a LinkedIn profile URL.
// "https://linkedin.com/in/jane-doe" → "https://linkedin.com/in/ja***"
func RedactProfileURL(url string) string {
	idx := strings.Index(url, "/in/")
	if idx < 0 {
		return "linkedin.com/in/***"
	}
	slug := strings.TrimSuffix(url[idx+4:], "/")
	if len(slug) > 2 {
		return url[:idx+4] + slug[:2] + "***"
	}
	return url[:idx+4] + "***"
}

// RedactName masks a person's name, keeping only initials.
// "Jane Doe" → "J. D."
func RedactName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "***"
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, string([]rune(p)[0])+".")
	}
	return strings.Join(out, " ")
}
