package middleware

import "regexp"

var (
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE  = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	secretRE = regexp.MustCompile(`(?i)\b(token|access_token|api_key|secret|password)=[^&\s]+`)
)

// Redact masks credentials, email addresses and phone numbers in s. It is
// applied to query strings and message previews before they reach the logs.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = secretRE.ReplaceAllString(s, "$1=[REDACTED]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Preview returns at most n runes of s, redacted.
func Preview(s string, n int) string {
	r := []rune(s)
	if n > 0 && len(r) > n {
		s = string(r[:n]) + "…"
	}
	return Redact(s)
}
