package policy

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	emailPattern     = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phonePattern     = regexp.MustCompile(`(?:\+?\d[\d()\-\s.]{7,}\d)`)
	cardPattern      = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	bearerPattern    = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`)
	queryKeyPattern  = regexp.MustCompile(`(?i)([?&](?:key|api_key|token|x-amz-signature|x-amz-credential)=)[^&\s"]+`)
)

// Redact masks credentials and personal data in text destined for logs.
// Credentials are masked first so key material is never partially matched
// by the phone or card patterns.
func Redact(value string) string {
	masked := googleKeyPattern.ReplaceAllString(value, "[api_key_redacted]")
	masked = bearerPattern.ReplaceAllString(masked, "Bearer [token_redacted]")
	masked = queryKeyPattern.ReplaceAllString(masked, "${1}[redacted]")
	masked = emailPattern.ReplaceAllString(masked, "[email_redacted]")
	masked = cardPattern.ReplaceAllStringFunc(masked, maskCardNumber)
	masked = phonePattern.ReplaceAllString(masked, "[phone_redacted]")
	return masked
}

// RedactURL drops the query string and user info of a locator. Presigned
// URLs carry their signature in the query.
func RedactURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return Redact(raw)
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "redacted"
	}
	parsed.Fragment = ""
	return parsed.String()
}

func maskCardNumber(value string) string {
	digits := make([]rune, 0, len(value))
	for _, char := range value {
		if char >= '0' && char <= '9' {
			digits = append(digits, char)
		}
	}
	if len(digits) < 8 {
		return "[card_redacted]"
	}

	last4 := string(digits[len(digits)-4:])
	return "**** **** **** " + last4
}
