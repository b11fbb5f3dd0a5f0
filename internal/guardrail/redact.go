package guardrail

import "regexp"

// keyPatterns match strings that look like leaked API credentials.
var keyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{20,}`),
}

// RedactSecrets scrubs anything resembling an API key from text before it
// reaches the user. Applied to every outbound assistant message.
func RedactSecrets(s string) string {
	for _, re := range keyPatterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
