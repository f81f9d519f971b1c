package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxTextLogLength caps user-submitted free text written to logs.
	MaxTextLogLength = 80
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in postgres:// and redis:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]*:[^@]+@[^/\s]+`)

	// Redis AUTH arguments echoed back in go-redis errors
	redisAuthPattern = regexp.MustCompile(`(?i)(auth)\s+\S+`)
)

// SanitizeConnectionString removes credentials from a Postgres or Redis
// connection string. Use it before logging any DSN.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError returns err's message with credentials removed. Driver and
// dial errors sometimes include the DSN they failed on.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := SanitizeConnectionString(err.Error())
	return redisAuthPattern.ReplaceAllString(sanitized, "${1} "+RedactedText)
}

// SanitizeUserText collapses whitespace and truncates free text such as
// rating notes so log lines stay single-line and bounded.
func SanitizeUserText(s string) string {
	return TruncateString(strings.Join(strings.Fields(s), " "), MaxTextLogLength)
}

// TruncateString truncates a string to maxLen runes and adds an ellipsis if
// needed.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
