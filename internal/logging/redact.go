package logging

import "regexp"

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Patterns whose whole match is a secret.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{16,}`),
	regexp.MustCompile(`\beyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), // JWT
	regexp.MustCompile(`(ghp|gho|ghs)_[a-zA-Z0-9]{36}`),
}

// assignmentPattern matches key=value style secrets; only the value is replaced.
var assignmentPattern = regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api_?key)\s*[=:]\s*)("[^"]*"|'[^']*'|\S+)`)

// Redact replaces sensitive values in s.
func Redact(s string) string {
	for _, pattern := range secretPatterns {
		s = pattern.ReplaceAllString(s, RedactedValue)
	}
	return assignmentPattern.ReplaceAllString(s, "${1}"+RedactedValue)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
