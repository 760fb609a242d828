// Package sanitizer scrubs sensitive material from log lines before they
// leave the cluster (spec.md §4.1). It is pure and never fails: any line that
// cannot be parsed is still returned, just with the known patterns replaced.
package sanitizer

import (
	"regexp"
	"strings"
)

var (
	ipv4Pattern = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`)

	// RFC-822-ish email address.
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)
	awsKeyPattern = regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`)
	ghpPattern    = regexp.MustCompile(`\bghp_[A-Za-z0-9]{36,}\b`)

	// ANSI/VT100 escape sequences (CSI and simple two-byte forms).
	ansiEscapePattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[A-Za-z]|\([A-Za-z0-9]|[A-Za-z])`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

const (
	redactedIP     = "REDACTED_IP"
	redactedEmail  = "REDACTED_EMAIL"
	redactedSecret = "REDACTED_SECRET"
)

// Lines sanitizes a sequence of log lines, returning a slice of the same
// length with the same replacements spec.md §4.1 enumerates applied, in
// order, to each line.
func Lines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = Line(l)
	}
	return out
}

// Line applies the full sanitization pipeline to a single log line.
// sanitize(sanitize(x)) == sanitize(x): every replacement target (REDACTED_*
// tokens, single spaces) is inert under a second pass.
func Line(line string) string {
	s := ipv4Pattern.ReplaceAllString(line, redactedIP)
	s = emailPattern.ReplaceAllString(s, redactedEmail)
	s = jwtPattern.ReplaceAllString(s, redactedSecret)
	s = awsKeyPattern.ReplaceAllString(s, redactedSecret)
	s = ghpPattern.ReplaceAllString(s, redactedSecret)
	s = ansiEscapePattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
