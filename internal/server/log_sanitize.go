package server

import (
	"regexp"
	"strings"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var redactions = []redaction{
	{regexp.MustCompile(`(?i)-----BEGIN( [A-Z]+)? PRIVATE KEY-----[\s\S]+?-----END( [A-Z]+)? PRIVATE KEY-----`), "[redacted private key]"},
	{regexp.MustCompile(`(?i)authorization:\s*bearer\s+[a-z0-9\-._~+/=]+`), "authorization: Bearer [redacted]"},
	{regexp.MustCompile(`(https?://)[^:@/\s]+:[^@\s]+@`), "${1}[redacted]:[redacted]@"},
	{regexp.MustCompile(`\b(ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{20,}`), "[redacted github token]"},
	{regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{20,}`), "[redacted github token]"},
	{regexp.MustCompile(`ssh-(rsa|ed25519)\s+[A-Za-z0-9+/=]+`), "ssh-$1 [redacted]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|secret|api_key|access_key|refresh_token|token|key)=\S+`), "$1=[redacted]"},
	{regexp.MustCompile(`(?i)(aws_|gcp_|azure_)?(access|secret|session)_key\w*=\S+`), "$1$2_key=[redacted]"},
	{regexp.MustCompile(`(?i)(password|secret|token)\s*"[^"]+"`), `$1"[redacted]"`},
	{regexp.MustCompile(`(?i)(password|secret|token)\s*'[^']+'`), "$1'[redacted]'"},
	{regexp.MustCompile(`(?i)\bemail=\S+`), "email=[redacted]"},
}

// SanitizeLogLines redacts credentials from log lines before they leave the
// process through a tool response.
func SanitizeLogLines(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = SanitizeLine(line)
	}
	return out
}

func SanitizeLine(line string) string {
	line = strings.ReplaceAll(line, " .ssh/", " [redacted]/")
	for _, r := range redactions {
		line = r.pattern.ReplaceAllString(line, r.replacement)
	}
	return line
}
