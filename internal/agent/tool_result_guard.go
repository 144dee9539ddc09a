package agent

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultMaxToolResultSize is the default maximum size for tool results (64KB).
// This prevents memory exhaustion and excessive storage costs.
const DefaultMaxToolResultSize = 64 * 1024

// builtinSecretPatterns contains pre-compiled patterns for detecting common secrets.
// These are always applied when SanitizeSecrets is enabled.
var builtinSecretPatterns = []*regexp.Regexp{
	// API keys: api_key=<key>, apiKey: <key>, etc.
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	// Bearer tokens: Bearer eyJhbGc...
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	// AWS keys and secrets
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	// Generic secrets: password=<value>, secret=<value>, token=<value>
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	// Private keys (PEM format)
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ToolResultGuard controls how a tool's text content is redacted before it
// re-enters the conversation (spec §4.2 Non-goals: no prompt-injection
// defense beyond this synchronous guard).
type ToolResultGuard struct {
	Enabled         bool
	MaxChars        int
	Denylist        []string
	RedactPatterns  []string
	RedactionText   string
	TruncateSuffix  string
	SanitizeSecrets bool // When true, applies builtin secret detection patterns
}

func (g ToolResultGuard) active() bool {
	return g.Enabled || g.MaxChars > 0 || len(g.Denylist) > 0 || len(g.RedactPatterns) > 0 || g.RedactionText != "" || g.TruncateSuffix != "" || g.SanitizeSecrets
}

// Apply redacts/truncates a tool's text content, leaving non-text content
// blocks (images, structured details) untouched.
func (g ToolResultGuard) Apply(toolName string, result ToolResult) ToolResult {
	if !g.active() {
		return result
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}
	truncateSuffix := strings.TrimSpace(g.TruncateSuffix)
	if truncateSuffix == "" {
		truncateSuffix = "...[truncated]"
	}

	// Tool denylist: completely redact the result for matched tools.
	if len(g.Denylist) > 0 && matchesToolPattern(g.Denylist, toolName) {
		return ToolResult{Content: []models.Content{models.TextContent(redaction)}}
	}

	out := make([]models.Content, len(result.Content))
	for i, block := range result.Content {
		if block.Type != models.ContentTypeText {
			out[i] = block
			continue
		}

		text := block.Text
		if g.SanitizeSecrets && text != "" {
			for _, re := range builtinSecretPatterns {
				text = re.ReplaceAllString(text, redaction)
			}
		}
		for _, pattern := range g.RedactPatterns {
			pattern = strings.TrimSpace(pattern)
			if pattern == "" {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				continue
			}
			text = re.ReplaceAllString(text, redaction)
		}
		if g.MaxChars > 0 && len(text) > g.MaxChars {
			text = text[:g.MaxChars] + truncateSuffix
		}
		out[i] = models.TextContent(text)
	}
	result.Content = out
	return result
}

// matchesToolPattern reports whether toolName matches any pattern. A
// trailing "*" matches by prefix; otherwise the match is exact.
func matchesToolPattern(patterns []string, toolName string) bool {
	for _, p := range patterns {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(toolName, strings.TrimSuffix(p, "*")) {
				return true
			}
			continue
		}
		if p == toolName {
			return true
		}
	}
	return false
}

// DetectSecrets scans content for potential secrets and returns
// a list of matched pattern descriptions. This is useful for logging
// or alerting on potential secret exposure.
func DetectSecrets(content string) []string {
	if content == "" {
		return nil
	}

	patternNames := []string{
		"api_key",
		"bearer_token",
		"aws_key",
		"generic_secret",
		"private_key",
	}

	var matches []string
	for i, re := range builtinSecretPatterns {
		if re.MatchString(content) {
			matches = append(matches, patternNames[i])
		}
	}
	return matches
}
