package admission

import (
	"regexp"
	"strings"
)

// botPatterns flags automated traffic by user-agent. Substring matches are
// case-insensitive; HTTP client signatures are anchored to the start.
var botPatterns = []*regexp.Regexp{
	// headless browsers and automation drivers
	regexp.MustCompile(`(?i)headless`),
	regexp.MustCompile(`(?i)phantom`),
	regexp.MustCompile(`(?i)puppeteer`),
	regexp.MustCompile(`(?i)selenium`),
	regexp.MustCompile(`(?i)webdriver`),
	regexp.MustCompile(`(?i)playwright`),
	regexp.MustCompile(`(?i)chromium`),

	// generic crawler tokens
	regexp.MustCompile(`(?i)bot`),
	regexp.MustCompile(`(?i)crawler`),
	regexp.MustCompile(`(?i)spider`),
	regexp.MustCompile(`(?i)scraper`),

	// automation tooling
	regexp.MustCompile(`(?i)automation`),
	regexp.MustCompile(`(?i)test`),
	regexp.MustCompile(`(?i)monitoring`),

	// named web/search/social crawlers
	regexp.MustCompile(`(?i)googlebot`),
	regexp.MustCompile(`(?i)bingbot`),
	regexp.MustCompile(`(?i)slurp`),
	regexp.MustCompile(`(?i)duckduckbot`),
	regexp.MustCompile(`(?i)baiduspider`),
	regexp.MustCompile(`(?i)yandexbot`),
	regexp.MustCompile(`(?i)facebookexternalhit`),
	regexp.MustCompile(`(?i)twitterbot`),
	regexp.MustCompile(`(?i)linkedinbot`),

	// non-browser HTTP clients
	regexp.MustCompile(`(?i)^curl/`),
	regexp.MustCompile(`(?i)^wget`),
	regexp.MustCompile(`(?i)^python-requests`),
	regexp.MustCompile(`(?i)^go-http-client`),
	regexp.MustCompile(`(?i)^java/\d`),
	regexp.MustCompile(`(?i)^apache-httpclient`),
}

// IsBot reports whether a user-agent looks automated. A missing or blank
// user-agent is treated as suspicious, not merely unknown.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	for _, pattern := range botPatterns {
		if pattern.MatchString(userAgent) {
			return true
		}
	}
	return false
}
