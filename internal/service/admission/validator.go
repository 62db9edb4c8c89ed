package admission

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
)

// Suppression reason codes. Which code is recorded when several checks
// would fail is fixed by the evaluation order in Check.
const (
	ReasonTrackingDisabled    = "TRACKING_DISABLED"
	ReasonMissingField        = "MISSING_REQUIRED_FIELD"
	ReasonEventTooLarge       = "EVENT_TOO_LARGE"
	ReasonInvalidURL          = "INVALID_URL"
	ReasonFileProtocol        = "FILE_PROTOCOL_NOT_ALLOWED"
	ReasonLocalhost           = "LOCALHOST_NOT_ALLOWED"
	ReasonIframe              = "IFRAME_NOT_ALLOWED"
	ReasonBot                 = "BOT_DETECTED"
	ReasonMissingEventName    = "MISSING_EVENT_NAME"
	ReasonTooManyParams       = "TOO_MANY_CUSTOM_PARAMS"
	ReasonParamNameTooLong    = "PARAM_NAME_TOO_LONG"
	ReasonInvalidParamName    = "INVALID_PARAM_NAME"
	ReasonParamValueTooLong   = "PARAM_VALUE_TOO_LONG"
	ReasonMissingUserID       = "MISSING_USER_ID"
	ReasonMissingPaymentID    = "MISSING_PAYMENT_IDENTIFIER"
	ReasonDomainNotAuthorized = "DOMAIN_NOT_AUTHORIZED"
	ReasonThrottled           = "THROTTLED"
	ReasonDuplicatePayment    = "DUPLICATE_PAYMENT"
)

// Reason explains why an event was suppressed.
type Reason struct {
	Code    string
	Message string
}

// String renders the stored and client-visible form of the reason.
func (r Reason) String() string {
	return r.Code + ": " + r.Message
}

func reasonf(code, format string, args ...any) *Reason {
	return &Reason{Code: code, Message: fmt.Sprintf(format, args...)}
}

var paramNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validator runs the stateless admission checks in a fixed order.
type Validator struct {
	cfg Config
}

// NewValidator constructs a Validator.
func NewValidator(cfg Config) Validator {
	return Validator{cfg: cfg}
}

// Check evaluates the admission rules and returns the suppression reason,
// or nil when the event passes. The order is a behavioral contract: the
// first failing check determines the single recorded reason.
func (v Validator) Check(event *domain.Event) *Reason {
	if event.OptOut {
		return reasonf(ReasonTrackingDisabled, "tracking explicitly disabled")
	}

	if reason := checkRequiredFields(event); reason != nil {
		return reason
	}

	if event.RawSize > v.cfg.MaxEventSize {
		return reasonf(ReasonEventTooLarge, "event is %d bytes (max: %d)", event.RawSize, v.cfg.MaxEventSize)
	}

	href, err := parseHref(event.Href)
	if err != nil {
		return reasonf(ReasonInvalidURL, "invalid URL: %s", event.Href)
	}
	if !v.cfg.AllowFileProtocol && href.Scheme == "file" {
		return reasonf(ReasonFileProtocol, "file:// protocol not allowed")
	}
	if !v.cfg.AllowLocalhost && isLocalhost(href.Hostname()) {
		return reasonf(ReasonLocalhost, "localhost environment not allowed")
	}

	if !v.cfg.AllowIframes && event.IsIframe {
		return reasonf(ReasonIframe, "execution inside an iframe not allowed")
	}

	if v.cfg.BotDetection && IsBot(event.UserAgent) {
		ua := event.UserAgent
		if ua == "" {
			ua = "missing user-agent"
		}
		return reasonf(ReasonBot, "bot detected: %s", ua)
	}

	switch event.Type {
	case domain.EventCustom:
		return v.checkCustomEvent(event)
	case domain.EventIdentify:
		if strings.TrimSpace(event.UserID) == "" {
			return reasonf(ReasonMissingUserID, "user_id required for identify events")
		}
	case domain.EventPayment:
		if event.Email == "" && event.PaymentID == "" {
			return reasonf(ReasonMissingPaymentID, "email or payment_id required for payment events")
		}
	case domain.EventExternalLink:
		if event.LinkURL == "" {
			return reasonf(ReasonMissingField, "missing required field for external_link: linkUrl")
		}
	case domain.EventPageview:
		// no further checks
	}
	return nil
}

// checkRequiredFields enforces the base envelope fields in a fixed order
// so the reported field is deterministic when several are missing.
func checkRequiredFields(event *domain.Event) *Reason {
	fields := []struct {
		name  string
		value string
	}{
		{"websiteId", event.WebsiteID},
		{"domain", event.Domain},
		{"type", string(event.Type)},
		{"href", event.Href},
		{"visitorId", event.VisitorID},
		{"sessionId", event.SessionID},
	}
	for _, field := range fields {
		if field.value == "" {
			return reasonf(ReasonMissingField, "missing required field: %s", field.name)
		}
	}
	return nil
}

func (v Validator) checkCustomEvent(event *domain.Event) *Reason {
	if strings.TrimSpace(event.EventName) == "" {
		return reasonf(ReasonMissingEventName, "eventName required for custom events")
	}
	if len(event.ExtraData) == 0 {
		return nil
	}

	keys := make([]string, 0, len(event.ExtraData))
	for key := range event.ExtraData {
		if key == "eventName" {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) > v.cfg.MaxCustomParams {
		return reasonf(ReasonTooManyParams, "too many custom parameters: %d (max: %d)", len(keys), v.cfg.MaxCustomParams)
	}

	sort.Strings(keys)
	for _, key := range keys {
		if len(key) > v.cfg.MaxParamNameLength {
			return reasonf(ReasonParamNameTooLong, "parameter name too long: %s (max: %d)", key, v.cfg.MaxParamNameLength)
		}
		if !paramNamePattern.MatchString(key) {
			return reasonf(ReasonInvalidParamName, "invalid parameter name: %s (letters, digits, underscore and hyphen only)", key)
		}
		if len(stringify(event.ExtraData[key])) > v.cfg.MaxParamValueLength {
			return reasonf(ReasonParamValueTooLong, "parameter value too long for %s (max: %d)", key, v.cfg.MaxParamValueLength)
		}
	}
	return nil
}

// SanitizeCustomData cleans custom-event extra data before storage. Keys
// lose angle brackets, quotes and backticks and are truncated; string
// values lose angle brackets and are truncated; numbers and booleans pass
// through; anything else is dropped.
func (v Validator) SanitizeCustomData(data map[string]any) map[string]any {
	sanitized := make(map[string]any, len(data))
	for key, value := range data {
		cleanKey := truncate(stripChars(key, `<>"'`+"`"), v.cfg.MaxParamNameLength)
		switch typed := value.(type) {
		case string:
			sanitized[cleanKey] = truncate(stripChars(typed, "<>"), v.cfg.MaxParamValueLength)
		case float64, int, int64, bool:
			sanitized[cleanKey] = typed
		}
	}
	return sanitized
}

func stripChars(s, cutset string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(cutset, r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

// parseHref parses the page URL, rejecting values the browser URL
// constructor would reject (no scheme, or no host outside file URLs).
func parseHref(href string) (*url.URL, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("missing scheme in %q", href)
	}
	if parsed.Host == "" && parsed.Scheme != "file" {
		return nil, fmt.Errorf("missing host in %q", href)
	}
	return parsed, nil
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// ExtractPath returns path plus query for a page URL, preserving the query
// to distinguish pages and dropping the fragment. Unparsable URLs fall
// back to the raw href.
func ExtractPath(href string) string {
	parsed, err := parseHref(href)
	if err != nil {
		return href
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return path
}
