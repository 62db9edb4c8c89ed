package admission

import (
	"strings"
	"testing"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
)

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func validPageview() *domain.Event {
	return &domain.Event{
		WebsiteID: "site-1",
		Domain:    "example.com",
		Type:      domain.EventPageview,
		Href:      "https://example.com/pricing",
		VisitorID: "visitor-1",
		SessionID: "session-1",
		UserAgent: browserUA,
		RawSize:   512,
	}
}

func TestCheckAcceptsValidPageview(t *testing.T) {
	v := NewValidator(DefaultConfig())
	if reason := v.Check(validPageview()); reason != nil {
		t.Fatalf("expected pageview to pass, got %v", reason)
	}
}

func TestCheckOptOutWinsOverEverything(t *testing.T) {
	v := NewValidator(DefaultConfig())
	event := &domain.Event{OptOut: true}
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonTrackingDisabled {
		t.Fatalf("expected %s, got %v", ReasonTrackingDisabled, reason)
	}
}

func TestCheckRequiredFieldOrder(t *testing.T) {
	v := NewValidator(DefaultConfig())

	event := validPageview()
	event.VisitorID = ""
	event.SessionID = ""
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonMissingField {
		t.Fatalf("expected %s, got %v", ReasonMissingField, reason)
	}
	if !strings.Contains(reason.Message, "visitorId") {
		t.Fatalf("expected visitorId to be reported before sessionId, got %q", reason.Message)
	}
}

func TestCheckEventTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEventSize = 100
	v := NewValidator(cfg)

	event := validPageview()
	event.RawSize = 101
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonEventTooLarge {
		t.Fatalf("expected %s, got %v", ReasonEventTooLarge, reason)
	}
}

func TestCheckInvalidURL(t *testing.T) {
	v := NewValidator(DefaultConfig())
	event := validPageview()
	event.Href = "not a url"
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonInvalidURL {
		t.Fatalf("expected %s, got %v", ReasonInvalidURL, reason)
	}
}

func TestCheckFileProtocol(t *testing.T) {
	v := NewValidator(DefaultConfig())
	event := validPageview()
	event.Href = "file:///home/user/index.html"
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonFileProtocol {
		t.Fatalf("expected %s, got %v", ReasonFileProtocol, reason)
	}

	cfg := DefaultConfig()
	cfg.AllowFileProtocol = true
	if reason := NewValidator(cfg).Check(event); reason != nil {
		t.Fatalf("expected file URL to pass with AllowFileProtocol, got %v", reason)
	}
}

func TestCheckLocalhost(t *testing.T) {
	v := NewValidator(DefaultConfig())
	for _, href := range []string{
		"http://localhost:3000/",
		"http://127.0.0.1/index",
		"http://[::1]:8080/",
	} {
		event := validPageview()
		event.Href = href
		reason := v.Check(event)
		if reason == nil || reason.Code != ReasonLocalhost {
			t.Fatalf("expected %s for %s, got %v", ReasonLocalhost, href, reason)
		}
	}

	cfg := DefaultConfig()
	cfg.AllowLocalhost = true
	event := validPageview()
	event.Href = "http://localhost:3000/"
	if reason := NewValidator(cfg).Check(event); reason != nil {
		t.Fatalf("expected localhost to pass with AllowLocalhost, got %v", reason)
	}
}

func TestCheckIframe(t *testing.T) {
	v := NewValidator(DefaultConfig())
	event := validPageview()
	event.IsIframe = true
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonIframe {
		t.Fatalf("expected %s, got %v", ReasonIframe, reason)
	}
}

func TestCheckBotDetection(t *testing.T) {
	v := NewValidator(DefaultConfig())
	event := validPageview()
	event.UserAgent = "curl/8.0.1"
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonBot {
		t.Fatalf("expected %s, got %v", ReasonBot, reason)
	}

	cfg := DefaultConfig()
	cfg.BotDetection = false
	if reason := NewValidator(cfg).Check(event); reason != nil {
		t.Fatalf("expected bot to pass with detection disabled, got %v", reason)
	}
}

func TestCheckCustomEvent(t *testing.T) {
	v := NewValidator(DefaultConfig())

	event := validPageview()
	event.Type = domain.EventCustom
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonMissingEventName {
		t.Fatalf("expected %s, got %v", ReasonMissingEventName, reason)
	}

	event.EventName = "signup"
	event.ExtraData = map[string]any{"plan": "pro", "seats": float64(3)}
	if reason := v.Check(event); reason != nil {
		t.Fatalf("expected custom event to pass, got %v", reason)
	}

	event.ExtraData = map[string]any{"bad name!": "x"}
	reason = v.Check(event)
	if reason == nil || reason.Code != ReasonInvalidParamName {
		t.Fatalf("expected %s, got %v", ReasonInvalidParamName, reason)
	}

	cfg := DefaultConfig()
	cfg.MaxCustomParams = 1
	event.ExtraData = map[string]any{"a": "1", "b": "2"}
	reason = NewValidator(cfg).Check(event)
	if reason == nil || reason.Code != ReasonTooManyParams {
		t.Fatalf("expected %s, got %v", ReasonTooManyParams, reason)
	}

	cfg = DefaultConfig()
	cfg.MaxParamValueLength = 4
	event.ExtraData = map[string]any{"plan": "toolong"}
	reason = NewValidator(cfg).Check(event)
	if reason == nil || reason.Code != ReasonParamValueTooLong {
		t.Fatalf("expected %s, got %v", ReasonParamValueTooLong, reason)
	}
}

func TestCheckIdentifyAndPayment(t *testing.T) {
	v := NewValidator(DefaultConfig())

	event := validPageview()
	event.Type = domain.EventIdentify
	reason := v.Check(event)
	if reason == nil || reason.Code != ReasonMissingUserID {
		t.Fatalf("expected %s, got %v", ReasonMissingUserID, reason)
	}
	event.UserID = "user-1"
	if reason := v.Check(event); reason != nil {
		t.Fatalf("expected identify to pass, got %v", reason)
	}

	event = validPageview()
	event.Type = domain.EventPayment
	reason = v.Check(event)
	if reason == nil || reason.Code != ReasonMissingPaymentID {
		t.Fatalf("expected %s, got %v", ReasonMissingPaymentID, reason)
	}
	event.Email = "buyer@example.com"
	if reason := v.Check(event); reason != nil {
		t.Fatalf("expected payment to pass, got %v", reason)
	}

	event = validPageview()
	event.Type = domain.EventExternalLink
	reason = v.Check(event)
	if reason == nil || reason.Code != ReasonMissingField {
		t.Fatalf("expected %s, got %v", ReasonMissingField, reason)
	}
}

func TestSanitizeCustomData(t *testing.T) {
	v := NewValidator(DefaultConfig())
	out := v.SanitizeCustomData(map[string]any{
		`na<me>"'`: "<script>x</script>",
		"count":    float64(7),
		"ok":       true,
		"dropped":  []string{"nope"},
	})
	if value, ok := out["name"]; !ok || value != "scriptx/script" {
		t.Fatalf("unexpected sanitized string: %v (keys %v)", value, out)
	}
	if out["count"] != float64(7) || out["ok"] != true {
		t.Fatalf("expected numbers and booleans to pass through, got %v", out)
	}
	if _, ok := out["dropped"]; ok {
		t.Fatal("expected non-scalar value to be dropped")
	}
}

func TestReasonString(t *testing.T) {
	reason := reasonf(ReasonThrottled, "pageview throttled")
	if got := reason.String(); got != "THROTTLED: pageview throttled" {
		t.Fatalf("unexpected reason rendering: %q", got)
	}
}

func TestExtractPath(t *testing.T) {
	cases := map[string]string{
		"https://site.com/a/b?x=1#frag": "/a/b?x=1",
		"https://site.com":              "/",
		"https://site.com/":             "/",
		"not a url":                     "not a url",
	}
	for href, want := range cases {
		if got := ExtractPath(href); got != want {
			t.Errorf("ExtractPath(%q) = %q, want %q", href, got, want)
		}
	}
}
