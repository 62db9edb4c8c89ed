package throttle

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

// stubThrottleRepository mimics the guarded-insert semantics of the
// Postgres store: the first record for a key inside the window wins.
type stubThrottleRepository struct {
	pageviews map[string]int64
	payments  map[string]struct{}
}

func newStubThrottleRepository() *stubThrottleRepository {
	return &stubThrottleRepository{
		pageviews: make(map[string]int64),
		payments:  make(map[string]struct{}),
	}
}

func (s *stubThrottleRepository) RecordPageviewIfIdle(ctx context.Context, visitorID, path string, ts, windowStart int64) (bool, error) {
	key := visitorID + "|" + path
	if last, ok := s.pageviews[key]; ok && last >= windowStart {
		return false, nil
	}
	s.pageviews[key] = ts
	return true, nil
}

func (s *stubThrottleRepository) RecordPaymentKey(ctx context.Context, sessionID, paymentKey string, ts int64) (bool, error) {
	key := sessionID + "|" + paymentKey
	if _, ok := s.payments[key]; ok {
		return false, nil
	}
	s.payments[key] = struct{}{}
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPageviewSeenThrottlesInsideWindow(t *testing.T) {
	svc := New(newStubThrottleRepository(), discardLogger(), time.Minute)
	now := time.Unix(1_700_000_000, 0)

	seen, err := svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/pricing", now)
	if err != nil || seen {
		t.Fatalf("first pageview should pass, got seen=%v err=%v", seen, err)
	}

	seen, err = svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/pricing", now.Add(30*time.Second))
	if err != nil || !seen {
		t.Fatalf("repeat inside window should throttle, got seen=%v err=%v", seen, err)
	}

	seen, err = svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/pricing", now.Add(2*time.Minute))
	if err != nil || seen {
		t.Fatalf("repeat after window should pass, got seen=%v err=%v", seen, err)
	}
}

func TestPageviewSeenDistinguishesPathAndVisitor(t *testing.T) {
	svc := New(newStubThrottleRepository(), discardLogger(), time.Minute)
	now := time.Unix(1_700_000_000, 0)

	if seen, _ := svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/a", now); seen {
		t.Fatal("first pageview on /a should pass")
	}
	if seen, _ := svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/b", now); seen {
		t.Fatal("different path should not be throttled")
	}
	if seen, _ := svc.PageviewSeen(context.Background(), "visitor-2", "https://example.com/a", now); seen {
		t.Fatal("different visitor should not be throttled")
	}
	if seen, _ := svc.PageviewSeen(context.Background(), "visitor-1", "https://example.com/a?tab=2", now); seen {
		t.Fatal("different query string should not be throttled")
	}
}

func TestPageviewSeenUnparsableURL(t *testing.T) {
	svc := New(newStubThrottleRepository(), discardLogger(), time.Minute)
	seen, err := svc.PageviewSeen(context.Background(), "visitor-1", "not a url", time.Now())
	if err != nil || seen {
		t.Fatalf("unparsable URL should never throttle, got seen=%v err=%v", seen, err)
	}
}

func TestPaymentDuplicate(t *testing.T) {
	svc := New(newStubThrottleRepository(), discardLogger(), time.Minute)
	now := time.Now()

	dup, err := svc.PaymentDuplicate(context.Background(), "session-1", "pay_123", "", now)
	if err != nil || dup {
		t.Fatalf("first payment should not be duplicate, got dup=%v err=%v", dup, err)
	}
	dup, err = svc.PaymentDuplicate(context.Background(), "session-1", "pay_123", "", now)
	if err != nil || !dup {
		t.Fatalf("repeated payment ID should be duplicate, got dup=%v err=%v", dup, err)
	}

	dup, err = svc.PaymentDuplicate(context.Background(), "session-2", "pay_123", "", now)
	if err != nil || dup {
		t.Fatalf("same payment in another session should not be duplicate, got dup=%v err=%v", dup, err)
	}

	dup, err = svc.PaymentDuplicate(context.Background(), "session-1", "", "buyer@example.com", now)
	if err != nil || dup {
		t.Fatalf("first email-keyed payment should not be duplicate, got dup=%v err=%v", dup, err)
	}
	dup, err = svc.PaymentDuplicate(context.Background(), "session-1", "", "buyer@example.com", now)
	if err != nil || !dup {
		t.Fatalf("repeated email-keyed payment should be duplicate, got dup=%v err=%v", dup, err)
	}

	dup, err = svc.PaymentDuplicate(context.Background(), "session-1", "", "", now)
	if err != nil || dup {
		t.Fatalf("payment without identifiers should never be duplicate, got dup=%v err=%v", dup, err)
	}
}

func TestDedupKeyPrefersPaymentID(t *testing.T) {
	if key := DedupKey("pay_1", "buyer@example.com"); key != "pay_1" {
		t.Fatalf("unexpected key %q", key)
	}
	if key := DedupKey("", "buyer@example.com"); key != "email:buyer@example.com" {
		t.Fatalf("unexpected key %q", key)
	}
	if key := DedupKey("", ""); key != "" {
		t.Fatalf("unexpected key %q", key)
	}
}
