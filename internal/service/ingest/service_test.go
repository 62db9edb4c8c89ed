package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
	"github.com/enzo-mourany/steroid-analytics/internal/service/admission"
)

type stubEventRepository struct {
	inserted  []*domain.StoredEvent
	insertErr error
	nextID    int64
}

func (s *stubEventRepository) InsertEvent(ctx context.Context, event *domain.StoredEvent) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.nextID++
	s.inserted = append(s.inserted, event)
	return s.nextID, nil
}

func (s *stubEventRepository) ListEvents(ctx context.Context, filter repository.EventFilter) ([]domain.StoredEvent, int, error) {
	return nil, 0, nil
}
func (s *stubEventRepository) CountPageviews(ctx context.Context, websiteID string, start, end int64) (int, error) {
	return 0, nil
}
func (s *stubEventRepository) CountDistinctVisitors(ctx context.Context, websiteID string, start, end int64) (int, error) {
	return 0, nil
}
func (s *stubEventRepository) CountDistinctSessions(ctx context.Context, websiteID string, start, end int64) (int, error) {
	return 0, nil
}
func (s *stubEventRepository) TopPages(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.PathCount, error) {
	return nil, nil
}
func (s *stubEventRepository) TopReferrers(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.ReferrerCount, error) {
	return nil, nil
}
func (s *stubEventRepository) ListCustomEventData(ctx context.Context, websiteID string, start, end int64) ([][]byte, error) {
	return nil, nil
}
func (s *stubEventRepository) ListPayments(ctx context.Context, websiteID string, start, end int64) ([]domain.PaymentRow, error) {
	return nil, nil
}
func (s *stubEventRepository) CountActive(ctx context.Context, websiteID string, since int64) (int, int, error) {
	return 0, 0, nil
}

type stubAuthorizer struct {
	allow bool
	err   error
}

func (s stubAuthorizer) Authorize(ctx context.Context, websiteID, href string) (bool, error) {
	return s.allow, s.err
}

type stubThrottler struct {
	pageviewSeen bool
	paymentDup   bool
	err          error
}

func (s stubThrottler) PageviewSeen(ctx context.Context, visitorID, href string, now time.Time) (bool, error) {
	return s.pageviewSeen, s.err
}

func (s stubThrottler) PaymentDuplicate(ctx context.Context, sessionID, paymentID, email string, now time.Time) (bool, error) {
	return s.paymentDup, s.err
}

func newTestService(repo *stubEventRepository, auth Authorizer, throttle Throttler) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(repo, admission.NewValidator(admission.DefaultConfig()), auth, throttle, nil, log)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

const browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func pageviewEvent() *domain.Event {
	return &domain.Event{
		WebsiteID: "site-1",
		Domain:    "example.com",
		Type:      domain.EventPageview,
		Href:      "https://example.com/pricing?tab=2",
		VisitorID: "visitor-1",
		SessionID: "session-1",
		UserAgent: browserUA,
		RawSize:   512,
	}
}

func TestProcessAcceptsPageview(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{})

	outcome, err := svc.Process(context.Background(), pageviewEvent())
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if outcome.Ignored || outcome.EventID == 0 || outcome.RequestID == "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected exactly one stored row, got %d", len(repo.inserted))
	}

	record := repo.inserted[0]
	if !record.Stored || record.IgnoreReason != "" {
		t.Fatalf("accepted event should be stored without reason: %+v", record)
	}
	if record.Path != "/pricing?tab=2" {
		t.Fatalf("unexpected path %q", record.Path)
	}
	if record.EventTimestamp != record.ReceivedTimestamp {
		t.Fatalf("missing client timestamp should fall back to received, got %d vs %d", record.EventTimestamp, record.ReceivedTimestamp)
	}
}

func TestProcessSuppressedEventStillWritesRow(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{})

	event := pageviewEvent()
	event.UserAgent = "curl/8.0.1"
	outcome, err := svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !outcome.Ignored {
		t.Fatalf("expected suppression, got %+v", outcome)
	}
	if !strings.HasPrefix(outcome.IgnoreReason, admission.ReasonBot+": ") {
		t.Fatalf("unexpected ignore reason %q", outcome.IgnoreReason)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected exactly one stored row, got %d", len(repo.inserted))
	}
	record := repo.inserted[0]
	if record.Stored || record.IgnoreReason != outcome.IgnoreReason {
		t.Fatalf("suppressed row should carry stored=false and the reason: %+v", record)
	}
}

func TestProcessUnauthorizedDomain(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: false}, stubThrottler{})

	outcome, err := svc.Process(context.Background(), pageviewEvent())
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !outcome.Ignored || !strings.HasPrefix(outcome.IgnoreReason, admission.ReasonDomainNotAuthorized) {
		t.Fatalf("expected domain rejection, got %+v", outcome)
	}
}

func TestProcessThrottledPageview(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{pageviewSeen: true})

	outcome, err := svc.Process(context.Background(), pageviewEvent())
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !outcome.Ignored || !strings.HasPrefix(outcome.IgnoreReason, admission.ReasonThrottled) {
		t.Fatalf("expected throttle, got %+v", outcome)
	}
	if len(repo.inserted) != 1 || repo.inserted[0].Stored {
		t.Fatalf("throttled pageview should be recorded as suppressed")
	}
}

func TestProcessDuplicatePayment(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{paymentDup: true})

	event := pageviewEvent()
	event.Type = domain.EventPayment
	event.PaymentID = "pay_123"
	outcome, err := svc.Process(context.Background(), event)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if !outcome.Ignored || !strings.HasPrefix(outcome.IgnoreReason, admission.ReasonDuplicatePayment) {
		t.Fatalf("expected duplicate payment suppression, got %+v", outcome)
	}
}

func TestProcessCustomEventFoldsAndSanitizes(t *testing.T) {
	repo := &stubEventRepository{}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{})

	event := pageviewEvent()
	event.Type = domain.EventCustom
	event.EventName = "signup"
	event.ExtraData = map[string]any{"plan": "<pro>"}
	outcome, err := svc.Process(context.Background(), event)
	if err != nil || outcome.Ignored {
		t.Fatalf("expected custom event to be accepted, got %+v err=%v", outcome, err)
	}

	blob := string(repo.inserted[0].ExtraData)
	if !strings.Contains(blob, `"eventName":"signup"`) {
		t.Fatalf("expected eventName folded into extra data, got %s", blob)
	}
	if !strings.Contains(blob, `"plan":"pro"`) {
		t.Fatalf("expected sanitized parameter value, got %s", blob)
	}
}

func TestProcessStorageFault(t *testing.T) {
	repo := &stubEventRepository{insertErr: errors.New("connection refused")}
	svc := newTestService(repo, stubAuthorizer{allow: true}, stubThrottler{})

	outcome, err := svc.Process(context.Background(), pageviewEvent())
	if err == nil {
		t.Fatal("expected storage fault to surface as an error")
	}
	if outcome.RequestID == "" {
		t.Fatal("request ID should be set even on failure")
	}
}
