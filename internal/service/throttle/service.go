package throttle

import (
	"context"
	"net/url"
	"time"

	"log/slog"

	"github.com/enzo-mourany/steroid-analytics/internal/repository"
	"github.com/enzo-mourany/steroid-analytics/internal/service/admission"
)

// Service applies pageview throttling and payment deduplication on top of
// the persistent throttle store.
type Service struct {
	repo   repository.ThrottleRepository
	logger *slog.Logger
	window time.Duration
}

// New constructs a throttle service with the given pageview window.
func New(repo repository.ThrottleRepository, logger *slog.Logger, window time.Duration) Service {
	if window <= 0 {
		window = 60 * time.Second
	}
	return Service{repo: repo, logger: logger, window: window}
}

// PageviewSeen records a pageview for (visitor, path) and reports whether
// an earlier one inside the trailing window already exists. The check and
// the record are a single guarded insert, so concurrent submissions of the
// same pageview collapse to one accepted event. An unparsable URL never
// throttles.
func (s Service) PageviewSeen(ctx context.Context, visitorID, href string, now time.Time) (bool, error) {
	parsed, err := url.Parse(href)
	if err != nil || parsed.Hostname() == "" {
		return false, nil
	}
	path := admission.ExtractPath(href)
	ts := now.Unix()
	windowStart := ts - int64(s.window/time.Second)
	recorded, err := s.repo.RecordPageviewIfIdle(ctx, visitorID, path, ts, windowStart)
	if err != nil {
		return false, err
	}
	return !recorded, nil
}

// PaymentDuplicate records the payment key for the session and reports
// whether it was already present. The key is the payment ID when given,
// otherwise derived from the email. With neither identifier there is
// nothing to dedupe against.
func (s Service) PaymentDuplicate(ctx context.Context, sessionID, paymentID, email string, now time.Time) (bool, error) {
	key := DedupKey(paymentID, email)
	if key == "" {
		return false, nil
	}
	recorded, err := s.repo.RecordPaymentKey(ctx, sessionID, key, now.Unix())
	if err != nil {
		return false, err
	}
	return !recorded, nil
}

// DedupKey derives the payment dedup key: the payment ID when present,
// else a deterministic key from the email.
func DedupKey(paymentID, email string) string {
	if paymentID != "" {
		return paymentID
	}
	if email != "" {
		return "email:" + email
	}
	return ""
}
