package repository

import (
	"context"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
)

// EventFilter bounds event listing queries. Zero values mean "no filter";
// Start/End are unix seconds on the event timestamp.
type EventFilter struct {
	WebsiteID string
	Start     int64
	End       int64
	Type      string
	Path      string
	VisitorID string
	SessionID string
	Limit     int
	Offset    int
}

// EventRepository is the append-only event sink plus its read side.
type EventRepository interface {
	InsertEvent(ctx context.Context, event *domain.StoredEvent) (int64, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]domain.StoredEvent, int, error)
	CountPageviews(ctx context.Context, websiteID string, start, end int64) (int, error)
	CountDistinctVisitors(ctx context.Context, websiteID string, start, end int64) (int, error)
	CountDistinctSessions(ctx context.Context, websiteID string, start, end int64) (int, error)
	TopPages(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.PathCount, error)
	TopReferrers(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.ReferrerCount, error)
	ListCustomEventData(ctx context.Context, websiteID string, start, end int64) ([][]byte, error)
	ListPayments(ctx context.Context, websiteID string, start, end int64) ([]domain.PaymentRow, error)
	CountActive(ctx context.Context, websiteID string, since int64) (sessions, visitors int, err error)
}

// SiteRepository manages site registrations. Registrations are read-only
// from the pipeline's perspective; writes happen through admin endpoints.
type SiteRepository interface {
	UpsertSite(ctx context.Context, site *domain.Site) error
	GetSiteByWebsiteID(ctx context.Context, websiteID string) (*domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
}

// ThrottleRepository holds the pageview throttle and payment dedup state.
// Both operations are atomic insert-if-absent checks; the row-level unique
// constraints, not the caller, are the concurrency-correctness mechanism.
type ThrottleRepository interface {
	// RecordPageviewIfIdle inserts a throttle record unless one already
	// exists for (visitorID, path) at or after windowStart. It reports
	// whether the record was inserted; false means the pageview is
	// throttled.
	RecordPageviewIfIdle(ctx context.Context, visitorID, path string, ts, windowStart int64) (bool, error)
	// RecordPaymentKey inserts a dedup record for (sessionID, paymentKey).
	// It reports whether the record was inserted; false means the payment
	// is a duplicate.
	RecordPaymentKey(ctx context.Context, sessionID, paymentKey string, ts int64) (bool, error)
}
