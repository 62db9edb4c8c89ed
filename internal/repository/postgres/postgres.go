package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.EventRepository    = (*Repository)(nil)
	_ repository.SiteRepository     = (*Repository)(nil)
	_ repository.ThrottleRepository = (*Repository)(nil)
)

const eventColumns = `id, website_id, domain, type, href, path, referrer, viewport,
	visitor_id, session_id, ad_click_ids, extra_data, user_agent, ip,
	event_timestamp, received_timestamp, stored, ignore_reason, request_id`

// InsertEvent appends an admission decision to the event log and returns
// the assigned sequence identifier.
func (r *Repository) InsertEvent(ctx context.Context, event *domain.StoredEvent) (int64, error) {
	const query = `INSERT INTO events (
			website_id, domain, type, href, path, referrer, viewport,
			visitor_id, session_id, ad_click_ids, extra_data, user_agent, ip,
			event_timestamp, received_timestamp, stored, ignore_reason, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id`
	row := r.pool.QueryRow(ctx, query,
		event.WebsiteID, event.Domain, string(event.Type), event.Href, event.Path,
		event.Referrer, nullableJSON(event.Viewport), event.VisitorID, event.SessionID,
		nullableJSON(event.AdClickIDs), nullableJSON(event.ExtraData), event.UserAgent,
		event.IP, event.EventTimestamp, event.ReceivedTimestamp, event.Stored,
		event.IgnoreReason, event.RequestID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// ListEvents returns filtered events ordered by event timestamp descending,
// plus the total match count for pagination.
func (r *Repository) ListEvents(ctx context.Context, filter repository.EventFilter) ([]domain.StoredEvent, int, error) {
	conditions := make([]string, 0, 7)
	args := make([]any, 0, 9)
	add := func(cond string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.WebsiteID != "" {
		add("website_id = $%d", filter.WebsiteID)
	}
	if filter.Start > 0 {
		add("event_timestamp >= $%d", filter.Start)
	}
	if filter.End > 0 {
		add("event_timestamp <= $%d", filter.End)
	}
	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.Path != "" {
		add("path LIKE $%d", "%"+filter.Path+"%")
	}
	if filter.VisitorID != "" {
		add("visitor_id = $%d", filter.VisitorID)
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM events %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	selectQuery := fmt.Sprintf(`SELECT %s FROM events %s
		ORDER BY event_timestamp DESC
		LIMIT $%d OFFSET $%d`, eventColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, selectQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := make([]domain.StoredEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	return events, total, rows.Err()
}

// CountPageviews counts stored pageviews in the range.
func (r *Repository) CountPageviews(ctx context.Context, websiteID string, start, end int64) (int, error) {
	const query = `SELECT COUNT(*) FROM events
		WHERE website_id = $1 AND type = 'pageview' AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, websiteID, start, end).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountDistinctVisitors counts distinct visitor IDs across stored events.
func (r *Repository) CountDistinctVisitors(ctx context.Context, websiteID string, start, end int64) (int, error) {
	const query = `SELECT COUNT(DISTINCT visitor_id) FROM events
		WHERE website_id = $1 AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, websiteID, start, end).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountDistinctSessions counts distinct session IDs across stored events.
func (r *Repository) CountDistinctSessions(ctx context.Context, websiteID string, start, end int64) (int, error) {
	const query = `SELECT COUNT(DISTINCT session_id) FROM events
		WHERE website_id = $1 AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3`
	var count int
	if err := r.pool.QueryRow(ctx, query, websiteID, start, end).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TopPages returns the most viewed paths in the range.
func (r *Repository) TopPages(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.PathCount, error) {
	const query = `SELECT path, COUNT(*) AS count FROM events
		WHERE website_id = $1 AND type = 'pageview' AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3
		GROUP BY path ORDER BY count DESC LIMIT $4`
	rows, err := r.pool.Query(ctx, query, websiteID, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pages := make([]domain.PathCount, 0)
	for rows.Next() {
		var page domain.PathCount
		if err := rows.Scan(&page.Path, &page.Count); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// TopReferrers returns the most frequent non-empty referrers in the range.
func (r *Repository) TopReferrers(ctx context.Context, websiteID string, start, end int64, limit int) ([]domain.ReferrerCount, error) {
	const query = `SELECT referrer, COUNT(*) AS count FROM events
		WHERE website_id = $1 AND stored AND referrer <> ''
		AND event_timestamp >= $2 AND event_timestamp <= $3
		GROUP BY referrer ORDER BY count DESC LIMIT $4`
	rows, err := r.pool.Query(ctx, query, websiteID, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	referrers := make([]domain.ReferrerCount, 0)
	for rows.Next() {
		var ref domain.ReferrerCount
		if err := rows.Scan(&ref.Referrer, &ref.Count); err != nil {
			return nil, err
		}
		referrers = append(referrers, ref)
	}
	return referrers, rows.Err()
}

// ListCustomEventData returns the extra-data blobs of stored custom events
// in the range. Event names are parsed by the caller.
func (r *Repository) ListCustomEventData(ctx context.Context, websiteID string, start, end int64) ([][]byte, error) {
	const query = `SELECT extra_data FROM events
		WHERE website_id = $1 AND type = 'custom' AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3
		AND extra_data IS NOT NULL`
	rows, err := r.pool.Query(ctx, query, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := make([][]byte, 0)
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

// ListPayments returns stored payment events in the range, newest first.
func (r *Repository) ListPayments(ctx context.Context, websiteID string, start, end int64) ([]domain.PaymentRow, error) {
	const query = `SELECT id, extra_data, event_timestamp FROM events
		WHERE website_id = $1 AND type = 'payment' AND stored
		AND event_timestamp >= $2 AND event_timestamp <= $3
		ORDER BY event_timestamp DESC`
	rows, err := r.pool.Query(ctx, query, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.PaymentRow, 0)
	for rows.Next() {
		var payment domain.PaymentRow
		if err := rows.Scan(&payment.ID, &payment.ExtraData, &payment.EventTimestamp); err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// CountActive counts distinct sessions and visitors with stored events
// since the given timestamp.
func (r *Repository) CountActive(ctx context.Context, websiteID string, since int64) (int, int, error) {
	const query = `SELECT COUNT(DISTINCT session_id), COUNT(DISTINCT visitor_id) FROM events
		WHERE website_id = $1 AND stored AND event_timestamp >= $2`
	var sessions, visitors int
	if err := r.pool.QueryRow(ctx, query, websiteID, since).Scan(&sessions, &visitors); err != nil {
		return 0, 0, err
	}
	return sessions, visitors, nil
}

// UpsertSite registers or replaces a site registration.
func (r *Repository) UpsertSite(ctx context.Context, site *domain.Site) error {
	const query = `INSERT INTO sites (website_id, domain, allowed_hosts, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (website_id) DO UPDATE SET domain = EXCLUDED.domain, allowed_hosts = EXCLUDED.allowed_hosts`
	_, err := r.pool.Exec(ctx, query, site.WebsiteID, site.Domain, site.AllowedHosts, site.CreatedAt)
	return err
}

// GetSiteByWebsiteID fetches a site registration.
func (r *Repository) GetSiteByWebsiteID(ctx context.Context, websiteID string) (*domain.Site, error) {
	const query = `SELECT website_id, domain, allowed_hosts, created_at FROM sites WHERE website_id = $1`
	row := r.pool.QueryRow(ctx, query, websiteID)
	var site domain.Site
	if err := row.Scan(&site.WebsiteID, &site.Domain, &site.AllowedHosts, &site.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &site, nil
}

// ListSites returns all registered sites.
func (r *Repository) ListSites(ctx context.Context) ([]domain.Site, error) {
	const query = `SELECT website_id, domain, allowed_hosts, created_at FROM sites ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := make([]domain.Site, 0)
	for rows.Next() {
		var site domain.Site
		if err := rows.Scan(&site.WebsiteID, &site.Domain, &site.AllowedHosts, &site.CreatedAt); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// RecordPageviewIfIdle performs the throttle check and record as a single
// guarded insert. The window check and the unique (visitor, path, ts) key
// together make concurrent submissions collapse to one recorded pageview.
func (r *Repository) RecordPageviewIfIdle(ctx context.Context, visitorID, path string, ts, windowStart int64) (bool, error) {
	const query = `INSERT INTO pageview_throttle (visitor_id, path, ts)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (
			SELECT 1 FROM pageview_throttle
			WHERE visitor_id = $1 AND path = $2 AND ts >= $4
		)
		ON CONFLICT (visitor_id, path, ts) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, visitorID, path, ts, windowStart)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPaymentKey inserts a payment dedup record; a conflict on the
// unique (session, payment key) pair signals a duplicate.
func (r *Repository) RecordPaymentKey(ctx context.Context, sessionID, paymentKey string, ts int64) (bool, error) {
	const query = `INSERT INTO payment_dedup (session_id, payment_id, ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, payment_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, sessionID, paymentKey, ts)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type pgxRow interface {
	Scan(dest ...any) error
}

func scanEvent(row pgxRow) (domain.StoredEvent, error) {
	var (
		event     domain.StoredEvent
		eventType string
	)
	err := row.Scan(&event.ID, &event.WebsiteID, &event.Domain, &eventType,
		&event.Href, &event.Path, &event.Referrer, &event.Viewport,
		&event.VisitorID, &event.SessionID, &event.AdClickIDs, &event.ExtraData,
		&event.UserAgent, &event.IP, &event.EventTimestamp, &event.ReceivedTimestamp,
		&event.Stored, &event.IgnoreReason, &event.RequestID)
	if err != nil {
		return domain.StoredEvent{}, err
	}
	event.Type = domain.EventType(eventType)
	return event, nil
}

func nullableJSON(blob []byte) any {
	if len(blob) == 0 {
		return nil
	}
	return blob
}
