package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"log/slog"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

const topLimit = 10

// Service answers read and aggregation queries over the event log.
type Service struct {
	repo         repository.EventRepository
	logger       *slog.Logger
	activeWindow time.Duration
}

// New constructs a stats service.
func New(repo repository.EventRepository, logger *slog.Logger, activeWindow time.Duration) Service {
	if activeWindow <= 0 {
		activeWindow = 5 * time.Minute
	}
	return Service{repo: repo, logger: logger, activeWindow: activeWindow}
}

// EventPage is one page of a filtered event listing.
type EventPage struct {
	Events     []EventView `json:"events"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

// EventView is the wire form of a stored event.
type EventView struct {
	ID                int64           `json:"id"`
	WebsiteID         string          `json:"websiteId"`
	Domain            string          `json:"domain"`
	Type              string          `json:"type"`
	Href              string          `json:"href"`
	Path              string          `json:"path"`
	Referrer          string          `json:"referrer,omitempty"`
	Viewport          json.RawMessage `json:"viewport,omitempty"`
	VisitorID         string          `json:"visitorId"`
	SessionID         string          `json:"sessionId"`
	AdClickIDs        json.RawMessage `json:"adClickIds,omitempty"`
	ExtraData         json.RawMessage `json:"extraData,omitempty"`
	UserAgent         string          `json:"userAgent,omitempty"`
	IP                string          `json:"ip,omitempty"`
	EventTimestamp    int64           `json:"eventTimestamp"`
	ReceivedTimestamp int64           `json:"receivedTimestamp"`
	Stored            bool            `json:"stored"`
	IgnoreReason      string          `json:"ignoreReason,omitempty"`
	RequestID         string          `json:"requestId"`
}

// Events lists events matching the filter with page/limit pagination.
func (s Service) Events(ctx context.Context, filter repository.EventFilter, page, limit int) (*EventPage, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit

	events, total, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]EventView, 0, len(events))
	for _, event := range events {
		views = append(views, toView(event))
	}
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return &EventPage{Events: views, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

// Summary aggregates stored events for a website over a time range.
func (s Service) Summary(ctx context.Context, websiteID string, start, end int64) (*domain.StatsSummary, error) {
	pageviews, err := s.repo.CountPageviews(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	visitors, err := s.repo.CountDistinctVisitors(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.CountDistinctSessions(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	topPages, err := s.repo.TopPages(ctx, websiteID, start, end, topLimit)
	if err != nil {
		return nil, err
	}
	topReferrers, err := s.repo.TopReferrers(ctx, websiteID, start, end, topLimit)
	if err != nil {
		return nil, err
	}
	topCustom, err := s.topCustomEvents(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	conversions, err := s.conversions(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}

	return &domain.StatsSummary{
		WebsiteID:       websiteID,
		StartDate:       time.Unix(start, 0).UTC().Format(time.RFC3339),
		EndDate:         time.Unix(end, 0).UTC().Format(time.RFC3339),
		Pageviews:       pageviews,
		UniqueVisitors:  visitors,
		UniqueSessions:  sessions,
		TopPages:        topPages,
		TopReferrers:    topReferrers,
		TopCustomEvents: topCustom,
		Conversions:     *conversions,
	}, nil
}

// Active counts distinct sessions and visitors in the trailing window.
func (s Service) Active(ctx context.Context, websiteID string, window time.Duration) (*domain.ActiveStats, error) {
	if window <= 0 {
		window = s.activeWindow
	}
	since := time.Now().Add(-window).Unix()
	sessions, visitors, err := s.repo.CountActive(ctx, websiteID, since)
	if err != nil {
		return nil, err
	}
	return &domain.ActiveStats{
		WebsiteID:      websiteID,
		WindowMinutes:  int(window / time.Minute),
		ActiveSessions: sessions,
		ActiveVisitors: visitors,
	}, nil
}

// topCustomEvents counts event names parsed out of the stored extra-data
// documents, keeping the ten most frequent.
func (s Service) topCustomEvents(ctx context.Context, websiteID string, start, end int64) ([]domain.EventNameCount, error) {
	blobs, err := s.repo.ListCustomEventData(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, blob := range blobs {
		var extra struct {
			EventName string `json:"eventName"`
		}
		if err := json.Unmarshal(blob, &extra); err != nil {
			continue
		}
		if extra.EventName != "" {
			counts[extra.EventName]++
		}
	}
	top := make([]domain.EventNameCount, 0, len(counts))
	for name, count := range counts {
		top = append(top, domain.EventNameCount{EventName: name, Count: count})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].EventName < top[j].EventName
	})
	if len(top) > topLimit {
		top = top[:topLimit]
	}
	return top, nil
}

func (s Service) conversions(ctx context.Context, websiteID string, start, end int64) (*domain.Conversions, error) {
	rows, err := s.repo.ListPayments(ctx, websiteID, start, end)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payment := domain.Payment{ID: row.ID, Timestamp: row.EventTimestamp}
		if len(row.ExtraData) > 0 {
			var extra struct {
				Email     string   `json:"email"`
				PaymentID string   `json:"payment_id"`
				Amount    *float64 `json:"amount"`
				Currency  string   `json:"currency"`
			}
			if err := json.Unmarshal(row.ExtraData, &extra); err == nil {
				payment.Email = extra.Email
				payment.PaymentID = extra.PaymentID
				payment.Amount = extra.Amount
				payment.Currency = extra.Currency
			}
		}
		payments = append(payments, payment)
	}
	return &domain.Conversions{Count: len(payments), Payments: payments}, nil
}

func toView(event domain.StoredEvent) EventView {
	return EventView{
		ID:                event.ID,
		WebsiteID:         event.WebsiteID,
		Domain:            event.Domain,
		Type:              string(event.Type),
		Href:              event.Href,
		Path:              event.Path,
		Referrer:          event.Referrer,
		Viewport:          rawOrNil(event.Viewport),
		VisitorID:         event.VisitorID,
		SessionID:         event.SessionID,
		AdClickIDs:        rawOrNil(event.AdClickIDs),
		ExtraData:         rawOrNil(event.ExtraData),
		UserAgent:         event.UserAgent,
		IP:                event.IP,
		EventTimestamp:    event.EventTimestamp,
		ReceivedTimestamp: event.ReceivedTimestamp,
		Stored:            event.Stored,
		IgnoreReason:      event.IgnoreReason,
		RequestID:         event.RequestID,
	}
}

func rawOrNil(blob []byte) json.RawMessage {
	if len(blob) == 0 {
		return nil
	}
	return json.RawMessage(blob)
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

// ParseDate accepts unix seconds, unix milliseconds or RFC3339 timestamps
// and returns unix seconds.
func ParseDate(value string) (int64, error) {
	if digitsOnly.MatchString(value) {
		ts, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}
		if ts > 10_000_000_000 {
			ts /= 1000
		}
		return ts, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.Unix(), nil
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.Unix(), nil
	}
	return 0, fmt.Errorf("unrecognized date %q", value)
}
