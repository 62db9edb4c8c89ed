package ingest

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
	"github.com/enzo-mourany/steroid-analytics/internal/service/admission"
	"github.com/enzo-mourany/steroid-analytics/internal/ws"
)

// Authorizer decides whether a page URL belongs to a website ID.
type Authorizer interface {
	Authorize(ctx context.Context, websiteID, href string) (bool, error)
}

// Throttler applies pageview throttling and payment deduplication.
type Throttler interface {
	PageviewSeen(ctx context.Context, visitorID, href string, now time.Time) (bool, error)
	PaymentDuplicate(ctx context.Context, sessionID, paymentID, email string, now time.Time) (bool, error)
}

// Outcome is the result of one admission sequence. Ignored outcomes are
// successful from the client's point of view; only storage faults surface
// as errors.
type Outcome struct {
	EventID      int64
	RequestID    string
	Ignored      bool
	IgnoreReason string
}

// Service runs the full admission sequence for inbound events and writes
// every decision, accepted or suppressed, to the event log.
type Service struct {
	events     repository.EventRepository
	validator  admission.Validator
	authorizer Authorizer
	throttle   Throttler
	hub        *ws.Hub
	logger     *slog.Logger
	now        func() time.Time
}

// New constructs an ingest service.
func New(events repository.EventRepository, validator admission.Validator, auth Authorizer, throttle Throttler, hub *ws.Hub, logger *slog.Logger) *Service {
	return &Service{
		events:     events,
		validator:  validator,
		authorizer: auth,
		throttle:   throttle,
		hub:        hub,
		logger:     logger,
		now:        time.Now,
	}
}

// Process validates, filters, deduplicates and stores one event. Checks
// run in a fixed order and short-circuit on the first failure; each call
// writes exactly one event row. The returned error is reserved for
// storage faults.
func (s *Service) Process(ctx context.Context, event *domain.Event) (Outcome, error) {
	requestID := uuid.NewString()
	now := s.now().UTC()
	received := now.Unix()

	if reason := s.validator.Check(event); reason != nil {
		return s.suppress(ctx, event, received, requestID, reason)
	}

	authorized, err := s.authorizer.Authorize(ctx, event.WebsiteID, event.Href)
	if err != nil {
		return Outcome{RequestID: requestID}, err
	}
	if !authorized {
		reason := &admission.Reason{Code: admission.ReasonDomainNotAuthorized, Message: "domain not authorized for this websiteId"}
		return s.suppress(ctx, event, received, requestID, reason)
	}

	if event.Type == domain.EventPageview {
		throttled, err := s.throttle.PageviewSeen(ctx, event.VisitorID, event.Href, now)
		if err != nil {
			return Outcome{RequestID: requestID}, err
		}
		if throttled {
			reason := &admission.Reason{Code: admission.ReasonThrottled, Message: "pageview too recent for this visitor and URL"}
			return s.suppress(ctx, event, received, requestID, reason)
		}
	}

	if event.Type == domain.EventPayment {
		duplicate, err := s.throttle.PaymentDuplicate(ctx, event.SessionID, event.PaymentID, event.Email, now)
		if err != nil {
			return Outcome{RequestID: requestID}, err
		}
		if duplicate {
			reason := &admission.Reason{Code: admission.ReasonDuplicatePayment, Message: "payment already recorded for this session"}
			return s.suppress(ctx, event, received, requestID, reason)
		}
	}

	if event.Type == domain.EventCustom && len(event.ExtraData) > 0 {
		event.ExtraData = s.validator.SanitizeCustomData(event.ExtraData)
	}

	record := buildRecord(event, received, requestID, true, "")
	id, err := s.events.InsertEvent(ctx, record)
	if err != nil {
		return Outcome{RequestID: requestID}, err
	}
	record.ID = id

	recordDecision("accepted", "none")
	s.broadcast(record)
	s.logger.Info("event accepted",
		"request_id", requestID,
		"website_id", event.WebsiteID,
		"type", string(event.Type),
		"event_id", id)
	return Outcome{EventID: id, RequestID: requestID}, nil
}

func (s *Service) suppress(ctx context.Context, event *domain.Event, received int64, requestID string, reason *admission.Reason) (Outcome, error) {
	record := buildRecord(event, received, requestID, false, reason.String())
	if _, err := s.events.InsertEvent(ctx, record); err != nil {
		return Outcome{RequestID: requestID}, err
	}
	recordDecision("suppressed", reason.Code)
	s.logger.Info("event suppressed",
		"request_id", requestID,
		"website_id", event.WebsiteID,
		"type", string(event.Type),
		"reason", reason.Code)
	return Outcome{RequestID: requestID, Ignored: true, IgnoreReason: reason.String()}, nil
}

// buildRecord flattens the envelope into its stored form: path extracted
// from the page URL, variant fields folded into the extra-data document.
func buildRecord(event *domain.Event, received int64, requestID string, stored bool, ignoreReason string) *domain.StoredEvent {
	extra := make(map[string]any, len(event.ExtraData)+4)
	for key, value := range event.ExtraData {
		extra[key] = value
	}
	switch event.Type {
	case domain.EventCustom:
		extra["eventName"] = event.EventName
	case domain.EventExternalLink:
		extra["linkUrl"] = event.LinkURL
		if event.LinkText != "" {
			extra["linkText"] = event.LinkText
		}
	case domain.EventPayment:
		if event.Email != "" {
			extra["email"] = event.Email
		}
		if event.PaymentID != "" {
			extra["payment_id"] = event.PaymentID
		}
		if event.Provider != "" {
			extra["provider"] = event.Provider
		}
		if event.Amount != nil {
			extra["amount"] = *event.Amount
		}
		if event.Currency != "" {
			extra["currency"] = event.Currency
		}
	case domain.EventIdentify:
		if event.UserID != "" {
			extra["user_id"] = event.UserID
		}
	}

	eventTimestamp := event.Timestamp
	if eventTimestamp == 0 {
		eventTimestamp = received
	}

	return &domain.StoredEvent{
		WebsiteID:         event.WebsiteID,
		Domain:            event.Domain,
		Type:              event.Type,
		Href:              event.Href,
		Path:              admission.ExtractPath(event.Href),
		Referrer:          event.Referrer,
		Viewport:          marshalOrNil(event.Viewport),
		VisitorID:         event.VisitorID,
		SessionID:         event.SessionID,
		AdClickIDs:        marshalOrNil(event.AdClickIDs),
		ExtraData:         marshalExtra(extra),
		UserAgent:         event.UserAgent,
		IP:                event.IP,
		EventTimestamp:    eventTimestamp,
		ReceivedTimestamp: received,
		Stored:            stored,
		IgnoreReason:      ignoreReason,
		RequestID:         requestID,
	}
}

// broadcast pushes an accepted event to live dashboard subscribers.
func (s *Service) broadcast(record *domain.StoredEvent) {
	if s.hub == nil {
		return
	}
	payload, err := MarshalRecord(record)
	if err != nil {
		s.logger.Warn("failed to marshal stream payload", "error", err)
		return
	}
	s.hub.Broadcast(record.WebsiteID, payload)
}

// MarshalRecord formats a stored event for streaming payloads.
func MarshalRecord(record *domain.StoredEvent) ([]byte, error) {
	var extra any
	if len(record.ExtraData) > 0 {
		extra = json.RawMessage(record.ExtraData)
	}
	payload := map[string]any{
		"id":                record.ID,
		"websiteId":         record.WebsiteID,
		"type":              string(record.Type),
		"path":              record.Path,
		"referrer":          record.Referrer,
		"visitorId":         record.VisitorID,
		"sessionId":         record.SessionID,
		"extraData":         extra,
		"receivedTimestamp": record.ReceivedTimestamp,
	}
	return json.Marshal(payload)
}

func marshalOrNil(value any) []byte {
	switch typed := value.(type) {
	case *domain.Viewport:
		if typed == nil {
			return nil
		}
	case map[string]string:
		if len(typed) == 0 {
			return nil
		}
	}
	blob, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	return blob
}

func marshalExtra(extra map[string]any) []byte {
	if len(extra) == 0 {
		return nil
	}
	blob, err := json.Marshal(extra)
	if err != nil {
		return nil
	}
	return blob
}
