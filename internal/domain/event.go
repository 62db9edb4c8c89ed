package domain

// EventType discriminates the event envelope variants.
type EventType string

const (
	EventPageview     EventType = "pageview"
	EventCustom       EventType = "custom"
	EventIdentify     EventType = "identify"
	EventPayment      EventType = "payment"
	EventExternalLink EventType = "external_link"
)

// Known reports whether t names a supported event variant.
func (t EventType) Known() bool {
	switch t {
	case EventPageview, EventCustom, EventIdentify, EventPayment, EventExternalLink:
		return true
	}
	return false
}

// Viewport is the client viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Event is the envelope submitted by the collector. A single shape is
// reused for every variant; which fields are required depends on Type and
// is enforced by the admission pipeline, not by decoding.
type Event struct {
	WebsiteID  string            `json:"websiteId"`
	Domain     string            `json:"domain"`
	Type       EventType         `json:"type"`
	Href       string            `json:"href"`
	Referrer   string            `json:"referrer,omitempty"`
	Viewport   *Viewport         `json:"viewport,omitempty"`
	VisitorID  string            `json:"visitorId"`
	SessionID  string            `json:"sessionId"`
	ExtraData  map[string]any    `json:"extraData,omitempty"`
	AdClickIDs map[string]string `json:"adClickIds,omitempty"`
	Timestamp  int64             `json:"timestamp,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	IP         string            `json:"ip,omitempty"`
	OptOut     bool              `json:"datafast_ignore,omitempty"`
	IsIframe   bool              `json:"isIframe,omitempty"`

	// custom
	EventName string `json:"eventName,omitempty"`
	// identify
	UserID string `json:"user_id,omitempty"`
	// payment
	Email     string   `json:"email,omitempty"`
	PaymentID string   `json:"payment_id,omitempty"`
	Provider  string   `json:"provider,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	// external_link
	LinkURL  string `json:"linkUrl,omitempty"`
	LinkText string `json:"linkText,omitempty"`

	// RawSize is the request body length in bytes, set by the transport.
	RawSize int `json:"-"`
}

// StoredEvent is the immutable, append-only record of an admission
// decision. Suppressed events are written with Stored=false and the
// suppression reason; they are never updated or deleted.
type StoredEvent struct {
	ID                int64
	WebsiteID         string
	Domain            string
	Type              EventType
	Href              string
	Path              string
	Referrer          string
	Viewport          []byte
	VisitorID         string
	SessionID         string
	AdClickIDs        []byte
	ExtraData         []byte
	UserAgent         string
	IP                string
	EventTimestamp    int64
	ReceivedTimestamp int64
	Stored            bool
	IgnoreReason      string
	RequestID         string
}
