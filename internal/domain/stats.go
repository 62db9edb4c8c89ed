package domain

// PathCount is a grouped pageview count per path.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// ReferrerCount is a grouped event count per referrer.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
}

// EventNameCount is a grouped count per custom event name.
type EventNameCount struct {
	EventName string `json:"eventName"`
	Count     int    `json:"count"`
}

// PaymentRow is the stored slice of a payment event used for conversion
// reporting. ExtraData carries email/payment_id/amount/currency as JSON.
type PaymentRow struct {
	ID             int64
	ExtraData      []byte
	EventTimestamp int64
}

// Payment is a decoded conversion entry.
type Payment struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email,omitempty"`
	PaymentID string   `json:"payment_id,omitempty"`
	Amount    *float64 `json:"amount,omitempty"`
	Currency  string   `json:"currency,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Conversions summarises stored payment events in a range.
type Conversions struct {
	Count    int       `json:"count"`
	Payments []Payment `json:"payments"`
}

// StatsSummary aggregates stored events for a website over a time range.
type StatsSummary struct {
	WebsiteID       string           `json:"websiteId"`
	StartDate       string           `json:"startDate"`
	EndDate         string           `json:"endDate"`
	Pageviews       int              `json:"pageviews"`
	UniqueVisitors  int              `json:"uniqueVisitors"`
	UniqueSessions  int              `json:"uniqueSessions"`
	TopPages        []PathCount      `json:"topPages"`
	TopReferrers    []ReferrerCount  `json:"topReferrers"`
	TopCustomEvents []EventNameCount `json:"topCustomEvents"`
	Conversions     Conversions      `json:"conversions"`
}

// ActiveStats counts distinct identifiers seen within a trailing window.
type ActiveStats struct {
	WebsiteID      string `json:"websiteId"`
	WindowMinutes  int    `json:"windowMinutes"`
	ActiveSessions int    `json:"activeSessions"`
	ActiveVisitors int    `json:"activeVisitors"`
}
