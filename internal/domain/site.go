package domain

import "time"

// Site registers which origins a website ID may report events from.
type Site struct {
	WebsiteID    string    `json:"websiteId"`
	Domain       string    `json:"domain"`
	AllowedHosts []string  `json:"allowedHosts,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
