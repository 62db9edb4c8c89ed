package authorizer

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"log/slog"

	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

// Service decides whether a claimed page URL belongs to a website ID.
type Service struct {
	sites             repository.SiteRepository
	logger            *slog.Logger
	requireRegistered bool
}

// New constructs an authorizer. With requireRegistered false, events for
// website IDs without a registration are allowed; this is the permissive
// default and a deliberate policy switch.
func New(sites repository.SiteRepository, logger *slog.Logger, requireRegistered bool) Service {
	return Service{sites: sites, logger: logger, requireRegistered: requireRegistered}
}

// Authorize checks the hostname parsed from href against the site
// registration for websiteID. The client-claimed domain field is stored
// for reporting but is never the authority; only the page URL hostname is
// checked. An unparsable href is never authorized.
func (s Service) Authorize(ctx context.Context, websiteID, href string) (bool, error) {
	site, err := s.sites.GetSiteByWebsiteID(ctx, websiteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if s.requireRegistered {
				s.logger.Warn("event for unregistered website rejected", "website_id", websiteID)
				return false, nil
			}
			return true, nil
		}
		return false, err
	}

	parsed, err := url.Parse(href)
	if err != nil || parsed.Hostname() == "" {
		return false, nil
	}
	hostname := parsed.Hostname()

	if hostname == site.Domain || strings.HasSuffix(hostname, "."+site.Domain) {
		return true, nil
	}
	for _, allowed := range site.AllowedHosts {
		if hostname == allowed {
			return true, nil
		}
	}
	return false, nil
}
