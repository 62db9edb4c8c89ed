package site

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

var errMissingDomain = errors.New("site domain is required")

// Service manages site registrations.
type Service struct {
	repo   repository.SiteRepository
	logger *slog.Logger
}

// New constructs a site service.
func New(repo repository.SiteRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger}
}

// Register upserts a site registration. A website ID is generated when not
// supplied.
func (s Service) Register(ctx context.Context, websiteID, siteDomain string, allowedHosts []string) (*domain.Site, error) {
	siteDomain = strings.TrimSpace(siteDomain)
	if siteDomain == "" {
		return nil, errMissingDomain
	}
	websiteID = strings.TrimSpace(websiteID)
	if websiteID == "" {
		websiteID = uuid.NewString()
	}
	hosts := make([]string, 0, len(allowedHosts))
	for _, host := range allowedHosts {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	record := &domain.Site{
		WebsiteID:    websiteID,
		Domain:       siteDomain,
		AllowedHosts: hosts,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.UpsertSite(ctx, record); err != nil {
		return nil, err
	}
	s.logger.Info("site registered", "website_id", websiteID, "domain", siteDomain)
	return record, nil
}

// List returns all registered sites.
func (s Service) List(ctx context.Context) ([]domain.Site, error) {
	return s.repo.ListSites(ctx)
}
