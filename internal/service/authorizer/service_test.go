package authorizer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

type stubSiteRepository struct {
	sites map[string]domain.Site
}

func (s *stubSiteRepository) UpsertSite(ctx context.Context, site *domain.Site) error { return nil }

func (s *stubSiteRepository) GetSiteByWebsiteID(ctx context.Context, websiteID string) (*domain.Site, error) {
	if site, ok := s.sites[websiteID]; ok {
		return &site, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubSiteRepository) ListSites(ctx context.Context) ([]domain.Site, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthorizeMatchesDomainAndSubdomains(t *testing.T) {
	repo := &stubSiteRepository{sites: map[string]domain.Site{
		"site-1": {WebsiteID: "site-1", Domain: "example.com", AllowedHosts: []string{"app.other.io"}},
	}}
	svc := New(repo, discardLogger(), false)

	cases := map[string]bool{
		"https://example.com/":              true,
		"https://www.example.com/pricing":   true,
		"https://shop.example.com/checkout": true,
		"https://app.other.io/dash":         true,
		"https://example.com.evil.com/":     false,
		"https://other.com/":                false,
		"not a url":                         false,
	}
	for href, want := range cases {
		got, err := svc.Authorize(context.Background(), "site-1", href)
		if err != nil {
			t.Fatalf("Authorize(%q) returned error: %v", href, err)
		}
		if got != want {
			t.Errorf("Authorize(%q) = %v, want %v", href, got, want)
		}
	}
}

func TestAuthorizeUnregisteredSite(t *testing.T) {
	repo := &stubSiteRepository{}

	open := New(repo, discardLogger(), false)
	ok, err := open.Authorize(context.Background(), "unknown", "https://anywhere.com/")
	if err != nil || !ok {
		t.Fatalf("expected permissive default to allow unregistered sites, got %v %v", ok, err)
	}

	strict := New(repo, discardLogger(), true)
	ok, err = strict.Authorize(context.Background(), "unknown", "https://anywhere.com/")
	if err != nil || ok {
		t.Fatalf("expected strict mode to reject unregistered sites, got %v %v", ok, err)
	}
}
