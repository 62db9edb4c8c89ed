package site

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
)

type stubSiteRepository struct {
	upserted []*domain.Site
}

func (s *stubSiteRepository) UpsertSite(ctx context.Context, site *domain.Site) error {
	s.upserted = append(s.upserted, site)
	return nil
}

func (s *stubSiteRepository) GetSiteByWebsiteID(ctx context.Context, websiteID string) (*domain.Site, error) {
	return nil, repository.ErrNotFound
}

func (s *stubSiteRepository) ListSites(ctx context.Context) ([]domain.Site, error) {
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterGeneratesWebsiteID(t *testing.T) {
	repo := &stubSiteRepository{}
	svc := New(repo, discardLogger())

	site, err := svc.Register(context.Background(), "", "example.com", []string{" app.other.io ", ""})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if site.WebsiteID == "" {
		t.Fatal("expected a generated website ID")
	}
	if len(site.AllowedHosts) != 1 || site.AllowedHosts[0] != "app.other.io" {
		t.Fatalf("unexpected allowed hosts: %v", site.AllowedHosts)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("expected one upsert, got %d", len(repo.upserted))
	}
}

func TestRegisterRequiresDomain(t *testing.T) {
	svc := New(&stubSiteRepository{}, discardLogger())
	if _, err := svc.Register(context.Background(), "site-1", "  ", nil); !errors.Is(err, errMissingDomain) {
		t.Fatalf("expected errMissingDomain, got %v", err)
	}
}
