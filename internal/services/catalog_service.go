package services

import (
	"context"
	"time"

	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
)

// Compile-time check to ensure CatalogServiceImpl implements CatalogService
var _ CatalogService = (*CatalogServiceImpl)(nil)

// CatalogServiceImpl reads the static package catalog
type CatalogServiceImpl struct {
	packageRepo repositories.PackageRepository
}

// NewCatalogService creates a new CatalogServiceImpl
func NewCatalogService(packageRepo repositories.PackageRepository) *CatalogServiceImpl {
	return &CatalogServiceImpl{packageRepo: packageRepo}
}

// GetPackage retrieves one package by id
func (s *CatalogServiceImpl) GetPackage(ctx context.Context, packageID string) (*models.InternetPackage, error) {
	return s.packageRepo.FindByPackageID(ctx, packageID)
}

// ListActivePackages lists the purchasable catalog
func (s *CatalogServiceImpl) ListActivePackages(ctx context.Context) ([]*models.InternetPackage, error) {
	return s.packageRepo.FindActive(ctx)
}

// EnsureDefaults seeds the catalog when it is empty. Pricing administration
// lives outside this service; these rows only make a fresh install usable.
func (s *CatalogServiceImpl) EnsureDefaults(ctx context.Context) error {
	existing, err := s.packageRepo.FindActive(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	defaults := []*models.InternetPackage{
		{PackageID: "hourly-1", Name: "1 Hour Plan", Price: "500", Currency: "TZS", TimeLimit: time.Hour, Active: true},
		{PackageID: "daily-1", Name: "Daily Plan", Price: "2000", Currency: "TZS", TimeLimit: 24 * time.Hour, Active: true},
		{PackageID: "weekly-1", Name: "Weekly Plan", Price: "10000", Currency: "TZS", TimeLimit: 7 * 24 * time.Hour, Active: true},
		{PackageID: "monthly-1", Name: "Monthly Plan", Price: "30000", Currency: "TZS", TimeLimit: 30 * 24 * time.Hour, DataLimitMB: 51200, Active: true},
	}
	for _, pkg := range defaults {
		if err := s.packageRepo.Upsert(ctx, pkg); err != nil {
			return err
		}
	}

	slog.Info("Seeded default package catalog", "count", len(defaults))
	return nil
}
