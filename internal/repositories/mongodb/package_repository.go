package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
)

// PackageRepository implements the repositories.PackageRepository interface
type PackageRepository struct {
	collection *mongo.Collection
}

// NewPackageRepository creates a new PackageRepository
func NewPackageRepository(db *mongo.Database) repositories.PackageRepository {
	return &PackageRepository{
		collection: db.Collection("packages"),
	}
}

// FindByPackageID finds a package by its id
func (r *PackageRepository) FindByPackageID(ctx context.Context, packageID string) (*models.InternetPackage, error) {
	var pkg models.InternetPackage
	err := r.collection.FindOne(ctx, bson.M{"packageId": packageID}).Decode(&pkg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &pkg, nil
}

// FindActive finds all active packages
func (r *PackageRepository) FindActive(ctx context.Context) ([]*models.InternetPackage, error) {
	opts := options.Find().SetSort(bson.M{"price": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pkgs []*models.InternetPackage
	if err := cursor.All(ctx, &pkgs); err != nil {
		return nil, err
	}
	return pkgs, nil
}

// Upsert creates or replaces a catalog entry
func (r *PackageRepository) Upsert(ctx context.Context, pkg *models.InternetPackage) error {
	pkg.UpdatedAt = time.Now()
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = pkg.UpdatedAt
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"packageId": pkg.PackageID}, pkg, opts)
	return err
}
