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

// VoucherRepository implements the repositories.VoucherRepository interface
type VoucherRepository struct {
	collection *mongo.Collection
}

// NewVoucherRepository creates a new VoucherRepository and ensures the
// unique-code index exists
func NewVoucherRepository(db *mongo.Database) repositories.VoucherRepository {
	collection := db.Collection("vouchers")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _ = collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "transactionId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})

	return &VoucherRepository{collection: collection}
}

// Create creates a new voucher. A duplicate code maps to ErrVoucherCollision
// so the ledger can silently regenerate.
func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	voucher.CreatedAt = time.Now()
	voucher.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, voucher)
	if mongo.IsDuplicateKeyError(err) {
		return payerrors.ErrVoucherCollision
	}
	return err
}

// FindByCode finds a voucher by its code
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&voucher)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &voucher, nil
}

// FindByTransactionID finds the voucher minted for a transaction
func (r *VoucherRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.collection.FindOne(ctx, bson.M{"transactionId": transactionID}).Decode(&voucher)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &voucher, nil
}

// Update updates a voucher
func (r *VoucherRepository) Update(ctx context.Context, voucher *models.Voucher) error {
	voucher.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"code": voucher.Code}, voucher)
	return err
}

// BindIfUnbound sets the binding only when no binding exists yet
func (r *VoucherRepository) BindIfUnbound(ctx context.Context, code, phone, mac string) (bool, error) {
	filter := bson.M{
		"code": code,
		"$or": bson.A{
			bson.M{"boundPhone": bson.M{"$exists": false}},
			bson.M{"boundPhone": ""},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"boundPhone": phone,
			"boundMac":   mac,
			"updatedAt":  time.Now(),
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
