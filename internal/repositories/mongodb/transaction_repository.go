package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
)

// TransactionRepository implements the repositories.TransactionRepository interface
type TransactionRepository struct {
	collection *mongo.Collection
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(db *mongo.Database) repositories.TransactionRepository {
	return &TransactionRepository{
		collection: db.Collection("transactions"),
	}
}

// Create creates a new transaction
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, tx)
	return err
}

// FindByTransactionID finds a transaction by its public id
func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"transactionId": transactionID}).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindByGatewayReference finds a transaction by the gateway's reference
func (r *TransactionRepository) FindByGatewayReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.collection.FindOne(ctx, bson.M{"gatewayReference": ref}).Decode(&tx)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// Update updates a transaction
func (r *TransactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"transactionId": tx.TransactionID}, tx)
	return err
}

// TransitionState moves the transaction between states with a filtered
// update, so racing transitions resolve to exactly one winner
func (r *TransactionRepository) TransitionState(ctx context.Context, transactionID string, from []models.TransactionState, to models.TransactionState) (bool, error) {
	filter := bson.M{
		"transactionId": transactionID,
		"state":         bson.M{"$in": from},
	}
	update := bson.M{
		"$set": bson.M{
			"state":     to,
			"updatedAt": time.Now(),
		},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// FindExpired finds transactions in the given state past their expiry
func (r *TransactionRepository) FindExpired(ctx context.Context, state models.TransactionState, cutoff time.Time) ([]*models.Transaction, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"state":     state,
		"expiresAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var txs []*models.Transaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Count counts all transactions
func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{})
}
