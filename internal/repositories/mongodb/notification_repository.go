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

// NotificationRepository implements the repositories.NotificationRepository interface
type NotificationRepository struct {
	collection *mongo.Collection
}

// NewNotificationRepository creates a new NotificationRepository with a
// unique index on transactionId for enqueue dedupe
func NewNotificationRepository(db *mongo.Database) repositories.NotificationRepository {
	collection := db.Collection("notifications")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _ = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "transactionId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &NotificationRepository{collection: collection}
}

// Create creates a new notification job
func (r *NotificationRepository) Create(ctx context.Context, job *models.NotificationJob) error {
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, job)
	if mongo.IsDuplicateKeyError(err) {
		return repositories.ErrDuplicateJob
	}
	return err
}

// FindByTransactionID finds a job by transaction id
func (r *NotificationRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.NotificationJob, error) {
	var job models.NotificationJob
	err := r.collection.FindOne(ctx, bson.M{"transactionId": transactionID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FindByStatus finds jobs by status, oldest first
func (r *NotificationRepository) FindByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]*models.NotificationJob, error) {
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"createdAt": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*models.NotificationJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update updates a notification job
func (r *NotificationRepository) Update(ctx context.Context, job *models.NotificationJob) error {
	job.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"transactionId": job.TransactionID}, job)
	return err
}
