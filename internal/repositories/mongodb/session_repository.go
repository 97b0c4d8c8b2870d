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

// SessionRepository implements the repositories.SessionRepository interface
type SessionRepository struct {
	collection *mongo.Collection
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *mongo.Database) repositories.SessionRepository {
	return &SessionRepository{
		collection: db.Collection("sessions"),
	}
}

// Create creates a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

// FindBySessionID finds a session by its id
func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// FindOpenByVoucherCode finds the open session for a voucher, if any
func (r *SessionRepository) FindOpenByVoucherCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	err := r.collection.FindOne(ctx, bson.M{
		"voucherCode": code,
		"status":      models.SessionOpen,
	}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, payerrors.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Update updates a session
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"sessionId": session.SessionID}, session)
	return err
}
