package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus represents the state of a network access grant
type SessionStatus string

const (
	SessionOpen   SessionStatus = "OPEN"
	SessionClosed SessionStatus = "CLOSED"
)

// Session links a voucher to a live network grant on the access controller.
// At most one open session exists per voucher.
type Session struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID     string             `bson:"sessionId" json:"sessionId"`
	VoucherCode   string             `bson:"voucherCode" json:"voucherCode"`
	DeviceMac     string             `bson:"deviceMac" json:"deviceMac"`
	ControllerRef string             `bson:"controllerRef,omitempty" json:"controllerRef,omitempty"`
	Status        SessionStatus      `bson:"status" json:"status"`
	CloseReason   string             `bson:"closeReason,omitempty" json:"closeReason,omitempty"`
	StartedAt     time.Time          `bson:"startedAt" json:"startedAt"`
	ClosedAt      time.Time          `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
