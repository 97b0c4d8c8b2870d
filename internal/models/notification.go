package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationStatus represents the delivery state of an SMS job
type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "PENDING"
	NotificationSent         NotificationStatus = "SENT"
	NotificationDeadLettered NotificationStatus = "DEAD_LETTERED"
)

// NotificationJob is an outbound voucher SMS keyed by transaction id so that
// retried orchestrator calls never resend an already-delivered message.
type NotificationJob struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	MSISDN        string             `bson:"msisdn" json:"msisdn"`
	VoucherCode   string             `bson:"voucherCode" json:"voucherCode"`
	Content       string             `bson:"content" json:"content"`
	Status        NotificationStatus `bson:"status" json:"status"`
	Attempts      int                `bson:"attempts" json:"attempts"`
	Gateway       string             `bson:"gateway,omitempty" json:"gateway,omitempty"`
	MessageID     string             `bson:"messageId,omitempty" json:"messageId,omitempty"`
	LastError     string             `bson:"lastError,omitempty" json:"lastError,omitempty"`
	SentAt        time.Time          `bson:"sentAt,omitempty" json:"sentAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
