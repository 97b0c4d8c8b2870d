package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransactionState represents the lifecycle state of a purchase attempt
type TransactionState string

const (
	StateCreated               TransactionState = "CREATED"
	StateAwaitingAuthorization TransactionState = "AWAITING_AUTHORIZATION"
	StateVerifying             TransactionState = "VERIFYING"
	StateSettled               TransactionState = "SETTLED"
	StateVoucherIssuing        TransactionState = "VOUCHER_ISSUING"
	StateCompleted             TransactionState = "COMPLETED"
	StateFailed                TransactionState = "FAILED"
	StateExpired               TransactionState = "EXPIRED"
	StateCancelled             TransactionState = "CANCELLED"
)

// IsTerminal reports whether no further transitions may leave the state
func (s TransactionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateExpired, StateCancelled:
		return true
	}
	return false
}

// PurchaseRequest is the transient intake payload for a package purchase.
// It is not persisted beyond the Transaction it spawns.
type PurchaseRequest struct {
	PackageID     string `json:"packageId" binding:"required"`
	PhoneNumber   string `json:"phoneNumber" binding:"required"`
	DeviceMac     string `json:"deviceMac" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency"`
}

// AmountDecimal parses the requested amount. Invalid input yields zero.
func (r *PurchaseRequest) AmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Transaction represents one purchase attempt from intake to settlement
type Transaction struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	TransactionID    string             `bson:"transactionId" json:"transactionId"`
	GatewayReference string             `bson:"gatewayReference,omitempty" json:"gatewayReference,omitempty"`
	GatewayTxnID     string             `bson:"gatewayTransactionId,omitempty" json:"gatewayTransactionId,omitempty"`
	PackageID        string             `bson:"packageId" json:"packageId"`
	PhoneNumber      string             `bson:"phoneNumber" json:"phoneNumber"`
	DeviceMac        string             `bson:"deviceMac" json:"deviceMac"`
	PaymentMethod    string             `bson:"paymentMethod" json:"paymentMethod"`
	Amount           string             `bson:"amount" json:"amount"`
	Currency         string             `bson:"currency" json:"currency"`
	State            TransactionState   `bson:"state" json:"state"`
	FailureReason    string             `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	VerifyAttempts   int                `bson:"verifyAttempts" json:"verifyAttempts"`
	IssueAttempts    int                `bson:"issueAttempts" json:"issueAttempts"`
	ProcessedRefs    []string           `bson:"processedRefs,omitempty" json:"-"`
	ExpiresAt        time.Time          `bson:"expiresAt" json:"expiresAt"`
	SettledAt        time.Time          `bson:"settledAt,omitempty" json:"settledAt,omitempty"`
	CompletedAt      time.Time          `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// AmountDecimal returns the settled amount as a decimal
func (t *Transaction) AmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// HasProcessedRef reports whether a gateway reference was already applied
// to this transaction. Used for callback dedupe.
func (t *Transaction) HasProcessedRef(ref string) bool {
	for _, r := range t.ProcessedRefs {
		if r == ref {
			return true
		}
	}
	return false
}
