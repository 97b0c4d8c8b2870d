package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VoucherStatus represents the lifecycle status of an access voucher
type VoucherStatus string

const (
	VoucherIssued   VoucherStatus = "ISSUED"
	VoucherActive   VoucherStatus = "ACTIVE"
	VoucherConsumed VoucherStatus = "CONSUMED"
	VoucherExpired  VoucherStatus = "EXPIRED"
)

// Voucher is a single-use access credential bound to one subscriber device.
// Exactly one voucher exists per completed transaction.
type Voucher struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Code          string             `bson:"code" json:"code"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	PackageID     string             `bson:"packageId" json:"packageId"`
	PackageName   string             `bson:"packageName" json:"packageName"`
	TimeLimit     time.Duration      `bson:"timeLimit" json:"timeLimit"`
	DataLimitMB   int64              `bson:"dataLimitMb" json:"dataLimitMb"`
	BoundPhone    string             `bson:"boundPhone,omitempty" json:"boundPhone,omitempty"`
	BoundMac      string             `bson:"boundMac,omitempty" json:"boundMac,omitempty"`
	Status        VoucherStatus      `bson:"status" json:"status"`
	UsedTime      time.Duration      `bson:"usedTime" json:"usedTime"`
	UsedDataMB    int64              `bson:"usedDataMb" json:"usedDataMb"`
	GeneratedAt   time.Time          `bson:"generatedAt" json:"generatedAt"`
	ActivatedAt   time.Time          `bson:"activatedAt,omitempty" json:"activatedAt,omitempty"`
	ExpiresAt     time.Time          `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsBound reports whether the voucher has been bound to a subscriber device
func (v *Voucher) IsBound() bool {
	return v.BoundPhone != "" && v.BoundMac != ""
}

// RemainingTime returns the unconsumed time allowance
func (v *Voucher) RemainingTime() time.Duration {
	if v.UsedTime >= v.TimeLimit {
		return 0
	}
	return v.TimeLimit - v.UsedTime
}

// RemainingDataMB returns the unconsumed data allowance. Zero DataLimitMB
// means the package is unmetered.
func (v *Voucher) RemainingDataMB() int64 {
	if v.DataLimitMB == 0 {
		return 0
	}
	if v.UsedDataMB >= v.DataLimitMB {
		return 0
	}
	return v.DataLimitMB - v.UsedDataMB
}

// VoucherValidation is the read-only result returned to the captive portal
type VoucherValidation struct {
	Valid       bool          `json:"valid"`
	PackageName string        `json:"packageName,omitempty"`
	TimeLimit   time.Duration `json:"timeLimit,omitempty"`
	DataLimitMB int64         `json:"dataLimitMb,omitempty"`
	BoundPhone  string        `json:"boundPhone,omitempty"`
}
