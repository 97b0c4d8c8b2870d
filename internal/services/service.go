package services

import (
	"context"
	"time"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
)

// GatewayCallback is the asynchronous confirmation payload from the
// mobile-money provider. Delivery is at-least-once; handling must be
// idempotent on (order id, reference).
type GatewayCallback struct {
	TransactionID    string `json:"order_id"`
	GatewayReference string `json:"reference"`
	Status           string `json:"payment_status"`
	GatewayTxnID     string `json:"transid,omitempty"`
	Channel          string `json:"channel,omitempty"`
}

// PaymentService drives the purchase lifecycle end to end
type PaymentService interface {
	// InitiatePurchase validates the request, opens a transaction, and
	// starts the gateway authorization push
	InitiatePurchase(ctx context.Context, req *models.PurchaseRequest) (*models.Transaction, error)

	// SubmitAuthorizationCode forwards an explicit PIN/code step to the gateway
	SubmitAuthorizationCode(ctx context.Context, transactionID, code string) (*models.Transaction, error)

	// HandleGatewayCallback applies an asynchronous, possibly duplicated,
	// settlement confirmation
	HandleGatewayCallback(ctx context.Context, payload GatewayCallback) error

	// CancelPurchase aborts a purchase that has not yet been settled
	CancelPurchase(ctx context.Context, transactionID string) error

	// GetTransaction retrieves a transaction for status polling
	GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error)

	// Start launches the expiry sweeper; Stop shuts it down
	Start()
	Stop()
}

// VoucherService owns voucher identity, generation, binding, and validation
type VoucherService interface {
	// GenerateVoucher mints a voucher for a settled transaction. Code
	// collisions are retried internally and never surface to the caller.
	GenerateVoucher(ctx context.Context, tx *models.Transaction) (*models.Voucher, error)

	// BindVoucher binds a voucher to a phone and MAC, write-once. An
	// identical repeat bind is a no-op; a different one is a conflict.
	BindVoucher(ctx context.Context, code, phone, mac string) error

	// ValidateVoucher checks a voucher for the captive portal without
	// mutating any persisted state
	ValidateVoucher(ctx context.Context, code, mac string) (*models.VoucherValidation, error)

	// ActivateVoucher transitions an issued voucher to active and starts
	// its time allowance
	ActivateVoucher(ctx context.Context, code string) error

	// DeactivateVoucher transitions an active voucher to consumed
	DeactivateVoucher(ctx context.Context, code string) error

	// RecordUsage folds externally tracked consumption back into the ledger
	RecordUsage(ctx context.Context, code string, usedTime time.Duration, usedDataMB int64) error

	// GetVoucherByTransactionID returns the voucher minted for a transaction
	GetVoucherByTransactionID(ctx context.Context, transactionID string) (*models.Voucher, error)
}

// ActivationService abstracts the network access controller
type ActivationService interface {
	// Grant admits the device for the voucher, retrying transient
	// controller failures. Persistently failing grants are queued for the
	// background worker; the voucher remains valid throughout.
	Grant(ctx context.Context, voucherCode, mac string) (string, error)

	// Revoke terminates a session. Revoking a closed session is a no-op.
	Revoke(ctx context.Context, sessionID, reason string) error

	// Start launches the retry worker; Stop shuts it down
	Start()
	Stop()
}

// NotificationService delivers voucher codes to subscribers at least once
type NotificationService interface {
	// Enqueue registers a voucher SMS, deduplicated on transaction id
	Enqueue(ctx context.Context, transactionID, phone, voucherCode string) error

	// GetJobsByStatus lists jobs for operational follow-up
	GetJobsByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]*models.NotificationJob, error)

	// Start launches the delivery worker; Stop shuts it down
	Start()
	Stop()
}

// CatalogService exposes the static package catalog
type CatalogService interface {
	GetPackage(ctx context.Context, packageID string) (*models.InternetPackage, error)
	ListActivePackages(ctx context.Context) ([]*models.InternetPackage, error)
	// EnsureDefaults seeds the catalog when it is empty
	EnsureDefaults(ctx context.Context) error
}
