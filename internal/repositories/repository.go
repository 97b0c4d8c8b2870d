package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
)

// ErrDuplicateJob is returned when a notification job already exists for
// the transaction id. Enqueueing stays idempotent under retries.
var ErrDuplicateJob = errors.New("notification job already exists for transaction")

// TransactionRepository defines the interface for transaction data operations
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	FindByGatewayReference(ctx context.Context, ref string) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	// TransitionState moves the transaction from one of the given states to
	// the target state. Returns false without error when the transaction is
	// no longer in any of the expected states, so concurrent transitions
	// resolve to exactly one winner.
	TransitionState(ctx context.Context, transactionID string, from []models.TransactionState, to models.TransactionState) (bool, error)
	// FindExpired returns transactions in the given state whose expiresAt
	// is before the cutoff.
	FindExpired(ctx context.Context, state models.TransactionState, cutoff time.Time) ([]*models.Transaction, error)
	Count(ctx context.Context) (int64, error)
}

// VoucherRepository defines the interface for voucher data operations
type VoucherRepository interface {
	// Create inserts a voucher. Returns payerrors.ErrVoucherCollision when
	// the code already exists in the unique-code index.
	Create(ctx context.Context, voucher *models.Voucher) error
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Voucher, error)
	Update(ctx context.Context, voucher *models.Voucher) error
	// BindIfUnbound atomically sets the phone/mac binding if and only if the
	// voucher is still unbound. Returns false when a binding already exists.
	BindIfUnbound(ctx context.Context, code, phone, mac string) (bool, error)
}

// SessionRepository defines the interface for session data operations
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	FindOpenByVoucherCode(ctx context.Context, code string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// NotificationRepository defines the interface for notification job operations
type NotificationRepository interface {
	// Create inserts a job. Returns ErrDuplicateJob when a job already
	// exists for the transaction id.
	Create(ctx context.Context, job *models.NotificationJob) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.NotificationJob, error)
	FindByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]*models.NotificationJob, error)
	Update(ctx context.Context, job *models.NotificationJob) error
}

// PackageRepository defines the interface for the package catalog
type PackageRepository interface {
	FindByPackageID(ctx context.Context, packageID string) (*models.InternetPackage, error)
	FindActive(ctx context.Context) ([]*models.InternetPackage, error)
	Upsert(ctx context.Context, pkg *models.InternetPackage) error
}
