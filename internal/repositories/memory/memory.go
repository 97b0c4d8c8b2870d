// Package memory provides in-process implementations of the repository
// interfaces. They back the test suite and single-node mock deployments;
// the mongodb package is the production implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
)

// TransactionRepository is an in-memory transaction store
type TransactionRepository struct {
	mu  sync.RWMutex
	txs map[string]*models.Transaction
}

// NewTransactionRepository creates a new in-memory transaction repository
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{txs: make(map[string]*models.Transaction)}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = time.Now()
	cp := *tx
	r.txs[tx.TransactionID] = &cp
	return nil
}

func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.txs[transactionID]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *TransactionRepository) FindByGatewayReference(ctx context.Context, ref string) (*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, tx := range r.txs {
		if tx.GatewayReference == ref {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, payerrors.ErrNotFound
}

func (r *TransactionRepository) Update(ctx context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txs[tx.TransactionID]; !ok {
		return payerrors.ErrNotFound
	}
	tx.UpdatedAt = time.Now()
	cp := *tx
	r.txs[tx.TransactionID] = &cp
	return nil
}

func (r *TransactionRepository) TransitionState(ctx context.Context, transactionID string, from []models.TransactionState, to models.TransactionState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[transactionID]
	if !ok {
		return false, payerrors.ErrNotFound
	}
	for _, s := range from {
		if tx.State == s {
			tx.State = to
			tx.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (r *TransactionRepository) FindExpired(ctx context.Context, state models.TransactionState, cutoff time.Time) ([]*models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Transaction
	for _, tx := range r.txs {
		if tx.State == state && tx.ExpiresAt.Before(cutoff) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *TransactionRepository) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.txs)), nil
}

// VoucherRepository is an in-memory voucher store with a unique code index
type VoucherRepository struct {
	mu      sync.RWMutex
	byCode  map[string]*models.Voucher
	byTxnID map[string]string
}

// NewVoucherRepository creates a new in-memory voucher repository
func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{
		byCode:  make(map[string]*models.Voucher),
		byTxnID: make(map[string]string),
	}
}

func (r *VoucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[voucher.Code]; exists {
		return payerrors.ErrVoucherCollision
	}
	if _, exists := r.byTxnID[voucher.TransactionID]; exists {
		return payerrors.ErrVoucherCollision
	}
	voucher.CreatedAt = time.Now()
	voucher.UpdatedAt = time.Now()
	cp := *voucher
	r.byCode[voucher.Code] = &cp
	r.byTxnID[voucher.TransactionID] = voucher.Code
	return nil
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byCode[code]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *VoucherRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Voucher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.byTxnID[transactionID]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *r.byCode[code]
	return &cp, nil
}

func (r *VoucherRepository) Update(ctx context.Context, voucher *models.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byCode[voucher.Code]; !ok {
		return payerrors.ErrNotFound
	}
	voucher.UpdatedAt = time.Now()
	cp := *voucher
	r.byCode[voucher.Code] = &cp
	return nil
}

func (r *VoucherRepository) BindIfUnbound(ctx context.Context, code, phone, mac string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byCode[code]
	if !ok {
		return false, payerrors.ErrNotFound
	}
	if v.BoundPhone != "" {
		return false, nil
	}
	v.BoundPhone = phone
	v.BoundMac = mac
	v.UpdatedAt = time.Now()
	return true, nil
}

// Count returns the number of stored vouchers
func (r *VoucherRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}

// SessionRepository is an in-memory session store
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewSessionRepository creates a new in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*models.Session)}
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()
	cp := *session
	r.sessions[session.SessionID] = &cp
	return nil
}

func (r *SessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) FindOpenByVoucherCode(ctx context.Context, code string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.VoucherCode == code && s.Status == models.SessionOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, payerrors.ErrNotFound
}

func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.SessionID]; !ok {
		return payerrors.ErrNotFound
	}
	session.UpdatedAt = time.Now()
	cp := *session
	r.sessions[session.SessionID] = &cp
	return nil
}

// NotificationRepository is an in-memory notification job store
type NotificationRepository struct {
	mu   sync.RWMutex
	jobs map[string]*models.NotificationJob
}

// NewNotificationRepository creates a new in-memory notification repository
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{jobs: make(map[string]*models.NotificationJob)}
}

func (r *NotificationRepository) Create(ctx context.Context, job *models.NotificationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.TransactionID]; exists {
		return repositories.ErrDuplicateJob
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()
	cp := *job
	r.jobs[job.TransactionID] = &cp
	return nil
}

func (r *NotificationRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.NotificationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[transactionID]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *NotificationRepository) FindByStatus(ctx context.Context, status models.NotificationStatus, limit int) ([]*models.NotificationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.NotificationJob
	for _, j := range r.jobs {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) Update(ctx context.Context, job *models.NotificationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.TransactionID]; !ok {
		return payerrors.ErrNotFound
	}
	job.UpdatedAt = time.Now()
	cp := *job
	r.jobs[job.TransactionID] = &cp
	return nil
}

// PackageRepository is an in-memory package catalog
type PackageRepository struct {
	mu   sync.RWMutex
	pkgs map[string]*models.InternetPackage
}

// NewPackageRepository creates a new in-memory package repository
func NewPackageRepository() *PackageRepository {
	return &PackageRepository{pkgs: make(map[string]*models.InternetPackage)}
}

func (r *PackageRepository) FindByPackageID(ctx context.Context, packageID string) (*models.InternetPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pkgs[packageID]
	if !ok {
		return nil, payerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PackageRepository) FindActive(ctx context.Context) ([]*models.InternetPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.InternetPackage
	for _, p := range r.pkgs {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].PackageID < out[k].PackageID })
	return out, nil
}

func (r *PackageRepository) Upsert(ctx context.Context, pkg *models.InternetPackage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pkg.UpdatedAt = time.Now()
	if pkg.CreatedAt.IsZero() {
		pkg.CreatedAt = pkg.UpdatedAt
	}
	cp := *pkg
	r.pkgs[pkg.PackageID] = &cp
	return nil
}
