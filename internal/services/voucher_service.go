package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/models"
	"github.com/ggnetworks/hotspot-billing-backend/internal/payerrors"
	"github.com/ggnetworks/hotspot-billing-backend/internal/repositories"
	"github.com/ggnetworks/hotspot-billing-backend/internal/utils"
)

// maxGenerateAttempts bounds collision retries. The code space is large
// enough that hitting this indicates a broken random source.
const maxGenerateAttempts = 10

// Compile-time check to ensure VoucherServiceImpl implements VoucherService
var _ VoucherService = (*VoucherServiceImpl)(nil)

// VoucherServiceImpl is the voucher ledger
type VoucherServiceImpl struct {
	voucherRepo repositories.VoucherRepository
	packageRepo repositories.PackageRepository
	prefix      string
	codeLength  int
}

// NewVoucherService creates a new VoucherServiceImpl
func NewVoucherService(voucherRepo repositories.VoucherRepository, packageRepo repositories.PackageRepository, cfg *config.Config) *VoucherServiceImpl {
	return &VoucherServiceImpl{
		voucherRepo: voucherRepo,
		packageRepo: packageRepo,
		prefix:      cfg.Voucher.Prefix,
		codeLength:  cfg.Voucher.CodeLength,
	}
}

// GenerateVoucher mints a voucher for a settled transaction
func (s *VoucherServiceImpl) GenerateVoucher(ctx context.Context, tx *models.Transaction) (*models.Voucher, error) {
	pkg, err := s.packageRepo.FindByPackageID(ctx, tx.PackageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load package %s: %w", tx.PackageID, err)
	}

	// The unique transactionId index makes re-issuance idempotent: a retry
	// after a half-failed attempt returns the voucher already minted.
	if existing, err := s.voucherRepo.FindByTransactionID(ctx, tx.TransactionID); err == nil {
		return existing, nil
	}

	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code, err := utils.GenerateCode(s.codeLength - len(s.prefix))
		if err != nil {
			return nil, fmt.Errorf("failed to generate voucher code: %w", err)
		}

		voucher := &models.Voucher{
			Code:          s.prefix + code,
			TransactionID: tx.TransactionID,
			PackageID:     pkg.PackageID,
			PackageName:   pkg.Name,
			TimeLimit:     pkg.TimeLimit,
			DataLimitMB:   pkg.DataLimitMB,
			Status:        models.VoucherIssued,
			GeneratedAt:   time.Now(),
		}

		err = s.voucherRepo.Create(ctx, voucher)
		if err == nil {
			slog.Info("Voucher minted", "code", voucher.Code, "transactionId", tx.TransactionID, "package", pkg.Name)
			return voucher, nil
		}
		if errors.Is(err, payerrors.ErrVoucherCollision) {
			slog.Warn("Voucher code collision, regenerating", "attempt", attempt)
			continue
		}
		return nil, fmt.Errorf("failed to store voucher: %w", err)
	}

	return nil, fmt.Errorf("exhausted %d voucher generation attempts", maxGenerateAttempts)
}

// BindVoucher binds a voucher to a subscriber device, write-once
func (s *VoucherServiceImpl) BindVoucher(ctx context.Context, code, phone, mac string) error {
	phone = utils.NormalizePhoneNumber(phone)
	mac = utils.NormalizeMac(mac)

	bound, err := s.voucherRepo.BindIfUnbound(ctx, code, phone, mac)
	if err != nil {
		return fmt.Errorf("failed to bind voucher: %w", err)
	}
	if bound {
		return nil
	}

	// The voucher already carries a binding. Identical rebinds are harmless.
	voucher, err := s.voucherRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if voucher.BoundPhone == phone && voucher.BoundMac == mac {
		return nil
	}
	return payerrors.ErrBindingConflict
}

// ValidateVoucher checks a voucher for the captive portal. Read-only: an
// expired or mismatched voucher is reported invalid without mutation.
func (s *VoucherServiceImpl) ValidateVoucher(ctx context.Context, code, mac string) (*models.VoucherValidation, error) {
	invalid := &models.VoucherValidation{Valid: false}

	voucher, err := s.voucherRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, payerrors.ErrNotFound) {
			return invalid, nil
		}
		return nil, err
	}

	if !voucher.IsBound() {
		return invalid, nil
	}
	if voucher.BoundMac != utils.NormalizeMac(mac) {
		return invalid, nil
	}
	switch voucher.Status {
	case models.VoucherConsumed, models.VoucherExpired:
		return invalid, nil
	}
	if !voucher.ExpiresAt.IsZero() && voucher.ExpiresAt.Before(time.Now()) {
		return invalid, nil
	}
	if voucher.RemainingTime() == 0 && voucher.UsedTime > 0 {
		return invalid, nil
	}

	return &models.VoucherValidation{
		Valid:       true,
		PackageName: voucher.PackageName,
		TimeLimit:   voucher.TimeLimit,
		DataLimitMB: voucher.DataLimitMB,
		BoundPhone:  voucher.BoundPhone,
	}, nil
}

// ActivateVoucher transitions an issued voucher to active
func (s *VoucherServiceImpl) ActivateVoucher(ctx context.Context, code string) error {
	voucher, err := s.voucherRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}

	switch voucher.Status {
	case models.VoucherActive:
		return nil
	case models.VoucherConsumed, models.VoucherExpired:
		return fmt.Errorf("cannot activate voucher in status %s", voucher.Status)
	}

	now := time.Now()
	voucher.Status = models.VoucherActive
	voucher.ActivatedAt = now
	voucher.ExpiresAt = now.Add(voucher.TimeLimit)
	return s.voucherRepo.Update(ctx, voucher)
}

// DeactivateVoucher transitions an active voucher to consumed
func (s *VoucherServiceImpl) DeactivateVoucher(ctx context.Context, code string) error {
	voucher, err := s.voucherRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}

	if voucher.Status == models.VoucherConsumed {
		return nil
	}
	voucher.Status = models.VoucherConsumed
	return s.voucherRepo.Update(ctx, voucher)
}

// RecordUsage folds live consumption accounting back into the ledger.
// Usage for a consumed voucher is dropped: nothing mutates after consumption.
func (s *VoucherServiceImpl) RecordUsage(ctx context.Context, code string, usedTime time.Duration, usedDataMB int64) error {
	voucher, err := s.voucherRepo.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	if voucher.Status == models.VoucherConsumed || voucher.Status == models.VoucherExpired {
		return nil
	}

	voucher.UsedTime = usedTime
	voucher.UsedDataMB = usedDataMB
	if voucher.RemainingTime() == 0 || (voucher.DataLimitMB > 0 && voucher.RemainingDataMB() == 0) {
		voucher.Status = models.VoucherConsumed
	}
	return s.voucherRepo.Update(ctx, voucher)
}

// GetVoucherByTransactionID returns the voucher minted for a transaction
func (s *VoucherServiceImpl) GetVoucherByTransactionID(ctx context.Context, transactionID string) (*models.Voucher, error) {
	return s.voucherRepo.FindByTransactionID(ctx, transactionID)
}
