package repository

import (
	"context"
	"time"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
)

// OTPRepo stores one registration record per email.
type OTPRepo struct {
	store docstore.Store
}

func NewOTPRepo(store docstore.Store) *OTPRepo { return &OTPRepo{store: store} }

func (r *OTPRepo) Get(ctx context.Context, email string) (*domain.OTPRecord, error) {
	var rec domain.OTPRecord
	if err := r.store.Get(ctx, docstore.OTPs, email, &rec); err != nil {
		return nil, translate("get", "otp record", err)
	}
	return &rec, nil
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	return translate("put", "otp record", r.store.Put(ctx, docstore.OTPs, rec))
}

func (r *OTPRepo) Update(ctx context.Context, email string, fields map[string]any) error {
	return translate("update", "otp record", r.store.Update(ctx, docstore.OTPs, email, fields))
}

// IncrementAttempts bumps the failed-attempt counter only if it still holds
// the value the caller observed.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, email string, observed int) error {
	err := r.store.UpdateIf(ctx, docstore.OTPs, email, docstore.Eq("attempts", observed),
		map[string]any{"attempts": observed + 1})
	return translate("increment attempts", "otp record", err)
}

func (r *OTPRepo) Delete(ctx context.Context, email string) error {
	return translate("delete", "otp record", r.store.Delete(ctx, docstore.OTPs, email))
}

// DeleteExpired removes the record only while it still carries expiresAt,
// so a record re-issued since the caller read it survives.
func (r *OTPRepo) DeleteExpired(ctx context.Context, email string, expiresAt time.Time) error {
	err := r.store.DeleteIf(ctx, docstore.OTPs, email, docstore.Eq("expires_at", expiresAt))
	return translate("delete expired", "otp record", err)
}

func (r *OTPRepo) List(ctx context.Context) ([]domain.OTPRecord, error) {
	var recs []domain.OTPRecord
	if err := r.store.List(ctx, docstore.OTPs, &recs); err != nil {
		return nil, translate("list", "otp records", err)
	}
	return recs, nil
}
