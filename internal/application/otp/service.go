// Package otp owns the email registration state machine: one record per
// email moving available → pending → verified_pending → completed.
package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	"github.com/shopacc-api/internal/pkg/logging"
	"github.com/shopacc-api/internal/pkg/mailtmpl"
	pkgtoken "github.com/shopacc-api/internal/pkg/token"
	"github.com/shopacc-api/internal/pkg/validate"
	"github.com/shopacc-api/internal/repository"
	"go.uber.org/zap"
)

const minUsernameLen = 3

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type RegisterResult struct {
	Email            string `json:"email"`
	IsResend         bool   `json:"isResend"`
	RemainingSeconds int    `json:"remainingSeconds,omitempty"`
}

type VerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type VerifyResult struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	VerifyOTP(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	ResendOTP(ctx context.Context, email string) error
	GetResendCountdown(ctx context.Context, email string) (int, error)
	IsEmailVerified(ctx context.Context, email string) (bool, error)
	CompleteRegistration(ctx context.Context, email string) error
	EmailStatus(ctx context.Context, email string) (domain.EmailState, error)
	Cleanup(ctx context.Context, email string) error
	PurgeExpired(ctx context.Context) (int, error)
}

// OTPStore is the persistence the engine needs. *repository.OTPRepo
// satisfies it.
type OTPStore interface {
	Get(ctx context.Context, email string) (*domain.OTPRecord, error)
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Update(ctx context.Context, email string, fields map[string]any) error
	IncrementAttempts(ctx context.Context, email string, observed int) error
	Delete(ctx context.Context, email string) error
	DeleteExpired(ctx context.Context, email string, expiresAt time.Time) error
	List(ctx context.Context) ([]domain.OTPRecord, error)
}

type UserDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

type ServiceDeps struct {
	OTPRepo     OTPStore
	UserRepo    UserDirectory
	Mailer      Mailer
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	ShopName    string
	TTL         time.Duration
	Cooldown    time.Duration
	MaxAttempts int
	Now         func() time.Time
	NewCode     func() (string, error)
}

type service struct {
	otps        OTPStore
	users       UserDirectory
	mailer      Mailer
	logger      *zap.Logger
	metrics     *metrics.Metrics
	shopName    string
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int
	now         func() time.Time
	newCode     func() (string, error)
}

func NewService(d ServiceDeps) Service {
	s := &service{
		otps:        d.OTPRepo,
		users:       d.UserRepo,
		mailer:      d.Mailer,
		logger:      d.Logger,
		metrics:     d.Metrics,
		shopName:    d.ShopName,
		ttl:         d.TTL,
		cooldown:    d.Cooldown,
		maxAttempts: d.MaxAttempts,
		now:         d.Now,
		newCode:     d.NewCode,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = 10 * time.Minute
	}
	if s.cooldown <= 0 {
		s.cooldown = 60 * time.Second
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 3
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = pkgtoken.NewOTP
	}
	return s
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := strings.TrimSpace(req.Email)
	username := strings.TrimSpace(req.Username)
	if email == "" || username == "" {
		return nil, domain.ErrMissingFields
	}
	if !validate.Email(email) {
		return nil, domain.ErrInvalidEmail
	}
	if utf8.RuneCountInString(username) < minUsernameLen {
		return nil, domain.ErrInvalidUsername
	}

	log := logging.FromContext(ctx, s.logger).With(zap.String("email", email))
	state, err := s.EmailStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	log.Debug("register attempt", zap.String("status", string(state.Status)))

	switch state.Status {
	case domain.EmailRegisteredInUsers, domain.EmailCompleted:
		return nil, domain.ErrAlreadyRegistered
	case domain.EmailVerifiedPending:
		return nil, domain.ErrRegistrationInProgress
	case domain.EmailPending:
		remaining := s.cooldownRemaining(state.Record)
		if remaining > 0 {
			return &RegisterResult{Email: email, IsResend: true, RemainingSeconds: remaining}, nil
		}
		if err := s.regenerate(ctx, state.Record); err != nil {
			return nil, err
		}
		return &RegisterResult{Email: email, IsResend: true}, nil
	case domain.EmailExpired:
		if err := s.otps.Delete(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		log.Info("purged expired otp record before re-registration")
	}

	code, err := s.newCode()
	if err != nil {
		return nil, domain.Upstream("generate otp", err)
	}
	now := s.now().UTC()
	rec := &domain.OTPRecord{
		Email:     email,
		OTP:       code,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.otps.Put(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.sendCode(ctx, rec); err != nil {
		// A record nobody received a code for would block re-registration
		// until it expires.
		if delErr := s.otps.Delete(ctx, email); delErr != nil {
			log.Warn("failed to remove otp record after send failure", zap.Error(delErr))
		}
		return nil, err
	}
	s.metrics.OTPSent("register")
	log.Info("otp sent")
	return &RegisterResult{Email: email, IsResend: false}, nil
}

func (s *service) VerifyOTP(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	email := strings.TrimSpace(req.Email)
	code := strings.TrimSpace(req.OTP)
	if email == "" || code == "" {
		return nil, domain.ErrMissingFields
	}
	log := logging.FromContext(ctx, s.logger).With(zap.String("email", email))

	rec, err := s.get(ctx, email)
	if err != nil {
		return nil, err
	}

	if s.now().After(rec.ExpiresAt) {
		s.purge(ctx, log, email)
		s.metrics.OTPVerify("expired")
		return nil, domain.ErrOTPExpired
	}
	if rec.Attempts >= s.maxAttempts {
		s.purge(ctx, log, email)
		s.metrics.OTPVerify("too_many_attempts")
		return nil, domain.ErrTooManyAttempts
	}
	if !pkgtoken.Equal(rec.OTP, code) {
		err := s.otps.IncrementAttempts(ctx, email, rec.Attempts)
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrConcurrentUpdate), errors.Is(err, domain.ErrNotFound):
			// Another guess already moved the counter or purged the record.
			log.Debug("attempt counter raced", zap.Error(err))
		default:
			return nil, err
		}
		s.metrics.OTPVerify("invalid")
		return nil, domain.ErrInvalidCode
	}

	now := s.now().UTC()
	if err := s.otps.Update(ctx, email, map[string]any{"verified": true, "verified_at": now}); err != nil {
		return nil, err
	}
	s.metrics.OTPVerify("ok")
	log.Info("email verified")
	return &VerifyResult{Email: email, Username: rec.Username}, nil
}

func (s *service) ResendOTP(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ErrMissingFields
	}
	rec, err := s.get(ctx, email)
	if err != nil {
		return err
	}
	if remaining := s.cooldownRemaining(rec); remaining > 0 {
		return &domain.CooldownError{Remaining: remaining}
	}
	return s.regenerate(ctx, rec)
}

func (s *service) GetResendCountdown(ctx context.Context, email string) (int, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, domain.ErrMissingFields
	}
	rec, err := s.otps.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.cooldownRemaining(rec), nil
}

func (s *service) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, domain.ErrMissingFields
	}
	state, err := s.EmailStatus(ctx, email)
	if err != nil {
		return false, err
	}
	return state.Verified(), nil
}

func (s *service) CompleteRegistration(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ErrMissingFields
	}
	state, err := s.EmailStatus(ctx, email)
	if err != nil {
		return err
	}
	if !state.Verified() {
		return domain.ErrNotVerified
	}
	// Already a user, or already completed: nothing left to record.
	if state.Record == nil || state.Record.Completed {
		return nil
	}
	now := s.now().UTC()
	if err := s.otps.Update(ctx, email, map[string]any{"completed": true, "completed_at": now}); err != nil {
		return err
	}
	logging.FromContext(ctx, s.logger).Info("registration completed", zap.String("email", email))
	return nil
}

// EmailStatus resolves the registration state. Each step short-circuits:
// users store, missing record, completed, verified, unexpired, expired.
func (s *service) EmailStatus(ctx context.Context, email string) (domain.EmailState, error) {
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return domain.EmailState{}, err
	}
	if exists {
		return domain.EmailState{Status: domain.EmailRegisteredInUsers}, nil
	}

	rec, err := s.otps.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.EmailState{Status: domain.EmailAvailable}, nil
	}
	if err != nil {
		return domain.EmailState{}, err
	}

	switch now := s.now(); {
	case rec.Completed:
		return domain.EmailState{Status: domain.EmailCompleted, Record: rec}, nil
	case rec.Verified:
		return domain.EmailState{Status: domain.EmailVerifiedPending, Record: rec}, nil
	case !now.After(rec.ExpiresAt):
		return domain.EmailState{
			Status:           domain.EmailPending,
			RemainingSeconds: int(rec.ExpiresAt.Sub(now) / time.Second),
			Record:           rec,
		}, nil
	default:
		return domain.EmailState{Status: domain.EmailExpired, Record: rec}, nil
	}
}

func (s *service) Cleanup(ctx context.Context, email string) error {
	err := s.otps.Delete(ctx, strings.TrimSpace(email))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

// PurgeExpired deletes unverified records past their expiry. Verified and
// completed records are kept.
func (s *service) PurgeExpired(ctx context.Context) (int, error) {
	recs, err := s.otps.List(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	purged := 0
	var errs []error
	for i := range recs {
		rec := &recs[i]
		if rec.Verified || rec.Completed || !now.After(rec.ExpiresAt) {
			continue
		}
		err := s.otps.DeleteExpired(ctx, rec.Email, rec.ExpiresAt)
		switch {
		case err == nil:
			purged++
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, repository.ErrConcurrentUpdate):
			// gone or re-issued since the listing
		default:
			errs = append(errs, fmt.Errorf("purge %s: %w", rec.Email, err))
		}
	}
	return purged, errors.Join(errs...)
}

func (s *service) get(ctx context.Context, email string) (*domain.OTPRecord, error) {
	rec, err := s.otps.Get(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrOTPNotFound
	}
	return rec, err
}

// regenerate issues a new code for rec, resets its attempts and restarts
// both the expiry and the resend cooldown.
func (s *service) regenerate(ctx context.Context, rec *domain.OTPRecord) error {
	code, err := s.newCode()
	if err != nil {
		return domain.Upstream("generate otp", err)
	}
	now := s.now().UTC()
	fields := map[string]any{
		"otp":        code,
		"created_at": now,
		"expires_at": now.Add(s.ttl),
		"attempts":   0,
	}
	if err := s.otps.Update(ctx, rec.Email, fields); err != nil {
		return err
	}
	rec.OTP, rec.CreatedAt, rec.ExpiresAt, rec.Attempts = code, now, now.Add(s.ttl), 0
	if err := s.sendCode(ctx, rec); err != nil {
		return err
	}
	s.metrics.OTPSent("resend")
	logging.FromContext(ctx, s.logger).Info("otp resent", zap.String("email", rec.Email))
	return nil
}

func (s *service) sendCode(ctx context.Context, rec *domain.OTPRecord) error {
	subject, body, err := mailtmpl.OTP(mailtmpl.OTPData{
		ShopName:       s.shopName,
		Username:       rec.Username,
		Code:           rec.OTP,
		ExpiresMinutes: int(s.ttl / time.Minute),
	})
	if err != nil {
		return domain.Upstream("render otp email", err)
	}
	if err := s.mailer.SendEmail(ctx, rec.Email, subject, body); err != nil {
		logging.FromContext(ctx, s.logger).Error("otp email failed", zap.String("email", rec.Email), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrEmailDeliveryFailed, err)
	}
	return nil
}

// cooldownRemaining is whole seconds until a resend is allowed, never
// negative.
func (s *service) cooldownRemaining(rec *domain.OTPRecord) int {
	elapsed := int(s.now().Sub(rec.CreatedAt) / time.Second)
	if remaining := int(s.cooldown/time.Second) - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

func (s *service) purge(ctx context.Context, log *zap.Logger, email string) {
	if err := s.otps.Delete(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("failed to purge otp record", zap.Error(err))
	}
}
