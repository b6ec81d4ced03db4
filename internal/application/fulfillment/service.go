// Package fulfillment delivers purchased credentials once an order is paid:
// fetch the product, decrypt its account, email it, mark it sold. A run that
// stops part way is queued and resumed from the step that failed.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	"github.com/shopacc-api/internal/pkg/credcrypt"
	"github.com/shopacc-api/internal/pkg/logging"
	"github.com/shopacc-api/internal/pkg/mailtmpl"
	"github.com/shopacc-api/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RetrySummary counts the outcome of one RetryOpen sweep. Skipped counts
// failures another run was already retrying.
type RetrySummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

const (
	// claimLease is how long a retry may hold a failure before another run
	// may take it over.
	claimLease = 15 * time.Minute
	// bookkeepingTimeout bounds queue and alert writes made after the
	// caller's context may already be gone.
	bookkeepingTimeout = 10 * time.Second
)

type Service interface {
	Fulfill(ctx context.Context, o *domain.Order) error
	Retry(ctx context.Context, orderCode string) error
	RetryOpen(ctx context.Context) (RetrySummary, error)
	ListFailures(ctx context.Context) ([]domain.FulfillmentFailure, error)
}

type ProductStore interface {
	GetByCode(ctx context.Context, code string) (*domain.Product, error)
	UpdateStatus(ctx context.Context, productID, status string, at time.Time) error
}

// FailureStore is satisfied by *repository.FailureRepo.
type FailureStore interface {
	Get(ctx context.Context, orderCode string) (*domain.FulfillmentFailure, error)
	Put(ctx context.Context, f *domain.FulfillmentFailure) error
	Claim(ctx context.Context, orderCode string, observedAttempts int, at time.Time) error
	Delete(ctx context.Context, orderCode string) error
	List(ctx context.Context) ([]domain.FulfillmentFailure, error)
}

type Decrypter interface {
	Decrypt(ciphertext, keyID string) (string, error)
}

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

type ServiceDeps struct {
	ProductRepo ProductStore
	FailureRepo FailureStore
	Cipher      Decrypter
	Mailer      Mailer
	Alerter     Alerter
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	ShopName    string
	MaxAttempts int
	Now         func() time.Time
}

type service struct {
	products    ProductStore
	failures    FailureStore
	cipher      Decrypter
	mailer      Mailer
	alerter     Alerter
	logger      *zap.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	shopName    string
	maxAttempts int
	now         func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{
		products:    d.ProductRepo,
		failures:    d.FailureRepo,
		cipher:      d.Cipher,
		mailer:      d.Mailer,
		alerter:     d.Alerter,
		logger:      d.Logger,
		metrics:     d.Metrics,
		tracer:      d.Tracer,
		shopName:    d.ShopName,
		maxAttempts: d.MaxAttempts,
		now:         d.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/shopacc-api/internal/application/fulfillment")
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 5
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// stepOrder ranks steps so a resumed run can skip what already succeeded.
var stepOrder = map[domain.FulfillmentStep]int{
	domain.StepFetchProduct: 0,
	domain.StepDecrypt:      1,
	domain.StepSendEmail:    2,
	domain.StepMarkSold:     3,
}

// Fulfill runs every step for a freshly completed order. On failure the
// order is queued for retry and operators are alerted before the error is
// returned, even when ctx has been cancelled.
func (s *service) Fulfill(ctx context.Context, o *domain.Order) error {
	step, err := s.run(ctx, o, domain.StepFetchProduct)
	if err == nil {
		return nil
	}
	now := s.now().UTC()
	f := &domain.FulfillmentFailure{
		OrderCode:   o.OrderCode,
		OrderID:     o.OrderID,
		ProductCode: o.ProductCode,
		ProductID:   o.ProductID,
		ProductName: o.ProductName,
		Email:       o.Email,
		Amount:      o.Amount,
		Step:        step,
		LastError:   err.Error(),
		Attempts:    1,
		Status:      domain.FailureOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.record(ctx, f)
	s.alert(ctx, "Fulfillment failed", f)
	return err
}

func (s *service) Retry(ctx context.Context, orderCode string) error {
	f, err := s.failures.Get(ctx, orderCode)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrFailureNotFound
	}
	if err != nil {
		return err
	}
	if s.held(f) {
		return domain.ErrRetryInProgress
	}
	return s.retry(ctx, f)
}

// RetryOpen resumes every open failure and any whose retry lease has
// lapsed. Abandoned ones are left for an operator to retry by hand.
func (s *service) RetryOpen(ctx context.Context) (RetrySummary, error) {
	var sum RetrySummary
	fs, err := s.failures.List(ctx)
	if err != nil {
		return sum, err
	}
	for i := range fs {
		switch {
		case fs[i].Status == domain.FailureAbandoned:
			continue
		case s.held(&fs[i]):
			sum.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		err := s.retry(ctx, &fs[i])
		switch {
		case errors.Is(err, domain.ErrRetryInProgress), errors.Is(err, domain.ErrFailureNotFound):
			sum.Skipped++
		case err != nil:
			sum.Attempted++
			sum.Failed++
		default:
			sum.Attempted++
			sum.Succeeded++
		}
	}
	return sum, nil
}

// held reports whether another run is retrying f and its lease is live.
func (s *service) held(f *domain.FulfillmentFailure) bool {
	return f.Status == domain.FailureRetrying && s.now().Sub(f.UpdatedAt) < claimLease
}

func (s *service) ListFailures(ctx context.Context) ([]domain.FulfillmentFailure, error) {
	return s.failures.List(ctx)
}

// retry claims f and resumes it from its failed step. Only the run that wins
// the claim sends anything.
func (s *service) retry(ctx context.Context, f *domain.FulfillmentFailure) error {
	log := logging.FromContext(ctx, s.logger).With(zap.String("order_code", f.OrderCode))

	prev := f.Status
	if prev == domain.FailureRetrying {
		// lease lapsed; the earlier run never reported back
		prev = domain.FailureOpen
	}
	now := s.now().UTC()
	if err := s.failures.Claim(ctx, f.OrderCode, f.Attempts, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrConcurrentUpdate):
			log.Info("fulfillment retry already claimed")
			return domain.ErrRetryInProgress
		case errors.Is(err, domain.ErrNotFound):
			return domain.ErrFailureNotFound
		}
		return err
	}
	f.Attempts++
	f.Status = domain.FailureRetrying
	f.UpdatedAt = now
	log.Info("retrying fulfillment", zap.String("from_step", string(f.Step)), zap.Int("attempts", f.Attempts))

	step, err := s.run(ctx, f.Order(), f.Step)
	if err == nil {
		bctx, cancel := detached(ctx)
		defer cancel()
		if delErr := s.failures.Delete(bctx, f.OrderCode); delErr != nil && !errors.Is(delErr, domain.ErrNotFound) {
			log.Error("fulfilled but failed to clear failure record", zap.Error(delErr))
		}
		log.Info("fulfillment recovered")
		return nil
	}

	f.Step = step
	f.LastError = err.Error()
	f.UpdatedAt = s.now().UTC()
	f.Status = prev
	if prev == domain.FailureOpen && f.Attempts >= s.maxAttempts {
		f.Status = domain.FailureAbandoned
		s.record(ctx, f)
		s.alert(ctx, "Fulfillment abandoned", f)
		return err
	}
	s.record(ctx, f)
	return err
}

// run executes the pipeline starting at from and returns the step that
// failed.
func (s *service) run(ctx context.Context, o *domain.Order, from domain.FulfillmentStep) (domain.FulfillmentStep, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.run", trace.WithAttributes(
		attribute.String("order.code", o.OrderCode),
		attribute.String("product.code", o.ProductCode),
		attribute.String("fulfillment.from_step", string(from)),
	))
	defer span.End()

	log := logging.FromContext(ctx, s.logger).With(zap.String("order_code", o.OrderCode))
	start := s.now()

	step, err := s.steps(ctx, span, o, stepOrder[from])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step))
		s.metrics.Fulfillment("failed", string(step), s.now().Sub(start))
		log.Error("fulfillment failed", zap.String("step", string(step)), zap.Error(err))
		return step, err
	}
	span.SetStatus(codes.Ok, "")
	s.metrics.Fulfillment("ok", "", s.now().Sub(start))
	log.Info("fulfillment completed", zap.String("email", o.Email))
	return "", nil
}

func (s *service) steps(ctx context.Context, span trace.Span, o *domain.Order, from int) (domain.FulfillmentStep, error) {
	span.AddEvent(string(domain.StepFetchProduct))
	p, err := s.products.GetByCode(ctx, o.ProductCode)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StepFetchProduct, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.StepFetchProduct, err
	}

	if from <= stepOrder[domain.StepSendEmail] {
		span.AddEvent(string(domain.StepDecrypt))
		username, password, err := s.decrypt(p.GameAccount)
		if err != nil {
			return domain.StepDecrypt, err
		}

		span.AddEvent(string(domain.StepSendEmail))
		if err := s.sendAccount(ctx, o, username, password); err != nil {
			return domain.StepSendEmail, err
		}
	}

	span.AddEvent(string(domain.StepMarkSold))
	if err := s.products.UpdateStatus(ctx, p.ProductID, domain.ProductOutOfStock, s.now().UTC()); err != nil {
		return domain.StepMarkSold, fmt.Errorf("%w: %w", domain.ErrStockUpdateFailed, err)
	}
	return "", nil
}

func (s *service) decrypt(a *domain.GameAccount) (username, password string, err error) {
	if a == nil {
		return "", "", fmt.Errorf("%w: product has no game account", domain.ErrDecryptionFailed)
	}
	if username, err = s.cipher.Decrypt(a.Username, a.EncryptionKeyID); err != nil {
		return "", "", decryptError("username", err)
	}
	if password, err = s.cipher.Decrypt(a.Password, a.EncryptionKeyID); err != nil {
		return "", "", decryptError("password", err)
	}
	return username, password, nil
}

func decryptError(field string, err error) error {
	if errors.Is(err, credcrypt.ErrUnsupportedKeyVersion) {
		return fmt.Errorf("%w: %s: %w", domain.ErrUnsupportedKeyVersion, field, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrDecryptionFailed, field, err)
}

func (s *service) sendAccount(ctx context.Context, o *domain.Order, username, password string) error {
	subject, body, err := mailtmpl.GameAccount(mailtmpl.GameAccountData{
		ShopName:    s.shopName,
		OrderCode:   o.OrderCode,
		ProductName: o.ProductName,
		Amount:      o.Amount,
		Username:    username,
		Password:    password,
	})
	if err != nil {
		return domain.Upstream("render account email", err)
	}
	if err := s.mailer.SendEmail(ctx, o.Email, subject, body); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmailDeliveryFailed, err)
	}
	return nil
}

// detached outlives ctx's cancellation so a failure is still queued and
// alerted after the caller has gone away.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
}

// record persists f. A failure to queue is logged loudly; the caller still
// returns the original error, and the alert carries the details.
func (s *service) record(ctx context.Context, f *domain.FulfillmentFailure) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := s.failures.Put(ctx, f); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to queue fulfillment failure",
			zap.String("order_code", f.OrderCode), zap.Error(err))
	}
}

func (s *service) alert(ctx context.Context, subject string, f *domain.FulfillmentFailure) {
	if s.alerter == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	msg := fmt.Sprintf("order=%s product=%s email=%s step=%s attempts=%d status=%s error=%s",
		f.OrderCode, f.ProductCode, f.Email, f.Step, f.Attempts, f.Status, f.LastError)
	if err := s.alerter.Alert(ctx, subject+": "+f.OrderCode, msg); err != nil {
		logging.FromContext(ctx, s.logger).Error("failed to publish alert",
			zap.String("order_code", f.OrderCode), zap.Error(err))
	}
}
