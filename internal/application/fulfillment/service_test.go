package fulfillment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/memory"
	"github.com/shopacc-api/internal/pkg/credcrypt"
	"github.com/shopacc-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(_ context.Context, to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockAlerter struct{ mock.Mock }

func (m *mockAlerter) Alert(ctx context.Context, subject, message string) error {
	return m.Called(ctx, subject, message).Error(0)
}

// flakyProducts fails UpdateStatus until healed.
type flakyProducts struct {
	*repository.ProductRepo
	failStatus bool
}

func (p *flakyProducts) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	if p.failStatus {
		return domain.Upstream("update product", errors.New("throttled"))
	}
	return p.ProductRepo.UpdateStatus(ctx, id, status, at)
}

// cancelAwareStore fails once ctx is done, the way a networked store does.
type cancelAwareStore struct{ docstore.Store }

func (s cancelAwareStore) Get(ctx context.Context, c docstore.Collection, key string, out any, opts ...docstore.ReadOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Get(ctx, c, key, out, opts...)
}

func (s cancelAwareStore) QueryEqual(ctx context.Context, c docstore.Collection, field string, value any, out any, opts ...docstore.ReadOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.QueryEqual(ctx, c, field, value, out, opts...)
}

func (s cancelAwareStore) Put(ctx context.Context, c docstore.Collection, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Put(ctx, c, doc)
}

func (s cancelAwareStore) Update(ctx context.Context, c docstore.Collection, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Update(ctx, c, key, fields)
}

// --- fixture ---

var fixedNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc      Service
	products *flakyProducts
	failures *repository.FailureRepo
	mailer   *mockMailer
	alerter  *mockAlerter
	cipher   *credcrypt.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New())
}

func newFixtureOn(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	cipher, err := credcrypt.New("s3cret-key")
	require.NoError(t, err)
	f := &fixture{
		products: &flakyProducts{ProductRepo: repository.NewProductRepo(store)},
		failures: repository.NewFailureRepo(store),
		mailer:   &mockMailer{},
		alerter:  &mockAlerter{},
		cipher:   cipher,
	}
	f.svc = NewService(ServiceDeps{
		ProductRepo: f.products,
		FailureRepo: f.failures,
		Cipher:      cipher,
		Mailer:      f.mailer,
		Alerter:     f.alerter,
		ShopName:    "QTAT Shop",
		MaxAttempts: 3,
		Now:         func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) seedProduct(t *testing.T, keyID string) {
	t.Helper()
	acc := &domain.GameAccount{EncryptionKeyID: keyID}
	if keyID == credcrypt.KeyV1 || keyID == credcrypt.KeyV2 {
		var err error
		acc.Username, err = f.cipher.Encrypt("gamer_one", keyID)
		require.NoError(t, err)
		acc.Password, err = f.cipher.Encrypt("P@ssw0rd!", keyID)
		require.NoError(t, err)
	} else {
		acc.Username, acc.Password = "x", "y"
	}
	require.NoError(t, f.products.Put(context.Background(), &domain.Product{
		ProductID: "p1", ProductCode: "SKU1", Name: "Acc1", Price: 100000,
		Type: domain.ProductTypeAvailable, Status: domain.ProductInStock, GameAccount: acc,
	}))
}

func (f *fixture) productStatus(t *testing.T) string {
	t.Helper()
	p, err := f.products.Get(context.Background(), "p1")
	require.NoError(t, err)
	return p.Status
}

var paidOrder = &domain.Order{
	OrderID: "o1", OrderCode: "ORD1234567", ProductCode: "SKU1", ProductID: "p1",
	ProductName: "Acc1", Email: "b@x.com", Amount: 100000, Status: domain.OrderCompleted,
}

func carriesCredentials(body string) bool {
	return strings.Contains(body, "gamer_one") && strings.Contains(body, "P@ssw0rd!")
}

// --- Fulfill ---

func TestFulfill_HappyPath(t *testing.T) {
	for _, keyID := range []string{credcrypt.KeyV1, credcrypt.KeyV2} {
		t.Run(keyID, func(t *testing.T) {
			f := newFixture(t)
			f.seedProduct(t, keyID)
			f.mailer.On("SendEmail", "b@x.com", mock.MatchedBy(func(s string) bool {
				return strings.Contains(s, "ORD1234567")
			}), mock.MatchedBy(carriesCredentials)).Return(nil).Once()

			require.NoError(t, f.svc.Fulfill(context.Background(), paidOrder))
			assert.Equal(t, domain.ProductOutOfStock, f.productStatus(t))
			f.mailer.AssertExpectations(t)
			f.alerter.AssertNotCalled(t, "Alert", mock.Anything, mock.Anything, mock.Anything)

			fs, err := f.svc.ListFailures(context.Background())
			require.NoError(t, err)
			assert.Empty(t, fs)
		})
	}
}

func TestFulfill_ProductMissing(t *testing.T) {
	f := newFixture(t)
	f.alerter.On("Alert", mock.Anything, "Fulfillment failed: ORD1234567", mock.Anything).Return(nil).Once()

	err := f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	rec, err := f.failures.Get(context.Background(), "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.StepFetchProduct, rec.Step)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, domain.FailureOpen, rec.Status)
	f.alerter.AssertExpectations(t)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfill_UnsupportedKeyVersion(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, "v9")
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrUnsupportedKeyVersion)
	assert.ErrorIs(t, err, domain.ErrDecryptionFailed)
	assert.Equal(t, domain.ProductInStock, f.productStatus(t))
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestFulfill_WrongSecret(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	other, err := credcrypt.New("other")
	require.NoError(t, err)
	f.svc = NewService(ServiceDeps{
		ProductRepo: f.products, FailureRepo: f.failures, Cipher: other,
		Mailer: f.mailer, Alerter: f.alerter, Now: func() time.Time { return fixedNow },
	})
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err = f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrDecryptionFailed)
	assert.NotErrorIs(t, err, domain.ErrUnsupportedKeyVersion)
}

func TestFulfill_EmailFailureKeepsStock(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "step=send_email") && !carriesCredentials(msg)
	})).Return(nil).Once()

	err := f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrEmailDeliveryFailed)
	assert.Equal(t, domain.ProductInStock, f.productStatus(t))

	rec, err := f.failures.Get(context.Background(), "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.StepSendEmail, rec.Step)
	f.alerter.AssertExpectations(t)
}

func TestFulfill_MarkSoldFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	f.products.failStatus = true
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrStockUpdateFailed)

	rec, err := f.failures.Get(context.Background(), "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.StepMarkSold, rec.Step)
}

func TestFulfill_AlertFailureDoesNotMaskError(t *testing.T) {
	f := newFixture(t)
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("sns down"))

	err := f.svc.Fulfill(context.Background(), paidOrder)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestFulfill_CancelledCallerStillQueuesFailure(t *testing.T) {
	f := newFixtureOn(t, cancelAwareStore{memory.New()})
	f.seedProduct(t, credcrypt.KeyV2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.mailer.On("SendEmail", "b@x.com", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(nil).Once()
	liveCtx := mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
	f.alerter.On("Alert", liveCtx, "Fulfillment failed: ORD1234567", mock.Anything).Return(nil).Once()

	err := f.svc.Fulfill(ctx, paidOrder)
	assert.ErrorIs(t, err, domain.ErrStockUpdateFailed)

	rec, err := f.failures.Get(context.Background(), "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, domain.StepMarkSold, rec.Step)
	f.alerter.AssertExpectations(t)

	// The queued retry finishes the job without mailing the buyer again.
	require.NoError(t, f.svc.Retry(context.Background(), "ORD1234567"))
	assert.Equal(t, domain.ProductOutOfStock, f.productStatus(t))
	f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
}

// --- Retry ---

func TestRetry_MarkSoldDoesNotResendEmail(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	f.products.failStatus = true
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.Error(t, f.svc.Fulfill(context.Background(), paidOrder))

	f.products.failStatus = false
	require.NoError(t, f.svc.Retry(context.Background(), "ORD1234567"))

	f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
	assert.Equal(t, domain.ProductOutOfStock, f.productStatus(t))
	_, err := f.failures.Get(context.Background(), "ORD1234567")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetry_EmailStepResends(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()
	f.alerter.On("Alert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.Error(t, f.svc.Fulfill(context.Background(), paidOrder))

	f.mailer.On("SendEmail", "b@x.com", mock.Anything, mock.MatchedBy(carriesCredentials)).Return(nil).Once()
	require.NoError(t, f.svc.Retry(context.Background(), "ORD1234567"))
	assert.Equal(t, domain.ProductOutOfStock, f.productStatus(t))
	f.mailer.AssertExpectations(t)
}

func TestRetry_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Retry(context.Background(), "ORD0000000")
	assert.ErrorIs(t, err, domain.ErrFailureNotFound)
}

func TestRetry_AbandonsAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.alerter.On("Alert", mock.Anything, "Fulfillment failed: ORD1234567", mock.Anything).Return(nil).Once()
	f.alerter.On("Alert", mock.Anything, "Fulfillment abandoned: ORD1234567", mock.Anything).Return(nil).Once()
	ctx := context.Background()

	require.Error(t, f.svc.Fulfill(ctx, paidOrder))
	require.Error(t, f.svc.Retry(ctx, "ORD1234567"))
	rec, err := f.failures.Get(ctx, "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, domain.FailureOpen, rec.Status)

	require.Error(t, f.svc.Retry(ctx, "ORD1234567"))
	rec, err = f.failures.Get(ctx, "ORD1234567")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, domain.FailureAbandoned, rec.Status)
	f.alerter.AssertExpectations(t)

	// The sweep leaves abandoned records alone.
	sum, err := f.svc.RetryOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Attempted)
}

func TestRetryOpen(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	ctx := context.Background()
	for _, rec := range []*domain.FulfillmentFailure{
		{OrderCode: "ORD1000001", ProductCode: "SKU1", Email: "a@x.com", Step: domain.StepSendEmail, Attempts: 1, Status: domain.FailureOpen},
		{OrderCode: "ORD1000002", ProductCode: "GONE", Email: "c@x.com", Step: domain.StepFetchProduct, Attempts: 1, Status: domain.FailureOpen},
		{OrderCode: "ORD1000003", ProductCode: "SKU1", Email: "d@x.com", Step: domain.StepSendEmail, Attempts: 9, Status: domain.FailureAbandoned},
	} {
		require.NoError(t, f.failures.Put(ctx, rec))
	}
	f.mailer.On("SendEmail", "a@x.com", mock.Anything, mock.Anything).Return(nil).Once()

	sum, err := f.svc.RetryOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Attempted: 2, Succeeded: 1, Failed: 1}, sum)

	left, err := f.svc.ListFailures(ctx)
	require.NoError(t, err)
	var codes []string
	for _, l := range left {
		codes = append(codes, l.OrderCode)
	}
	assert.ElementsMatch(t, []string{"ORD1000002", "ORD1000003"}, codes)
	f.mailer.AssertExpectations(t)
}

func TestRetry_HeldByAnotherRun(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	ctx := context.Background()
	require.NoError(t, f.failures.Put(ctx, &domain.FulfillmentFailure{
		OrderCode: "ORD1234567", ProductCode: "SKU1", Email: "b@x.com", Step: domain.StepSendEmail,
		Attempts: 2, Status: domain.FailureRetrying, UpdatedAt: fixedNow.Add(-time.Minute),
	}))

	assert.ErrorIs(t, f.svc.Retry(ctx, "ORD1234567"), domain.ErrRetryInProgress)
	sum, err := f.svc.RetryOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Skipped: 1}, sum)
	f.mailer.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryOpen_TakesOverLapsedClaim(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	ctx := context.Background()
	require.NoError(t, f.failures.Put(ctx, &domain.FulfillmentFailure{
		OrderCode: "ORD1234567", ProductCode: "SKU1", Email: "b@x.com", Step: domain.StepSendEmail,
		Attempts: 2, Status: domain.FailureRetrying, UpdatedAt: fixedNow.Add(-time.Hour),
	}))
	f.mailer.On("SendEmail", "b@x.com", mock.Anything, mock.Anything).Return(nil).Once()

	sum, err := f.svc.RetryOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Attempted: 1, Succeeded: 1}, sum)
	f.mailer.AssertExpectations(t)
}

func TestRetry_ConcurrentRunsMailOnce(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(t, credcrypt.KeyV2)
	ctx := context.Background()
	require.NoError(t, f.failures.Put(ctx, &domain.FulfillmentFailure{
		OrderCode: "ORD1234567", ProductCode: "SKU1", Email: "b@x.com", Step: domain.StepSendEmail,
		Attempts: 1, Status: domain.FailureOpen,
	}))
	f.mailer.On("SendEmail", "b@x.com", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				errs[i] = f.svc.Retry(ctx, "ORD1234567")
				return
			}
			_, errs[i] = f.svc.RetryOpen(ctx)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, domain.ErrRetryInProgress) || errors.Is(err, domain.ErrFailureNotFound), err)
		}
	}
	f.mailer.AssertNumberOfCalls(t, "SendEmail", 1)
	assert.Equal(t, domain.ProductOutOfStock, f.productStatus(t))
}

func TestRetryOpen_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.failures.Put(context.Background(), &domain.FulfillmentFailure{OrderCode: "ORD1", Status: domain.FailureOpen}))
	cancel()

	_, err := f.svc.RetryOpen(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
