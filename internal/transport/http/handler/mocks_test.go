package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/shopacc-api/internal/application/fulfillment"
	"github.com/shopacc-api/internal/application/order"
	"github.com/shopacc-api/internal/application/otp"
	"github.com/shopacc-api/internal/application/payment"
	"github.com/shopacc-api/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOTPSvc struct{ mock.Mock }

func (m *mockOTPSvc) Register(ctx context.Context, req otp.RegisterRequest) (*otp.RegisterResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*otp.RegisterResult)
	return res, args.Error(1)
}

func (m *mockOTPSvc) VerifyOTP(ctx context.Context, req otp.VerifyRequest) (*otp.VerifyResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*otp.VerifyResult)
	return res, args.Error(1)
}

func (m *mockOTPSvc) ResendOTP(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockOTPSvc) GetResendCountdown(ctx context.Context, email string) (int, error) {
	args := m.Called(ctx, email)
	return args.Int(0), args.Error(1)
}

func (m *mockOTPSvc) IsEmailVerified(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockOTPSvc) CompleteRegistration(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockOTPSvc) EmailStatus(ctx context.Context, email string) (domain.EmailState, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(domain.EmailState), args.Error(1)
}

func (m *mockOTPSvc) Cleanup(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockOTPSvc) PurgeExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockOrderSvc struct{ mock.Mock }

func (m *mockOrderSvc) CreateOrder(ctx context.Context, req order.CreateOrderRequest) (*order.CreateOrderResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*order.CreateOrderResult)
	return res, args.Error(1)
}

func (m *mockOrderSvc) ProcessWebhook(ctx context.Context, req order.WebhookRequest) (*order.WebhookResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*order.WebhookResult)
	return res, args.Error(1)
}

func (m *mockOrderSvc) GetOrderStatus(ctx context.Context, orderCode string) (*domain.Order, error) {
	args := m.Called(ctx, orderCode)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

type mockPaymentSvc struct{ mock.Mock }

func (m *mockPaymentSvc) HandleWebhook(ctx context.Context, body []byte) (*payment.Result, error) {
	args := m.Called(ctx, body)
	res, _ := args.Get(0).(*payment.Result)
	return res, args.Error(1)
}

type mockFulfillmentSvc struct{ mock.Mock }

func (m *mockFulfillmentSvc) Fulfill(ctx context.Context, o *domain.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockFulfillmentSvc) Retry(ctx context.Context, orderCode string) error {
	return m.Called(ctx, orderCode).Error(0)
}

func (m *mockFulfillmentSvc) RetryOpen(ctx context.Context) (fulfillment.RetrySummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(fulfillment.RetrySummary), args.Error(1)
}

func (m *mockFulfillmentSvc) ListFailures(ctx context.Context) ([]domain.FulfillmentFailure, error) {
	args := m.Called(ctx)
	f, _ := args.Get(0).([]domain.FulfillmentFailure)
	return f, args.Error(1)
}

// decodeEnvelope parses a response body, leaving Data as raw JSON.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (Envelope, json.RawMessage) {
	t.Helper()
	var raw struct {
		Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	return raw.Envelope, raw.Data
}
