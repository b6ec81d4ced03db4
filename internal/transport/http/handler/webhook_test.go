package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopacc-api/internal/application/payment"
	"github.com/shopacc-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestWebhookHandler_PassesRawBody(t *testing.T) {
	body := `{"id":1,"code":"ORD1234567","transferType":"in","transferAmount":100000}`
	svc := new(mockPaymentSvc)
	svc.On("HandleWebhook", mock.Anything, []byte(body)).Return(&payment.Result{OrderCode: "ORD1234567"}, nil)

	rr := httptest.NewRecorder()
	NewWebhookHandler(svc).Payment(rr, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rr.Code)
	env, _ := decodeEnvelope(t, rr)
	assert.True(t, env.Success)
	assert.Equal(t, "payment confirmed", env.Message)
	svc.AssertExpectations(t)
}

func TestWebhookHandler_AlreadyProcessed(t *testing.T) {
	svc := new(mockPaymentSvc)
	svc.On("HandleWebhook", mock.Anything, mock.Anything).Return(&payment.Result{OrderCode: "ORD1234567", AlreadyProcessed: true}, nil)

	rr := httptest.NewRecorder()
	NewWebhookHandler(svc).Payment(rr, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusOK, rr.Code)
	env, data := decodeEnvelope(t, rr)
	assert.Equal(t, "order already processed", env.Message)
	assert.Contains(t, string(data), `"alreadyProcessed":true`)
}

func TestWebhookHandler_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrInvalidPayload, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", domain.ErrEmailDeliveryFailed, assert.AnError), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := new(mockPaymentSvc)
		svc.On("HandleWebhook", mock.Anything, mock.Anything).Return(nil, tc.err)
		rr := httptest.NewRecorder()
		NewWebhookHandler(svc).Payment(rr, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(`{}`)))
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestWebhookHandler_UpstreamKeepsCode(t *testing.T) {
	svc := new(mockPaymentSvc)
	svc.On("HandleWebhook", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %w", domain.ErrEmailDeliveryFailed, assert.AnError))

	rr := httptest.NewRecorder()
	NewWebhookHandler(svc).Payment(rr, httptest.NewRequest(http.MethodPost, "/payment-webhook", strings.NewReader(`{}`)))

	env, _ := decodeEnvelope(t, rr)
	assert.Equal(t, "EMAIL_DELIVERY_FAILED", env.Code)
	assert.Equal(t, "internal server error", env.Message)
}
