package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopacc-api/internal/application/fulfillment"
	"github.com/shopacc-api/internal/application/order"
	"github.com/shopacc-api/internal/application/otp"
	"github.com/shopacc-api/internal/application/payment"
	"github.com/shopacc-api/internal/application/product"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	"github.com/shopacc-api/internal/transport/http/handler"
	"github.com/shopacc-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// Deps holds the services and infrastructure the router exposes.
type Deps struct {
	OTP         otp.Service
	Orders      order.Service
	Payments    payment.Service
	Products    product.Service
	Fulfillment fulfillment.Service

	// Tokens verifies owner bearer tokens. Nil leaves owner routes closed.
	Tokens middleware.TokenVerifier
	Users  middleware.UserLookup

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // serves /metrics when set
	Ping     handler.Pinger
}
