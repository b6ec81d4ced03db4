// Package payment reconciles gateway callbacks with orders and triggers
// fulfilment exactly once per paid order.
package payment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopacc-api/internal/application/order"
	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	s3infra "github.com/shopacc-api/internal/infrastructure/s3"
	"github.com/shopacc-api/internal/pkg/id"
	"github.com/shopacc-api/internal/pkg/logging"
	"go.uber.org/zap"
)

// Result describes what a callback did.
type Result struct {
	OrderCode        string `json:"orderCode,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	Ignored          bool   `json:"ignored,omitempty"`
}

type Service interface {
	HandleWebhook(ctx context.Context, body []byte) (*Result, error)
}

type OrderProcessor interface {
	ProcessWebhook(ctx context.Context, req order.WebhookRequest) (*order.WebhookResult, error)
}

type Fulfiller interface {
	Fulfill(ctx context.Context, o *domain.Order) error
}

type Archive interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

type ServiceDeps struct {
	Orders      OrderProcessor
	Fulfillment Fulfiller
	Archive     Archive
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// FulfillTimeout bounds delivery of a fresh payment. Delivery is
	// detached from the request so a gateway hang-up cannot cut it short.
	FulfillTimeout time.Duration
	Now            func() time.Time
}

type service struct {
	orders         OrderProcessor
	fulfillment    Fulfiller
	archive        Archive
	logger         *zap.Logger
	metrics        *metrics.Metrics
	fulfillTimeout time.Duration
	now            func() time.Time
}

func NewService(d ServiceDeps) Service {
	s := &service{
		orders:         d.Orders,
		fulfillment:    d.Fulfillment,
		archive:        d.Archive,
		logger:         d.Logger,
		metrics:        d.Metrics,
		fulfillTimeout: d.FulfillTimeout,
		now:            d.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.archive == nil {
		s.archive = s3infra.Nop()
	}
	if s.fulfillTimeout <= 0 {
		s.fulfillTimeout = 90 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *service) HandleWebhook(ctx context.Context, body []byte) (*Result, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		s.metrics.Webhook("invalid")
		return nil, domain.ErrInvalidPayload
	}
	code := p.OrderCode()
	log := logging.FromContext(ctx, s.logger).With(
		zap.String("order_code", code),
		zap.String("transaction_id", string(p.ID)),
		zap.String("gateway", p.Gateway),
	)
	log.Info("payment webhook received", zap.Int64("transfer_amount", p.TransferAmount))

	s.archiveBody(ctx, log, code, body)

	if strings.EqualFold(p.TransferType, transferOut) {
		s.metrics.Webhook("ignored")
		log.Info("outgoing transfer ignored")
		return &Result{OrderCode: code, Ignored: true}, nil
	}
	if code == "" {
		s.metrics.Webhook("unmatched")
		return nil, domain.ErrMissingFields
	}

	res, err := s.orders.ProcessWebhook(ctx, order.WebhookRequest{
		Code:          code,
		TransactionID: string(p.ID),
		Gateway:       p.Gateway,
	})
	if err != nil {
		s.metrics.Webhook("error")
		return nil, err
	}
	if res.AlreadyProcessed {
		s.metrics.Webhook("duplicate")
		return &Result{OrderCode: code, AlreadyProcessed: true}, nil
	}
	if p.TransferAmount > 0 && p.TransferAmount < res.Order.Amount {
		log.Warn("transfer smaller than order amount",
			zap.Int64("transfer_amount", p.TransferAmount), zap.Int64("order_amount", res.Order.Amount))
	}

	// The order is already completed, so a redelivery would be answered as
	// a duplicate. Delivery must finish here regardless of the caller.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fulfillTimeout)
	defer cancel()
	if err := s.fulfillment.Fulfill(fctx, res.Order); err != nil {
		s.metrics.Webhook("fulfillment_failed")
		return nil, err
	}
	s.metrics.Webhook("processed")
	return &Result{OrderCode: code}, nil
}

// archiveBody keeps the raw callback. Losing the copy must not stop a paid
// order from being delivered, so errors are only logged.
func (s *service) archiveBody(ctx context.Context, log *zap.Logger, code string, body []byte) {
	key := s3infra.WebhookKey(s.now(), code, id.New())
	uri, err := s.archive.Put(ctx, key, body)
	if err != nil {
		log.Warn("failed to archive webhook", zap.String("key", key), zap.Error(err))
		return
	}
	if uri != "" {
		log.Debug("webhook archived", zap.String("uri", uri))
	}
}
