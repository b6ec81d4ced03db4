// Package order owns the order lifecycle: pending orders with a payment
// reference, and the one-way pending → completed transition a payment
// webhook triggers.
package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	"github.com/shopacc-api/internal/pkg/id"
	"github.com/shopacc-api/internal/pkg/logging"
	pkgtoken "github.com/shopacc-api/internal/pkg/token"
	"github.com/shopacc-api/internal/pkg/validate"
	"github.com/shopacc-api/internal/repository"
	"go.uber.org/zap"
)

type CreateOrderRequest struct {
	ProductCode string
	Email       string
	Amount      int64
}

type CreateOrderResult struct {
	OrderCode string          `json:"orderCode"`
	Amount    int64           `json:"amount"`
	ExpiresAt time.Time       `json:"expiresAt"`
	QRCode    string          `json:"qrCode"`
	BankInfo  domain.BankInfo `json:"bankInfo"`
}

type WebhookRequest struct {
	Code          string
	TransactionID string
	Gateway       string
}

// WebhookResult reports the transition. AlreadyProcessed means an earlier
// delivery completed the order and nothing was changed.
type WebhookResult struct {
	AlreadyProcessed bool
	Order            *domain.Order
}

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error)
	ProcessWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error)
	GetOrderStatus(ctx context.Context, orderCode string) (*domain.Order, error)
}

// OrderStore is satisfied by *repository.OrderRepo.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByCode(ctx context.Context, code string) (*domain.Order, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	CompletePending(ctx context.Context, orderID string, paidAt time.Time, transactionID *string, gateway string) error
}

// ProductGate is the credential-free product view.
type ProductGate interface {
	Snapshot(ctx context.Context, code string) (*domain.ProductSnapshot, error)
	IsAvailable(p *domain.ProductSnapshot) bool
}

type ServiceDeps struct {
	OrderRepo       OrderStore
	Products        ProductGate
	Account         PaymentAccount
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	TTL             time.Duration
	MaxCodeAttempts int
	Now             func() time.Time
	NewCode         func() (string, error)
}

type service struct {
	orders          OrderStore
	products        ProductGate
	account         PaymentAccount
	logger          *zap.Logger
	metrics         *metrics.Metrics
	ttl             time.Duration
	maxCodeAttempts int
	now             func() time.Time
	newCode         func() (string, error)
}

func NewService(d ServiceDeps) Service {
	s := &service{
		orders:          d.OrderRepo,
		products:        d.Products,
		account:         d.Account,
		logger:          d.Logger,
		metrics:         d.Metrics,
		ttl:             d.TTL,
		maxCodeAttempts: d.MaxCodeAttempts,
		now:             d.Now,
		newCode:         d.NewCode,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = 15 * time.Minute
	}
	if s.maxCodeAttempts <= 0 {
		s.maxCodeAttempts = 20
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = pkgtoken.NewOrderCode
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	code := strings.TrimSpace(req.ProductCode)
	email := strings.TrimSpace(req.Email)
	if code == "" || email == "" || req.Amount == 0 {
		return nil, domain.ErrMissingFields
	}
	if !validate.Email(email) {
		return nil, domain.ErrInvalidEmail
	}
	if req.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	snap, err := s.products.Snapshot(ctx, code)
	if err != nil {
		return nil, err
	}
	if !s.products.IsAvailable(snap) {
		return nil, domain.ErrProductUnavailable
	}

	orderCode, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &domain.Order{
		OrderID:       id.At(now),
		OrderCode:     orderCode,
		ProductCode:   code,
		ProductID:     snap.ProductID,
		ProductName:   snap.Name,
		Email:         email,
		Amount:        req.Amount,
		Status:        domain.OrderPending,
		PaymentMethod: domain.PaymentMethodBankTransfer,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}
	s.metrics.OrderCreated()
	logging.FromContext(ctx, s.logger).Info("order created",
		zap.String("order_code", orderCode),
		zap.String("product_code", code),
		zap.Int64("amount", req.Amount))

	return &CreateOrderResult{
		OrderCode: orderCode,
		Amount:    req.Amount,
		ExpiresAt: o.ExpiresAt,
		QRCode:    s.account.QRCodeURL(req.Amount, orderCode),
		BankInfo:  s.account.BankInfo(req.Amount, orderCode),
	}, nil
}

func (s *service) ProcessWebhook(ctx context.Context, req WebhookRequest) (*WebhookResult, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrMissingFields
	}
	log := logging.FromContext(ctx, s.logger).With(zap.String("order_code", code))

	o, err := s.GetOrderStatus(ctx, code)
	if err != nil {
		return nil, err
	}
	if o.Status == domain.OrderCompleted {
		log.Info("webhook for completed order ignored")
		return &WebhookResult{AlreadyProcessed: true, Order: o}, nil
	}

	now := s.now().UTC()
	if o.Expired(now) {
		log.Warn("payment received after order expiry", zap.Time("expires_at", o.ExpiresAt))
	}

	var txID *string
	if tx := strings.TrimSpace(req.TransactionID); tx != "" {
		txID = &tx
	}
	gateway := strings.TrimSpace(req.Gateway)
	if gateway == "" {
		gateway = domain.GatewayManual
	}

	err = s.orders.CompletePending(ctx, o.OrderID, now, txID, gateway)
	if errors.Is(err, repository.ErrConcurrentUpdate) {
		log.Info("concurrent webhook already completed order")
		return &WebhookResult{AlreadyProcessed: true, Order: o}, nil
	}
	if err != nil {
		return nil, err
	}

	o.Status = domain.OrderCompleted
	o.PaidAt = &now
	o.TransactionID = txID
	o.Gateway = gateway
	log.Info("order completed", zap.String("gateway", gateway))
	return &WebhookResult{Order: o}, nil
}

func (s *service) GetOrderStatus(ctx context.Context, orderCode string) (*domain.Order, error) {
	orderCode = strings.TrimSpace(orderCode)
	if orderCode == "" {
		return nil, domain.ErrMissingFields
	}
	o, err := s.orders.GetByCode(ctx, orderCode)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

// uniqueCode draws order codes until one is unused. Collisions only matter
// once the code space fills up, so the bound is generous.
func (s *service) uniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < s.maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", domain.Upstream("generate order code", err)
		}
		exists, err := s.orders.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		logging.FromContext(ctx, s.logger).Debug("order code collision", zap.String("order_code", code))
	}
	return "", domain.Upstream("generate order code", errors.New("no free order code after retries"))
}
