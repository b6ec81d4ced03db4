// Package app assembles the stores, infrastructure clients and services
// shared by the API server and the shopctl CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopacc-api/internal/application/fulfillment"
	"github.com/shopacc-api/internal/application/order"
	"github.com/shopacc-api/internal/application/otp"
	"github.com/shopacc-api/internal/application/payment"
	"github.com/shopacc-api/internal/application/product"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/docstore"
	"github.com/shopacc-api/internal/infrastructure/awsconf"
	"github.com/shopacc-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/shopacc-api/internal/infrastructure/jwt"
	"github.com/shopacc-api/internal/infrastructure/memory"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	s3infra "github.com/shopacc-api/internal/infrastructure/s3"
	"github.com/shopacc-api/internal/infrastructure/smtp"
	"github.com/shopacc-api/internal/infrastructure/sns"
	"github.com/shopacc-api/internal/pkg/credcrypt"
	"github.com/shopacc-api/internal/repository"
	transporthttp "github.com/shopacc-api/internal/transport/http"
	"github.com/shopacc-api/internal/worker"
	"go.uber.org/zap"
)

const (
	DriverDynamo = "dynamo"
	DriverMemory = "memory"
)

// Options override infrastructure that tests and the CLI supply themselves.
// Zero fields are built from Config.
type Options struct {
	Store    docstore.Store
	Mailer   smtp.Mailer
	Alerter  sns.Alerter
	Archive  s3infra.Archive
	Registry *prometheus.Registry
}

// App holds everything wired from one Config.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    docstore.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Users    *repository.UserRepo
	Products *repository.ProductRepo
	Orders   *repository.OrderRepo
	OTPs     *repository.OTPRepo
	Failures *repository.FailureRepo

	Cipher *credcrypt.Cipher
	// Tokens is nil when the JWT keys cannot be loaded; owner routes then
	// reject every request.
	Tokens *jwtinfra.Provider

	OTPService         otp.Service
	ProductService     product.Service
	OrderService       order.Service
	FulfillmentService fulfillment.Service
	PaymentService     payment.Service
}

// New builds the App. Only the AWS clients the configuration asks for are
// created.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Registry: opts.Registry}
	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	a.Metrics = metrics.New(a.Registry)

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconf.Load(ctx, cfg)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg = &c
		return c, nil
	}

	a.Store = opts.Store
	if a.Store == nil {
		switch cfg.StoreDriver {
		case DriverMemory:
			logger.Warn("using in-memory document store, data is lost on restart")
			a.Store = memory.New()
		case DriverDynamo, "":
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			client := dynamo.NewClient(c, cfg.AWSEndpointURL)
			dynamo.Bootstrap(ctx, client, cfg.DynamoTables, logger)
			a.Store = dynamo.NewStore(client, cfg.DynamoTables)
		default:
			return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
		}
	}

	mailer := opts.Mailer
	if mailer == nil {
		mailer = smtp.NewMailer(cfg)
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = sns.Nop()
		if cfg.AlertTopicARN != "" {
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			alerter = sns.NewAlerter(c, cfg.AWSEndpointURL, cfg.AlertTopicARN)
		}
	}
	archive := opts.Archive
	if archive == nil {
		archive = s3infra.Nop()
		if cfg.WebhookArchiveBucket != "" {
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			archive = s3infra.NewStore(s3infra.NewClient(c, cfg.AWSEndpointURL), cfg.WebhookArchiveBucket)
		}
	}

	cipher, err := credcrypt.New(cfg.CredentialSecret)
	if err != nil {
		return nil, fmt.Errorf("credential cipher: %w", err)
	}
	a.Cipher = cipher
	if cfg.CredentialSecret == "" {
		logger.Warn("ENCRYPTION_KEY is not set, fulfilment will fail to decrypt credentials")
	}

	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		a.Tokens = p
	} else {
		logger.Warn("JWT provider not available, owner routes disabled", zap.Error(err))
	}

	a.Users = repository.NewUserRepo(a.Store)
	a.Products = repository.NewProductRepo(a.Store)
	a.Orders = repository.NewOrderRepo(a.Store)
	a.OTPs = repository.NewOTPRepo(a.Store)
	a.Failures = repository.NewFailureRepo(a.Store)

	a.OTPService = otp.NewService(otp.ServiceDeps{
		OTPRepo:     a.OTPs,
		UserRepo:    a.Users,
		Mailer:      mailer,
		Logger:      logger,
		Metrics:     a.Metrics,
		ShopName:    cfg.ShopName,
		TTL:         cfg.OTPTTL,
		Cooldown:    cfg.OTPCooldown,
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	a.ProductService = product.NewService(product.ServiceDeps{
		ProductRepo: a.Products,
		Cipher:      cipher,
		Logger:      logger,
	})
	a.OrderService = order.NewService(order.ServiceDeps{
		OrderRepo: a.Orders,
		Products:  a.ProductService,
		Account: order.PaymentAccount{
			QRBaseURL:   cfg.Payment.QRBaseURL,
			AccountNo:   cfg.Payment.AccountNo,
			BankCode:    cfg.Payment.BankCode,
			BankName:    cfg.Payment.BankName,
			AccountName: cfg.Payment.AccountName,
		},
		Logger:          logger,
		Metrics:         a.Metrics,
		TTL:             cfg.OrderTTL,
		MaxCodeAttempts: cfg.OrderCodeMaxAttempts,
	})
	a.FulfillmentService = fulfillment.NewService(fulfillment.ServiceDeps{
		ProductRepo: a.Products,
		FailureRepo: a.Failures,
		Cipher:      cipher,
		Mailer:      mailer,
		Alerter:     alerter,
		Logger:      logger,
		Metrics:     a.Metrics,
		ShopName:    cfg.ShopName,
		MaxAttempts: cfg.FulfillmentMaxAttempts,
	})
	a.PaymentService = payment.NewService(payment.ServiceDeps{
		Orders:         a.OrderService,
		Fulfillment:    a.FulfillmentService,
		Archive:        archive,
		Logger:         logger,
		Metrics:        a.Metrics,
		FulfillTimeout: cfg.FulfillmentTimeout,
	})
	return a, nil
}

// RouterDeps exposes the services to the HTTP layer.
func (a *App) RouterDeps() *transporthttp.Deps {
	d := &transporthttp.Deps{
		OTP:         a.OTPService,
		Orders:      a.OrderService,
		Payments:    a.PaymentService,
		Products:    a.ProductService,
		Fulfillment: a.FulfillmentService,
		Users:       a.Users,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
		Gatherer:    a.Registry,
		Ping:        a.Ping,
	}
	if a.Tokens != nil {
		d.Tokens = a.Tokens
	}
	return d
}

// Scheduler builds the cron worker for the maintenance jobs.
func (a *App) Scheduler() (*worker.Scheduler, error) {
	return worker.New(worker.Config{
		OTPPurgeSpec: a.Config.OTPPurgeCron,
		RetrySpec:    a.Config.FulfillmentRetryCron,
		JobTimeout:   a.Config.JobTimeout,
	}, a.OTPService, a.FulfillmentService, a.Logger, a.Metrics)
}

// Ping checks that the document store answers. A missing probe document is
// a healthy answer.
func (a *App) Ping(ctx context.Context) error {
	var probe struct{}
	err := a.Store.Get(ctx, docstore.Users, "__health__", &probe, docstore.Project("user_id"))
	if err == nil || errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return err
}
