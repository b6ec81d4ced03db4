// Package worker runs the periodic maintenance jobs: purging stale OTP
// records and retrying failed fulfilments.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopacc-api/internal/application/fulfillment"
	"github.com/shopacc-api/internal/infrastructure/metrics"
	"github.com/shopacc-api/internal/pkg/logging"
	"go.uber.org/zap"
)

const (
	JobPurgeOTPs        = "purge_otps"
	JobRetryFulfillment = "retry_fulfillment"
)

type OTPPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type FulfillmentRetrier interface {
	RetryOpen(ctx context.Context) (fulfillment.RetrySummary, error)
}

type Config struct {
	OTPPurgeSpec string
	RetrySpec    string
	JobTimeout   time.Duration
}

// Scheduler wraps a cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// New registers both jobs. An empty spec leaves that job unscheduled.
func New(cfg Config, otps OTPPurger, retrier FulfillmentRetrier, logger *zap.Logger, m *metrics.Metrics) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		metrics: m,
		timeout: cfg.JobTimeout,
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Minute
	}

	if cfg.OTPPurgeSpec != "" && otps != nil {
		if _, err := s.cron.AddFunc(cfg.OTPPurgeSpec, s.job(JobPurgeOTPs, func(ctx context.Context) error {
			n, err := otps.PurgeExpired(ctx)
			logging.FromContext(ctx, s.logger).Info("otp purge finished", zap.Int("purged", n))
			return err
		})); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", JobPurgeOTPs, err)
		}
	}
	if cfg.RetrySpec != "" && retrier != nil {
		if _, err := s.cron.AddFunc(cfg.RetrySpec, s.job(JobRetryFulfillment, func(ctx context.Context) error {
			sum, err := retrier.RetryOpen(ctx)
			if sum.Attempted > 0 || sum.Skipped > 0 {
				logging.FromContext(ctx, s.logger).Info("fulfillment retry finished",
					zap.Int("attempted", sum.Attempted),
					zap.Int("succeeded", sum.Succeeded),
					zap.Int("failed", sum.Failed),
					zap.Int("skipped", sum.Skipped))
			}
			return err
		})); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", JobRetryFulfillment, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		log := s.logger.With(zap.String("job", name))
		ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), log), s.timeout)
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		s.metrics.JobRun(name, err)
		if err != nil {
			log.Error("job failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
			return
		}
		log.Debug("job finished", zap.Duration("duration", time.Since(start)))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
