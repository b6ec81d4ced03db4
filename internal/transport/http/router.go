package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/transport/http/handler"
	appmiddleware "github.com/shopacc-api/internal/transport/http/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter builds the application router. The returned stop function
// releases the rate limiter's background goroutine.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, func()) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"success":false,"code":"UNAUTHORIZED","message":"owner auth is not configured"}`, http.StatusUnauthorized)
		})
	}
	if deps.Tokens != nil {
		authMw = appmiddleware.Auth(deps.Tokens, deps.Users)
	}

	// Applied to public endpoints that send mail or create records.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	healthH := handler.NewHealthHandler(deps.Ping)
	authH := handler.NewAuthHandler(deps.OTP)
	orderH := handler.NewOrderHandler(deps.Orders)
	webhookH := handler.NewWebhookHandler(deps.Payments)
	productH := handler.NewProductHandler(deps.Products)
	fulfillH := handler.NewFulfillmentHandler(deps.Fulfillment)

	r.Get("/health", healthH.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// ── Public routes ────────────────────────────────────────────────────
		r.Route("/auth", func(r chi.Router) {
			r.With(sensitiveRL.Limit).Post("/register", authH.Register)
			r.With(sensitiveRL.Limit).Post("/verify-otp", authH.VerifyOTP)
			r.With(sensitiveRL.Limit).Post("/resend-otp", authH.ResendOTP)
			r.Get("/check-verification", authH.CheckVerification)
			r.Get("/resend-countdown", authH.ResendCountdown)
			r.Post("/complete-registration", authH.CompleteRegistration)
		})

		r.With(sensitiveRL.Limit).Post("/orders", orderH.Create)
		r.Get("/orders/{orderCode}", orderH.Status)
		r.With(appmiddleware.WebhookAPIKey(cfg.Payment.WebhookAPIKey)).Post("/payment-webhook", webhookH.Payment)
		r.Get("/products/{productCode}", productH.Public)

		// ── Owner routes ─────────────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleOwner))

			r.Get("/products/credentials", productH.List)
			r.Get("/products/credentials/{productId}", productH.Get)
			r.Get("/products/credentials/code/{productCode}", productH.GetByCode)
			r.Post("/products", productH.Create)
			r.Put("/products/{productId}", productH.Update)
			r.Delete("/products/{productId}", productH.Delete)

			r.Get("/fulfillment/failures", fulfillH.ListFailures)
			r.Post("/fulfillment/failures/{orderCode}/retry", fulfillH.Retry)
		})
	})

	return r, sensitiveRL.Stop
}
