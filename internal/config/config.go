package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppPort  string
	AppEnv   string
	LogLevel string

	// StoreDriver selects the document store: "dynamo" or "memory".
	StoreDriver    string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	WebhookArchiveBucket string // empty disables raw webhook archiving
	AlertTopicARN        string // empty disables operator alerts

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SMTPTimeout  time.Duration // bounds one delivery, dial to QUIT

	ShopName string

	// CredentialSecret is the shared secret product credentials are encrypted with.
	CredentialSecret string

	Payment Payment

	OTPTTL         time.Duration
	OTPCooldown    time.Duration
	OTPMaxAttempts int
	OTPPurgeCron   string

	OrderTTL             time.Duration
	OrderCodeMaxAttempts int

	FulfillmentRetryCron   string
	FulfillmentMaxAttempts int
	FulfillmentTimeout     time.Duration // webhook-triggered fulfilment, detached from the request
	JobTimeout             time.Duration

	AllowedOrigins []string // CORS allowed origins
	RateLimitRPS   float64
	RateLimitBurst int
}

// DynamoTables holds the DynamoDB table name for each collection.
type DynamoTables struct {
	OTPs                string
	Users               string
	Products            string
	Orders              string
	FulfillmentFailures string
}

// Payment describes the bank account buyers transfer to and the QR image service.
type Payment struct {
	QRBaseURL     string
	AccountNo     string
	BankCode      string
	BankName      string
	AccountName   string
	WebhookAPIKey string // empty accepts unauthenticated callbacks
}

// Load reads all configuration from the environment. A .env file in the
// working directory is read first; real environment variables win.
func Load() *Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "shopacc-api")
	v.SetDefault("APP_PORT", "3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "dynamo")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("DYNAMO_TABLE_OTPS", "otps")
	v.SetDefault("DYNAMO_TABLE_USERS", "users")
	v.SetDefault("DYNAMO_TABLE_PRODUCTS", "products")
	v.SetDefault("DYNAMO_TABLE_ORDERS", "orders")
	v.SetDefault("DYNAMO_TABLE_FULFILLMENT_FAILURES", "fulfillment_failures")
	v.SetDefault("JWT_PRIVATE_KEY_PATH", "./private_key.pem")
	v.SetDefault("JWT_PUBLIC_KEY_PATH", "./public_key.pem")
	v.SetDefault("JWT_EXPIRY", "24h")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", "1025")
	v.SetDefault("SMTP_FROM", "noreply@example.com")
	v.SetDefault("SMTP_TIMEOUT", "30s")
	v.SetDefault("SHOP_NAME", "QTAT Shop")
	v.SetDefault("SEPAY_QR_API_URL", "https://qr.sepay.vn/img")
	v.SetDefault("BANK_CODE", "BIDV")
	v.SetDefault("BANK_NAME", "BIDV")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_PURGE_CRON", "*/15 * * * *")
	v.SetDefault("ORDER_TTL", "15m")
	v.SetDefault("ORDER_CODE_MAX_ATTEMPTS", 20)
	v.SetDefault("FULFILLMENT_RETRY_CRON", "*/5 * * * *")
	v.SetDefault("FULFILLMENT_MAX_ATTEMPTS", 5)
	v.SetDefault("FULFILLMENT_TIMEOUT", "90s")
	v.SetDefault("JOB_TIMEOUT", "2m")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	return &Config{
		AppName:        v.GetString("APP_NAME"),
		AppPort:        v.GetString("APP_PORT"),
		AppEnv:         v.GetString("APP_ENV"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		StoreDriver:    strings.ToLower(v.GetString("STORE_DRIVER")),
		AWSRegion:      v.GetString("AWS_REGION"),
		AWSEndpointURL: v.GetString("AWS_ENDPOINT_URL"),
		AWSAccessKeyID: v.GetString("AWS_ACCESS_KEY_ID"),
		AWSSecretKey:   v.GetString("AWS_SECRET_ACCESS_KEY"),
		DynamoTables: DynamoTables{
			OTPs:                v.GetString("DYNAMO_TABLE_OTPS"),
			Users:               v.GetString("DYNAMO_TABLE_USERS"),
			Products:            v.GetString("DYNAMO_TABLE_PRODUCTS"),
			Orders:              v.GetString("DYNAMO_TABLE_ORDERS"),
			FulfillmentFailures: v.GetString("DYNAMO_TABLE_FULFILLMENT_FAILURES"),
		},
		WebhookArchiveBucket: v.GetString("WEBHOOK_ARCHIVE_BUCKET"),
		AlertTopicARN:        v.GetString("ALERT_TOPIC_ARN"),
		JWTPrivateKeyPath:    v.GetString("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:     v.GetString("JWT_PUBLIC_KEY_PATH"),
		JWTExpiry:            v.GetDuration("JWT_EXPIRY"),
		SMTPHost:             v.GetString("SMTP_HOST"),
		SMTPPort:             v.GetString("SMTP_PORT"),
		SMTPFrom:             v.GetString("SMTP_FROM"),
		SMTPUsername:         v.GetString("SMTP_USERNAME"),
		SMTPPassword:         v.GetString("SMTP_PASSWORD"),
		SMTPTimeout:          v.GetDuration("SMTP_TIMEOUT"),
		ShopName:             v.GetString("SHOP_NAME"),
		CredentialSecret:     v.GetString("ENCRYPTION_KEY"),
		Payment: Payment{
			QRBaseURL:     v.GetString("SEPAY_QR_API_URL"),
			AccountNo:     v.GetString("SEPAY_VIRTUAL_ACCOUNT"),
			BankCode:      v.GetString("BANK_CODE"),
			BankName:      v.GetString("BANK_NAME"),
			AccountName:   v.GetString("BANK_ACCOUNT_NAME"),
			WebhookAPIKey: v.GetString("SEPAY_WEBHOOK_API_KEY"),
		},
		OTPTTL:                 v.GetDuration("OTP_TTL"),
		OTPCooldown:            v.GetDuration("OTP_RESEND_COOLDOWN"),
		OTPMaxAttempts:         v.GetInt("OTP_MAX_ATTEMPTS"),
		OTPPurgeCron:           v.GetString("OTP_PURGE_CRON"),
		OrderTTL:               v.GetDuration("ORDER_TTL"),
		OrderCodeMaxAttempts:   v.GetInt("ORDER_CODE_MAX_ATTEMPTS"),
		FulfillmentRetryCron:   v.GetString("FULFILLMENT_RETRY_CRON"),
		FulfillmentMaxAttempts: v.GetInt("FULFILLMENT_MAX_ATTEMPTS"),
		FulfillmentTimeout:     v.GetDuration("FULFILLMENT_TIMEOUT"),
		JobTimeout:             v.GetDuration("JOB_TIMEOUT"),
		AllowedOrigins:         splitList(v.GetString("ALLOWED_ORIGINS")),
		RateLimitRPS:           v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:         v.GetInt("RATE_LIMIT_BURST"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
