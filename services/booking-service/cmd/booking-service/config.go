package main

import (
	"time"

	"github.com/md-rashed-zaman/easybook/libs/config"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/datetime"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
)

// appConfig is read once from the environment at startup.
type appConfig struct {
	Service  string
	LogLevel string
	Port     string
	GRPCPort string

	DatabaseURL    string
	MigrateOnStart bool

	Location  *time.Location
	DateOrder datetime.DateOrder

	RedisURL     string
	LockBackend  string
	LockWait     time.Duration
	LockTTL      time.Duration
	LockPoolSize int
	RateLimit    int
	RateWindow   time.Duration
	CORSOrigins  []string
	BodyLimit    int64
	ReqTimeout   time.Duration
	KafkaBrokers string
	KafkaGroupID string
	PaymentTopic string

	ApprovalTokenSecret string
	SecretRefresh       time.Duration
	ApprovalBaseURL     string
	BookingLinkTemplate string
	AdminEmail          string
	PaymentLink         string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	SMTPSSL      bool

	GoogleCredentialsFile string
	GoogleCalendarID      string

	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeSuccessURL     string
	StripeCancelURL      string
	StripeCurrency       string
	StripeDefaultDeposit int

	Defaults    settings.Values
	SettingsTTL time.Duration

	JWTSecret       string
	JWKSURL         string
	AdminAPIKeyHash string
}

func loadConfig() (appConfig, error) {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return appConfig{}, err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return appConfig{}, err
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return appConfig{}, err
	}
	loc, err := config.Location("TZ", "UTC")
	if err != nil {
		return appConfig{}, err
	}
	order, err := datetime.ParseDateOrder(config.String("DATE_ORDER", string(datetime.OrderAuto)))
	if err != nil {
		return appConfig{}, err
	}

	defaults := settings.Defaults()
	defaults.FreeBookingsPerMonth = config.NonNegativeInt("FREE_BOOKINGS_PER_MONTH", defaults.FreeBookingsPerMonth)
	defaults.AppointmentDurationMinutes = config.Int("APPOINTMENT_DURATION_MINUTES", defaults.AppointmentDurationMinutes)
	defaults.ReviewsEnabled = config.Bool("REVIEWS_ENABLED", defaults.ReviewsEnabled)

	return appConfig{
		Service:  config.String("SERVICE_NAME", "booking-service"),
		LogLevel: config.String("LOG_LEVEL", "info"),
		Port:     port,
		GRPCPort: grpcPort,

		DatabaseURL:    dbURL,
		MigrateOnStart: config.Bool("MIGRATE_ON_START", true),

		Location:  loc,
		DateOrder: order,

		RedisURL:     config.String("REDIS_URL", ""),
		LockBackend:  config.String("LOCK_BACKEND", ""),
		LockWait:     config.Duration("LOCK_WAIT", 10*time.Second),
		LockTTL:      config.Duration("LOCK_TTL", 30*time.Second),
		LockPoolSize: config.Int("LOCK_POOL_SIZE", 10),
		RateLimit:    config.Int("RATE_LIMIT_PER_MINUTE", 60),
		RateWindow:   time.Minute,
		CORSOrigins:  config.List("CORS_ALLOWED_ORIGINS", ""),
		BodyLimit:    int64(config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)),
		ReqTimeout:   config.Duration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
		KafkaBrokers: config.String("KAFKA_BROKERS", ""),
		KafkaGroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
		PaymentTopic: config.String("PAYMENTS_TOPIC", "payments.appointment.paid.v1"),

		ApprovalTokenSecret: config.String("APPROVAL_TOKEN_SECRET", ""),
		SecretRefresh:       config.Duration("APPROVAL_SECRET_REFRESH", 5*time.Minute),
		ApprovalBaseURL:     config.String("APPROVAL_BASE_URL", "http://localhost:8083/approve"),
		BookingLinkTemplate: config.String("BOOKING_LINK_TEMPLATE", "https://easybook.example/book?shop=SHOPKEEPER_ID"),
		AdminEmail:          config.String("ADMIN_EMAIL", ""),
		PaymentLink:         config.String("PAYMENT_LINK", ""),

		SMTPHost:     config.String("SMTP_HOST", ""),
		SMTPPort:     config.Int("SMTP_PORT", 587),
		SMTPUser:     config.String("SMTP_USERNAME", ""),
		SMTPPassword: config.String("SMTP_PASSWORD", ""),
		SMTPFrom:     config.String("SMTP_FROM", "no-reply@easybook.local"),
		SMTPFromName: config.String("SMTP_FROM_NAME", "EasyBook"),
		SMTPSSL:      config.Bool("SMTP_SSL", false),

		GoogleCredentialsFile: config.String("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCalendarID:      config.String("GOOGLE_CALENDAR_ID", "primary"),

		StripeSecretKey:      config.String("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:     config.String("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:      config.String("STRIPE_CANCEL_URL", ""),
		StripeCurrency:       config.String("STRIPE_CURRENCY", "inr"),
		StripeDefaultDeposit: config.Int("STRIPE_DEFAULT_DEPOSIT", 10000),

		Defaults:    defaults,
		SettingsTTL: config.Duration("SETTINGS_CACHE_TTL", 30*time.Second),

		JWTSecret:       config.String("JWT_SECRET", ""),
		JWKSURL:         config.String("JWKS_URL", ""),
		AdminAPIKeyHash: config.String("ADMIN_API_KEY_HASH", ""),
	}, nil
}
