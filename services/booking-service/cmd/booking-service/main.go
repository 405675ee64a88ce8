package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/easybook/libs/auth"
	"github.com/md-rashed-zaman/easybook/libs/db"
	"github.com/md-rashed-zaman/easybook/libs/httpx"
	"github.com/md-rashed-zaman/easybook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/easybook/libs/otel"
	"github.com/md-rashed-zaman/easybook/libs/runtime"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/approval"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/datetime"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/grpcserver"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/intake"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/linktoken"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/lock"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/payments"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/registration"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/easybook/services/booking-service/internal/usage"
	"github.com/md-rashed-zaman/easybook/services/booking-service/migrations"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// .env only exists in local development.
	_ = godotenv.Load()
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.MigrateOnStart {
		if err := storage.Migrate(ctx, pool, migrations.FS); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			panic(err)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	outboxRepo := outbox.NewRepository(pool)
	appointments := storage.NewAppointmentRepository(pool, outboxRepo)
	shopkeepers := storage.NewShopkeeperRepository(pool, outboxRepo)
	notificationLog := storage.NewNotificationRepository(pool)
	reviews := storage.NewReviewRepository(pool)
	providerEvents := storage.NewProviderEventRepository(pool)

	var signer *linktoken.Signer
	if cfg.ApprovalTokenSecret != "" {
		signer = linktoken.NewStaticSigner([]byte(cfg.ApprovalTokenSecret))
	} else {
		signer = linktoken.NewSigner(storage.NewSecretRepository(pool)).WithRefresh(cfg.SecretRefresh)
	}

	locker, closeLocker := newLocker(ctx, cfg, rdb, logger)
	defer closeLocker()
	settingsProvider := settings.NewProvider(storage.NewSettingsRepository(pool), cfg.Defaults, cfg.SettingsTTL, logger)

	var sender email.Sender = email.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			SSL:      cfg.SMTPSSL,
		})
	} else {
		logger.Warn("smtp not configured; emails are logged only")
	}
	notifier := notify.New(sender, notificationLog, logger, notify.Config{
		AdminEmail:      cfg.AdminEmail,
		ApprovalBaseURL: cfg.ApprovalBaseURL,
		PaymentLink:     cfg.PaymentLink,
	})

	var cal calendar.Provider = calendar.NewLocal(pool)
	if cfg.GoogleCredentialsFile != "" {
		google, err := calendar.NewGoogle(ctx, calendar.GoogleConfig{
			CalendarID:      cfg.GoogleCalendarID,
			CredentialsFile: cfg.GoogleCredentialsFile,
			TimeZone:        cfg.Location.String(),
		})
		if err != nil {
			logger.Error("google calendar init failed; using local calendar", "err", err)
		} else {
			cal = google
		}
	}

	engineDeps := intake.Deps{
		Directory: shopkeepers,
		Store:     appointments,
		Counter:   usage.NewCounter(appointments, cfg.Location),
		Notifier:  notifier,
		Signer:    signer,
		Settings:  settingsProvider,
		Locker:    locker,
		Logger:    logger,
	}
	checkout, err := payments.NewCheckout(payments.CheckoutConfig{
		SecretKey:      cfg.StripeSecretKey,
		SuccessURL:     cfg.StripeSuccessURL,
		CancelURL:      cfg.StripeCancelURL,
		Currency:       cfg.StripeCurrency,
		DefaultDeposit: int64(cfg.StripeDefaultDeposit),
	}, nil)
	if err != nil {
		logger.Error("stripe checkout disabled", "err", err)
	}
	// A nil *Checkout must not become a non-nil interface.
	if checkout != nil {
		engineDeps.Checkout = checkout
	}
	engine := intake.NewEngine(engineDeps)

	approver := approval.NewHandler(approval.Deps{
		Store:     appointments,
		Directory: shopkeepers,
		Verifier:  signer,
		Calendar:  cal,
		Notifier:  notifier,
		Settings:  settingsProvider,
		Locker:    locker,
		Parser:    datetime.Parser{Order: cfg.DateOrder, Location: cfg.Location},
		Logger:    logger,
	})

	registrar := registration.NewService(registration.Deps{
		Store:               shopkeepers,
		Notifier:            notifier,
		Releaser:            engine,
		Locker:              locker,
		BookingLinkTemplate: cfg.BookingLinkTemplate,
		Logger:              logger,
	})

	var writer outbox.MessageWriter
	if strings.TrimSpace(cfg.KafkaBrokers) != "" {
		kw := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = kw.Close() }()
		writer = kw
	}
	outboxPublisher := outbox.NewPublisher(outboxRepo, writer, logger, outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if strings.TrimSpace(cfg.KafkaBrokers) != "" && strings.TrimSpace(cfg.PaymentTopic) != "" {
		reader := kafkax.NewReader(cfg.KafkaBrokers, cfg.PaymentTopic, cfg.KafkaGroupID)
		paymentConsumer := consumer.New(reader, inbox.NewRepository(pool), logger, consumer.PaymentHandler(engine, logger))
		go paymentConsumer.Run(ctx)
	}

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	grpcSrv := grpcserver.New(logger, 10*time.Second, checks...)
	go func() {
		if err := grpcSrv.Serve(ctx, grpcLis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	operator := auth.Operator{JWTSecret: cfg.JWTSecret, APIKeyHash: cfg.AdminAPIKeyHash}
	if cfg.JWKSURL != "" {
		operator.JWKS = auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute)
	}

	h := handlers.New(handlers.Deps{
		Intake:         engine,
		Approver:       approver,
		Registrar:      registrar,
		Directory:      shopkeepers,
		Appointments:   appointments,
		Reviews:        reviews,
		Settings:       settingsProvider,
		ProviderEvents: providerEvents,
		Logger:         logger,
		Config:         handlers.Config{StripeWebhookSecret: cfg.StripeWebhookSecret},
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	h.Register(mux, operator)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedHeaders: []string{"Content-Type", "Authorization", auth.APIKeyHeader},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit(cfg, rdb, logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.ReqTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// newLocker picks the lock backend: LOCK_BACKEND wins, otherwise Redis when
// configured, otherwise in-process. The postgres backend gets its own pool
// because every held lock pins a connection.
func newLocker(ctx context.Context, cfg appConfig, rdb *redis.Client, logger *slog.Logger) (lock.Locker, func()) {
	opts := lock.Options{Wait: cfg.LockWait, TTL: cfg.LockTTL}
	backend := strings.ToLower(cfg.LockBackend)
	if backend == "" {
		backend = "local"
		if rdb != nil {
			backend = "redis"
		}
	}
	switch backend {
	case "redis":
		if rdb != nil {
			return lock.NewRedis(rdb, "easybook:lock", opts, logger), func() {}
		}
		logger.Warn("LOCK_BACKEND=redis without REDIS_URL; using local lock")
	case "postgres":
		lockPool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.LockPoolSize)})
		if err != nil {
			logger.Error("lock pool connection failed", "err", err)
			panic(err)
		}
		return lock.NewPostgres(lockPool, opts, logger), lockPool.Close
	case "local":
	default:
		logger.Warn("unknown lock backend; using local lock", "backend", backend)
	}
	return lock.NewLocal(opts.Wait), func() {}
}

func rateLimit(cfg appConfig, rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.RateLimit, cfg.RateWindow, "easybook:rl").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(cfg.RateLimit, cfg.RateWindow).Middleware()
}
