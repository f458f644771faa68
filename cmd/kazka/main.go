package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/controllers"
	"github.com/kazka-books/kazka/app/repository"
	"github.com/kazka-books/kazka/docs"
	"github.com/kazka-books/kazka/internal/pkg/accounts"
	"github.com/kazka-books/kazka/internal/pkg/billing"
	"github.com/kazka-books/kazka/internal/pkg/cache"
	"github.com/kazka-books/kazka/internal/pkg/config"
	"github.com/kazka-books/kazka/internal/pkg/database"
	"github.com/kazka-books/kazka/internal/pkg/env"
	"github.com/kazka-books/kazka/internal/pkg/hcaptcha"
	"github.com/kazka-books/kazka/internal/pkg/jobqueue"
	"github.com/kazka-books/kazka/internal/pkg/mail"
	"github.com/kazka-books/kazka/internal/pkg/metrics"
	"github.com/kazka-books/kazka/internal/pkg/monobank"
	"github.com/kazka-books/kazka/internal/pkg/router"
	"github.com/kazka-books/kazka/internal/pkg/s3archive"
	"github.com/kazka-books/kazka/internal/pkg/statistics"
)

// appBodyLimit is the global request limit; the webhook enforces its own
// smaller limit.
const appBodyLimit = 1024 * 1024

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, shutdown, err := NewApplication(ctx, cfg)
	if err != nil {
		log.Fatalf("[Startup] %v", err)
	}

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)); err != nil {
			log.Errorf("[HTTP] server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("[HTTP] shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warnf("[HTTP] shutdown: %v", err)
	}
	shutdown()
}

// NewApplication connects all backing services and returns the configured app
// and a function releasing the background workers and connections.
func NewApplication(ctx context.Context, cfg *config.Config) (*fiber.App, func(), error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if cfg.IsDev() {
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	redisClient := cache.NewClient(ctx, cache.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	keyCache := cache.New(redisClient, "kazka:")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, metrics.Namespace)

	gateway := monobank.NewClient(monobank.Config{
		BaseURL:       cfg.Monobank.BaseURL,
		Token:         cfg.Monobank.Token,
		PersonalToken: cfg.Monobank.PersonalToken,
		Timeout:       cfg.Monobank.RequestTimeout,
	}, keyCache)
	parser, err := monobank.NewNotificationParser(docs.OpenAPISpec)
	if err != nil {
		return nil, nil, fmt.Errorf("webhook schema: %w", err)
	}

	queue := jobqueue.NewQueue(redisClient, cfg.Queue.Workers)
	queue.SetMetrics(m)

	factory := repository.NewFactory(db)
	opts := billing.Options{
		Store:            factory,
		Gateway:          gateway,
		Registrar:        accounts.NewRegistrar(factory.Repositories().User),
		Enqueuer:         queue,
		Notifier:         mail.NewSender(cfg.Mail, cfg.Admin.Email),
		Metrics:          m,
		RedirectURL:      cfg.RedirectURL(),
		WebhookURL:       cfg.WebhookURL(),
		InvoiceValidity:  cfg.Monobank.InvoiceValidity,
		StatementAccount: cfg.Monobank.AccountID,
	}
	if archive, err := s3archive.New(ctx, cfg.S3, cfg.AppEnv); err == nil {
		opts.Archiver = archive
	} else if !errors.Is(err, s3archive.ErrDisabled) {
		log.Warnf("[S3Archive] statement exports disabled: %v", err)
	}
	svc := billing.NewService(opts)

	queue.Handle(jobqueue.JobTypeRegistration, jobqueue.RegistrationHandler(svc))
	queue.Handle(jobqueue.JobTypeStatementExport, jobqueue.StatementExportHandler(svc))
	manager := jobqueue.NewManager(queue, svc, cfg.Queue.SweepInterval)
	manager.Start()

	var captcha controllers.CaptchaVerifier
	if cfg.Captcha.Enabled() {
		captcha = hcaptcha.NewVerifier(cfg.Captcha.Secret)
	}

	app := fiber.New(fiber.Config{
		AppName:   "kazka",
		BodyLimit: appBodyLimit,
	})

	deps := router.Dependencies{
		Webhook: controllers.NewWebhookController(svc, parser, gateway, controllers.WebhookOptions{
			SkipSignature: cfg.Monobank.SkipSignature,
			Timeout:       cfg.Monobank.WebhookTimeout,
			BodyLimit:     cfg.Monobank.WebhookBodyLimit,
			Metrics:       m,
		}),
		Subscriptions:     controllers.NewSubscriptionController(svc, captcha),
		Payments:          controllers.NewPaymentController(svc),
		Admin:             controllers.NewAdminController(svc, queue, statistics.NewService(factory.Repositories().SubscriptionRequest, keyCache)),
		AdminUsers:        map[string]string{cfg.Admin.Username: cfg.Admin.Password},
		LimiterMax:        cfg.Limiter.Max,
		LimiterExpiration: cfg.Limiter.Expiration,
		CORSOrigins:       cfg.CORSOrigins,
		Gatherer:          reg,
		OpenAPIFile:       findOpenAPIFile(),
	}

	// Rate limiter counters live in a separate Redis database
	if port, err := strconv.Atoi(cfg.Redis.Port); err == nil {
		deps.LimiterStorage = redisstorage.New(redisstorage.Config{
			Host:     cfg.Redis.Host,
			Port:     port,
			Password: cfg.Redis.Password,
			Database: cfg.Redis.DB + 1,
			Reset:    false,
		})
	} else {
		log.Warnf("[Limiter] invalid CACHE_PORT %q, keeping counters in memory", cfg.Redis.Port)
	}

	router.InstallRouter(app, deps)

	shutdown := func() {
		manager.Stop()
		if err := redisClient.Close(); err != nil {
			log.Warnf("[Cache] close: %v", err)
		}
		closeDB(db)
	}
	return app, shutdown, nil
}

// findOpenAPIFile locates docs/openapi.yml for the swagger UI. It returns an
// empty string when the file is not shipped next to the binary.
func findOpenAPIFile() string {
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/kazka to project root
	}
	for _, path := range basePaths {
		file := path + "docs/openapi.yml"
		if _, err := os.Stat(file); err == nil {
			return file
		}
	}
	log.Warn("[Docs] docs/openapi.yml not found, swagger UI disabled")
	return ""
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warnf("[Database] close: %v", err)
	}
}
