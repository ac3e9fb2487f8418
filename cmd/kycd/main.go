package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-kyc"
	"github.com/goliatone/go-kyc/adapters/kafka"
	"github.com/goliatone/go-kyc/adapters/redis"
	"github.com/goliatone/go-kyc/config"
	"github.com/goliatone/go-kyc/logging"
	"github.com/goliatone/go-kyc/provider/stripe"
)

type App struct {
	config   config.Config
	zap      *zap.Logger
	logger   *logging.Adapter
	db       *bun.DB
	repo     kyc.RepositoryManager
	provider kyc.IdentityProvider
	limiter  kyc.StartLimiter
	activity kyc.ActivitySink
	closers  []func() error
	srv      router.Server[*fiber.App]
	http     *fiber.App
}

func main() {
	configPath := flag.String("config", os.Getenv("KYC_CONFIG"), "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "kycd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		return err
	}

	zl, err := logging.New(cfg.Environment, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	app := &App{
		config: cfg,
		zap:    zl,
		logger: logging.NewAdapter(zl),
	}
	defer app.Close()

	if cfg.Server.Debug {
		app.logger.Debug("config: %s", print.MaybePrettyJSON(redacted(cfg)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}

	if err := WithProviders(ctx, app); err != nil {
		return err
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		return err
	}

	return Serve(ctx, app)
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.config.Database

	var (
		sqldb   *sql.DB
		dialect schema.Dialect
	)

	switch cfg.Driver {
	case config.DriverPostgres:
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.GetDSN())))
		dialect = pgdialect.New()
	default:
		var err error
		sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetDSN())
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}
	app.closers = append(app.closers, sqldb.Close)

	db, err := kyc.Migrate(ctx, cfg, sqldb, dialect)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	app.db = db
	app.repo = kyc.NewRepositoryManager(db)
	app.repo.MustValidate()

	app.logger.Info("database ready (%s)", cfg.GetDriver())
	return nil
}

func WithProviders(ctx context.Context, app *App) error {
	provider, err := stripe.NewIdentityProvider(app.config.StripeProvider())
	if err != nil {
		return err
	}
	app.provider = provider

	if url := app.config.Redis.URL; url != "" {
		client, err := redis.NewClient(url)
		if err != nil {
			return err
		}
		app.closers = append(app.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}

		limiter, err := redis.NewStartLimiter(client, app.config.Redis.StartLimit, app.config.Redis.StartWindow)
		if err != nil {
			return err
		}
		app.limiter = limiter
		app.logger.Info("start limiter enabled: %d per %s", app.config.Redis.StartLimit, app.config.Redis.StartWindow)
	}

	if len(app.config.Kafka.Brokers) > 0 {
		writer, err := kafka.NewWriter(kafka.Config{
			Brokers: app.config.Kafka.Brokers,
			Topic:   app.config.Kafka.Topic,
		})
		if err != nil {
			return err
		}
		sink := kafka.NewActivitySink(writer)
		app.closers = append(app.closers, sink.Close)
		app.activity = sink
		app.logger.Info("activity events published to %s", writer.Topic)
	}

	return nil
}

func WithHTTPServer(_ context.Context, app *App) error {
	cfg := app.config

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app.http = fiber.New(fiber.Config{
			AppName:      "kycd",
			ErrorHandler: kyc.NewErrorHandler(app.logger.Named("http")),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		})

		app.http.Use(recover.New())
		app.http.Use(requestid.New(requestid.Config{ContextKey: logging.RequestIDKey}))
		app.http.Use(logging.RequestLogger(app.zap.Named("http")))
		if len(cfg.Server.AllowedOrigins) > 0 {
			app.http.Use(cors.New(cors.Config{
				AllowOrigins:     strings.Join(cfg.Server.AllowedOrigins, ","),
				AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
				AllowCredentials: true,
			}))
		}
		return app.http
	})

	webhookLogger := app.logger.Named("webhook")
	webhooks := kyc.NewWebhookProcessor(app.repo, []byte(cfg.Stripe.WebhookSecret),
		kyc.WithWebhookAuthenticator(kyc.NewEventAuthenticator(kyc.WithTolerance(cfg.Stripe.WebhookTolerance))),
		kyc.WithWebhookActivitySink(app.activity),
		kyc.WithWebhookLogger(webhookLogger),
	)

	startOpts := []kyc.StartVerificationOption{
		kyc.WithProviderTimeout(cfg.Stripe.Timeout),
		kyc.WithStartActivitySink(app.activity),
		kyc.WithStartLogger(app.logger.Named("start")),
	}
	if app.limiter != nil {
		startOpts = append(startOpts, kyc.WithStartLimiter(app.limiter))
	}
	starter := kyc.NewStartVerificationHandler(app.repo, app.provider, startOpts...)

	bearerCfg := cfg.Bearer()
	bearer := kyc.ProtectedRoute(bearerCfg, nil)

	kyc.RegisterKYCRoutes(srv.Router(),
		kyc.WithControllerDebug(cfg.Server.Debug),
		kyc.WithControllerLogger(app.logger.Named("kyc")),
		kyc.WithControllerRepository(app.repo),
		kyc.WithControllerStarter(starter),
		kyc.WithControllerWebhooks(webhooks),
		kyc.WithControllerReturnURLs(cfg.ReturnURLs()),
		kyc.WithControllerBearer(bearer, bearerCfg.ContextKey),
	)

	app.srv = srv
	return nil
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
func Serve(ctx context.Context, app *App) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("listening on %s", app.config.Server.Address)
		return app.srv.Serve(app.config.Server.Address)
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down")
		return app.http.ShutdownWithTimeout(app.config.Server.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close: %v", err)
		}
	}
}

func redacted(cfg config.Config) config.Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	cfg.Auth.SigningKey = mask(cfg.Auth.SigningKey)
	cfg.Stripe.SecretKey = mask(cfg.Stripe.SecretKey)
	cfg.Stripe.WebhookSecret = mask(cfg.Stripe.WebhookSecret)
	return cfg
}
