package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/cityinfo-api/internal/domain/city"
	cityhandler "github.com/FACorreiaa/cityinfo-api/internal/domain/city/handler"
	"github.com/FACorreiaa/cityinfo-api/internal/domain/poi"
	poihandler "github.com/FACorreiaa/cityinfo-api/internal/domain/poi/handler"
	"github.com/FACorreiaa/cityinfo-api/internal/notification"
	"github.com/FACorreiaa/cityinfo-api/pkg/config"
	"github.com/FACorreiaa/cityinfo-api/pkg/db"
	"github.com/FACorreiaa/cityinfo-api/pkg/interceptors"
	"github.com/FACorreiaa/cityinfo-api/pkg/observability"
)

// HealthChecker reports whether the storage engine is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Health   HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Storage
	CityStore city.Provider

	// Services
	Mailer         notification.Mailer
	CityService    city.Service
	POIService     poi.Service
	TokenValidator *interceptors.TokenValidator

	// Handlers
	CityHandler *cityhandler.CityHandler
	POIHandler  *poihandler.PointOfInterestHandler

	closers []func() error
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	err := deps.run(ctx,
		initStep{name: "database", run: deps.initDatabase},
		initStep{name: "services", run: func(context.Context) error { return deps.initServices() }},
	)
	if err != nil {
		return nil, err
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

type initStep struct {
	name string
	run  func(context.Context) error
}

// run executes steps in order. The first failure releases everything acquired
// so far, including resources the failing step registered before it failed.
func (d *Dependencies) run(ctx context.Context, steps ...initStep) error {
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			d.Cleanup()
			return fmt.Errorf("failed to init %s: %w", step.name, err)
		}
	}
	return nil
}

// initDatabase connects the pool and, when configured, runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        d.Config.Database.MaxConns,
		MinConns:        d.Config.Database.MinConns,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database
	d.Health = database
	d.closers = append(d.closers, func() error {
		database.Close()
		return nil
	})

	if d.Config.Database.RunMigrations {
		if err := d.DB.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		d.Logger.Info("database connected and migrations completed successfully")
	}

	d.CityStore = city.NewStore(d.DB.Pool, d.Logger)
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices() error {
	jwtSecret := []byte(d.Config.Auth.JWTSecret)
	if len(jwtSecret) == 0 {
		return errors.New("jwt secret is required")
	}
	d.TokenValidator = interceptors.NewTokenValidator(jwtSecret, d.Config.Auth.Issuer, d.Config.Auth.Audience)

	mailer, err := NewMailer(d.Config.Mail, d.Logger)
	if err != nil {
		return err
	}
	d.Mailer = mailer
	if c, ok := mailer.(interface{ Close() error }); ok {
		d.closers = append(d.closers, c.Close)
	}

	d.CityService = city.NewCityService(d.CityStore, d.Logger)
	d.POIService = poi.NewPointOfInterestService(d.CityStore, d.Mailer, d.Logger)

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)

	d.Logger.Info("services initialized", slog.String("mail_transport", d.Config.Mail.Transport))
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.CityHandler = cityhandler.NewCityHandler(d.CityService, d.Config.Server.MaxCitiesPageSize, d.Logger)
	d.POIHandler = poihandler.NewPointOfInterestHandler(d.POIService, d.Config.Auth.StrictCityMatch, d.Logger)
	d.Logger.Info("handlers initialized")
}

// NewMailer picks the notification transport named by cfg.Transport.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) (notification.Mailer, error) {
	switch cfg.Transport {
	case "amqp":
		m, err := notification.DialAMQP(notification.AMQPConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.Exchange,
			RoutingKey: cfg.RoutingKey,
			From:       cfg.From,
			To:         cfg.To,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to init amqp mailer: %w", err)
		}
		return m, nil
	case "", "local":
		return notification.NewLocalMailer(cfg.From, cfg.To, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// Cleanup closes all resources in reverse order of acquisition
func (d *Dependencies) Cleanup() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error("failed to release resource", slog.Any("error", err))
		}
	}
	d.closers = nil
	d.Logger.Info("cleanup completed")
}
