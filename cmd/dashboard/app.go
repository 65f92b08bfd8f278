package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/septivank/meter-dashboard/internal/blob"
	"github.com/septivank/meter-dashboard/internal/config"
	"github.com/septivank/meter-dashboard/internal/db"
	"github.com/septivank/meter-dashboard/internal/httpapi"
	"github.com/septivank/meter-dashboard/internal/ingest"
	"github.com/septivank/meter-dashboard/internal/metrics"
	"github.com/septivank/meter-dashboard/internal/mq"
	"github.com/septivank/meter-dashboard/internal/report"
	"github.com/septivank/meter-dashboard/internal/repository"
	"github.com/septivank/meter-dashboard/internal/service"
	"github.com/septivank/meter-dashboard/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Backends holds the database handle selected by STORE_DRIVER; exactly one is set
type Backends struct {
	Postgres *db.Pool
	SQLite   *sql.DB
}

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func ensureSchemaOnStart(lc fx.Lifecycle, logger *zap.Logger, name string, s schemaEnsurer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("[SCHEMA] %s: %w", name, err)
			}
			logger.Info("schema ready", zap.String("store", name))
			return nil
		},
	})
}

// ProvideBackends opens the configured database
func ProvideBackends(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*Backends, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(lc, logger, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Backends{SQLite: sqlDB}, nil
	default:
		pool, err := db.NewPool(lc, logger, cfg.Store.DatabaseURL, cfg.Store.DatabaseName)
		if err != nil {
			return nil, err
		}
		return &Backends{Postgres: pool}, nil
	}
}

// ProvideRepository creates the record store on the configured database
func ProvideRepository(lc fx.Lifecycle, logger *zap.Logger, b *Backends) service.Repository {
	if b.SQLite != nil {
		repo := repository.NewSQLite(b.SQLite)
		ensureSchemaOnStart(lc, logger, "meters", repo)
		return repo
	}
	repo := repository.NewPostgres(b.Postgres)
	ensureSchemaOnStart(lc, logger, "meters", repo)
	return repo
}

// ProvideBlobStore creates the image store selected by BLOB_DRIVER
func ProvideBlobStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config, b *Backends) (blob.Store, error) {
	var store blob.Store
	switch cfg.Blob.Driver {
	case config.BlobMemory:
		logger.Warn("using in-memory image store; images are lost on restart")
		store = blob.NewMemory()
	case config.BlobS3:
		s3Store, err := blob.NewS3(context.Background(), blob.S3Config{
			Bucket:          cfg.Blob.S3Bucket,
			Region:          cfg.Blob.S3Region,
			Endpoint:        cfg.Blob.S3Endpoint,
			PathStyle:       cfg.Blob.S3PathStyle,
			Prefix:          cfg.Blob.S3Prefix,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("[BLOB] failed to configure s3: %w", err)
		}
		store = s3Store
	default:
		if b.SQLite != nil {
			sqliteStore := blob.NewSQLite(b.SQLite)
			ensureSchemaOnStart(lc, logger, "meter_images", sqliteStore)
			store = sqliteStore
		} else {
			pgStore := blob.NewPostgres(b.Postgres)
			ensureSchemaOnStart(lc, logger, "meter_images", pgStore)
			store = pgStore
		}
	}

	logger.Info("image store configured", zap.String("driver", string(store.Driver())))
	return store, nil
}

// ProvideReportBuilder creates the PDF builder with engines in configured order
func ProvideReportBuilder(logger *zap.Logger, cfg *config.Config) (*report.Builder, error) {
	engines, err := report.EnginesByName(cfg.Report.Engines)
	if err != nil {
		return nil, err
	}
	return report.NewBuilder(logger, engines...), nil
}

// ProvideMetrics creates the Prometheus recorder
func ProvideMetrics() *metrics.Recorder {
	return metrics.NewRecorder()
}

// ProvideMQConnection connects to RabbitMQ; nil when RABBITMQ_URL is unset
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if !cfg.RabbitMQ.Enabled() {
		logger.Info("RABBITMQ_URL not set, events and reading sync disabled")
		return nil, nil
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvideEventPublisher creates the lifecycle event publisher
func ProvideEventPublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (service.EventPublisher, error) {
	if conn == nil {
		return mq.NopPublisher{}, nil
	}
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideMeterService creates the meter service
func ProvideMeterService(
	repo service.Repository,
	blobs blob.Store,
	reports *report.Builder,
	publisher service.EventPublisher,
	recorder *metrics.Recorder,
	logger *zap.Logger,
) *service.MeterService {
	return service.NewMeterService(repo, blobs, reports, publisher, recorder, logger)
}

// ProvideValidator creates the reading validator
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideReadingProcessor creates the reading sync processor
func ProvideReadingProcessor(svc *service.MeterService, v *validator.Validator, logger *zap.Logger) *ingest.Processor {
	return ingest.NewProcessor(svc, v, logger)
}

// ProvideHTTPHandler creates the API handler
func ProvideHTTPHandler(svc *service.MeterService, cfg *config.Config, recorder *metrics.Recorder, logger *zap.Logger) *httpapi.Handler {
	return httpapi.NewHandler(svc, cfg.HTTP, recorder, logger)
}

// ProvideHTTPServer serves the API on SERVICE_PORT
func ProvideHTTPServer(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config, handler *httpapi.Handler) *http.Server {
	return httpapi.NewServer(lc, logger, cfg.ServicePort, handler.Routes())
}

func startReadingSync(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *ingest.Processor,
) error {
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.ReadingsQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.ReadingsExchange,
		RoutingKey:    cfg.RabbitMQ.ReadingsRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting reading sync consumer",
				zap.String("queue", cfg.RabbitMQ.ReadingsQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("reading sync stopped gracefully")
			return nil
		},
	})

	return nil
}
