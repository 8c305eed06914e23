package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/nextpost/configs"
	"github.com/maheshrc27/nextpost/internal/events"
	job "github.com/maheshrc27/nextpost/internal/jobs"
	"github.com/maheshrc27/nextpost/internal/platform"
	"github.com/maheshrc27/nextpost/internal/publisher"
	"github.com/maheshrc27/nextpost/internal/queue"
	"github.com/maheshrc27/nextpost/internal/repository"
	"github.com/maheshrc27/nextpost/internal/service"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// app holds the connections and services shared by serve and worker.
type app struct {
	cfg       config.Config
	db        *sql.DB
	redis     asynq.RedisClientOpt
	client    *asynq.Client
	inspector *asynq.Inspector
	nc        *nats.Conn
	tp        *sdktrace.TracerProvider

	postRepo    repository.PostRepository
	postMedia   repository.PostMediaRepository
	accountRepo repository.SocialAccountRepository

	posts        service.PostService
	accounts     service.AccountService
	media        service.MediaService
	publications service.PublicationService
}

func newApp(ctx context.Context, cfg config.Config, serviceName string) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.OtelEndpoint != "" {
		tp, err := initTracer(ctx, cfg, serviceName)
		if err != nil {
			slog.Error("failed to init tracer", "error", err)
		} else {
			a.tp = tp
		}
	}

	db, err := openDB(ctx, cfg.PostgresURI)
	if err != nil {
		return nil, err
	}
	a.db = db

	a.redis = asynq.RedisClientOpt{Addr: cfg.RedisURI}
	a.client = asynq.NewClient(a.redis)
	a.inspector = asynq.NewInspector(a.redis)
	sched := queue.NewAsynqScheduler(a.client, a.inspector, cfg.QueueName, cfg.Retry.InfraMaxAttempts-1)

	var ev events.Publisher = events.Noop{}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		a.nc = nc
		ev = events.NewNatsPublisher(nc)
	}

	store, err := service.NewR2Service(ctx, cfg.R2)
	if err != nil {
		a.close()
		return nil, err
	}

	tx := repository.NewTransactor(db)
	a.postRepo = repository.NewPostRepository(db)
	a.postMedia = repository.NewPostMediaRepository(db)
	a.accountRepo = repository.NewSocialAccountRepository(db)
	assetRepo := repository.NewMediaAssetRepository(db)
	attemptRepo := repository.NewPublishAttemptRepository(db)

	registry := newRegistry(cfg)

	a.posts = service.NewPostService(tx, a.postRepo, a.postMedia, assetRepo, a.accountRepo, attemptRepo, sched)
	a.accounts = service.NewAccountService(cfg, a.accountRepo, registry)
	a.media = service.NewMediaService(assetRepo, store)
	a.publications = service.NewPublicationService(cfg, a.postRepo, a.postMedia, a.accountRepo, attemptRepo, registry, sched, ev)

	return a, nil
}

// stalePublishingMargin covers the database writes that follow the platform
// call of a live run.
const stalePublishingMargin = 5 * time.Minute

func (a *app) jobs(failedRetention time.Duration) job.Jobs {
	return job.Jobs{
		TokenRefresh:        job.NewTokenRefreshJob(a.accountRepo, a.accounts),
		ScheduledValidation: job.NewScheduledValidationJob(a.postRepo, a.postMedia, a.accountRepo),
		FailedCleanup:       job.NewFailedCleanupJob(a.postRepo, failedRetention),
		StalePublishing:     job.NewStalePublishingJob(a.postRepo, a.cfg.PublishDeadline+stalePublishingMargin),
	}
}

func newRegistry(cfg config.Config) *publisher.Registry {
	client := publisher.NewHTTPClient(cfg.PublishTimeout)

	r := publisher.NewRegistry()
	r.Register(publisher.NewGraphPublisher(cfg.Facebook, client), platform.FacebookPage, platform.InstagramFeed, platform.InstagramStory)
	r.Register(publisher.NewTiktokPublisher(cfg.Tiktok, client), platform.Tiktok)
	r.Register(publisher.NewYoutubePublisher(cfg.Google, client), platform.Youtube)
	return r
}

func openDB(ctx context.Context, uri string) (*sql.DB, error) {
	if uri == "" {
		return nil, fmt.Errorf("POSTGRES_URI is not set")
	}
	db, err := sql.Open("postgres", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	return db, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.inspector != nil {
		a.inspector.Close()
	}
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			slog.Error("failed to drain nats connection", "error", err)
		}
	}
	if a.db != nil {
		closeDB(a.db)
	}
	if a.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down tracer", "error", err)
		}
	}
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func initTracer(ctx context.Context, cfg config.Config, serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
