// Package app builds the augmentweb service from configuration and runs its
// HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/augmentweb/internal/api"
	"github.com/JakeFAU/augmentweb/internal/clock/system"
	"github.com/JakeFAU/augmentweb/internal/config"
	"github.com/JakeFAU/augmentweb/internal/dataset"
	hashsha256 "github.com/JakeFAU/augmentweb/internal/hash/sha256"
	"github.com/JakeFAU/augmentweb/internal/id/uuid"
	"github.com/JakeFAU/augmentweb/internal/intake"
	memorypublisher "github.com/JakeFAU/augmentweb/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/augmentweb/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/augmentweb/internal/storage/gcs"
	localstorage "github.com/JakeFAU/augmentweb/internal/storage/local"
	memorystorage "github.com/JakeFAU/augmentweb/internal/storage/memory"
	pgstore "github.com/JakeFAU/augmentweb/internal/storage/postgres"
	"github.com/JakeFAU/augmentweb/internal/telemetry"
	"github.com/JakeFAU/augmentweb/internal/ui"
)

const (
	serviceName     = "augmentweb"
	shutdownTimeout = 10 * time.Second
	readyTimeout    = 2 * time.Second
)

// Version is stamped at build time.
var Version = "dev"

// App contains the service's long-lived dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	intake    *intake.Service
	apiServer *api.Server

	storage        *storage.Client
	submissions    *pgstore.SubmissionStore
	pubsubClient   *pubsub.Client
	pubsubPub      *gcppublisher.Publisher
	tracerShutdown func(context.Context) error
}

// Build creates the service's dependencies from cfg. Clients opened before a
// failure are closed again.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		a.closeInfrastructure()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies",
		zap.Int("port", a.cfg.Server.Port),
		zap.String("storage", a.cfg.Storage.Provider),
		zap.String("db", a.cfg.DB.Provider),
		zap.String("pubsub", a.cfg.PubSub.Provider),
	)

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, Version)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown

	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	submissions, err := a.setupDatabase(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	policy, err := dataset.ParsePolicy(a.cfg.Intake.Policy)
	if err != nil {
		return fmt.Errorf("intake policy: %w", err)
	}
	a.intake = intake.NewService(
		submissions,
		blobs,
		publisher,
		hashsha256.New(),
		uuid.New(),
		system.New(),
		intake.Config{
			Policy:         policy,
			ValidateLayout: a.cfg.Intake.ValidateLayout,
			Topic:          a.cfg.Intake.Topic,
			BlobPrefix:     a.cfg.Storage.Prefix,
		},
		a.logger.Named("intake"),
	)

	screens, err := ui.New()
	if err != nil {
		return fmt.Errorf("screens init failed: %w", err)
	}
	a.apiServer = api.NewServer(a.intake, screens, a.ready, a.cfg, a.logger.Named("api"))
	return nil
}

func (a *App) setupStorage(ctx context.Context) (intake.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case config.ProviderGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case config.ProviderLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (intake.SubmissionStore, error) {
	if a.cfg.DB.Provider != config.ProviderPostgres {
		a.logger.Info("using in-memory submission store")
		return memorystorage.NewSubmissionStore(), nil
	}
	store, err := pgstore.NewSubmissionStore(ctx, pgstore.SubmissionStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("submission store init failed: %w", err)
	}
	a.submissions = store
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("submission schema: %w", err)
	}
	a.logger.Info("submission store initialized", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (intake.Publisher, error) {
	if a.cfg.PubSub.Provider != config.ProviderPubSub {
		a.logger.Warn("no Pub/Sub configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPub = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.Intake.Topic),
	)
	return a.pubsubPub, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.submissions == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return a.submissions.Ping(ctx)
}

// Intake exposes the configured intake service.
func (a *App) Intake() *intake.Service {
	return a.intake
}

// Handler returns the traced HTTP handler.
func (a *App) Handler() http.Handler {
	return otelhttp.NewHandler(a.apiServer.Handler(), serviceName)
}

// Run listens on the configured port and blocks until ctx is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is canceled, then shuts the server
// down gracefully and closes the app.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return closeErr
}

// Close releases clients and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.pubsubPub != nil {
		a.pubsubPub.Close()
		a.pubsubPub = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.submissions != nil {
		a.submissions.Close()
		a.submissions = nil
	}
}
