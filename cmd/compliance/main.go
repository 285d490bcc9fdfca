package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance/config"
	"compliance/handler"
	"compliance/handler/platforms"
	"compliance/infrastructure/database"
	httpclient "compliance/infrastructure/http"
	"compliance/infrastructure/queue"
	"compliance/infrastructure/storage"
	"compliance/internal/advisor"
	"compliance/internal/credentials"
	"compliance/internal/domain"
	"compliance/internal/evaluate"
	"compliance/internal/ledger"
	"compliance/internal/probe"
	"compliance/internal/service"
	"compliance/internal/worker"
	"compliance/observability"
	"compliance/observability/metrics"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := loadConfiguration()

	deps := initializeDependencies(cfg)
	defer deps.Close()

	app := buildApplication(cfg, deps)

	startApplication(cfg, app)
}

// Dependencies holds the initialized infrastructure.
type Dependencies struct {
	provider    observability.Provider
	db          *database.DB
	credentials domain.CredentialStore
	ledger      domain.AuditLedger
	publisher   queue.Publisher
	archive     storage.Archive
	probeHTTP   *httpclient.Client
	gatewayHTTP *httpclient.Client
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
	_ = d.provider.Close()
}

// Application holds the assembled handler stack.
type Application struct {
	handler  *handler.Handler
	provider observability.Provider
}

func loadConfiguration() *config.Config {
	cfgProvider := config.GetProvider()
	cfgProvider.MustLoad()
	return cfgProvider.MustGet()
}

func initializeDependencies(cfg *config.Config) *Dependencies {
	ctx := context.Background()

	provider := initializeObservability(ctx, cfg)
	logger := provider.Logger("main")

	logger.Info(ctx, "Starting application", observability.Fields{
		"version":        cfg.Version,
		"policy_profile": cfg.Policy.Profile,
		"ledger_backend": cfg.Ledger.Backend,
		"queue_provider": cfg.Queue.Provider,
		"storage":        cfg.Storage.Provider,
	})

	deps := &Dependencies{provider: provider}

	if err := initializeStores(ctx, cfg, deps); err != nil {
		logger.Error(ctx, "Failed to initialize stores", err, nil)
		log.Fatalf("Failed to initialize stores: %v", err)
	}

	publisher, err := queue.New(ctx, cfg.Queue, provider)
	if err != nil {
		logger.Error(ctx, "Failed to initialize publisher", err, nil)
		log.Fatalf("Failed to initialize publisher: %v", err)
	}
	deps.publisher = publisher

	archive, err := storage.New(ctx, cfg.Storage, provider)
	if err != nil {
		logger.Error(ctx, "Failed to initialize archive", err, nil)
		log.Fatalf("Failed to initialize archive: %v", err)
	}
	deps.archive = archive

	deps.probeHTTP = httpclient.NewClient(cfg.ProbeHTTP(), cfg.Retry, provider)
	deps.gatewayHTTP = httpclient.NewClient(cfg.GatewayHTTP(), cfg.Retry, provider)

	return deps
}

// initializeObservability builds the provider. CloudWatch collectors are
// used when configured, Prometheus otherwise.
func initializeObservability(ctx context.Context, cfg *config.Config) observability.Provider {
	obsCfg := &observability.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.LogLevel,
		LogOutput:   os.Stdout,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	}

	if cfg.Observability.MetricsProvider == "cloudwatch" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Observability.CloudWatchRegion))
		if err != nil {
			log.Fatalf("Failed to load AWS config for CloudWatch: %v", err)
		}
		client := cloudwatch.NewFromConfig(awsCfg)
		namespace := cfg.Observability.CloudWatchNamespace
		obsCfg.MetricsFactory = func(component string) observability.Metrics {
			return metrics.NewCloudWatch(client, namespace, component)
		}
	}

	return observability.NewProvider(obsCfg)
}

func initializeStores(ctx context.Context, cfg *config.Config, deps *Dependencies) error {
	if cfg.Ledger.Backend == "memory" {
		var projects []domain.Project
		if cfg.Ledger.SeedFile != "" {
			seeded, err := credentials.LoadSeedFile(cfg.Ledger.SeedFile)
			if err != nil {
				return fmt.Errorf("seed credentials: %w", err)
			}
			projects = seeded
		}
		deps.provider.Logger("main").Info(ctx, "Using in-memory stores", observability.Fields{
			"seeded_projects": len(projects),
		})

		deps.credentials = credentials.NewMemoryStore(projects...)
		deps.ledger = ledger.NewMemoryLedger(cfg.Ledger.HistoryLimit)
		return nil
	}

	db, err := database.Open(ctx, cfg.Database, deps.provider)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	deps.db = db
	deps.credentials = credentials.NewPostgresStore(db, deps.provider)
	deps.ledger = ledger.NewPostgresLedger(db, cfg.Ledger.HistoryLimit, deps.provider)
	return nil
}

func buildApplication(cfg *config.Config, deps *Dependencies) *Application {
	policy, err := evaluate.PolicyFromConfig(cfg.Policy)
	if err != nil {
		log.Fatalf("Invalid policy configuration: %v", err)
	}

	checkService := service.NewCheckService(service.Dependencies{
		Credentials:  deps.credentials,
		Probes:       probe.NewProbeClients(deps.probeHTTP, deps.provider),
		Evaluator:    evaluate.NewEvaluator(policy),
		Ledger:       deps.ledger,
		Advisor:      advisor.NewAdvisor(deps.gatewayHTTP, cfg.Gateway.URL, deps.provider),
		Publisher:    deps.publisher,
		Archive:      deps.archive,
		EventTarget:  cfg.Queue.Target,
		HistoryLimit: cfg.Ledger.HistoryLimit,
	}, deps.provider)

	var pingers []worker.Pinger
	if deps.db != nil {
		pingers = append(pingers, deps.db)
	}

	complianceWorker := worker.NewComplianceWorker(
		checkService,
		deps.provider.Logger("worker"),
		deps.provider.Metrics("worker"),
		pingers...,
	).WithAdviceTimeout(cfg.Gateway.Timeout)

	h := handler.NewFactory(complianceWorker, deps.provider).
		WithHandlerConfig(cfg.Handler).
		WithRetryConfig(cfg.Retry).
		Create()

	return &Application{
		handler:  h,
		provider: deps.provider,
	}
}

func startApplication(cfg *config.Config, app *Application) {
	logger := app.provider.Logger("main")

	switch app.handler.Config().Platform {
	case "lambda":
		logger.Info(context.Background(), "Starting Lambda runtime", nil)
		platforms.NewLambdaAdapter(app.handler, &cfg.Lambda).Start()
	default:
		if err := serveHTTP(cfg, app); err != nil {
			logger.Error(context.Background(), "HTTP server failed", err, nil)
			log.Fatalf("HTTP server failed: %v", err)
		}
	}
}

// serveHTTP runs the HTTP adapter until SIGINT or SIGTERM.
func serveHTTP(cfg *config.Config, app *Application) error {
	logger := app.provider.Logger("main")
	appMetrics := app.provider.Metrics("main")
	startTime := time.Now()

	mux := http.NewServeMux()
	if cfg.Observability.MetricsProvider != "cloudwatch" {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/", platforms.NewHTTPAdapter(app.handler))

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Starting HTTP server", observability.Fields{"addr": cfg.HTTP.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	handler.LogShutdown(shutdownCtx, logger, appMetrics, startTime)
	return server.Shutdown(shutdownCtx)
}
