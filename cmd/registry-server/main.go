package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/pkg/app/httpserver"
	"github.com/curatelabs/tcr-middleware/pkg/auditor"
	"github.com/curatelabs/tcr-middleware/pkg/bank"
	"github.com/curatelabs/tcr-middleware/pkg/clock"
	"github.com/curatelabs/tcr-middleware/pkg/config"
	"github.com/curatelabs/tcr-middleware/pkg/params"
	"github.com/curatelabs/tcr-middleware/pkg/pgutil"
	"github.com/curatelabs/tcr-middleware/pkg/registry/service"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store/pg"
	"github.com/curatelabs/tcr-middleware/pkg/voting"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Token-Curated Registry Server")

	// Initialize database
	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	registryStore := pg.NewStore(db)

	paramStore, err := registryParams(&cfg.Registry)
	if err != nil {
		logger.Fatal("Invalid registry parameters", zap.Error(err))
	}

	clk := clock.System()
	ledger := bank.NewMemoryLedger(cfg.Registry.EscrowAccount)
	polls := voting.NewPollService(ledger, clk, logger)
	svc := service.New(registryStore, ledger, polls, paramStore, clk, logger)

	// Escrow conservation auditor
	aud := auditor.New(registryStore, ledger, cfg.Registry.EscrowAccount, logger)
	aud.StartPeriodicAudit(cfg.Registry.AuditInterval)
	defer aud.Stop()

	// Setup HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.Int("port", cfg.Monitoring.MetricsPort))
	}

	r.Route("/api/v1", func(r chi.Router) {
		service.RegisterRoutes(r, svc, polls, logger)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpserver.ServeAndWait(ctx, logger, srv, cfg.Shutdown.Timeout); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// registryParams builds the curation parameter store from configuration.
// Durations are stored in seconds, matching params.Duration.
func registryParams(cfg *config.RegistryConfig) (params.Store, error) {
	minDeposit, err := decimal.NewFromString(cfg.MinDeposit)
	if err != nil {
		return nil, fmt.Errorf("invalid registry.min_deposit %q: %w", cfg.MinDeposit, err)
	}

	return params.NewMemoryStore(map[string]decimal.Decimal{
		params.MinDeposit:        minDeposit,
		params.ApplicationPeriod: decimal.NewFromFloat(cfg.ApplicationPeriod.Seconds()),
		params.CommitStageLength: decimal.NewFromFloat(cfg.CommitStageLength.Seconds()),
		params.RevealStageLength: decimal.NewFromFloat(cfg.RevealStageLength.Seconds()),
		params.DispensationPct:   decimal.NewFromInt(cfg.DispensationPct),
	}), nil
}
