package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudarb/api/rest/routes"
	"cloudarb/config"
	"cloudarb/core/aggregator"
	"cloudarb/core/arbitrage"
	"cloudarb/core/catalog"
	"cloudarb/core/forecast"
	"cloudarb/core/models"
	"cloudarb/core/optimizer"
	"cloudarb/core/runstore"
	"cloudarb/providers"
	"cloudarb/providers/factory"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

// NewServerCommand builds the cloudarb server command.
func NewServerCommand(ctx context.Context) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "cloudarb-server",
		Long:          "GPU pricing aggregation, arbitrage detection and allocation optimization service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

// run wires the component graph and serves until ctx is canceled.
func run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Catalog: persisted when a database is configured, static otherwise.
	cat := catalog.DefaultStatic()
	if cfg.Database.URL != "" {
		db, err := catalog.OpenDB(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		cat, err = catalog.NewFromDB(ctx, db)
		if err != nil {
			return err
		}
		log.Println("catalog loaded from database")
	}
	go reloadOnSignal(ctx, cat)

	// Run store: Mongo when configured, in-memory otherwise.
	var runs runstore.Store = runstore.NewMemory()
	if cfg.Mongo.URI != "" {
		mongoStore, err := runstore.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return err
		}
		runs = mongoStore
		log.Println("run store backed by mongodb")
	}
	defer runs.Close(context.Background())

	// Aggregator over the enabled adapters.
	adapters := factory.Build(ctx, cfg)
	if len(adapters) == 0 {
		log.Println("warning: no adapters enabled, pricing table will stay empty")
	}
	aggCfg := aggregator.Config{
		Interval:         cfg.Aggregator.CycleInterval.Std(),
		CycleDeadline:    cfg.Aggregator.CycleDeadline.Std(),
		DefaultStaleness: cfg.Aggregator.DefaultStaleness.Std(),
		ReadyGracePeriod: cfg.Aggregator.ReadyGracePeriod.Std(),
		StalenessCeiling: stalenessByProvider(cfg),
		Backoff: providers.BackoffPolicy{
			Initial:    cfg.Aggregator.BackoffInitial.Std(),
			Max:        cfg.Aggregator.BackoffMax.Std(),
			MaxRetries: cfg.Aggregator.BackoffRetries,
		},
	}
	agg := aggregator.New(aggCfg, cat, adapters, factory.Filter(cfg))
	agg.Start(ctx)

	// Arbitrage detector on the generation bus.
	detector := arbitrage.New(arbitrage.Config{
		Threshold:     cfg.Arbitrage.Threshold,
		Cooldown:      cfg.Arbitrage.Cooldown.Std(),
		RiskTolerance: cfg.Arbitrage.RiskTolerance,
		RegionClasses: cfg.Arbitrage.RegionClasses,
		BufferSize:    cfg.Arbitrage.BufferSize,
	}, agg, forecast.NewStatic(nil))
	detector.Start(ctx)

	// Optimization engine.
	engine, err := optimizer.New(optimizer.Config{
		SolverDeadline: cfg.Optimizer.SolverDeadline.Std(),
		GapTarget:      cfg.Optimizer.SolverGap,
		PoolSize:       cfg.Optimizer.SolverPoolSize,
		BalancedLambda: cfg.Optimizer.BalancedLambda,
		CacheSize:      cfg.Optimizer.CacheSize,
	}, agg, cat, runs)
	if err != nil {
		return err
	}
	defer engine.Close()

	r := mux.NewRouter()
	routes.SetupRoutes(r, engine, agg, detector)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}

// reloadOnSignal re-reads the persisted catalog on SIGHUP.
func reloadOnSignal(ctx context.Context, cat *catalog.Catalog) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cat.Reload(ctx); err != nil {
				log.Printf("catalog reload failed: %v", err)
			} else {
				log.Println("catalog reloaded")
			}
		}
	}
}

func stalenessByProvider(cfg *config.Config) map[models.Provider]time.Duration {
	out := make(map[models.Provider]time.Duration, len(cfg.Aggregator.StalenessCeiling))
	for name, ceiling := range cfg.Aggregator.StalenessCeiling {
		out[models.Provider(name)] = ceiling.Std()
	}
	return out
}
