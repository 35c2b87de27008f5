// Command feelab computes one day of on-chain versus routing network fee
// comparisons and stores the aggregate.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lightning-fee-lab/internal/chain"
	"lightning-fee-lab/internal/config"
	"lightning-fee-lab/internal/lightning"
	"lightning-fee-lab/internal/observability"
	"lightning-fee-lab/internal/orchestrator"
	"lightning-fee-lab/internal/pathfind"
	"lightning-fee-lab/internal/sink"
	"lightning-fee-lab/internal/storage"
	chstore "lightning-fee-lab/internal/storage/clickhouse"
	"lightning-fee-lab/internal/storage/memory"
	"lightning-fee-lab/internal/storage/migrations"
	pgstore "lightning-fee-lab/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		if config.IsHelp(err) {
			fmt.Fprintln(os.Stdout, err)
			return
		}
		if errors.Is(err, orchestrator.ErrUpToDate) {
			flabLog.Infof("Nothing to do: %v", err)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.LogFile != "" {
		if err := initLogRotator(cfg.LogFile); err != nil {
			return err
		}
		defer logRotator.Close()
	}
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		flabLog.Infof("Received signal %v, cancelling run...", sig)
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	opts, cleanup, err := buildOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	orch, err := orchestrator.New(opts)
	if err != nil {
		return err
	}
	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	flabLog.Infof("Day %s: %d blocks, %d payments, %d overpaid, %d unpriced",
		result.Day.Format("2006-01-02"), result.Blocks, result.Payments, result.Overpaid, result.Unpriced)
	flabLog.Infof("Cache: %d hits, %d misses, %d searches, %d sample failures",
		result.CacheHits, result.CacheMisses, result.Searches, result.SampleFailures)
	for _, path := range result.ReportPaths {
		flabLog.Infof("Wrote %s", path)
	}
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		flabLog.Infof("Starting metrics server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			flabLog.Errorf("Metrics server error: %v", err)
		}
	}()
	return srv
}

// buildOptions connects every collaborator named by cfg. The returned
// cleanup closes them in reverse order.
func buildOptions(ctx context.Context, cfg *config.Config) (orchestrator.Options, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (orchestrator.Options, func(), error) {
		cleanup()
		return orchestrator.Options{}, func() {}, err
	}

	policy, _ := cfg.Capacity()
	day, _ := cfg.TargetDay()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	flabLog.Infof("Random seed %d", seed)

	opts := orchestrator.Options{
		Workers:        cfg.Workers,
		Precision:      cfg.Precision,
		Attempts:       cfg.Attempts,
		Successes:      cfg.Successes,
		SamplesPerRung: cfg.Samples,
		CapacityPolicy: policy,
		LadderFallback: cfg.LadderFallback,
		Seed:           seed,
		Day:            day,
		ReportDir:      cfg.ReportDir,
	}

	// Storage
	var (
		dayStore      storage.DayStore      = memory.NewDayStore()
		overpaidStore storage.OverpaidStore = memory.NewOverpaidStore()
	)
	if !cfg.UseMemory {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fail(err)
		}
		dayStore = pgstore.NewDayStore(pool)
		overpaidStore = pgstore.NewOverpaidStore(pool)
	}
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { conn.Close() })
		overpaidStore = chstore.NewOverpaidStore(conn)
	}
	opts.DayStore, opts.OverpaidStore = dayStore, overpaidStore

	// Bitcoin node
	node, err := chain.NewClient(chain.ClientConfig{
		Address:  cfg.BitcoinRPCAddress,
		User:     cfg.BitcoinRPCUser,
		Password: cfg.BitcoinRPCPassword,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, node.Close)
	payments, err := chain.NewPaymentSource(node, cfg.TxCacheSize)
	if err != nil {
		return fail(err)
	}
	opts.Locator, opts.Payments = chain.NewDayLocator(node), payments

	// Lightning gateway
	var gwOpts []lightning.ClientOption
	if cfg.SparkInsecure {
		gwOpts = append(gwOpts, lightning.WithInsecureTLS())
	}
	gateway := lightning.NewGatewayClient(cfg.SparkURL, cfg.SparkToken, gwOpts...)
	opts.Snapshot, opts.Roster = gateway, gateway
	if cfg.RosterURL != "" {
		opts.Roster = lightning.NewRosterClient(cfg.RosterURL, cfg.RosterRange, nil)
	}
	if cfg.RemoteSearch {
		searcher, err := remoteSearcher(ctx, gateway, cfg.SearchTimeout)
		if err != nil {
			return fail(err)
		}
		opts.Searcher = searcher
	}

	// Publishing
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { ks.Close() })
		opts.Sink = ks
	}

	return opts, cleanup, nil
}

func remoteSearcher(ctx context.Context, gateway *lightning.GatewayClient, timeout time.Duration) (pathfind.Searcher, error) {
	self, err := gateway.GetInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway node id: %w", err)
	}
	flabLog.Infof("Delegating searches to gateway node %s", self)
	return lightning.NewRemoteSearcher(gateway, self, timeout, lightning.DefaultSearchRetries), nil
}
