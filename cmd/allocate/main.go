// Package main runs one stake allocation optimization for a configured
// indexer, prints the chosen plan in the action-queue shape, and
// optionally persists the run and re-runs on epoch boundaries.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"graph-allocopt/internal/allocation"
	"graph-allocopt/internal/config"
	"graph-allocopt/internal/deployment"
	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/eligibility"
	"graph-allocopt/internal/idhash"
	"graph-allocopt/internal/network"
	"graph-allocopt/internal/observability"
	"graph-allocopt/internal/reporting"
	"graph-allocopt/internal/solver"
	solverstub "graph-allocopt/internal/solver/stub"
	"graph-allocopt/internal/storage"
	chstore "graph-allocopt/internal/storage/clickhouse"
	"graph-allocopt/internal/storage/migrations"
	pgstore "graph-allocopt/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	watch := flag.Bool("watch", false, "Keep running and re-optimize on every epoch advance")
	dryRun := flag.Bool("dry-run", false, "Use the built-in deterministic engine instead of the solver service")
	outputDir := flag.String("output-dir", "", "Directory for report files (empty writes stdout only)")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --config is required")
		os.Exit(1)
	}

	conf, err := config.LoadConfiguration(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := conf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(conf.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	if *watch && conf.Gateway.SubscriptionWSURL == "" {
		log.Fatal().Msg("--watch requires gateway.subscriptionWsUrl")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if conf.Metrics.ListenAddr != "" {
		go serveMetrics(conf.Metrics.ListenAddr, log)
	}

	runner, cleanup, err := newRunner(ctx, conf, *dryRun, *outputDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("setup failed")
	}
	defer cleanup()

	if err := runner.runOnce(ctx); err != nil {
		if *watch && !errors.Is(err, context.Canceled) {
			// In watch mode a failed run waits for the next epoch.
			log.Error().Err(err).Msg("optimization run failed")
		} else {
			log.Fatal().Err(err).Msg("optimization run failed")
		}
	}

	if !*watch {
		return
	}

	watcher, err := network.NewEpochWatcher(ctx, conf.Gateway.SubscriptionWSURL, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("epoch watcher failed to start")
	}
	defer watcher.Close()

	log.Info().Msg("watching for epoch advances")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown")
			return
		case epoch, ok := <-watcher.Epochs():
			if !ok {
				log.Info().Msg("epoch stream closed")
				return
			}
			observability.RecordEpoch(epoch)
			log.Info().Int64("epoch", epoch).Msg("epoch advanced, re-optimizing")
			if err := runner.runOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Msg("optimization run failed")
			}
		}
	}
}

// runner holds everything one optimization run needs.
type runner struct {
	conf      *config.Configuration
	provider  network.DataProvider
	engine    solver.Engine
	smoothing solver.SmoothingEngine
	tau       *decimal.Decimal

	gas       decimal.Decimal
	minSignal decimal.Decimal

	runStore     storage.RunStore
	historyStore storage.AllocationHistoryStore

	outputDir string
	log       zerolog.Logger
}

func newRunner(ctx context.Context, conf *config.Configuration, dryRun bool, outputDir string, log zerolog.Logger) (*runner, func(), error) {
	r := &runner{
		conf:      conf,
		outputDir: outputDir,
		log:       log,
	}

	gas, err := decimal.NewFromString(conf.Optimization.GasPerAllocation)
	if err != nil {
		return nil, nil, fmt.Errorf("parse gasPerAllocation: %w", err)
	}
	r.gas = gas

	if conf.Optimization.MinSignal != "" {
		r.minSignal, err = decimal.NewFromString(conf.Optimization.MinSignal)
		if err != nil {
			return nil, nil, fmt.Errorf("parse minSignal: %w", err)
		}
	}

	if conf.Optimization.TauFactor != nil {
		tau, err := decimal.NewFromString(*conf.Optimization.TauFactor)
		if err != nil {
			return nil, nil, fmt.Errorf("parse tauFactor: %w", err)
		}
		r.tau = &tau
	}

	r.provider = network.NewClient(conf.Gateway.SubgraphURL, network.WithLogger(log))

	switch {
	case r.tau != nil:
		// The smoothing engine runs in-process.
		r.smoothing = &solverstub.SmoothingEngine{}
	case conf.Solver.URL != "" && !dryRun:
		opts := []solver.RemoteOption{solver.WithLogger(log)}
		if conf.Solver.TimeoutSeconds > 0 {
			opts = append(opts, solver.WithTimeout(time.Duration(conf.Solver.TimeoutSeconds)*time.Second))
		}
		r.engine = solver.NewRemoteEngine(conf.Solver.URL, opts...)
	default:
		if !dryRun {
			log.Warn().Msg("no solver.url configured, using the deterministic stand-in engine")
		}
		r.engine = &solverstub.Engine{}
	}

	cleanup := func() {}
	if conf.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, conf.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		r.runStore = pgstore.NewRunStore(pool)
		cleanup = pool.Close
	}
	if conf.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, conf.Storage.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		r.historyStore = chstore.NewAllocationHistoryStore(conn)
		prev := cleanup
		cleanup = func() {
			conn.Close()
			prev()
		}
	}

	return r, cleanup, nil
}

// runOnce performs one full optimization, prints the action-queue JSON,
// writes report files and persists the run when stores are configured.
func (r *runner) runOnce(ctx context.Context) error {
	start := time.Now()
	mode := r.runMode()

	strategies, data, filterRes, err := r.optimize(ctx)
	if err != nil {
		observability.RecordRun(mode, "error", time.Since(start).Seconds())
		return err
	}
	observability.RecordRun(mode, "ok", time.Since(start).Seconds())

	chosen := &strategies[0]
	observability.RecordStrategyChosen(chosen.NumAllocations)
	observability.RecordSuccessfulRun(time.Now().Unix())

	r.log.Info().
		Int("allocations", chosen.NumAllocations).
		Str("profit_grt", chosen.Profit.String()).
		Int64("epoch", data.Network.CurrentEpoch).
		Msg("optimization complete")

	rows := reporting.StrategiesFromDomain(strategies)
	payload, err := reporting.RenderActionQueueJSON(rows)
	if err != nil {
		return fmt.Errorf("render strategies: %w", err)
	}
	fmt.Print(payload)
	observability.RecordReport("json")

	createdAt := time.Now().UnixMilli()
	runID := idhash.ComputeRunID(r.conf.Indexer.Address, data.Network.CurrentEpoch, domain.OptMode(mode), createdAt)

	if r.outputDir != "" {
		if err := r.writeReportFiles(runID, data.Network.CurrentEpoch, mode, rows); err != nil {
			return err
		}
	}

	return r.persist(ctx, runID, mode, createdAt, chosen, data, filterRes)
}

// optimize runs the constrained query, filter and engine. The filter
// result is returned alongside so the run record carries stake figures.
func (r *runner) optimize(ctx context.Context) ([]domain.Strategy, *network.Data, *eligibility.Result, error) {
	constraints, err := buildConstraints(r.conf.Constraints)
	if err != nil {
		return nil, nil, nil, err
	}

	data, err := r.provider.Query(ctx, r.conf.Indexer.Address, constraints)
	if err != nil {
		return nil, nil, nil, err
	}

	filterRes, err := eligibility.Filter(data.Subgraphs, data.Indexer, constraints, r.minSignal)
	if err != nil {
		return nil, nil, nil, err
	}

	optConfig := allocation.Config{
		GasPerAllocation:   r.gas,
		AllocationLifetime: r.conf.Optimization.AllocationLifetime,
		MaxNewAllocations:  r.conf.Optimization.MaxNewAllocations,
		Mode:               domain.OptMode(r.conf.Optimization.Mode),
		MinSignal:          r.minSignal,
		NumReportedOptions: r.conf.Optimization.NumReportedOptions,
	}
	in := &allocation.Input{Data: data, Constraints: constraints}

	var opt allocation.Optimizer
	if r.tau != nil {
		universe, err := r.provider.Query(ctx, r.conf.Indexer.Address, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		in.Universe = universe.Subgraphs
		optConfig.TauFactor = *r.tau
		opt = allocation.NewSmoothingOptimizer(r.smoothing, optConfig, r.log)
	} else {
		opt = allocation.NewVectorOptimizer(r.engine, optConfig, r.log)
	}

	strategies, err := opt.Optimize(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, solver.ErrDiverged):
			observability.RecordSolverDivergence()
		case errors.Is(err, solver.ErrMalformedResponse):
			observability.RecordMalformedResponse()
		}
		var budgetErr *allocation.BudgetExceededError
		if errors.As(err, &budgetErr) {
			observability.RecordBudgetViolation()
		}
		return nil, nil, nil, err
	}
	if len(strategies) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no strategies returned", solver.ErrMalformedResponse)
	}

	return strategies, data, filterRes, nil
}

func (r *runner) runMode() string {
	if r.tau != nil {
		return "smoothing"
	}
	return r.conf.Optimization.Mode
}

func (r *runner) persist(
	ctx context.Context,
	runID, mode string,
	createdAt int64,
	chosen *domain.Strategy,
	data *network.Data,
	filterRes *eligibility.Result,
) error {
	if r.runStore != nil {
		run := &domain.AllocationRun{
			RunID:             runID,
			IndexerAddress:    r.conf.Indexer.Address,
			Epoch:             data.Network.CurrentEpoch,
			Mode:              mode,
			GasPerAllocation:  r.gas.String(),
			AvailableStakeGRT: filterRes.AvailableStake.String(),
			PinnedStakeGRT:    filterRes.PinnedStake.String(),
			NumAllocations:    chosen.NumAllocations,
			ProfitGRT:         chosen.Profit.String(),
			CreatedAt:         createdAt,
		}
		if err := r.runStore.Insert(ctx, run); err != nil {
			return fmt.Errorf("persist run: %w", err)
		}
		r.log.Debug().Str("run_id", runID).Msg("run persisted")
	}

	if r.historyStore != nil {
		points := make([]*domain.AllocationHistoryPoint, 0, len(chosen.Allocations))
		for _, item := range chosen.Allocations {
			points = append(points, &domain.AllocationHistoryPoint{
				RunID:        runID,
				DeploymentID: item.DeploymentID,
				Epoch:        data.Network.CurrentEpoch,
				AmountGRT:    item.Amount.InexactFloat64(),
				ProfitGRT:    item.Profit.InexactFloat64(),
				CreatedAt:    createdAt,
			})
		}
		if err := r.historyStore.InsertBulk(ctx, points); err != nil {
			return fmt.Errorf("persist history: %w", err)
		}
	}

	return nil
}

func (r *runner) writeReportFiles(runID string, epoch int64, mode string, rows []reporting.StrategyReport) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	report := &reporting.Report{
		GeneratedAt:    time.Now().UTC(),
		RunID:          runID,
		IndexerAddress: r.conf.Indexer.Address,
		Epoch:          epoch,
		Mode:           mode,
		Strategies:     rows,
	}

	payload, err := reporting.RenderActionQueueJSON(rows)
	if err != nil {
		return fmt.Errorf("render json: %w", err)
	}
	files := map[string]string{
		"strategies.json": payload,
		"allocations.csv": reporting.RenderCSV(report),
		"REPORT.md":       reporting.RenderMarkdown(report),
	}
	for name, content := range files {
		path := filepath.Join(r.outputDir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	observability.RecordReport("csv")
	observability.RecordReport("markdown")

	r.log.Info().Str("dir", r.outputDir).Msg("report files written")
	return nil
}

// buildConstraints converts config lists to a canonical constraint set.
func buildConstraints(c config.ConstraintsConfig) (*domain.ConstraintSet, error) {
	cs := &domain.ConstraintSet{}
	for _, pair := range []struct {
		in  []string
		out *[]string
	}{
		{c.Whitelist, &cs.Whitelist},
		{c.Blacklist, &cs.Blacklist},
		{c.Pinnedlist, &cs.Pinnedlist},
		{c.Frozenlist, &cs.Frozenlist},
	} {
		for _, id := range pair.in {
			normalized, err := deployment.ToIPFS(id)
			if err != nil {
				return nil, fmt.Errorf("constraint entry %q: %w", id, err)
			}
			*pair.out = append(*pair.out, normalized)
		}
	}
	return cs, nil
}

func newLogger(conf config.LoggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", conf.Level, err)
	}

	var log zerolog.Logger
	if conf.Format == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics endpoint failed")
	}
}
