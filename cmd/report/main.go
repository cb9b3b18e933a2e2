// Package main renders a stored optimization run to JSON, CSV and
// Markdown files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"graph-allocopt/internal/config"
	"graph-allocopt/internal/reporting"
	chstore "graph-allocopt/internal/storage/clickhouse"
	pgstore "graph-allocopt/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (for storage DSNs)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	runID := flag.String("run-id", "", "Run to render; empty renders the latest run for --indexer")
	indexer := flag.String("indexer", "", "Indexer address for latest-run lookup")
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	flag.Parse()

	ctx := context.Background()

	pgDSN, chDSN := *postgresDSN, *clickhouseDSN
	if *configPath != "" {
		conf, err := config.LoadConfiguration(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if pgDSN == "" {
			pgDSN = conf.Storage.PostgresDSN
		}
		if chDSN == "" {
			chDSN = conf.Storage.ClickHouseDSN
		}
		if *indexer == "" {
			*indexer = conf.Indexer.Address
		}
	}

	if pgDSN == "" || chDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: postgres and clickhouse DSNs are required (flags or --config)")
		os.Exit(1)
	}
	if *runID == "" && *indexer == "" {
		fmt.Fprintln(os.Stderr, "Error: either --run-id or --indexer is required")
		os.Exit(1)
	}

	pool, err := pgstore.NewPool(ctx, pgDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	conn, err := chstore.NewConn(ctx, chDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	runStore := pgstore.NewRunStore(pool)
	historyStore := chstore.NewAllocationHistoryStore(conn)

	id := *runID
	if id == "" {
		latest, err := runStore.GetLatestByIndexer(ctx, *indexer)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding latest run for %s: %v\n", *indexer, err)
			os.Exit(1)
		}
		id = latest.RunID
	}

	report, err := reporting.NewGenerator(runStore, historyStore).Generate(ctx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := writeFiles(*outputDir, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report files: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	fmt.Printf("  - %s/strategies.json\n", *outputDir)
	fmt.Printf("  - %s/allocations.csv\n", *outputDir)
	fmt.Printf("  - %s/REPORT.md\n", *outputDir)
}

func writeFiles(dir string, report *reporting.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	payload, err := reporting.RenderActionQueueJSON(report.Strategies)
	if err != nil {
		return fmt.Errorf("render json: %w", err)
	}

	files := map[string]string{
		"strategies.json": payload,
		"allocations.csv": reporting.RenderCSV(report),
		"REPORT.md":       reporting.RenderMarkdown(report),
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
