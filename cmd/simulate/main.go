package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/control"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/urfave/cli/v3"
)

// simulateAction runs one backtest to completion and prints its metrics.
func simulateAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	barsPath := cmd.String("bars")
	storePath := cmd.String("store")

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := config.ParseRunConfig(raw)
	if err != nil {
		return err
	}

	if cfg.Backtest == nil {
		return fmt.Errorf("config %s has no backtest window; use the server for streaming runs", configPath)
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer logInstance.Sync()

	source, err := datasource.NewDuckDBSource(barsPath, logInstance)
	if err != nil {
		return err
	}
	defer source.Close()

	st, err := store.NewDuckDBStore(storePath, logInstance)
	if err != nil {
		return err
	}
	defer st.Close()

	build := control.NewRunBuilder(
		indicator.DefaultRegistry(),
		engine.DefaultStrategyRegistry(),
		source,
		st,
		logInstance,
	)

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("simulate-%d", time.Now().Unix())
	}

	eng, err := build(runID, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		eng.Stop()
	}()

	totalSteps := int64(cfg.Backtest.Stop.Sub(cfg.Backtest.Start) / time.Minute)
	bar := progressbar.Default(totalSteps)
	bar.Describe(fmt.Sprintf("Simulating %s with %s", cfg.Symbols[0], cfg.Strategy))

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	// The engine owns the loop; the bar just tracks its step counter.
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var runErr error

tracking:
	for {
		select {
		case runErr = <-done:
			_ = bar.Finish()

			break tracking
		case <-ticker.C:
			_ = bar.Set64(eng.Steps())
		}
	}

	if runErr != nil {
		return runErr
	}

	metrics := eng.Ledger().Metrics()

	encoded, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(encoded))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "simulate",
		Usage: "Replay a strategy over historical bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the run config YAML",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "bars",
				Aliases: []string{"b"},
				Usage:   "Path to the DuckDB bar database",
				Value:   "data/bars.duckdb",
			},
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "Path to the DuckDB telemetry store",
				Value:   "data/telemetry.duckdb",
			},
		},
		Action: simulateAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
