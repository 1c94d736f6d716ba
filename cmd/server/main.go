package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tessera-lab/tessera/internal/api"
	"github.com/tessera-lab/tessera/internal/control"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/engine"
	"github.com/tessera-lab/tessera/internal/indicator"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/store"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func serveAction(ctx context.Context, cmd *cli.Command) error {
	logInstance, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer logInstance.Sync()

	var source datasource.BarSource

	switch provider := cmd.String("provider"); provider {
	case "duckdb":
		source, err = datasource.NewDuckDBSource(cmd.String("bars"), logInstance)
	case "binance":
		source = datasource.NewBinanceSource(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), logInstance)
	default:
		return fmt.Errorf("unknown provider %q, choose duckdb or binance", provider)
	}

	if err != nil {
		return err
	}
	defer source.Close()

	st, err := store.NewDuckDBStore(cmd.String("store"), logInstance)
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

	pool := control.NewPool(int(cmd.Int("max-runs")), build, st, logInstance)

	server := api.NewServer(pool, logInstance)
	if err := server.Start(cmd.String("listen")); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logInstance.Info("Shutting down", zap.Strings("runs", pool.List()))

	// Stop every live run before the listener closes so their buffers
	// flush.
	for _, id := range pool.List() {
		runner, err := pool.Get(id)
		if err != nil {
			continue
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)

		if _, err := runner.Stop().Wait(stopCtx); err != nil {
			logInstance.Error("Failed to stop run", zap.String("run_id", id), zap.Error(err))
		}

		stopCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

func main() {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Serve the run-control API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "HTTP listen address",
				Value:   ":8080",
			},
			&cli.StringFlag{
				Name:    "provider",
				Aliases: []string{"p"},
				Usage:   "Bar source: duckdb for replay, binance for live polling",
				Value:   "duckdb",
			},
			&cli.StringFlag{
				Name:    "bars",
				Aliases: []string{"b"},
				Usage:   "Path to the DuckDB bar database (duckdb provider)",
				Value:   "data/bars.duckdb",
			},
			&cli.StringFlag{
				Name:    "store",
				Aliases: []string{"s"},
				Usage:   "Path to the DuckDB telemetry store",
				Value:   "data/telemetry.duckdb",
			},
			&cli.IntFlag{
				Name:  "max-runs",
				Usage: "Maximum number of concurrently executing runs",
				Value: 4,
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
