package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/tessera-lab/tessera/internal/config"
	"github.com/tessera-lab/tessera/internal/datasource"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/urfave/cli/v3"
)

// downloadPageSize is how many minute bars one exchange request asks for.
const downloadPageSize = 1000

// importAction bulk-loads minute bars from a parquet file into the bar
// database.
func importAction(_ context.Context, cmd *cli.Command) error {
	symbol, err := config.ParseSymbol(cmd.String("symbol"))
	if err != nil {
		return err
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer logInstance.Sync()

	source, err := datasource.NewDuckDBSource(cmd.String("bars"), logInstance)
	if err != nil {
		return err
	}
	defer source.Close()

	return source.LoadParquet(symbol, cmd.String("file"))
}

// downloadAction pulls minute bars from the exchange into the bar database,
// one page at a time.
func downloadAction(ctx context.Context, cmd *cli.Command) error {
	symbol, err := config.ParseSymbol(cmd.String("symbol"))
	if err != nil {
		return err
	}

	start := cmd.Timestamp("start")
	end := cmd.Timestamp("end")

	if !end.After(start) {
		return fmt.Errorf("end %s is not after start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer logInstance.Sync()

	exchange := datasource.NewBinanceSource(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_API_SECRET"), logInstance)
	defer exchange.Close()

	sink, err := datasource.NewDuckDBSource(cmd.String("bars"), logInstance)
	if err != nil {
		return err
	}
	defer sink.Close()

	totalMinutes := int64(end.Sub(start) / time.Minute)
	bar := progressbar.Default(totalMinutes)
	bar.Describe(fmt.Sprintf("Downloading %s", symbol.Symbol()))

	for cursor := start; cursor.Before(end); {
		limit := downloadPageSize
		if remaining := int(end.Sub(cursor) / time.Minute); remaining < limit {
			limit = remaining
		}

		bars, err := exchange.Fetch(ctx, symbol, datasource.Query{
			Timeframe: types.BaseTimeframe,
			Limit:     limit,
			Since:     cursor,
		})
		if err != nil {
			return err
		}

		if len(bars) == 0 {
			break
		}

		if err := sink.Insert(symbol, bars); err != nil {
			return err
		}

		cursor = bars[len(bars)-1].Time.Add(time.Minute)
		_ = bar.Add64(int64(len(bars)))
	}

	return bar.Finish()
}

func main() {
	dateConfig := cli.TimestampConfig{Layouts: []string{"2006-01-02", time.RFC3339}}

	cmd := &cli.Command{
		Name:  "data",
		Usage: "Manage the historical bar database",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Load minute bars from a parquet file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Usage: "Market as exchange:base:quote", Required: true},
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Parquet file holding time/open/high/low/close/volume", Required: true},
					&cli.StringFlag{Name: "bars", Aliases: []string{"b"}, Usage: "Path to the DuckDB bar database", Value: "data/bars.duckdb"},
				},
				Action: importAction,
			},
			{
				Name:  "download",
				Usage: "Download minute bars from the exchange",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Usage: "Market as exchange:base:quote", Required: true},
					&cli.TimestampFlag{Name: "start", Aliases: []string{"s"}, Usage: "First day to download", Config: dateConfig, Required: true},
					&cli.TimestampFlag{Name: "end", Aliases: []string{"e"}, Usage: "Last day to download (exclusive)", Config: dateConfig, Value: time.Now()},
					&cli.StringFlag{Name: "bars", Aliases: []string{"b"}, Usage: "Path to the DuckDB bar database", Value: "data/bars.duckdb"},
				},
				Action: downloadAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
