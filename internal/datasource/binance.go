package datasource

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/tessera-lab/tessera/internal/logger"
	"github.com/tessera-lab/tessera/internal/types"
	"github.com/tessera-lab/tessera/pkg/errors"
)

// BinanceSource serves live bars from the Binance klines endpoint. It is the
// bar source streaming mode polls against.
type BinanceSource struct {
	client *binance.Client
	log    *logger.Logger
}

// NewBinanceSource creates a Binance-backed bar source. Keys may be empty:
// klines are public market data.
func NewBinanceSource(apiKey, apiSecret string, log *logger.Logger) *BinanceSource {
	return &BinanceSource{
		client: binance.NewClient(apiKey, apiSecret),
		log:    log,
	}
}

// Fetch implements BarSource.
func (s *BinanceSource) Fetch(ctx context.Context, symbol types.SymbolTags, q Query) ([]types.Bar, error) {
	timeframe := q.Timeframe
	if timeframe.IsZero() {
		timeframe = types.BaseTimeframe
	}

	svc := s.client.NewKlinesService().
		Symbol(symbol.Base + symbol.Quote).
		Interval(timeframe.String()).
		Limit(q.Limit)

	if !q.Since.IsZero() {
		svc = svc.StartTime(q.Since.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeBarFetchFailed, err, "binance klines fetch failed for %s", symbol.Symbol())
	}

	bars := make([]types.Bar, 0, len(klines))

	for _, k := range klines {
		bar, err := klineToBar(k)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	return bars, nil
}

func klineToBar(k *binance.Kline) (types.Bar, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}

	var parsed [5]float64

	for i, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return types.Bar{}, errors.Wrapf(errors.ErrCodeBarFetchFailed, err, "unparseable kline field %q", raw)
		}

		parsed[i] = v
	}

	return types.Bar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
	}, nil
}

// Close implements BarSource.
func (s *BinanceSource) Close() error {
	return nil
}
