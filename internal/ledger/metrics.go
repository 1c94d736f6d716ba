package ledger

import "math"

// stdDevEpsilon floors a zero standard deviation so the ratios stay finite
// when every trade returned the same profit.
const stdDevEpsilon = 0.001

// Metrics is the end-of-run performance summary. It is computed once from
// the closed trade history, not incrementally.
type Metrics struct {
	TradeCount         int     `json:"trade_count"`
	WinCount           int     `json:"win_count"`
	WinRatio           float64 `json:"win_ratio"`
	MeanProfit         float64 `json:"mean_profit"`
	StdDevProfit       float64 `json:"std_dev_profit"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	SortinoRatio       float64 `json:"sortino_ratio"`
	CurrentProfitRatio float64 `json:"current_profit_ratio"`
	HoldProfitRatio    float64 `json:"hold_profit_ratio"`
	TotalValue         float64 `json:"total_value"`
	Cash               float64 `json:"cash"`
	Fees               float64 `json:"fees"`
}

// Metrics computes the end-of-run summary. The Sharpe-style ratio is
// sqrt(n) * mean / stdDev over all closed trades; the Sortino variant uses
// the standard deviation of losing trades only. Both are -1 when fewer than
// two trades closed.
func (l *Ledger) Metrics() Metrics {
	m := Metrics{
		WinCount:           l.winCount,
		CurrentProfitRatio: l.currentProfitRatio,
		HoldProfitRatio:    l.holdProfitRatio,
		TotalValue:         l.totalValue,
		Cash:               l.cash,
		Fees:               l.fees,
	}

	var profits, losses []float64

	for _, trade := range l.trades {
		if !trade.Closed {
			continue
		}

		profits = append(profits, trade.ProfitRatio)

		if trade.ProfitRatio < 0 {
			losses = append(losses, trade.ProfitRatio)
		}
	}

	m.TradeCount = len(profits)

	if m.TradeCount > 0 {
		m.WinRatio = float64(m.WinCount) / float64(m.TradeCount)
	}

	if m.TradeCount < 2 {
		m.SharpeRatio = -1
		m.SortinoRatio = -1

		return m
	}

	m.MeanProfit = mean(profits)
	m.StdDevProfit = stdDev(profits, m.MeanProfit)

	scale := math.Sqrt(float64(m.TradeCount))
	m.SharpeRatio = scale * m.MeanProfit / floored(m.StdDevProfit)

	downside := stdDev(losses, mean(losses))
	m.SortinoRatio = scale * m.MeanProfit / floored(downside)

	return m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func stdDev(values []float64, mu float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += (v - mu) * (v - mu)
	}

	return math.Sqrt(sum / float64(len(values)))
}

func floored(sigma float64) float64 {
	if sigma < stdDevEpsilon {
		return stdDevEpsilon
	}

	return sigma
}
