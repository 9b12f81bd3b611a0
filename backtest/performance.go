package backtest

import "math"

// CalculatePerformance reduces trades to aggregate metrics. Sharpe is
// computed per trade, and drawdown is measured on the cumulative profit
// sequence rather than over calendar time.
func CalculatePerformance(trades []Trade, initialCapital, riskFreeRate float64) PerformanceReport {
	if len(trades) == 0 {
		return PerformanceReport{}
	}

	var total, winSum, lossSum float64
	var wins, losses int
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		total += t.Profit
		switch {
		case t.Profit > 0:
			wins++
			winSum += t.Profit
		case t.Profit < 0:
			losses++
			lossSum += t.Profit
		}
		returns = append(returns, t.ProfitRate/100)
	}

	rep := PerformanceReport{
		TotalTrades: len(trades),
		WinRate:     round2(float64(wins) / float64(len(trades)) * 100),
	}
	if initialCapital > 0 {
		rep.TotalReturn = round2(total / initialCapital * 100)
		rep.MaxDrawdown = round2(maxTradeDrawdown(trades) / initialCapital * 100)
	}
	if wins > 0 {
		rep.AverageProfit = round2(winSum / float64(wins))
	}
	if losses > 0 {
		rep.AverageLoss = round2(lossSum / float64(losses))
	}
	if len(returns) > 1 {
		mean, std := meanStd(returns)
		if std > 0 {
			rep.SharpeRatio = round2((mean - riskFreeRate) / std)
		}
	}
	return rep
}

func maxTradeDrawdown(trades []Trade) float64 {
	var cum, peak, maxDD float64
	for _, t := range trades {
		cum += t.Profit
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// meanStd uses the population standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

// EquityCurve emits one point per date. Exit proceeds are added on the exit
// date; open positions are not marked to market.
func EquityCurve(trades []Trade, dates []string, initialCapital float64) []EquityPoint {
	proceeds := make(map[string]float64, len(trades))
	for _, t := range trades {
		proceeds[t.ExitDate] += t.Quantity * t.ExitPrice
	}

	out := make([]EquityPoint, 0, len(dates))
	equity := initialCapital
	for _, d := range dates {
		equity += proceeds[d]
		out = append(out, EquityPoint{Date: d, Equity: round2(equity)})
	}
	return out
}
