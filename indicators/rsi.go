package indicators

import "math"

const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The first value appears at index `period` (period+1 closes).
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	fillNaN(out)
	if period <= 0 || len(closes) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		g, l := split(closes[i] - closes[i-1])
		avgGain += g
		avgLoss += l
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		g, l := split(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + g) / p
		avgLoss = (avgLoss*(p-1) + l) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

// ClassifyRSI labels a reading as overbought, oversold or neutral.
func ClassifyRSI(v float64) string {
	switch {
	case v > RSIOverbought:
		return "overbought"
	case v < RSIOversold:
		return "oversold"
	default:
		return "neutral"
	}
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, math.Abs(change)
}
