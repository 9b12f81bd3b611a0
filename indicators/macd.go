package indicators

import "math"

type MACDParams struct {
	Fast   int
	Slow   int
	Signal int
}

func DefaultMACDParams() MACDParams {
	return MACDParams{Fast: 12, Slow: 26, Signal: 9}
}

func (p MACDParams) withDefaults() MACDParams {
	d := DefaultMACDParams()
	if p.Fast <= 0 {
		p.Fast = d.Fast
	}
	if p.Slow <= 0 {
		p.Slow = d.Slow
	}
	if p.Signal <= 0 {
		p.Signal = d.Signal
	}
	return p
}

// WarmUp is the number of closes needed before MACD values are defined.
func (p MACDParams) WarmUp() int {
	p = p.withDefaults()
	return p.Slow + p.Signal
}

// MACD returns the MACD line, signal line and histogram aligned to closes.
//
// The line is EMA(fast) - EMA(slow), both seeded at the first close. The
// signal EMA starts at index slow-1, the first bar where the slow EMA has
// seen a full period. All three slots stay NaN until slow+signal closes exist.
func MACD(closes []float64, p MACDParams) (macd, signal, hist []float64) {
	p = p.withDefaults()
	n := len(closes)
	macd = make([]float64, n)
	signal = make([]float64, n)
	hist = make([]float64, n)
	fillNaN(macd)
	fillNaN(signal)
	fillNaN(hist)

	if n == 0 {
		return
	}

	fast := EMA(closes, p.Fast)
	slow := EMA(closes, p.Slow)

	start := p.Slow - 1
	if start >= n {
		return
	}
	line := make([]float64, n-start)
	for i := start; i < n; i++ {
		line[i-start] = fast[i] - slow[i]
	}
	sig := EMA(line, p.Signal)

	ready := p.WarmUp() - 1
	for i := ready; i < n; i++ {
		macd[i] = line[i-start]
		signal[i] = sig[i-start]
		hist[i] = macd[i] - signal[i]
	}
	return
}

// ClassifyMACD labels the line/signal relationship.
func ClassifyMACD(macd, signal float64) string {
	switch {
	case math.IsNaN(macd) || math.IsNaN(signal):
		return "neutral"
	case macd > signal:
		return "bullish"
	case macd < signal:
		return "bearish"
	default:
		return "neutral"
	}
}
