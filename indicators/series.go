package indicators

import (
	"fmt"
	"math"
)

const (
	KeyRSI           = "rsi"
	KeyMACD          = "macd"
	KeyMACDSignal    = "macd_signal"
	KeyMACDHistogram = "macd_histogram"
)

// DefaultRSIPeriod and DefaultMAPeriods make up the set built by Compute.
const DefaultRSIPeriod = 14

var DefaultMAPeriods = []int{20, 50}

// MAKey names the simple moving average for a period, e.g. "ma_20".
func MAKey(period int) string {
	return fmt.Sprintf("ma_%d", period)
}

// Series holds one slot per bar for every indicator. Absent slots are NaN.
type Series struct {
	Len  int
	data map[string][]float64
}

// Compute builds RSI(14), MACD(12,26,9), SMA(20) and SMA(50) over closes.
// Each indicator is a single causal pass; slot i only reads closes[0..i].
func Compute(closes []float64) Series {
	s := Series{Len: len(closes), data: make(map[string][]float64, 4+len(DefaultMAPeriods))}
	s.data[KeyRSI] = RSI(closes, DefaultRSIPeriod)

	macd, sig, hist := MACD(closes, DefaultMACDParams())
	s.data[KeyMACD] = macd
	s.data[KeyMACDSignal] = sig
	s.data[KeyMACDHistogram] = hist

	for _, p := range DefaultMAPeriods {
		s.data[MAKey(p)] = SMA(closes, p)
	}
	return s
}

// At returns the view of every indicator at bar i.
func (s Series) At(i int) Snapshot {
	return Snapshot{series: s, idx: i}
}

// Snapshot is a read-only view of all indicators at a single bar.
type Snapshot struct {
	series Series
	idx    int
}

// Value reports the indicator value; ok is false during warm-up or for unknown keys.
func (s Snapshot) Value(key string) (float64, bool) {
	vals, ok := s.series.data[key]
	if !ok || s.idx < 0 || s.idx >= len(vals) {
		return 0, false
	}
	v := vals[s.idx]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Values flattens the snapshot into a map, omitting absent slots.
func (s Snapshot) Values() map[string]float64 {
	out := make(map[string]float64, len(s.series.data))
	for k := range s.series.data {
		if v, ok := s.Value(k); ok {
			out[k] = v
		}
	}
	return out
}

// FromValues builds a single-bar snapshot from explicit values.
func FromValues(values map[string]float64) Snapshot {
	data := make(map[string][]float64, len(values))
	for k, v := range values {
		data[k] = []float64{v}
	}
	return Snapshot{series: Series{Len: 1, data: data}}
}
