package indicators

import "math"

// SMA over the last `period` closes, aligned to the input with NaN during warm-up.
func SMA(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if period <= 0 {
		fillNaN(out)
		return out
	}
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA seeded with the first value (k = 2/(period+1)). Defined from index 0.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period <= 0 {
		fillNaN(out)
		return out
	}
	k := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func fillNaN(out []float64) {
	for i := range out {
		out[i] = math.NaN()
	}
}
