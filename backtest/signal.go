package backtest

import "stockbt/indicators"

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// GenerateSignals returns one signal per bar. Indicators are computed once
// for the whole series; a bar gets actions[0]'s type when the combined
// trigger holds and SignalNone otherwise.
func GenerateSignals(bars []Bar, algo *AlgorithmDefinition) []Signal {
	signals := make([]Signal, len(bars))
	act, ok := algo.ActiveAction()
	if !ok || len(algo.Triggers) == 0 || len(bars) == 0 {
		return signals
	}

	series := indicators.Compute(Closes(bars))
	for i, bar := range bars {
		if EvaluateTriggers(algo.Triggers, series.At(i), bar) {
			signals[i] = Signal(act.Type)
		}
	}
	return signals
}
