package backtest

import (
	"math"

	"stockbt/indicators"
)

const eqTolerance = 1e-4

func maPeriodAvailable(period int) bool {
	for _, p := range indicators.DefaultMAPeriods {
		if p == period {
			return true
		}
	}
	return false
}

// triggerInput resolves the number a trigger compares against.
func triggerInput(t TriggerDefinition, snap indicators.Snapshot, bar Bar) (float64, bool) {
	switch t.Type {
	case TriggerRSI:
		return snap.Value(indicators.KeyRSI)
	case TriggerMACD:
		return snap.Value(indicators.KeyMACD)
	case TriggerPrice:
		return bar.Close, !math.IsNaN(bar.Close)
	case TriggerVolume:
		return bar.Volume, !math.IsNaN(bar.Volume)
	case TriggerMovingAverage:
		return snap.Value(indicators.MAKey(t.Condition.Period))
	default:
		return 0, false
	}
}

// EvaluateTrigger checks one trigger at one bar. Missing inputs, unknown
// operators and wrongly shaped values all yield false.
func EvaluateTrigger(t TriggerDefinition, snap indicators.Snapshot, bar Bar) bool {
	x, ok := triggerInput(t, snap, bar)
	if !ok {
		return false
	}

	c := t.Condition
	if c.Operator == OpBetween {
		lo, hi, ok := c.Value.Range()
		return ok && lo <= x && x <= hi
	}

	v, ok := c.Value.Scalar()
	if !ok {
		return false
	}
	switch c.Operator {
	case OpGT:
		return x > v
	case OpLT:
		return x < v
	case OpGTE:
		return x >= v
	case OpLTE:
		return x <= v
	case OpEQ:
		return math.Abs(x-v) < eqTolerance
	default:
		return false
	}
}

// EvaluateTriggers left-folds the trigger results. The operator on trigger
// i joins the accumulated result with trigger i+1. An empty list is false.
func EvaluateTriggers(ts []TriggerDefinition, snap indicators.Snapshot, bar Bar) bool {
	if len(ts) == 0 {
		return false
	}
	acc := EvaluateTrigger(ts[0], snap, bar)
	for i := 1; i < len(ts); i++ {
		acc = ts[i-1].LogicalOperator.Combine(acc, EvaluateTrigger(ts[i], snap, bar))
	}
	return acc
}
