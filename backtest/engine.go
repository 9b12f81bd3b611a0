package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const DefaultInitialCapital = 100000.0

// ErrNoDataInRange is returned when no bar falls inside the requested dates.
var ErrNoDataInRange = errors.New("no data in date range")

type Request struct {
	Algorithm      *AlgorithmDefinition
	Bars           []Bar
	Start          time.Time
	End            time.Time
	InitialCapital float64
	RiskFreeRate   float64
}

// Run executes one backtest: validate, filter by date, signal, simulate,
// then measure. The input bars are never modified.
func Run(req Request) (Result, error) {
	algo := req.Algorithm
	if algo == nil || algo.Triggers == nil || algo.Actions == nil {
		return Result{}, fmt.Errorf("%w: must contain 'triggers' and 'actions'", ErrInvalidAlgorithm)
	}

	capital := req.InitialCapital
	if capital <= 0 {
		capital = DefaultInitialCapital
	}

	bars := FilterBars(req.Bars, req.Start, req.End)
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("%w: %s to %s", ErrNoDataInRange, dayString(req.Start), dayString(req.End))
	}

	signals := GenerateSignals(bars, algo)
	act, _ := algo.ActiveAction()
	sim := Simulate(bars, signals, act, capital)

	dates := make([]string, len(bars))
	for i, b := range bars {
		dates[i] = b.Date.Format(dateLayout)
	}

	return Result{
		Trades:      sim.Trades,
		Performance: CalculatePerformance(sim.Trades, capital, req.RiskFreeRate),
		EquityCurve: EquityCurve(sim.Trades, dates, capital),
	}, nil
}

// FilterBars keeps bars whose calendar day lies in [start, end]. A zero
// bound leaves that side open.
func FilterBars(bars []Bar, start, end time.Time) []Bar {
	lo, hi := dayString(start), dayString(end)
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		d := b.Date.Format(dateLayout)
		if lo != "" && d < lo {
			continue
		}
		if hi != "" && d > hi {
			continue
		}
		out = append(out, b)
	}
	return out
}

func dayString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// ParseDate accepts YYYY-MM-DD; an empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func WriteResultJSON(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
