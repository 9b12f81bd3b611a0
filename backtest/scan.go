package backtest

import (
	"fmt"
	"time"

	"stockbt/indicators"
)

// ScanResult is the algorithm's view of the most recent bar: the signal it
// fires there and the position it would be holding going into the next bar.
type ScanResult struct {
	Symbol    string  `json:"symbol,omitempty"`
	LastDate  string  `json:"last_date"`
	LastClose float64 `json:"last_close"`
	Signal    Signal  `json:"signal,omitempty"`

	PositionSide Side    `json:"position_side"`
	PositionQty  float64 `json:"position_qty,omitempty"`
	EntryDate    string  `json:"entry_date,omitempty"`
	EntryPrice   float64 `json:"entry_price,omitempty"`
	OpenProfit   float64 `json:"open_profit,omitempty"`

	ClosedTrades int `json:"closed_trades"`

	// Indicators holds every indicator past its warm-up on the last bar.
	Indicators map[string]float64 `json:"indicators,omitempty"`
	RSIState   string             `json:"rsi_state,omitempty"`
	MACDState  string             `json:"macd_state,omitempty"`
}

// Scan replays the algorithm over bars without the end-of-data close.
func Scan(symbol string, bars []Bar, algo *AlgorithmDefinition, start, end time.Time, initialCapital float64) (ScanResult, error) {
	if algo == nil || algo.Triggers == nil || algo.Actions == nil {
		return ScanResult{}, fmt.Errorf("%w: must contain 'triggers' and 'actions'", ErrInvalidAlgorithm)
	}
	if initialCapital <= 0 {
		initialCapital = DefaultInitialCapital
	}
	bars = FilterBars(bars, start, end)
	if len(bars) == 0 {
		return ScanResult{}, fmt.Errorf("%w: %s to %s", ErrNoDataInRange, dayString(start), dayString(end))
	}

	signals := GenerateSignals(bars, algo)
	act, _ := algo.ActiveAction()
	trades, pos, _ := walk(bars, signals, act, initialCapital)

	last := bars[len(bars)-1]
	out := ScanResult{
		Symbol:       symbol,
		LastDate:     last.Date.Format(dateLayout),
		LastClose:    last.Close,
		Signal:       signals[len(signals)-1],
		PositionSide: pos.Side,
		ClosedTrades: len(trades),
	}

	snap := indicators.Compute(Closes(bars)).At(len(bars) - 1)
	out.Indicators = snap.Values()
	if v, ok := snap.Value(indicators.KeyRSI); ok {
		out.RSIState = indicators.ClassifyRSI(v)
	}
	macd, okM := snap.Value(indicators.KeyMACD)
	sig, okS := snap.Value(indicators.KeyMACDSignal)
	if okM && okS {
		out.MACDState = indicators.ClassifyMACD(macd, sig)
	}
	if pos.Side == SideLong {
		out.PositionQty = pos.Quantity
		out.EntryDate = pos.EntryDate.Format(dateLayout)
		out.EntryPrice = pos.EntryPrice
		out.OpenProfit = round2((last.Close - pos.EntryPrice) * pos.Quantity)
	}
	return out, nil
}
