package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type SimulationResult struct {
	Trades       []Trade `json:"trades"`
	FinalCapital float64 `json:"final_capital"`
}

// Simulate walks the signals through a single long position. Fills happen
// at the bar's close. A position still open after the last bar is closed at
// that bar's close.
func Simulate(bars []Bar, signals []Signal, action ActionDefinition, initialCapital float64) SimulationResult {
	trades, pos, capital := walk(bars, signals, action, initialCapital)

	if pos.Side == SideLong && len(bars) > 0 {
		last := bars[len(bars)-1]
		capital += pos.Quantity * last.Close
		trades = append(trades, closeTrade(pos, last.Date, last.Close, ExitEndOfData))
	}

	return SimulationResult{Trades: trades, FinalCapital: round2(capital)}
}

// walk applies the signals bar by bar and returns whatever position is left
// open at the end.
func walk(bars []Bar, signals []Signal, action ActionDefinition, capital float64) ([]Trade, Position, float64) {
	pos := Position{Side: SideFlat}
	pct := action.Parameters.PercentageOrDefault()
	trades := make([]Trade, 0)

	for i, bar := range bars {
		if i >= len(signals) {
			break
		}
		switch signals[i] {
		case SignalBuy:
			if pos.Side != SideFlat || bar.Close <= 0 {
				continue
			}
			qty := math.Floor(capital * pct / 100 / bar.Close)
			if qty <= 0 {
				continue
			}
			capital -= qty * bar.Close
			pos = Position{Side: SideLong, EntryDate: bar.Date, EntryPrice: bar.Close, Quantity: qty}
		case SignalSell:
			if pos.Side != SideLong {
				continue
			}
			capital += pos.Quantity * bar.Close
			trades = append(trades, closeTrade(pos, bar.Date, bar.Close, ExitSignal))
			pos = Position{Side: SideFlat}
		}
	}
	return trades, pos, capital
}

func closeTrade(pos Position, exitDate time.Time, exitPrice float64, reason string) Trade {
	cost := pos.EntryPrice * pos.Quantity
	profit := (exitPrice - pos.EntryPrice) * pos.Quantity
	rate := 0.0
	if cost != 0 {
		rate = profit / cost * 100
	}
	return Trade{
		EntryDate:  pos.EntryDate.Format(dateLayout),
		ExitDate:   exitDate.Format(dateLayout),
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   pos.Quantity,
		Profit:     round2(profit),
		ProfitRate: round2(rate),
		ExitReason: reason,
	}
}

// round2 rounds half away from zero on the decimal value, so 1.005 becomes 1.01.
func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
