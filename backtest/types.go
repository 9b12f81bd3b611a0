package backtest

import "time"

const dateLayout = "2006-01-02"

type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

type Signal string

const (
	SignalNone Signal = ""
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

type Side string

const (
	SideFlat Side = "flat"
	SideLong Side = "long"
)

type Position struct {
	Side       Side
	EntryDate  time.Time
	EntryPrice float64
	Quantity   float64
}

const (
	ExitSignal    = "signal"
	ExitEndOfData = "end_of_data"
)

type Trade struct {
	EntryDate  string  `json:"entry_date"`
	ExitDate   string  `json:"exit_date"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Quantity   float64 `json:"quantity"`
	Profit     float64 `json:"profit"`
	ProfitRate float64 `json:"profit_rate"`
	ExitReason string  `json:"exit_reason"`
}

// PerformanceReport values are percentages except TotalTrades and the averages.
type PerformanceReport struct {
	TotalReturn   float64 `json:"total_return"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	WinRate       float64 `json:"win_rate"`
	TotalTrades   int     `json:"total_trades"`
	AverageProfit float64 `json:"average_profit"`
	AverageLoss   float64 `json:"average_loss"`
}

type EquityPoint struct {
	Date   string  `json:"date"`
	Equity float64 `json:"equity"`
}

type Result struct {
	Trades      []Trade           `json:"trades"`
	Performance PerformanceReport `json:"performance"`
	EquityCurve []EquityPoint     `json:"equity_curve"`
}
