package backtest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
)

var tradeCSVHeader = []string{
	"entry_date", "exit_date", "entry_price", "exit_price", "quantity",
	"profit", "profit_rate", "exit_reason",
}

// WriteTradesCSV writes one row per trade.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			t.EntryDate, t.ExitDate,
			formatF(t.EntryPrice), formatF(t.ExitPrice), formatF(t.Quantity),
			formatF(t.Profit), formatF(t.ProfitRate), t.ExitReason,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteTradesCSVFile(path string, trades []Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteTradesCSV(f, trades)
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
