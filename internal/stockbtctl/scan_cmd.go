package stockbtctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stockbt/backtest"
	"stockbt/fetcher"
	"stockbt/indicators"
)

// runScan 检查策略在最新一根日K上的信号与持仓
func runScan(btConfigPath, outPath string, jsonOut bool) error {
	cfg, err := backtest.LoadRunConfig(btConfigPath)
	if err != nil {
		return err
	}
	algo, err := backtest.LoadAlgorithmFile(cfg.AlgorithmPath)
	if err != nil {
		return err
	}
	bars, err := fetcher.LoadCSVFile(cfg.DataCSV, fetcher.CSVOptions{Encoding: cfg.Encoding})
	if err != nil {
		return err
	}

	symbol := strings.TrimSuffix(filepath.Base(cfg.DataCSV), filepath.Ext(cfg.DataCSV))
	res, err := backtest.Scan(symbol, bars, algo, cfg.Start, cfg.End, cfg.InitialCapital)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if strings.TrimSpace(outPath) != "" {
		if err := ensureParentDir(outPath); err != nil {
			return fmt.Errorf("prepare output dir: %w", err)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	sig := string(res.Signal)
	if sig == "" {
		sig = "-"
	}
	fmt.Fprintf(w, "%-12s %-12s %-10s %-8s %-8s %s\n", "SYMBOL", "LAST_DATE", "LAST_CLOSE", "POS", "SIGNAL", "TRADES")
	fmt.Fprintf(w, "%-12s %-12s %-10.2f %-8s %-8s %d\n", res.Symbol, res.LastDate, res.LastClose, res.PositionSide, sig, res.ClosedTrades)
	if res.PositionSide != backtest.SideFlat {
		fmt.Fprintf(w, "  entry: %s @ %.2f qty=%.0f open_profit=%.2f\n", res.EntryDate, res.EntryPrice, res.PositionQty, res.OpenProfit)
	}
	if v, ok := res.Indicators[indicators.KeyRSI]; ok {
		fmt.Fprintf(w, "  rsi: %.2f (%s)\n", v, res.RSIState)
	}
	if res.MACDState != "" {
		fmt.Fprintf(w, "  macd: %.4f signal=%.4f hist=%.4f (%s)\n",
			res.Indicators[indicators.KeyMACD], res.Indicators[indicators.KeyMACDSignal],
			res.Indicators[indicators.KeyMACDHistogram], res.MACDState)
	}
	return nil
}
