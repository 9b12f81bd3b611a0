package stockbtctl

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"stockbt/backtest"
	"stockbt/fetcher"
)

type backtestOutputs struct {
	JSON       string
	TradesCSV  string
	ChartDir   string
	ReportHTML string
}

func runBacktest(configPath string, out backtestOutputs) error {
	cfg, err := backtest.LoadRunConfig(configPath)
	if err != nil {
		return err
	}

	algo, err := backtest.LoadAlgorithmFile(cfg.AlgorithmPath)
	if err != nil {
		return err
	}
	for _, w := range algo.Lint() {
		log.Printf("[WARN] %s: %s\n", cfg.AlgorithmPath, w)
	}

	bars, err := fetcher.LoadCSVFile(cfg.DataCSV, fetcher.CSVOptions{Encoding: cfg.Encoding})
	if err != nil {
		return err
	}

	res, err := backtest.Run(backtest.Request{
		Algorithm:      algo,
		Bars:           bars,
		Start:          cfg.Start,
		End:            cfg.End,
		InitialCapital: cfg.InitialCapital,
		RiskFreeRate:   cfg.RiskFreeRate,
	})
	if err != nil {
		return err
	}
	log.Printf("[BT] %d trades, total return %.2f%%\n", res.Performance.TotalTrades, res.Performance.TotalReturn)

	if err := writeJSON(out.JSON, res); err != nil {
		return err
	}
	if out.TradesCSV != "" {
		if err := ensureParentDir(out.TradesCSV); err != nil {
			return err
		}
		if err := backtest.WriteTradesCSVFile(out.TradesCSV, res.Trades); err != nil {
			return err
		}
	}

	if out.ChartDir == "" && out.ReportHTML == "" {
		return nil
	}

	title := filepath.Base(cfg.DataCSV)
	window := backtest.FilterBars(bars, cfg.Start, cfg.End)
	tradesSVG, err := backtest.RenderTradesSVG(title, window, res.Trades, backtest.SVGChartOptions{Volume: true})
	if err != nil {
		return fmt.Errorf("render trades chart: %w", err)
	}
	capital := cfg.InitialCapital
	if capital <= 0 {
		capital = backtest.DefaultInitialCapital
	}
	equitySVG, err := backtest.RenderEquitySVG(title+" equity", res.EquityCurve, capital, backtest.SVGChartOptions{Height: 320})
	if err != nil {
		return fmt.Errorf("render equity chart: %w", err)
	}

	if out.ChartDir != "" {
		if err := os.MkdirAll(out.ChartDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(out.ChartDir, "trades.svg"), tradesSVG, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(out.ChartDir, "equity.svg"), equitySVG, 0o644); err != nil {
			return err
		}
	}

	if out.ReportHTML != "" {
		rep := htmlReport{
			Title:     title,
			Start:     cfg.Start,
			End:       cfg.End,
			Capital:   capital,
			Result:    res,
			TradesSVG: tradesSVG,
			EquitySVG: equitySVG,
		}
		if err := writeReportHTML(out.ReportHTML, rep); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, res backtest.Result) error {
	var w io.Writer = os.Stdout
	if path != "" {
		if err := ensureParentDir(path); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	return backtest.WriteResultJSON(w, res)
}
