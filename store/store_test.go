package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockbt/backtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBars(n int) []backtest.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	bars := make([]backtest.Bar, n)
	for i := range bars {
		c := 10 + float64(i)
		bars[i] = backtest.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100}
	}
	return bars
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := ApplyMigrations(s); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
	ok, err := columnExists(s.DB, "backtest_trades", "exit_reason")
	if err != nil || !ok {
		t.Fatalf("exit_reason column missing: %v", err)
	}
}

func TestDataSetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateDataSet(ctx, DataSet{Name: "pf", Symbol: "sh600000"}, testBars(5))
	if err != nil {
		t.Fatalf("CreateDataSet: %v", err)
	}

	ds, err := s.GetDataSet(ctx, id)
	if err != nil {
		t.Fatalf("GetDataSet: %v", err)
	}
	if ds.StartDate != "2024-03-01" || ds.EndDate != "2024-03-05" || ds.RecordCount != 5 || ds.Source != "csv" {
		t.Fatalf("unexpected data set: %#v", ds)
	}

	bars, err := s.LoadBars(ctx, id)
	if err != nil {
		t.Fatalf("LoadBars: %v", err)
	}
	if len(bars) != 5 || bars[4].Close != 14 || bars[4].Date.Format("2006-01-02") != "2024-03-05" {
		t.Fatalf("unexpected bars: %#v", bars)
	}

	latest, err := s.LatestDataSetID(ctx)
	if err != nil || latest != id {
		t.Fatalf("LatestDataSetID = %d, %v", latest, err)
	}

	list, err := s.ListDataSets(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListDataSets = %v, %v", list, err)
	}

	if _, err := s.GetDataSet(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadBars(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for bars, got %v", err)
	}
}

func TestAlgorithmRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def, err := backtest.ParseAlgorithmJSON([]byte(`{
		"triggers": [{"type": "price", "condition": {"operator": "between", "value": [1, 2]}}],
		"actions": [{"type": "buy", "parameters": {"percentage": 40}}]
	}`))
	if err != nil {
		t.Fatalf("ParseAlgorithmJSON: %v", err)
	}
	id, err := s.CreateAlgorithm(ctx, "band", "buys inside a band", def)
	if err != nil {
		t.Fatalf("CreateAlgorithm: %v", err)
	}

	a, err := s.GetAlgorithm(ctx, id)
	if err != nil {
		t.Fatalf("GetAlgorithm: %v", err)
	}
	got, err := a.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lo, hi, ok := got.Triggers[0].Condition.Value.Range()
	if !ok || lo != 1 || hi != 2 {
		t.Fatalf("range lost: %#v", got.Triggers[0])
	}
	if got.Actions[0].Parameters.PercentageOrDefault() != 40 {
		t.Fatalf("percentage lost: %s", a.Definition)
	}

	if _, err := s.GetAlgorithm(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, Job{JobID: "j1", AlgorithmID: 1, StartDate: "2024-01-01", EndDate: "2024-12-31"}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	j, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != StatusPending || j.DataSetID != 0 || j.CompletedAt != "" {
		t.Fatalf("unexpected new job: %#v", j)
	}

	if err := s.UpdateJobStatus(ctx, "j1", StatusRunning, 0.3, "Running backtest...", ""); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "j1", StatusFailed, 0, "Backtest failed: boom", "boom"); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	j, _ = s.GetJob(ctx, "j1")
	if j.Status != StatusFailed || j.Error != "boom" || j.CompletedAt == "" {
		t.Fatalf("unexpected failed job: %#v", j)
	}

	if err := s.UpdateJobStatus(ctx, "nope", StatusRunning, 0.1, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := StoredResult{
		JobID:       "j2",
		AlgorithmID: 7,
		StartDate:   "2024-01-01",
		EndDate:     "2024-01-31",
		Result: backtest.Result{
			Trades: []backtest.Trade{
				{EntryDate: "2024-01-02", ExitDate: "2024-01-05", EntryPrice: 10, ExitPrice: 11, Quantity: 100, Profit: 100, ProfitRate: 10, ExitReason: backtest.ExitSignal},
				{EntryDate: "2024-01-08", ExitDate: "2024-01-31", EntryPrice: 11, ExitPrice: 10, Quantity: 100, Profit: -100, ProfitRate: -9.09, ExitReason: backtest.ExitEndOfData},
			},
			Performance: backtest.PerformanceReport{TotalTrades: 2, WinRate: 50, AverageProfit: 100, AverageLoss: -100, MaxDrawdown: 1, SharpeRatio: 0.05},
			EquityCurve: []backtest.EquityPoint{{Date: "2024-01-02", Equity: 1000}, {Date: "2024-01-05", Equity: 2100}},
		},
	}
	if err := s.SaveResult(ctx, in); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	out, err := s.GetResult(ctx, "j2")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if out.AlgorithmID != 7 || out.Performance != in.Performance {
		t.Fatalf("performance mismatch: %#v", out)
	}
	if len(out.Trades) != 2 || out.Trades[1] != in.Trades[1] {
		t.Fatalf("trades mismatch: %#v", out.Trades)
	}
	if len(out.EquityCurve) != 2 || out.EquityCurve[1] != in.EquityCurve[1] {
		t.Fatalf("equity mismatch: %#v", out.EquityCurve)
	}

	if _, err := s.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
