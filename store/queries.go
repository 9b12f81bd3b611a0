package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stockbt/backtest"
)

const dateLayout = "2006-01-02"

// ----------------------------------------
// Data sets
// ----------------------------------------

// CreateDataSet stores bars under a new data set and returns its id.
func (s *Store) CreateDataSet(ctx context.Context, ds DataSet, bars []backtest.Bar) (int64, error) {
	if ds.Name == "" {
		return 0, errors.New("data set name is required")
	}
	if len(bars) == 0 {
		return 0, errors.New("data set has no bars")
	}
	if ds.Source == "" {
		ds.Source = "csv"
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO data_sets (name, symbol, start_date, end_date, record_count, imported_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ds.Name, ds.Symbol,
		bars[0].Date.Format(dateLayout), bars[len(bars)-1].Date.Format(dateLayout),
		len(bars), time.Now().Format(time.RFC3339), ds.Source)
	if err != nil {
		return 0, fmt.Errorf("insert data set: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ohlcv_data (data_set_id, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(data_set_id, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare ohlcv insert: %w", err)
	}
	defer stmt.Close()
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, id, b.Date.Format(dateLayout), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return 0, fmt.Errorf("insert bar %s: %w", b.Date.Format(dateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit data set: %w", err)
	}
	return id, nil
}

const dataSetColumns = `id, name, COALESCE(symbol, ''), COALESCE(start_date, ''), COALESCE(end_date, ''),
	COALESCE(record_count, 0), imported_at, source`

func scanDataSet(sc interface{ Scan(...any) error }) (DataSet, error) {
	var d DataSet
	err := sc.Scan(&d.ID, &d.Name, &d.Symbol, &d.StartDate, &d.EndDate, &d.RecordCount, &d.ImportedAt, &d.Source)
	return d, err
}

func (s *Store) ListDataSets(ctx context.Context) ([]DataSet, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+dataSetColumns+` FROM data_sets ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query data sets: %w", err)
	}
	defer rows.Close()

	out := []DataSet{}
	for rows.Next() {
		d, err := scanDataSet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data set: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDataSet(ctx context.Context, id int64) (DataSet, error) {
	d, err := scanDataSet(s.DB.QueryRowContext(ctx, `SELECT `+dataSetColumns+` FROM data_sets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return DataSet{}, fmt.Errorf("data set %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return DataSet{}, fmt.Errorf("get data set: %w", err)
	}
	return d, nil
}

// LatestDataSetID returns the most recently imported data set.
func (s *Store) LatestDataSetID(ctx context.Context) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM data_sets ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no data sets: %w", ErrNotFound)
	}
	return id, err
}

// LoadBars returns a data set's bars in ascending date order.
func (s *Store) LoadBars(ctx context.Context, dataSetID int64) ([]backtest.Bar, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM ohlcv_data
		WHERE data_set_id = ?
		ORDER BY date ASC
	`, dataSetID)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []backtest.Bar
	for rows.Next() {
		var (
			d string
			b backtest.Bar
		)
		if err := rows.Scan(&d, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Date, err = time.ParseInLocation(dateLayout, d, time.Local); err != nil {
			return nil, fmt.Errorf("bar date %q: %w", d, err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars for data set %d: %w", dataSetID, ErrNotFound)
	}
	return bars, nil
}

// ----------------------------------------
// Algorithms
// ----------------------------------------

func (s *Store) CreateAlgorithm(ctx context.Context, name, description string, def *backtest.AlgorithmDefinition) (int64, error) {
	if name == "" {
		return 0, errors.New("algorithm name is required")
	}
	if def == nil {
		return 0, backtest.ErrInvalidAlgorithm
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return 0, fmt.Errorf("encode definition: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO algorithms (name, description, definition) VALUES (?, ?, ?)
	`, name, description, string(raw))
	if err != nil {
		return 0, fmt.Errorf("insert algorithm: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetAlgorithm(ctx context.Context, id int64) (Algorithm, error) {
	var (
		a   Algorithm
		def string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), definition, created_at
		FROM algorithms WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.Description, &def, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Algorithm{}, fmt.Errorf("algorithm %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Algorithm{}, fmt.Errorf("get algorithm: %w", err)
	}
	a.Definition = json.RawMessage(def)
	return a, nil
}

// ----------------------------------------
// Backtest jobs
// ----------------------------------------

func (s *Store) CreateJob(ctx context.Context, j Job) error {
	if j.JobID == "" {
		return errors.New("job id is required")
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	var dataSet any
	if j.DataSetID > 0 {
		dataSet = j.DataSetID
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO backtest_jobs (job_id, algorithm_id, start_date, end_date, data_set_id, status, progress, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.JobID, j.AlgorithmID, j.StartDate, j.EndDate, dataSet, string(j.Status), j.Progress, j.Message)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus records progress; terminal statuses also stamp completed_at.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, progress float64, message, errMsg string) error {
	var completedAt any
	if status.Terminal() {
		completedAt = time.Now().Format(time.RFC3339)
	}
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE backtest_jobs
		SET status = ?, progress = ?, message = ?, error = ?, completed_at = COALESCE(?, completed_at)
		WHERE job_id = ?
	`, string(status), progress, message, errVal, completedAt, jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (Job, error) {
	var (
		j      Job
		status string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT job_id, algorithm_id, COALESCE(data_set_id, 0), start_date, end_date, status,
		       COALESCE(progress, 0), COALESCE(message, ''), COALESCE(error, ''), created_at, COALESCE(completed_at, '')
		FROM backtest_jobs WHERE job_id = ?
	`, jobID).Scan(&j.JobID, &j.AlgorithmID, &j.DataSetID, &j.StartDate, &j.EndDate, &status,
		&j.Progress, &j.Message, &j.Error, &j.CreatedAt, &j.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	j.Status = JobStatus(status)
	return j, nil
}

// ----------------------------------------
// Results
// ----------------------------------------

// SaveResult writes the metrics, trades and equity curve of a job in one transaction.
func (s *Store) SaveResult(ctx context.Context, r StoredResult) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p := r.Performance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO backtest_results (job_id, algorithm_id, start_date, end_date,
			total_return, sharpe_ratio, max_drawdown, win_rate, total_trades, average_profit, average_loss)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.JobID, r.AlgorithmID, r.StartDate, r.EndDate,
		p.TotalReturn, p.SharpeRatio, p.MaxDrawdown, p.WinRate, p.TotalTrades, p.AverageProfit, p.AverageLoss); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	for _, t := range r.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades (job_id, entry_date, exit_date, entry_price, exit_price, quantity, profit, profit_rate, exit_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.JobID, t.EntryDate, t.ExitDate, t.EntryPrice, t.ExitPrice, t.Quantity, t.Profit, t.ProfitRate, t.ExitReason); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO backtest_equity_curve (job_id, date, equity) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare equity insert: %w", err)
	}
	defer stmt.Close()
	for _, pt := range r.EquityCurve {
		if _, err := stmt.ExecContext(ctx, r.JobID, pt.Date, pt.Equity); err != nil {
			return fmt.Errorf("insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, jobID string) (StoredResult, error) {
	r := StoredResult{JobID: jobID}
	p := &r.Performance
	err := s.DB.QueryRowContext(ctx, `
		SELECT algorithm_id, start_date, end_date,
		       COALESCE(total_return, 0), COALESCE(sharpe_ratio, 0), COALESCE(max_drawdown, 0), COALESCE(win_rate, 0),
		       COALESCE(total_trades, 0), COALESCE(average_profit, 0), COALESCE(average_loss, 0)
		FROM backtest_results WHERE job_id = ?
	`, jobID).Scan(&r.AlgorithmID, &r.StartDate, &r.EndDate,
		&p.TotalReturn, &p.SharpeRatio, &p.MaxDrawdown, &p.WinRate, &p.TotalTrades, &p.AverageProfit, &p.AverageLoss)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredResult{}, fmt.Errorf("result %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return StoredResult{}, fmt.Errorf("get result: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT entry_date, exit_date, entry_price, exit_price, quantity, profit, profit_rate, exit_reason
		FROM backtest_trades WHERE job_id = ? ORDER BY id ASC
	`, jobID)
	if err != nil {
		return StoredResult{}, fmt.Errorf("query trades: %w", err)
	}
	r.Trades = []backtest.Trade{}
	for rows.Next() {
		var t backtest.Trade
		if err := rows.Scan(&t.EntryDate, &t.ExitDate, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.Profit, &t.ProfitRate, &t.ExitReason); err != nil {
			rows.Close()
			return StoredResult{}, fmt.Errorf("scan trade: %w", err)
		}
		r.Trades = append(r.Trades, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return StoredResult{}, err
	}

	rows, err = s.DB.QueryContext(ctx, `
		SELECT date, equity FROM backtest_equity_curve WHERE job_id = ? ORDER BY id ASC
	`, jobID)
	if err != nil {
		return StoredResult{}, fmt.Errorf("query equity: %w", err)
	}
	defer rows.Close()
	r.EquityCurve = []backtest.EquityPoint{}
	for rows.Next() {
		var pt backtest.EquityPoint
		if err := rows.Scan(&pt.Date, &pt.Equity); err != nil {
			return StoredResult{}, fmt.Errorf("scan equity: %w", err)
		}
		r.EquityCurve = append(r.EquityCurve, pt)
	}
	return r, rows.Err()
}
