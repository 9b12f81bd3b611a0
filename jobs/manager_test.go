package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockbt/backtest"
	"stockbt/store"
)

// gatedRepo blocks LoadBars until gate is closed.
type gatedRepo struct {
	*store.Store
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedRepo) LoadBars(ctx context.Context, id int64) ([]backtest.Bar, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate
	return g.Store.LoadBars(ctx, id)
}

func seed(t *testing.T) (*store.Store, int64, int64) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	closes := []float64{100, 103, 106, 103, 108}
	bars := make([]backtest.Bar, len(closes))
	for i, c := range closes {
		bars[i] = backtest.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	dsID, err := s.CreateDataSet(ctx, store.DataSet{Name: "five"}, bars)
	if err != nil {
		t.Fatalf("CreateDataSet: %v", err)
	}
	def, _ := backtest.ParseAlgorithmJSON([]byte(`{
		"triggers": [{"type": "price", "condition": {"operator": "lt", "value": 105}}],
		"actions": [{"type": "buy"}]
	}`))
	algoID, err := s.CreateAlgorithm(ctx, "dip", "", def)
	if err != nil {
		t.Fatalf("CreateAlgorithm: %v", err)
	}
	return s, algoID, dsID
}

func TestManagerCompletesJob(t *testing.T) {
	s, algoID, _ := seed(t)
	m := NewManager(context.Background(), s, Options{Workers: 2})

	id, err := m.Submit(context.Background(), JobSpec{AlgorithmID: algoID, StartDate: "2024-01-01", EndDate: "2024-01-31"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Close()

	job, err := s.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != store.StatusCompleted || job.Progress != 1 || job.CompletedAt == "" {
		t.Fatalf("unexpected job: %#v", job)
	}

	res, err := s.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitPrice != 108 || len(res.EquityCurve) != 5 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.EquityCurve[0].Equity != backtest.DefaultInitialCapital {
		t.Fatalf("default capital not used: %v", res.EquityCurve[0].Equity)
	}
}

func TestManagerFailsJob(t *testing.T) {
	s, algoID, dsID := seed(t)
	m := NewManager(context.Background(), s, Options{Workers: 1})

	id, err := m.Submit(context.Background(), JobSpec{AlgorithmID: algoID, DataSetID: dsID, StartDate: "2030-01-01", EndDate: "2030-12-31"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Close()

	job, _ := s.GetJob(context.Background(), id)
	if job.Status != store.StatusFailed || job.Progress != 0 {
		t.Fatalf("unexpected job: %#v", job)
	}
	if job.Error == "" || job.Message == "" {
		t.Fatalf("failure not recorded: %#v", job)
	}
}

func TestManagerStreamsStatus(t *testing.T) {
	s, algoID, _ := seed(t)
	repo := &gatedRepo{Store: s, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(context.Background(), repo, Options{Workers: 1})
	defer m.Close()

	id, err := m.Submit(context.Background(), JobSpec{AlgorithmID: algoID, StartDate: "2024-01-01", EndDate: "2024-01-31"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	updates, cancel := m.Subscribe(id)
	defer cancel()
	<-repo.entered
	close(repo.gate)

	var got []StatusUpdate
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case u, ok := <-updates:
			if !ok {
				done = true
				break
			}
			got = append(got, u)
		case <-timeout:
			t.Fatalf("timed out, got %#v", got)
		}
	}

	if len(got) == 0 {
		t.Fatalf("no updates received")
	}
	last := got[len(got)-1]
	if last.Status != store.StatusCompleted || last.Progress != 1 {
		t.Fatalf("last update = %#v", last)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Progress < got[i-1].Progress {
			t.Fatalf("progress went backwards: %#v", got)
		}
	}
}

func TestManagerQueueFull(t *testing.T) {
	s, algoID, _ := seed(t)
	repo := &gatedRepo{Store: s, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	m := NewManager(context.Background(), repo, Options{Workers: 1, QueueSize: 1})

	spec := JobSpec{AlgorithmID: algoID, StartDate: "2024-01-01", EndDate: "2024-01-31"}
	if _, err := m.Submit(context.Background(), spec); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	<-repo.entered // worker holds the first job
	if _, err := m.Submit(context.Background(), spec); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if _, err := m.Submit(context.Background(), spec); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(repo.gate)
	m.Close()

	if _, err := m.Submit(context.Background(), spec); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	s, algoID, _ := seed(t)
	m := NewManager(context.Background(), s, Options{})
	defer m.Close()

	cases := []struct {
		name string
		spec JobSpec
		want error
	}{
		{"missing algorithm", JobSpec{StartDate: "2024-01-01", EndDate: "2024-02-01"}, ErrBadSpec},
		{"missing dates", JobSpec{AlgorithmID: algoID}, ErrBadSpec},
		{"bad date", JobSpec{AlgorithmID: algoID, StartDate: "01/02/2024", EndDate: "2024-02-01"}, ErrBadSpec},
		{"unknown algorithm", JobSpec{AlgorithmID: 999, StartDate: "2024-01-01", EndDate: "2024-02-01"}, store.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Submit(context.Background(), tc.spec); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCancelledContextFailsJob(t *testing.T) {
	s, algoID, _ := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewManager(ctx, s, Options{Workers: 1})

	id, err := m.Submit(context.Background(), JobSpec{AlgorithmID: algoID, StartDate: "2024-01-01", EndDate: "2024-01-31"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	m.Close()

	job, _ := s.GetJob(context.Background(), id)
	if job.Status != store.StatusFailed {
		t.Fatalf("expected failed job, got %#v", job)
	}
}
