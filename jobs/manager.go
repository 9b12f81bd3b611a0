package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"stockbt/backtest"
	"stockbt/store"
)

var (
	ErrQueueFull = errors.New("job queue is full")
	ErrClosed    = errors.New("job manager is closed")
	ErrBadSpec   = errors.New("invalid job spec")
)

// Repository is the persistence the manager needs; *store.Store implements it.
type Repository interface {
	CreateJob(ctx context.Context, j store.Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status store.JobStatus, progress float64, message, errMsg string) error
	GetAlgorithm(ctx context.Context, id int64) (store.Algorithm, error)
	LatestDataSetID(ctx context.Context) (int64, error)
	LoadBars(ctx context.Context, dataSetID int64) ([]backtest.Bar, error)
	SaveResult(ctx context.Context, r store.StoredResult) error
}

type JobSpec struct {
	AlgorithmID    int64   `json:"algorithm_id"`
	DataSetID      int64   `json:"data_set_id,omitempty"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	InitialCapital float64 `json:"initial_capital,omitempty"`
}

type StatusUpdate struct {
	JobID    string          `json:"job_id"`
	Status   store.JobStatus `json:"status"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message"`
	Error    string          `json:"error,omitempty"`
	At       time.Time       `json:"at"`
}

type Options struct {
	Workers        int
	QueueSize      int
	InitialCapital float64
	RiskFreeRate   float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.InitialCapital <= 0 {
		o.InitialCapital = backtest.DefaultInitialCapital
	}
	return o
}

type task struct {
	id   string
	spec JobSpec
}

// Manager runs backtest jobs on a fixed worker pool. Workers never touch the
// store's job rows directly; status changes go through a single writer
// goroutine that persists them and fans them out to subscribers.
type Manager struct {
	repo Repository
	opts Options
	ctx  context.Context

	intake sync.RWMutex
	closed bool
	queue  chan task

	updates    chan StatusUpdate
	workers    sync.WaitGroup
	writerDone chan struct{}

	subMu sync.Mutex
	subs  map[string]map[chan StatusUpdate]struct{}
}

// NewManager starts the workers and the status writer. Cancelling ctx makes
// in-flight and queued jobs fail at their next stage.
func NewManager(ctx context.Context, repo Repository, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		repo:       repo,
		opts:       opts,
		ctx:        ctx,
		queue:      make(chan task, opts.QueueSize),
		updates:    make(chan StatusUpdate, opts.QueueSize*4),
		writerDone: make(chan struct{}),
		subs:       make(map[string]map[chan StatusUpdate]struct{}),
	}

	go m.statusWriter()
	for i := 0; i < opts.Workers; i++ {
		m.workers.Add(1)
		go m.worker()
	}
	log.Printf("[JOB] manager started: workers=%d queue=%d", opts.Workers, opts.QueueSize)
	return m
}

// Submit records a pending job and queues it.
func (m *Manager) Submit(ctx context.Context, spec JobSpec) (string, error) {
	if spec.AlgorithmID <= 0 {
		return "", fmt.Errorf("%w: algorithm_id is required", ErrBadSpec)
	}
	if spec.StartDate == "" || spec.EndDate == "" {
		return "", fmt.Errorf("%w: start_date and end_date are required", ErrBadSpec)
	}
	for _, d := range []string{spec.StartDate, spec.EndDate} {
		if _, err := backtest.ParseDate(d); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadSpec, err)
		}
	}
	if _, err := m.repo.GetAlgorithm(ctx, spec.AlgorithmID); err != nil {
		return "", err
	}

	m.intake.RLock()
	defer m.intake.RUnlock()
	if m.closed {
		return "", ErrClosed
	}

	id := uuid.New().String()
	err := m.repo.CreateJob(ctx, store.Job{
		JobID:       id,
		AlgorithmID: spec.AlgorithmID,
		DataSetID:   spec.DataSetID,
		StartDate:   spec.StartDate,
		EndDate:     spec.EndDate,
		Status:      store.StatusPending,
		Message:     "Queued",
	})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	select {
	case m.queue <- task{id: id, spec: spec}:
		log.Printf("[JOB] %s queued (algorithm=%d %s~%s)", id, spec.AlgorithmID, spec.StartDate, spec.EndDate)
		return id, nil
	default:
		m.publish(id, store.StatusFailed, 0, "Backtest failed: "+ErrQueueFull.Error(), ErrQueueFull.Error())
		return "", ErrQueueFull
	}
}

// Subscribe streams status updates for one job. The channel is closed after
// the job's terminal update, on cancel, or when the manager closes.
func (m *Manager) Subscribe(jobID string) (<-chan StatusUpdate, func()) {
	ch := make(chan StatusUpdate, 16)

	m.subMu.Lock()
	if m.subs == nil {
		m.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	set := m.subs[jobID]
	if set == nil {
		set = make(map[chan StatusUpdate]struct{})
		m.subs[jobID] = set
	}
	set[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			if set, ok := m.subs[jobID]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(m.subs, jobID)
				}
			}
		})
	}
	return ch, cancel
}

// Close stops intake, waits for queued jobs to finish and flushes the
// remaining status updates.
func (m *Manager) Close() {
	m.intake.Lock()
	if m.closed {
		m.intake.Unlock()
		<-m.writerDone
		return
	}
	m.closed = true
	close(m.queue)
	m.intake.Unlock()

	m.workers.Wait()
	close(m.updates)
	<-m.writerDone
	log.Printf("[JOB] manager stopped")
}

func (m *Manager) worker() {
	defer m.workers.Done()
	for t := range m.queue {
		m.run(t)
	}
}

func (m *Manager) publish(id string, status store.JobStatus, progress float64, message, errMsg string) {
	m.updates <- StatusUpdate{JobID: id, Status: status, Progress: progress, Message: message, Error: errMsg, At: time.Now()}
}

func (m *Manager) run(t task) {
	started := time.Now()
	if err := m.execute(t); err != nil {
		log.Printf("[JOB] %s failed after %s: %v", t.id, time.Since(started).Round(time.Millisecond), err)
		m.publish(t.id, store.StatusFailed, 0, "Backtest failed: "+err.Error(), err.Error())
		return
	}
	log.Printf("[JOB] %s completed in %s", t.id, time.Since(started).Round(time.Millisecond))
	m.publish(t.id, store.StatusCompleted, 1, "Backtest completed successfully", "")
}

func (m *Manager) execute(t task) error {
	ctx := m.ctx

	m.publish(t.id, store.StatusRunning, 0.1, "Loading algorithm...", "")
	stored, err := m.repo.GetAlgorithm(ctx, t.spec.AlgorithmID)
	if err != nil {
		return err
	}
	algo, err := stored.Parse()
	if err != nil {
		return err
	}
	for _, w := range algo.Lint() {
		log.Printf("[WARN] job %s algorithm %d: %s", t.id, stored.ID, w)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	m.publish(t.id, store.StatusRunning, 0.2, "Loading data...", "")
	dataSetID := t.spec.DataSetID
	if dataSetID <= 0 {
		if dataSetID, err = m.repo.LatestDataSetID(ctx); err != nil {
			return err
		}
	}
	bars, err := m.repo.LoadBars(ctx, dataSetID)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	m.publish(t.id, store.StatusRunning, 0.3, "Running backtest...", "")
	start, _ := backtest.ParseDate(t.spec.StartDate)
	end, _ := backtest.ParseDate(t.spec.EndDate)
	capital := t.spec.InitialCapital
	if capital <= 0 {
		capital = m.opts.InitialCapital
	}
	res, err := backtest.Run(backtest.Request{
		Algorithm:      algo,
		Bars:           bars,
		Start:          start,
		End:            end,
		InitialCapital: capital,
		RiskFreeRate:   m.opts.RiskFreeRate,
	})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	m.publish(t.id, store.StatusRunning, 0.9, "Saving results...", "")
	return m.repo.SaveResult(ctx, store.StoredResult{
		JobID:       t.id,
		AlgorithmID: t.spec.AlgorithmID,
		StartDate:   t.spec.StartDate,
		EndDate:     t.spec.EndDate,
		Result:      res,
	})
}

// statusWriter is the only goroutine that writes job status rows.
func (m *Manager) statusWriter() {
	defer close(m.writerDone)
	for u := range m.updates {
		if err := m.repo.UpdateJobStatus(context.Background(), u.JobID, u.Status, u.Progress, u.Message, u.Error); err != nil {
			log.Printf("[ERROR] persist status for job %s: %v", u.JobID, err)
		}
		m.fanOut(u)
	}

	m.subMu.Lock()
	for id, set := range m.subs {
		for ch := range set {
			close(ch)
		}
		delete(m.subs, id)
	}
	m.subs = nil
	m.subMu.Unlock()
}

func (m *Manager) fanOut(u StatusUpdate) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	set := m.subs[u.JobID]
	for ch := range set {
		select {
		case ch <- u:
		default:
			log.Printf("[WARN] job %s: subscriber slow, dropped %s update", u.JobID, u.Status)
		}
	}
	if u.Status.Terminal() {
		for ch := range set {
			close(ch)
		}
		delete(m.subs, u.JobID)
	}
}
