package store

import (
	"encoding/json"

	"stockbt/backtest"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DataSet is one imported price series.
type DataSet struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol,omitempty"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	RecordCount int    `json:"record_count"`
	ImportedAt  string `json:"imported_at"`
	Source      string `json:"source"`
}

// Algorithm keeps the definition as the JSON it was stored with.
type Algorithm struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Definition  json.RawMessage `json:"definition"`
	CreatedAt   string          `json:"created_at"`
}

func (a Algorithm) Parse() (*backtest.AlgorithmDefinition, error) {
	return backtest.ParseAlgorithmJSON(a.Definition)
}

type Job struct {
	JobID       string    `json:"job_id"`
	AlgorithmID int64     `json:"algorithm_id"`
	DataSetID   int64     `json:"data_set_id,omitempty"`
	StartDate   string    `json:"start_date"`
	EndDate     string    `json:"end_date"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   string    `json:"created_at"`
	CompletedAt string    `json:"completed_at,omitempty"`
}

// StoredResult is a persisted backtest outcome.
type StoredResult struct {
	JobID       string `json:"job_id"`
	AlgorithmID int64  `json:"algorithm_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	backtest.Result
}
