package backtest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type YAMLConfig struct {
	Backtest struct {
		DataCSV        string  `yaml:"data_csv"`
		Encoding       string  `yaml:"encoding"`
		Algorithm      string  `yaml:"algorithm"`
		Start          string  `yaml:"start"`
		End            string  `yaml:"end"`
		InitialCapital float64 `yaml:"initial_capital"`
		RiskFreeRate   float64 `yaml:"risk_free_rate"`
	} `yaml:"backtest"`
}

// RunConfig describes one CLI backtest. Relative paths in the YAML file are
// resolved against the file's own directory.
type RunConfig struct {
	DataCSV        string
	Encoding       string
	AlgorithmPath  string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	RiskFreeRate   float64
}

func DefaultRunConfig() RunConfig {
	return RunConfig{
		Encoding:       "utf-8",
		InitialCapital: DefaultInitialCapital,
		RiskFreeRate:   0,
	}
}

func LoadRunConfig(path string) (RunConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("read config: %w", err)
	}

	var yc YAMLConfig
	if err := yaml.Unmarshal(raw, &yc); err != nil {
		return RunConfig{}, fmt.Errorf("parse yaml: %w", err)
	}

	cfg := DefaultRunConfig()
	base := filepath.Dir(path)

	if yc.Backtest.DataCSV == "" {
		return RunConfig{}, fmt.Errorf("backtest.data_csv is required")
	}
	if yc.Backtest.Algorithm == "" {
		return RunConfig{}, fmt.Errorf("backtest.algorithm is required")
	}
	cfg.DataCSV = resolvePath(base, yc.Backtest.DataCSV)
	cfg.AlgorithmPath = resolvePath(base, yc.Backtest.Algorithm)

	if enc := strings.ToLower(strings.TrimSpace(yc.Backtest.Encoding)); enc != "" {
		cfg.Encoding = enc
	}
	if yc.Backtest.InitialCapital > 0 {
		cfg.InitialCapital = yc.Backtest.InitialCapital
	}
	if yc.Backtest.RiskFreeRate >= 0 {
		cfg.RiskFreeRate = yc.Backtest.RiskFreeRate
	}

	if cfg.Start, err = ParseDate(yc.Backtest.Start); err != nil {
		return RunConfig{}, fmt.Errorf("invalid backtest.start: %w", err)
	}
	if cfg.End, err = ParseDate(yc.Backtest.End); err != nil {
		return RunConfig{}, fmt.Errorf("invalid backtest.end: %w", err)
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		return RunConfig{}, fmt.Errorf("backtest.end %s is before backtest.start %s", yc.Backtest.End, yc.Backtest.Start)
	}

	return cfg, nil
}

// LoadAlgorithmFile parses a definition by extension: .yaml/.yml as YAML,
// anything else as JSON.
func LoadAlgorithmFile(path string) (*AlgorithmDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read algorithm: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseAlgorithmYAML(raw)
	default:
		return ParseAlgorithmJSON(raw)
	}
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
