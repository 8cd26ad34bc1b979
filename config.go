package automl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for SearchConfig.
const (
	DefaultKFolds  = 5
	DefaultNIter   = 10
	DefaultVerbose = 1
	DefaultSeed    = 0
)

// DefaultNJobs returns half of the available CPUs, at least one.
func DefaultNJobs() int {
	return max(runtime.NumCPU()/2, 1)
}

// DefaultConfig returns a default configuration scored by accuracy.
func DefaultConfig() SearchConfig {
	return SearchConfig{
		KFolds:     DefaultKFolds,
		NJobs:      DefaultNJobs(),
		NIter:      DefaultNIter,
		Verbose:    DefaultVerbose,
		RandomSeed: DefaultSeed,
		Metric:     Accuracy,
		TieBreak:   TieBreakFitTime,
	}
}

// Validate checks the portfolio-independent options.
func (c SearchConfig) Validate() error {
	if c.KFolds < 2 {
		return configErrorf("k_folds", "must be >= 2, got %d", c.KFolds)
	}

	if c.NJobs < 1 {
		return configErrorf("n_jobs", "must be >= 1, got %d", c.NJobs)
	}

	if c.NIter < 1 {
		return configErrorf("n_iter", "must be >= 1, got %d", c.NIter)
	}

	for name, n := range c.FamilyNIter {
		if n < 1 {
			return configErrorf("family_n_iter", "%s: must be >= 1, got %d", name, n)
		}
	}

	if c.Verbose < 0 {
		return configErrorf("verbose", "must be >= 0, got %d", c.Verbose)
	}

	if c.FamilyTimeout < 0 {
		return configErrorf("family_timeout", "must not be negative, got %s", c.FamilyTimeout)
	}

	if c.TieBreak != TieBreakFitTime && c.TieBreak != TieBreakOrder {
		return configErrorf("tie_break", "unknown tie-break %d", c.TieBreak)
	}

	return c.Metric.validate()
}

// validateFor checks the options that refer to portfolio families.
func (c SearchConfig) validateFor(p *Portfolio) error {
	for name := range c.FamilyNIter {
		if _, ok := p.Lookup(name); !ok {
			return configErrorf("family_n_iter", "unknown family %q", name)
		}
	}

	return nil
}

func (c SearchConfig) nIterFor(family string) int {
	if n, ok := c.FamilyNIter[family]; ok {
		return n
	}

	return c.NIter
}

func (c SearchConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return slog.Default()
}

// fileConfig is the YAML layout read by LoadConfig. Absent keys keep their
// defaults.
type fileConfig struct {
	KFolds             *int           `yaml:"k_folds"`
	NJobs              *int           `yaml:"n_jobs"`
	NIter              *int           `yaml:"n_iter"`
	FamilyNIter        map[string]int `yaml:"family_n_iter"`
	Verbose            *int           `yaml:"verbose"`
	RandomSeed         *int64         `yaml:"random_seed"`
	ScoringMetric      string         `yaml:"scoring_metric"`
	Direction          string         `yaml:"direction"`
	TieBreak           string         `yaml:"tie_break"`
	FamilyTimeout      string         `yaml:"family_timeout"`
	ConcurrentFamilies *bool          `yaml:"concurrent_families"`
}

// LoadConfig reads a YAML configuration file and merges it onto
// DefaultConfig.
func LoadConfig(path string) (SearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// ParseConfig merges a YAML document onto DefaultConfig and validates the
// result. Unknown keys are rejected.
//
// Example document:
//
//	k_folds: 5
//	n_jobs: 4
//	n_iter: 20
//	family_n_iter:
//	  k-neighbors: 40
//	random_seed: 0
//	scoring_metric: balanced_accuracy
//	direction: maximize
//	family_timeout: 2m
func ParseConfig(data []byte) (SearchConfig, error) {
	cfg := DefaultConfig()

	var fc fileConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return SearchConfig{}, &ConfigurationError{Field: "file", Reason: "invalid YAML", Err: err}
	}

	if fc.KFolds != nil {
		cfg.KFolds = *fc.KFolds
	}

	if fc.NJobs != nil {
		cfg.NJobs = *fc.NJobs
	}

	if fc.NIter != nil {
		cfg.NIter = *fc.NIter
	}

	if fc.FamilyNIter != nil {
		cfg.FamilyNIter = fc.FamilyNIter
	}

	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}

	if fc.RandomSeed != nil {
		cfg.RandomSeed = *fc.RandomSeed
	}

	if fc.ConcurrentFamilies != nil {
		cfg.ConcurrentFamilies = *fc.ConcurrentFamilies
	}

	if fc.ScoringMetric != "" {
		m, err := MetricByName(fc.ScoringMetric)
		if err != nil {
			return SearchConfig{}, err
		}

		cfg.Metric = m
	}

	if fc.Direction != "" && fc.Direction != cfg.Metric.Direction.String() {
		return SearchConfig{}, configErrorf("direction", "%q contradicts %s", fc.Direction, cfg.Metric)
	}

	switch fc.TieBreak {
	case "":
	case TieBreakFitTime.String():
		cfg.TieBreak = TieBreakFitTime
	case TieBreakOrder.String():
		cfg.TieBreak = TieBreakOrder
	default:
		return SearchConfig{}, configErrorf("tie_break", "unknown tie-break %q", fc.TieBreak)
	}

	if fc.FamilyTimeout != "" {
		d, err := time.ParseDuration(fc.FamilyTimeout)
		if err != nil {
			return SearchConfig{}, &ConfigurationError{Field: "family_timeout", Reason: "invalid duration", Err: err}
		}

		cfg.FamilyTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return SearchConfig{}, err
	}

	return cfg, nil
}
