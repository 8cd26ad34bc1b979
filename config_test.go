package automl

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.KFolds)
	assert.Equal(t, 10, cfg.NIter)
	assert.Equal(t, 1, cfg.Verbose)
	assert.Equal(t, "accuracy", cfg.Metric.Name)
	assert.GreaterOrEqual(t, cfg.NJobs, 1)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SearchConfig)
		field  string
	}{
		{"one fold", func(c *SearchConfig) { c.KFolds = 1 }, "k_folds"},
		{"no jobs", func(c *SearchConfig) { c.NJobs = 0 }, "n_jobs"},
		{"no iterations", func(c *SearchConfig) { c.NIter = 0 }, "n_iter"},
		{"bad family override", func(c *SearchConfig) { c.FamilyNIter = map[string]int{"a": 0} }, "family_n_iter"},
		{"negative verbosity", func(c *SearchConfig) { c.Verbose = -1 }, "verbose"},
		{"negative timeout", func(c *SearchConfig) { c.FamilyTimeout = -time.Second }, "family_timeout"},
		{"unknown tie-break", func(c *SearchConfig) { c.TieBreak = 9 }, "tie_break"},
		{"metric without direction", func(c *SearchConfig) { c.Metric = Metric{Name: "custom", Func: accuracy} }, "scoring_metric"},
		{"metric without function", func(c *SearchConfig) { c.Metric = Metric{Name: "custom", Direction: Maximize} }, "scoring_metric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
k_folds: 4
n_jobs: 3
n_iter: 20
family_n_iter:
  k-neighbors: 40
verbose: 2
random_seed: 11
scoring_metric: error_rate
direction: minimize
tie_break: order
family_timeout: 2m
concurrent_families: true
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.KFolds)
	assert.Equal(t, 3, cfg.NJobs)
	assert.Equal(t, 20, cfg.NIter)
	assert.Equal(t, 40, cfg.nIterFor("k-neighbors"))
	assert.Equal(t, 20, cfg.nIterFor("mlp"))
	assert.Equal(t, 2, cfg.Verbose)
	assert.Equal(t, int64(11), cfg.RandomSeed)
	assert.Equal(t, "error_rate", cfg.Metric.Name)
	assert.Equal(t, Minimize, cfg.Metric.Direction)
	assert.Equal(t, TieBreakOrder, cfg.TieBreak)
	assert.Equal(t, 2*time.Minute, cfg.FamilyTimeout)
	assert.True(t, cfg.ConcurrentFamilies)
}

func TestParseConfigEmptyKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.KFolds, cfg.KFolds)
	assert.Equal(t, want.NIter, cfg.NIter)
	assert.Equal(t, want.Metric.Name, cfg.Metric.Name)
	assert.Equal(t, TieBreakFitTime, cfg.TieBreak)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"unknown key", "k_fold: 3\n", "file"},
		{"not yaml", "k_folds: [\n", "file"},
		{"unknown metric", "scoring_metric: auc\n", "scoring_metric"},
		{"contradicting direction", "scoring_metric: accuracy\ndirection: minimize\n", "direction"},
		{"unknown tie-break", "tie_break: random\n", "tie_break"},
		{"bad duration", "family_timeout: soon\n", "family_timeout"},
		{"invalid value", "k_folds: 1\n", "k_folds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("n_iter: 7\nscoring_metric: f1_macro\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.NIter)
	assert.Equal(t, "f1_macro", cfg.Metric.Name)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("n_jobs: 0\n"), 0o600))

	_, err = LoadConfig(path)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestConfigValidateForPortfolio(t *testing.T) {
	p, err := NewPortfolio(stubFamily("a", nil, nil))
	require.NoError(t, err)

	cfg := testConfig()
	cfg.FamilyNIter = map[string]int{"a": 2}
	assert.NoError(t, cfg.validateFor(p))

	cfg.FamilyNIter = map[string]int{"b": 2}

	var cfgErr *ConfigurationError
	require.ErrorAs(t, cfg.validateFor(p), &cfgErr)
	assert.Equal(t, "family_n_iter", cfgErr.Field)
}
