package automl

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

// ProgressUpdate represents the current state of one family's search.
type ProgressUpdate struct {
	// RunID identifies the run the update belongs to.
	RunID string

	// Phase is one of "Search", "Refit" or "Done".
	Phase string

	// Family is the name of the family being searched.
	Family string

	// CurrentCandidate is the 1-based position of the evaluated candidate.
	CurrentCandidate int

	// TotalCandidates is the number of candidates drawn for the family.
	TotalCandidates int

	// CurrentParams holds the assignment just evaluated.
	CurrentParams Params

	// CurrentBestParams holds the best assignment found so far.
	CurrentBestParams Params

	// CurrentBestScore holds the best cross-validated score found so far.
	CurrentBestScore float64

	// LastScore holds the cross-validated score of CurrentParams. It is NaN
	// when the assignment failed to fit.
	LastScore float64
}

// ParameterRange defines an inclusive range of numeric hyperparameter values.
//
// Type Parameter:
//   - T: The numeric type for this parameter range (int or float64)
//
// Validation:
// - Min must be less than or equal to Max
// - The range is inclusive of both Min and Max values
type ParameterRange[T constraints.Integer | constraints.Float] struct {
	// Min defines the minimum allowed value (inclusive).
	Min T

	// Max defines the maximum allowed value (inclusive).
	Max T
}

// Params is a hyperparameter assignment, or a set of fixed construction
// arguments, keyed by parameter name.
type Params map[string]any

// Clone returns a shallow copy of p. A nil Params clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}

	return out
}

// String renders p with keys in sorted order.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// Dataset is a labeled training set. X holds one sample per row; Y holds
// the class label of each row. A Dataset is never mutated by the package.
type Dataset struct {
	X mat.Matrix
	Y []int
}

// Validate reports whether d can be used for training.
func (d Dataset) Validate() error {
	if d.X == nil {
		return configErrorf("data", "feature matrix is nil")
	}

	rows, cols := d.X.Dims()
	if rows == 0 || cols == 0 {
		return configErrorf("data", "feature matrix is empty (%dx%d)", rows, cols)
	}

	if rows != len(d.Y) {
		return configErrorf("data", "%d feature rows but %d labels", rows, len(d.Y))
	}

	return nil
}

// Direction is the natural ordering of a scoring metric. The zero value is
// deliberately invalid: every metric has to declare its direction.
type Direction int

const (
	// DirectionUnset marks a metric whose ordering was not declared.
	DirectionUnset Direction = iota

	// Maximize means higher scores are better (accuracy-like metrics).
	Maximize

	// Minimize means lower scores are better (loss-like metrics).
	Minimize
)

// Better reports whether score a ranks strictly ahead of score b.
func (d Direction) Better(a, b float64) bool {
	switch d {
	case Maximize:
		return a > b
	case Minimize:
		return a < b
	default:
		return false
	}
}

func (d Direction) String() string {
	switch d {
	case Maximize:
		return "maximize"
	case Minimize:
		return "minimize"
	default:
		return "unset"
	}
}

// TieBreak decides how exactly equal cross-validated scores are ordered,
// both between candidates of one family and between families.
type TieBreak int

const (
	// TieBreakFitTime prefers the lower mean fit time, then the earlier
	// position (sampling order for candidates, portfolio order for
	// families).
	TieBreakFitTime TieBreak = iota

	// TieBreakOrder prefers the earlier position only. Wall-clock timing
	// never influences the outcome, so the whole leaderboard is
	// reproducible for a fixed seed.
	TieBreakOrder
)

func (t TieBreak) String() string {
	if t == TieBreakOrder {
		return "order"
	}

	return "fit_time"
}

// SearchConfig holds the configuration shared by every family of a run.
type SearchConfig struct {
	// KFolds is the number of cross-validation partitions (>= 2).
	KFolds int

	// NJobs is the shared fitting budget: the maximum number of fold-fits
	// in flight at any time across the whole run (>= 1).
	NJobs int

	// NIter is the number of hyperparameter assignments drawn per family
	// (>= 1).
	NIter int

	// FamilyNIter overrides NIter for the named families.
	FamilyNIter map[string]int

	// Verbose controls progress logging: 0 silent, 1 per family, 2 per
	// candidate, 3 per fold.
	Verbose int

	// RandomSeed drives both assignment sampling and fold partitioning.
	RandomSeed int64

	// Metric is the scoring metric, including its ordering direction.
	Metric Metric

	// TieBreak orders exactly equal scores.
	TieBreak TieBreak

	// FamilyTimeout bounds each family's search when positive. The clock
	// starts when the family first holds a budget slot, so waiting behind
	// other families does not count. A family that runs out of time is
	// recorded as failed.
	FamilyTimeout time.Duration

	// ConcurrentFamilies starts every family search at once instead of one
	// after the other. The NJobs budget is shared either way.
	ConcurrentFamilies bool

	// Logger receives progress and failure logs. Nil means slog.Default().
	Logger *slog.Logger

	// ProgressChan is used to send progress updates during the search.
	// If nil, no updates will be sent. Updates are dropped when the
	// channel is full.
	ProgressChan chan<- ProgressUpdate
}

// CVScore is the cross-validated score of one assignment.
type CVScore struct {
	// Mean is the unweighted mean of Folds.
	Mean float64

	// StdDev is the sample standard deviation of Folds.
	StdDev float64

	// Folds holds exactly one score per fold, in fold order.
	Folds []float64
}

// Candidate is one evaluated hyperparameter assignment.
type Candidate struct {
	// Index is the position of the assignment in the sampling sequence.
	Index int

	// Params is the sampled assignment, without the fixed arguments.
	Params Params

	// Score is only meaningful when Err is nil.
	Score CVScore

	// FitTime is the mean duration of the fold fits.
	FitTime time.Duration

	// Err is a *FitFailure when any fold failed.
	Err error
}

// SearchResult is the output of one family's tuning run.
type SearchResult struct {
	// Family is the family name.
	Family string

	// Order is the family's position in the portfolio.
	Order int

	// Params is the best assignment found.
	Params Params

	// Score is the cross-validated score of Params.
	Score CVScore

	// FitTime is the mean fold fit time of Params.
	FitTime time.Duration

	// Duration is the wall-clock time of the whole family search,
	// including the final refit.
	Duration time.Duration

	// Candidates holds every evaluated assignment in sampling order.
	Candidates []Candidate

	// Estimator is Params refitted on the full training data. It is nil
	// when Err is set.
	Estimator Estimator

	// Err is the failure record of the family, nil on success.
	Err error
}

// Failed reports whether the family search did not produce an estimator.
func (r SearchResult) Failed() bool {
	return r.Err != nil
}
