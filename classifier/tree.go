package classifier

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/thalesfsp/automl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//////
// Const, vars, and types.
//////

// treeConfig controls how a single tree grows.
type treeConfig struct {
	entropy         bool
	maxDepth        int     // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     float64 // fraction of features tried per split, 0 or 1 means all
	randomSplits    bool    // draw one random threshold per feature
}

// node is a tree node. Leaves have feature < 0 and carry the class
// distribution of the samples that reached them.
type node struct {
	feature     int
	threshold   float64
	left, right *node
	dist        []float64
}

type tree struct {
	cfg  treeConfig
	rng  *rand.Rand
	k    int
	root *node
}

//////
// Growing.
//////

// grow builds the tree over the sample indices in rows.
func (t *tree) grow(X [][]float64, y []int, rows []int) {
	t.root = t.split(X, y, rows, 0)
}

func (t *tree) split(X [][]float64, y []int, rows []int, depth int) *node {
	counts := classCounts(y, rows, t.k)

	leaf := &node{feature: -1, dist: normalized(counts)}

	if len(rows) < t.cfg.minSamplesSplit ||
		len(rows) < 2*t.cfg.minSamplesLeaf ||
		(t.cfg.maxDepth > 0 && depth >= t.cfg.maxDepth) ||
		pure(counts) {
		return leaf
	}

	feature, threshold, ok := t.bestSplit(X, y, rows, counts)
	if !ok {
		return leaf
	}

	var left, right []int

	for _, r := range rows {
		if X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      t.split(X, y, left, depth+1),
		right:     t.split(X, y, right, depth+1),
	}
}

// bestSplit returns the split with the largest impurity decrease among the
// features tried. ok is false when no split respects minSamplesLeaf or
// improves on the parent.
func (t *tree) bestSplit(X [][]float64, y []int, rows []int, counts []float64) (feature int, threshold float64, ok bool) {
	cols := len(X[rows[0]])
	n := float64(len(rows))
	parent := t.impurity(counts, n)
	best := parent

	features := t.rng.Perm(cols)
	if t.cfg.maxFeatures > 0 && t.cfg.maxFeatures < 1 {
		features = features[:max(1, int(t.cfg.maxFeatures*float64(cols)))]
	}

	sorted := slices.Clone(rows)
	left := make([]float64, t.k)
	right := make([]float64, t.k)

	for _, f := range features {
		slices.SortFunc(sorted, func(a, b int) int {
			return cmp.Compare(X[a][f], X[b][f])
		})

		lo, hi := X[sorted[0]][f], X[sorted[len(sorted)-1]][f]
		if lo == hi {
			continue
		}

		if t.cfg.randomSplits {
			cut := lo + t.rng.Float64()*(hi-lo)
			if cut >= hi {
				cut = lo
			}

			clear(left)

			var nl int
			for _, r := range sorted {
				if X[r][f] > cut {
					break
				}

				left[y[r]]++
				nl++
			}

			if nl < t.cfg.minSamplesLeaf || len(sorted)-nl < t.cfg.minSamplesLeaf {
				continue
			}

			copy(right, counts)
			floats.Sub(right, left)

			if imp := t.weighted(left, right, nl, n); imp < best {
				best, feature, threshold, ok = imp, f, cut, true
			}

			continue
		}

		clear(left)
		copy(right, counts)

		for i := 0; i < len(sorted)-1; i++ {
			c := y[sorted[i]]
			left[c]++
			right[c]--

			a, b := X[sorted[i]][f], X[sorted[i+1]][f]
			if a == b {
				continue
			}

			nl := i + 1
			if nl < t.cfg.minSamplesLeaf || len(sorted)-nl < t.cfg.minSamplesLeaf {
				continue
			}

			if imp := t.weighted(left, right, nl, n); imp < best {
				mid := a + (b-a)/2
				if mid >= b {
					mid = a
				}

				best, feature, threshold, ok = imp, f, mid, true
			}
		}
	}

	return feature, threshold, ok
}

func (t *tree) weighted(left, right []float64, nl int, n float64) float64 {
	l, r := float64(nl), n-float64(nl)

	return (l*t.impurity(left, l) + r*t.impurity(right, r)) / n
}

func (t *tree) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}

	var v float64

	for _, c := range counts {
		if c == 0 {
			continue
		}

		p := c / n
		if t.cfg.entropy {
			v -= p * math.Log2(p)
		} else {
			v += p * p
		}
	}

	if t.cfg.entropy {
		return v
	}

	return 1 - v
}

// predict returns the class distribution of the leaf x falls into.
func (t *tree) predict(x []float64) []float64 {
	n := t.root
	for n.feature >= 0 {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}

	return n.dist
}

func classCounts(y []int, rows []int, k int) []float64 {
	counts := make([]float64, k)
	for _, r := range rows {
		counts[y[r]]++
	}

	return counts
}

func normalized(counts []float64) []float64 {
	out := slices.Clone(counts)
	if s := floats.Sum(out); s > 0 {
		floats.Scale(1/s, out)
	}

	return out
}

func pure(counts []float64) bool {
	var nonzero int

	for _, c := range counts {
		if c > 0 {
			nonzero++
		}
	}

	return nonzero <= 1
}

//////
// Ensemble.
//////

// Forest is an ensemble of trees whose class distributions are averaged at
// prediction time. A single tree without bootstrap is a decision tree.
type Forest struct {
	nTrees    int
	bootstrap bool
	seed      int64
	cfg       treeConfig

	enc   encoding
	cols  int
	trees []*tree
}

type treeOptions struct {
	Criterion       string `param:"criterion"`
	MaxDepth        int    `param:"max_depth"`
	MinSamplesSplit int    `param:"min_samples_split"`
	MinSamplesLeaf  int    `param:"min_samples_leaf"`
	RandomState     int64  `param:"random_state"`
}

func (o treeOptions) config() (treeConfig, error) {
	switch {
	case o.Criterion != "gini" && o.Criterion != "entropy":
		return treeConfig{}, fmt.Errorf("unknown criterion %q", o.Criterion)
	case o.MaxDepth < 0:
		return treeConfig{}, fmt.Errorf("max_depth must be >= 0, got %d", o.MaxDepth)
	case o.MinSamplesSplit < 2:
		return treeConfig{}, fmt.Errorf("min_samples_split must be >= 2, got %d", o.MinSamplesSplit)
	case o.MinSamplesLeaf < 1:
		return treeConfig{}, fmt.Errorf("min_samples_leaf must be >= 1, got %d", o.MinSamplesLeaf)
	}

	return treeConfig{
		entropy:         o.Criterion == "entropy",
		maxDepth:        o.MaxDepth,
		minSamplesSplit: o.MinSamplesSplit,
		minSamplesLeaf:  o.MinSamplesLeaf,
	}, nil
}

func defaultTreeOptions() treeOptions {
	return treeOptions{Criterion: "gini", MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// NewDecisionTree accepts "criterion" ("gini" or "entropy"), "max_depth"
// (0 means unlimited), "min_samples_split", "min_samples_leaf" and
// "random_state".
func NewDecisionTree(params automl.Params) (automl.Estimator, error) {
	opts := defaultTreeOptions()

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}

	return &Forest{nTrees: 1, seed: opts.RandomState, cfg: cfg}, nil
}

// NewRandomForest accepts the decision tree options plus "n_estimators",
// "max_features" (fraction of features tried per split) and "bootstrap".
func NewRandomForest(params automl.Params) (automl.Estimator, error) {
	return newEnsemble(params, false, true)
}

// NewExtraTrees takes the same options as NewRandomForest but draws split
// thresholds at random and does not bootstrap by default.
func NewExtraTrees(params automl.Params) (automl.Estimator, error) {
	return newEnsemble(params, true, false)
}

func newEnsemble(params automl.Params, randomSplits, bootstrap bool) (automl.Estimator, error) {
	defaults := defaultTreeOptions()
	opts := struct {
		Criterion       string  `param:"criterion"`
		MaxDepth        int     `param:"max_depth"`
		MinSamplesSplit int     `param:"min_samples_split"`
		MinSamplesLeaf  int     `param:"min_samples_leaf"`
		RandomState     int64   `param:"random_state"`
		NEstimators     int     `param:"n_estimators"`
		MaxFeatures     float64 `param:"max_features"`
		Bootstrap       bool    `param:"bootstrap"`
	}{
		Criterion:       defaults.Criterion,
		MinSamplesSplit: defaults.MinSamplesSplit,
		MinSamplesLeaf:  defaults.MinSamplesLeaf,
		NEstimators:     100,
		MaxFeatures:     1,
		Bootstrap:       bootstrap,
	}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	cfg, err := treeOptions{
		Criterion:       opts.Criterion,
		MaxDepth:        opts.MaxDepth,
		MinSamplesSplit: opts.MinSamplesSplit,
		MinSamplesLeaf:  opts.MinSamplesLeaf,
	}.config()
	if err != nil {
		return nil, err
	}

	if opts.NEstimators < 1 {
		return nil, fmt.Errorf("n_estimators must be >= 1, got %d", opts.NEstimators)
	}

	if opts.MaxFeatures <= 0 || opts.MaxFeatures > 1 {
		return nil, fmt.Errorf("max_features must be in (0, 1], got %v", opts.MaxFeatures)
	}

	cfg.maxFeatures = opts.MaxFeatures
	cfg.randomSplits = randomSplits

	return &Forest{nTrees: opts.NEstimators, bootstrap: opts.Bootstrap, seed: opts.RandomState, cfg: cfg}, nil
}

func (f *Forest) Fit(ctx context.Context, X mat.Matrix, y []int) error {
	n, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	enc, idx := encode(y)
	rows := rowsOf(X)

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	seeds := rand.New(rand.NewSource(f.seed))
	trees := make([]*tree, f.nTrees)

	for i := range trees {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := &tree{cfg: f.cfg, rng: rand.New(rand.NewSource(seeds.Int63())), k: len(enc.classes)}

		sample := all
		if f.bootstrap {
			sample = make([]int, n)
			for j := range sample {
				sample[j] = t.rng.Intn(n)
			}
		}

		t.grow(rows, idx, sample)
		trees[i] = t
	}

	f.enc, f.cols, f.trees = enc, cols, trees

	return nil
}

func (f *Forest) Predict(X mat.Matrix) ([]int, error) {
	if f.trees == nil {
		return nil, ErrNotFitted
	}

	r, err := checkPredict(X, f.cols)
	if err != nil {
		return nil, err
	}

	votes := make([]float64, len(f.enc.classes))
	out := make([]int, r)

	for i := 0; i < r; i++ {
		x := mat.Row(nil, i, X)

		clear(votes)

		for _, t := range f.trees {
			floats.Add(votes, t.predict(x))
		}

		out[i] = f.enc.classes[argmax(votes)]
	}

	return out, nil
}
