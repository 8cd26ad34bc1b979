package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/thalesfsp/automl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minAlpha replaces smaller smoothing values to keep logarithms finite.
const minAlpha = 1e-10

// naiveBayes holds what every variant needs at prediction time: per-class
// log priors and a per-class joint log likelihood.
type naiveBayes struct {
	enc       encoding
	cols      int
	logPrior  []float64
	jointLogL func(x []float64, class int) float64
}

func (nb *naiveBayes) Predict(X mat.Matrix) ([]int, error) {
	if nb.jointLogL == nil {
		return nil, ErrNotFitted
	}

	r, err := checkPredict(X, nb.cols)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(nb.enc.classes))
	out := make([]int, r)

	for i := 0; i < r; i++ {
		x := mat.Row(nil, i, X)
		for c := range scores {
			scores[c] = nb.logPrior[c] + nb.jointLogL(x, c)
		}

		out[i] = nb.enc.classes[argmax(scores)]
	}

	return out, nil
}

// classPriors returns log(count/n), or the uniform log prior when
// fitPrior is false.
func classPriors(idx []int, k int, fitPrior bool) []float64 {
	priors := make([]float64, k)

	if !fitPrior {
		for c := range priors {
			priors[c] = -math.Log(float64(k))
		}

		return priors
	}

	counts := make([]float64, k)
	for _, c := range idx {
		counts[c]++
	}

	for c := range priors {
		priors[c] = math.Log(counts[c] / float64(len(idx)))
	}

	return priors
}

// GaussianNB assumes normally distributed features within each class. It
// has no tunable hyperparameters.
type GaussianNB struct {
	naiveBayes

	varSmoothing float64
}

// NewGaussianNB accepts "var_smoothing" (default 1e-9).
func NewGaussianNB(params automl.Params) (automl.Estimator, error) {
	opts := struct {
		VarSmoothing float64 `param:"var_smoothing"`
	}{VarSmoothing: 1e-9}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	if opts.VarSmoothing < 0 {
		return nil, fmt.Errorf("var_smoothing must be >= 0, got %v", opts.VarSmoothing)
	}

	return &GaussianNB{varSmoothing: opts.VarSmoothing}, nil
}

func (g *GaussianNB) Fit(ctx context.Context, X mat.Matrix, y []int) error {
	_, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	enc, idx := encode(y)
	k := len(enc.classes)

	// The smoothing term is relative to the largest feature variance.
	var maxVar float64
	for j := 0; j < cols; j++ {
		maxVar = math.Max(maxVar, popVariance(mat.Col(nil, j, X)))
	}

	eps := g.varSmoothing * maxVar

	means := make([][]float64, k)
	vars := make([][]float64, k)

	for c := 0; c < k; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var members [][]float64

		for i, ci := range idx {
			if ci == c {
				members = append(members, mat.Row(nil, i, X))
			}
		}

		means[c] = make([]float64, cols)
		vars[c] = make([]float64, cols)

		col := make([]float64, len(members))
		for j := 0; j < cols; j++ {
			for m, row := range members {
				col[m] = row[j]
			}

			means[c][j] = stat.Mean(col, nil)
			vars[c][j] = popVariance(col) + eps
		}
	}

	g.enc, g.cols = enc, cols
	g.logPrior = classPriors(idx, k, true)
	g.jointLogL = func(x []float64, c int) float64 {
		var ll float64

		for j, v := range x {
			variance := vars[c][j]
			if variance <= 0 {
				if v == means[c][j] {
					continue
				}

				return math.Inf(-1)
			}

			d := v - means[c][j]
			ll -= 0.5*math.Log(2*math.Pi*variance) + d*d/(2*variance)
		}

		return ll
	}

	return nil
}

// popVariance is the variance normalized by n rather than n-1.
func popVariance(x []float64) float64 {
	mean := stat.Mean(x, nil)

	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}

	return ss / float64(len(x))
}

// BernoulliNB models binary features; values above Binarize count as 1.
type BernoulliNB struct {
	naiveBayes

	alpha    float64
	fitPrior bool
	binarize float64
}

// NewBernoulliNB accepts "alpha" (default 1), "fit_prior" (default true) and
// "binarize" (default 0).
func NewBernoulliNB(params automl.Params) (automl.Estimator, error) {
	opts := struct {
		Alpha    float64 `param:"alpha"`
		FitPrior bool    `param:"fit_prior"`
		Binarize float64 `param:"binarize"`
	}{Alpha: 1, FitPrior: true}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	if opts.Alpha < 0 {
		return nil, fmt.Errorf("alpha must be >= 0, got %v", opts.Alpha)
	}

	return &BernoulliNB{alpha: math.Max(opts.Alpha, minAlpha), fitPrior: opts.FitPrior, binarize: opts.Binarize}, nil
}

func (b *BernoulliNB) Fit(_ context.Context, X mat.Matrix, y []int) error {
	_, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	enc, idx := encode(y)
	k := len(enc.classes)

	counts := make([][]float64, k)
	totals := make([]float64, k)

	for c := range counts {
		counts[c] = make([]float64, cols)
	}

	for i, c := range idx {
		totals[c]++

		for j := 0; j < cols; j++ {
			if X.At(i, j) > b.binarize {
				counts[c][j]++
			}
		}
	}

	logP := make([][]float64, k)
	logNotP := make([][]float64, k)

	for c := range counts {
		logP[c] = make([]float64, cols)
		logNotP[c] = make([]float64, cols)

		for j := range counts[c] {
			p := (counts[c][j] + b.alpha) / (totals[c] + 2*b.alpha)
			logP[c][j] = math.Log(p)
			logNotP[c][j] = math.Log(1 - p)
		}
	}

	threshold := b.binarize

	b.enc, b.cols = enc, cols
	b.logPrior = classPriors(idx, k, b.fitPrior)
	b.jointLogL = func(x []float64, c int) float64 {
		var ll float64

		for j, v := range x {
			if v > threshold {
				ll += logP[c][j]
			} else {
				ll += logNotP[c][j]
			}
		}

		return ll
	}

	return nil
}

// MultinomialNB models count-like features. Negative feature values are
// rejected at fit time.
type MultinomialNB struct {
	naiveBayes

	alpha    float64
	fitPrior bool
}

// NewMultinomialNB accepts "alpha" (default 1) and "fit_prior" (default
// true).
func NewMultinomialNB(params automl.Params) (automl.Estimator, error) {
	opts := struct {
		Alpha    float64 `param:"alpha"`
		FitPrior bool    `param:"fit_prior"`
	}{Alpha: 1, FitPrior: true}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	if opts.Alpha < 0 {
		return nil, fmt.Errorf("alpha must be >= 0, got %v", opts.Alpha)
	}

	return &MultinomialNB{alpha: math.Max(opts.Alpha, minAlpha), fitPrior: opts.FitPrior}, nil
}

func (m *MultinomialNB) Fit(_ context.Context, X mat.Matrix, y []int) error {
	_, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	enc, idx := encode(y)
	k := len(enc.classes)

	counts := make([][]float64, k)
	for c := range counts {
		counts[c] = make([]float64, cols)
	}

	for i, c := range idx {
		row := mat.Row(nil, i, X)
		if floats.Min(row) < 0 {
			return fmt.Errorf("negative feature value in row %d: multinomial naive Bayes needs non-negative data", i)
		}

		floats.Add(counts[c], row)
	}

	logTheta := make([][]float64, k)

	for c := range counts {
		total := floats.Sum(counts[c]) + m.alpha*float64(cols)

		logTheta[c] = make([]float64, cols)
		for j := range counts[c] {
			logTheta[c][j] = math.Log((counts[c][j] + m.alpha) / total)
		}
	}

	m.enc, m.cols = enc, cols
	m.logPrior = classPriors(idx, k, m.fitPrior)
	m.jointLogL = func(x []float64, c int) float64 {
		return floats.Dot(x, logTheta[c])
	}

	return nil
}
