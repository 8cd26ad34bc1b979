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

// LogisticRegression is a multinomial logistic model trained by full-batch
// proximal gradient descent on standardized features. The objective is the
// mean cross-entropy plus the penalty scaled by 1/(C*n).
type LogisticRegression struct {
	penalty string
	c       float64
	maxIter int
	tol     float64

	enc   encoding
	cols  int
	mean  []float64
	scale []float64
	w     *mat.Dense // cols x classes
	b     []float64
}

// NewLogisticRegression accepts "penalty" ("l1" or "l2"), "C", "dual"
// (only valid with "l2"; the solver is the same either way), "max_iter",
// "tol" and "random_state".
func NewLogisticRegression(params automl.Params) (automl.Estimator, error) {
	opts := struct {
		Penalty     string  `param:"penalty"`
		C           float64 `param:"C"`
		Dual        bool    `param:"dual"`
		MaxIter     int     `param:"max_iter"`
		Tol         float64 `param:"tol"`
		RandomState int64   `param:"random_state"`
	}{Penalty: "l2", C: 1, MaxIter: 100, Tol: 1e-4}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	switch {
	case opts.Penalty != "l1" && opts.Penalty != "l2":
		return nil, fmt.Errorf("unknown penalty %q", opts.Penalty)
	case opts.Dual && opts.Penalty != "l2":
		return nil, fmt.Errorf("dual formulation is only available with the l2 penalty")
	case opts.C <= 0:
		return nil, fmt.Errorf("C must be positive, got %v", opts.C)
	case opts.MaxIter < 1:
		return nil, fmt.Errorf("max_iter must be >= 1, got %d", opts.MaxIter)
	}

	return &LogisticRegression{penalty: opts.Penalty, c: opts.C, maxIter: opts.MaxIter, tol: opts.Tol}, nil
}

func (lr *LogisticRegression) Fit(ctx context.Context, X mat.Matrix, y []int) error {
	n, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	enc, idx := encode(y)
	k := len(enc.classes)

	if k < 2 {
		return fmt.Errorf("logistic regression needs at least 2 classes, got %d", k)
	}

	mean := make([]float64, cols)
	scale := make([]float64, cols)

	for j := 0; j < cols; j++ {
		m, sd := stat.PopMeanStdDev(mat.Col(nil, j, X), nil)
		if sd == 0 {
			sd = 1
		}

		mean[j], scale[j] = m, sd
	}

	xs := standardize(X, mean, scale)

	// Step size from the Lipschitz constant of the smooth part.
	var maxNorm float64
	for i := 0; i < n; i++ {
		maxNorm = math.Max(maxNorm, floats.Dot(xs.RawRowView(i), xs.RawRowView(i)))
	}

	reg := 1 / (lr.c * float64(n))

	lipschitz := 0.5*(maxNorm+1) + reg
	step := 1 / lipschitz

	w := mat.NewDense(cols, k, nil)
	b := make([]float64, k)

	z := mat.NewDense(n, k, nil)
	grad := mat.NewDense(cols, k, nil)
	gradB := make([]float64, k)

	for iter := 0; iter < lr.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		z.Mul(xs, w)

		clear(gradB)

		for i := 0; i < n; i++ {
			row := z.RawRowView(i)
			floats.Add(row, b)
			softmax(row)

			row[idx[i]]--
			floats.Add(gradB, row)
		}

		grad.Mul(xs.T(), z)
		grad.Scale(1/float64(n), grad)
		floats.Scale(1/float64(n), gradB)

		if lr.penalty == "l2" {
			grad.AddScaled(grad, reg, w)
		}

		var delta float64

		for j := 0; j < cols; j++ {
			for c := 0; c < k; c++ {
				next := w.At(j, c) - step*grad.At(j, c)
				if lr.penalty == "l1" {
					next = softThreshold(next, step*reg)
				}

				delta = math.Max(delta, math.Abs(next-w.At(j, c)))
				w.Set(j, c, next)
			}
		}

		for c := range b {
			d := step * gradB[c]
			delta = math.Max(delta, math.Abs(d))
			b[c] -= d
		}

		if math.IsNaN(delta) {
			return fmt.Errorf("gradient descent diverged at iteration %d", iter)
		}

		if delta < lr.tol {
			break
		}
	}

	lr.enc, lr.cols = enc, cols
	lr.mean, lr.scale = mean, scale
	lr.w, lr.b = w, b

	return nil
}

func (lr *LogisticRegression) Predict(X mat.Matrix) ([]int, error) {
	if lr.w == nil {
		return nil, ErrNotFitted
	}

	r, err := checkPredict(X, lr.cols)
	if err != nil {
		return nil, err
	}

	var z mat.Dense
	z.Mul(standardize(X, lr.mean, lr.scale), lr.w)

	out := make([]int, r)
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		floats.Add(row, lr.b)
		out[i] = lr.enc.classes[argmax(row)]
	}

	return out, nil
}

func standardize(X mat.Matrix, mean, scale []float64) *mat.Dense {
	r, c := X.Dims()

	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - mean[j]) / scale[j]
	}, X)

	return out
}

// softmax replaces v with its softmax in place.
func softmax(v []float64) {
	m := floats.Max(v)

	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - m)
		sum += v[i]
	}

	floats.Scale(1/sum, v)
}

func softThreshold(v, t float64) float64 {
	switch {
	case v > t:
		return v - t
	case v < -t:
		return v + t
	default:
		return 0
	}
}
