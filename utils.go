package automl

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//////
// Helper functions.
//////

// takeRows copies the rows idx of X into a new dense matrix. The source is
// only read.
func takeRows(X mat.Matrix, idx []int) *mat.Dense {
	_, cols := X.Dims()
	out := mat.NewDense(len(idx), cols, nil)

	row := make([]float64, cols)
	for i, r := range idx {
		mat.Row(row, r, X)
		out.SetRow(i, row)
	}

	return out
}

// takeLabels returns the labels at idx.
func takeLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}

	return out
}

// foldScore aggregates per-fold scores into an unweighted mean and the
// sample standard deviation.
func foldScore(folds []float64) CVScore {
	mean, std := stat.MeanStdDev(folds, nil)

	return CVScore{Mean: mean, StdDev: std, Folds: folds}
}

// meanDuration returns the arithmetic mean of ds.
func meanDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range ds {
		sum += d
	}

	return sum / time.Duration(len(ds))
}

// finite reports whether x is neither NaN nor infinite.
func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// recoverFit turns a panic raised by estimator code into an error stored in
// *err. It must be deferred directly.
func recoverFit(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("estimator panicked: %v", r)
	}
}
