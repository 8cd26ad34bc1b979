// Package classifier provides reference implementations of the automl
// Estimator contract for part of the built-in classifier portfolio:
// naive Bayes variants, k-nearest neighbours, logistic regression, decision
// trees, random forests and extra trees.
//
// Every constructor has the automl.Factory signature and decodes its options
// with automl.DecodeParams, so unknown parameter names are rejected when the
// portfolio is built.
//
//	portfolio, err := automl.ClassifierPortfolio(classifier.Factories())
package classifier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/thalesfsp/automl"
	"gonum.org/v1/gonum/mat"
)

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("estimator is not fitted")

// Factories returns the factory of every family implemented here, keyed by
// the built-in family names.
func Factories() map[string]automl.Factory {
	return map[string]automl.Factory{
		automl.GaussianNB:         NewGaussianNB,
		automl.BernoulliNB:        NewBernoulliNB,
		automl.MultinomialNB:      NewMultinomialNB,
		automl.ExtraTrees:         NewExtraTrees,
		automl.KNeighbors:         NewKNeighbors,
		automl.LogisticRegression: NewLogisticRegression,
		automl.RandomForest:       NewRandomForest,
		automl.DecisionTree:       NewDecisionTree,
	}
}

// encoding maps arbitrary labels to dense class indices.
type encoding struct {
	classes []int
}

// encode returns the sorted distinct labels of y and the class index of
// every sample.
func encode(y []int) (encoding, []int) {
	classes := slices.Clone(y)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	idx := make([]int, len(y))
	for i, label := range y {
		idx[i], _ = slices.BinarySearch(classes, label)
	}

	return encoding{classes: classes}, idx
}

// checkFit validates the shapes handed to Fit and returns the dimensions.
func checkFit(X mat.Matrix, y []int) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("empty training matrix (%dx%d)", rows, cols)
	}

	if rows != len(y) {
		return 0, 0, fmt.Errorf("%d rows but %d labels", rows, len(y))
	}

	return rows, cols, nil
}

// checkPredict validates the width of X against the training width.
func checkPredict(X mat.Matrix, cols int) (int, error) {
	r, c := X.Dims()
	if c != cols {
		return 0, fmt.Errorf("X has %d features, estimator was fitted with %d", c, cols)
	}

	return r, nil
}

// rowsOf copies X into a slice of rows.
func rowsOf(X mat.Matrix) [][]float64 {
	r, _ := X.Dims()

	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, X)
	}

	return out
}

// argmax returns the index of the largest value; the first one wins ties.
func argmax(v []float64) int {
	best := 0

	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}

	return best
}
