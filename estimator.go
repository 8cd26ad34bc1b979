package automl

//go:generate go run go.uber.org/mock/mockgen -source=estimator.go -destination=estimator_mock_test.go -package=automl

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"gonum.org/v1/gonum/mat"
)

// Estimator is the capability contract every pluggable algorithm family
// must satisfy. A new Estimator is built by the family's Factory for every
// fold-fit, so implementations never have to be safe for concurrent use.
type Estimator interface {
	// Fit trains the estimator. X must not be modified.
	Fit(ctx context.Context, X mat.Matrix, y []int) error

	// Predict returns one label per row of X.
	Predict(X mat.Matrix) ([]int, error)
}

// Scorer is implemented by estimators that evaluate a metric themselves.
// Estimators without it are scored by comparing Predict against the labels.
type Scorer interface {
	Score(X mat.Matrix, y []int, metric Metric) (float64, error)
}

// Factory constructs an unfitted estimator from the family's fixed
// arguments merged with one sampled assignment. It must reject parameter
// names it does not know; DecodeParams does that.
type Factory func(params Params) (Estimator, error)

// Score evaluates a fitted estimator on X and y under metric.
func Score(est Estimator, X mat.Matrix, y []int, metric Metric) (float64, error) {
	if s, ok := est.(Scorer); ok {
		return s.Score(X, y, metric)
	}

	pred, err := est.Predict(X)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}

	if len(pred) != len(y) {
		return 0, fmt.Errorf("predict returned %d labels for %d rows", len(pred), len(y))
	}

	return metric.Func(y, pred), nil
}

// DecodeParams decodes params into the struct pointed to by out, using the
// "param" struct tag. Unknown names are an error, and numbers are converted
// between int and float kinds.
//
// Usage example:
//
//	var opts struct {
//	    Alpha    float64 `param:"alpha"`
//	    FitPrior bool    `param:"fit_prior"`
//	}
//	if err := automl.DecodeParams(params, &opts); err != nil {
//	    return nil, err
//	}
func DecodeParams(params Params, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "param",
		Result:           out,
	})
	if err != nil {
		return err
	}

	if err := dec.Decode(map[string]any(params)); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}

	return nil
}
