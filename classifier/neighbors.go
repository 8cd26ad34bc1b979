package classifier

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/thalesfsp/automl"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KNeighbors votes among the k nearest training samples under the
// Minkowski distance of order p.
type KNeighbors struct {
	k        int
	distance bool
	p        float64

	enc  encoding
	cols int
	rows [][]float64
	idx  []int
}

// NewKNeighbors accepts "n_neighbors" (default 5), "weights" ("uniform" or
// "distance") and "p" (1 or 2, default 2).
func NewKNeighbors(params automl.Params) (automl.Estimator, error) {
	opts := struct {
		NNeighbors int    `param:"n_neighbors"`
		Weights    string `param:"weights"`
		P          int    `param:"p"`
	}{NNeighbors: 5, Weights: "uniform", P: 2}

	if err := automl.DecodeParams(params, &opts); err != nil {
		return nil, err
	}

	if opts.NNeighbors < 1 {
		return nil, fmt.Errorf("n_neighbors must be >= 1, got %d", opts.NNeighbors)
	}

	if opts.Weights != "uniform" && opts.Weights != "distance" {
		return nil, fmt.Errorf("unknown weights %q", opts.Weights)
	}

	if opts.P < 1 {
		return nil, fmt.Errorf("p must be >= 1, got %d", opts.P)
	}

	return &KNeighbors{k: opts.NNeighbors, distance: opts.Weights == "distance", p: float64(opts.P)}, nil
}

func (kn *KNeighbors) Fit(_ context.Context, X mat.Matrix, y []int) error {
	rows, cols, err := checkFit(X, y)
	if err != nil {
		return err
	}

	if kn.k > rows {
		return fmt.Errorf("n_neighbors %d exceeds the %d training samples", kn.k, rows)
	}

	kn.enc, kn.idx = encode(y)
	kn.cols = cols
	kn.rows = rowsOf(X)

	return nil
}

func (kn *KNeighbors) Predict(X mat.Matrix) ([]int, error) {
	if kn.rows == nil {
		return nil, ErrNotFitted
	}

	r, err := checkPredict(X, kn.cols)
	if err != nil {
		return nil, err
	}

	type neighbor struct {
		i    int
		dist float64
	}

	neighbors := make([]neighbor, len(kn.rows))
	votes := make([]float64, len(kn.enc.classes))
	out := make([]int, r)

	for q := 0; q < r; q++ {
		x := mat.Row(nil, q, X)

		for i, row := range kn.rows {
			neighbors[i] = neighbor{i: i, dist: floats.Distance(x, row, kn.p)}
		}

		slices.SortFunc(neighbors, func(a, b neighbor) int {
			if c := cmp.Compare(a.dist, b.dist); c != 0 {
				return c
			}

			return cmp.Compare(a.i, b.i)
		})

		clear(votes)

		nearest := neighbors[:kn.k]
		exact := kn.distance && nearest[0].dist == 0

		for _, n := range nearest {
			w := 1.0

			switch {
			case exact:
				// Exact matches take all the weight.
				if n.dist != 0 {
					w = 0
				}
			case kn.distance:
				w = 1 / n.dist
			}

			votes[kn.idx[n.i]] += w
		}

		if floats.HasNaN(votes) || math.IsInf(floats.Max(votes), 0) {
			return nil, fmt.Errorf("non-finite neighbor votes")
		}

		out[q] = kn.enc.classes[argmax(votes)]
	}

	return out, nil
}
