package automl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"
)

var errStubFit = errors.New("stub fit failure")

// tracker counts fits in flight and remembers the peak.
type tracker struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	fits     atomic.Int64
}

func (t *tracker) enter() {
	n := t.inFlight.Add(1)
	t.fits.Add(1)

	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (t *tracker) leave() {
	t.inFlight.Add(-1)
}

type stubOptions struct {
	Quality   float64 `param:"quality"`
	Tag       string  `param:"tag"`
	Fail      bool    `param:"fail"`
	Panic     bool    `param:"panic"`
	SleepMS   int     `param:"sleep_ms"`
	RefitRows int     `param:"refit_rows"`
}

// stubEstimator scores itself with the quality it was built with, so tests
// control every cross-validated score exactly.
type stubEstimator struct {
	opts  stubOptions
	track *tracker
	label int
}

func (s *stubEstimator) Fit(ctx context.Context, X mat.Matrix, y []int) error {
	if s.track != nil {
		s.track.enter()
		defer s.track.leave()
	}

	if s.opts.Panic {
		panic("stub panic")
	}

	if s.opts.Fail {
		return errStubFit
	}

	if rows, _ := X.Dims(); s.opts.RefitRows > 0 && rows == s.opts.RefitRows {
		return errStubFit
	}

	if s.opts.SleepMS > 0 {
		select {
		case <-time.After(time.Duration(s.opts.SleepMS) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.label = y[0]

	return nil
}

func (s *stubEstimator) Predict(X mat.Matrix) ([]int, error) {
	rows, _ := X.Dims()

	out := make([]int, rows)
	for i := range out {
		out[i] = s.label
	}

	return out, nil
}

func (s *stubEstimator) Score(_ mat.Matrix, _ []int, _ Metric) (float64, error) {
	return s.opts.Quality, nil
}

func stubFactory(track *tracker) Factory {
	return func(params Params) (Estimator, error) {
		var opts stubOptions
		if err := DecodeParams(params, &opts); err != nil {
			return nil, err
		}

		return &stubEstimator{opts: opts, track: track}, nil
	}
}

func stubFamily(name string, fixed Params, space Space) Family {
	return Family{Name: name, FixedArgs: fixed, Space: space, New: stubFactory(nil)}
}

// testData returns n samples with two features and alternating labels.
func testData(n int) Dataset {
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)

	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%3))
		y[i] = i % 2
	}

	return Dataset{X: X, Y: y}
}

func testConfig() SearchConfig {
	cfg := DefaultConfig()
	cfg.KFolds = 3
	cfg.NJobs = 2
	cfg.NIter = 4
	cfg.Verbose = 0
	cfg.TieBreak = TieBreakOrder
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return cfg
}
