package automl

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// skewedData has 20 samples of class 0 followed by 10 of class 1. With 3
// folds every held-out part has 10 samples: 7, 7 and 6 of class 0.
func skewedData() Dataset {
	data := testData(30)
	for i := range data.Y {
		data.Y[i] = 0
		if i >= 20 {
			data.Y[i] = 1
		}
	}

	return data
}

func TestSearchEmptySpaceEvaluatesOnce(t *testing.T) {
	res, err := Search(context.Background(), stubFamily("a", Params{"quality": 0.6}, nil), testData(30), testConfig())
	require.NoError(t, err)
	require.NoError(t, res.Err)

	require.Len(t, res.Candidates, 1)
	assert.Empty(t, res.Params)
	assert.Len(t, res.Score.Folds, 3)
	assert.InDelta(t, 0.6, res.Score.Mean, 1e-12)
	assert.NotNil(t, res.Estimator)
}

func TestSearchScoresEveryFold(t *testing.T) {
	ctrl := gomock.NewController(t)

	factory := func(Params) (Estimator, error) {
		m := NewMockEstimator(ctrl)
		m.EXPECT().Fit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		m.EXPECT().Predict(gomock.Any()).DoAndReturn(func(X mat.Matrix) ([]int, error) {
			rows, _ := X.Dims()
			return make([]int, rows), nil
		}).AnyTimes()

		return m, nil
	}

	family := Family{Name: "majority", New: factory}

	res, err := Search(context.Background(), family, skewedData(), testConfig())
	require.NoError(t, err)
	require.NoError(t, res.Err)

	assert.InDeltaSlice(t, []float64{0.7, 0.7, 0.6}, res.Score.Folds, 1e-12)
	assert.InDelta(t, stat.Mean(res.Score.Folds, nil), res.Score.Mean, 1e-12)
	assert.InDelta(t, 2.0/3, res.Score.Mean, 1e-12)
}

func TestSearchPredictFailureExhaustsFamily(t *testing.T) {
	ctrl := gomock.NewController(t)
	errPredict := errors.New("predict exploded")

	factory := func(Params) (Estimator, error) {
		m := NewMockEstimator(ctrl)
		m.EXPECT().Fit(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		m.EXPECT().Predict(gomock.Any()).Return(nil, errPredict).AnyTimes()

		return m, nil
	}

	res, err := Search(context.Background(), Family{Name: "m", New: factory}, testData(30), testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, ErrFamilyExhausted)
	assert.ErrorIs(t, res.Err, errPredict)
	assert.Nil(t, res.Estimator)

	var failure *FitFailure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, "m", failure.Family)
}

func TestSearchDeterministic(t *testing.T) {
	family := stubFamily("a", nil, Space{
		"quality": Uniform(0, 1),
		"tag":     Choice("x", "y", "z"),
	})

	first, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	second, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	assert.Equal(t, first.Params, second.Params)
	assert.Equal(t, first.Score, second.Score)

	require.Len(t, first.Candidates, 4)

	for i := range first.Candidates {
		assert.Equal(t, first.Candidates[i].Params, second.Candidates[i].Params)
		assert.Equal(t, i, first.Candidates[i].Index)
	}
}

func TestSearchPicksBestCandidate(t *testing.T) {
	family := stubFamily("a", nil, Space{"quality": Choice(0.2, 0.9, 0.5)})

	res, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, Params{"quality": 0.9}, res.Params)

	cfg := testConfig()
	cfg.Metric = ErrorRate

	res, err = Search(context.Background(), family, testData(30), cfg)
	require.NoError(t, err)
	assert.Equal(t, Params{"quality": 0.2}, res.Params)
}

func TestSearchTieKeepsSamplingOrder(t *testing.T) {
	family := stubFamily("a", Params{"quality": 0.5}, Space{"tag": Choice("x", "y", "z")})

	res, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	assert.Equal(t, res.Candidates[0].Params, res.Params)
}

func TestSearchPartialFailures(t *testing.T) {
	tests := []struct {
		name  string
		space Space
	}{
		{"fit error", Space{"fail": Choice(true, false)}},
		{"panic", Space{"panic": Choice(true, false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			family := stubFamily("a", Params{"quality": 0.7}, tt.space)

			res, err := Search(context.Background(), family, testData(30), testConfig())
			require.NoError(t, err)
			require.NoError(t, res.Err)
			require.Len(t, res.Candidates, 2)

			var failed int

			for _, c := range res.Candidates {
				if c.Err == nil {
					continue
				}

				failed++

				var failure *FitFailure
				require.ErrorAs(t, c.Err, &failure)
				assert.GreaterOrEqual(t, failure.Fold, 0)
			}

			assert.Equal(t, 1, failed)
			assert.InDelta(t, 0.7, res.Score.Mean, 1e-12)
		})
	}
}

func TestSearchAllCandidatesFail(t *testing.T) {
	family := stubFamily("a", Params{"fail": true}, Space{"quality": Choice(0.1, 0.2)})

	res, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, ErrFamilyExhausted)
	assert.ErrorIs(t, res.Err, errStubFit)
	assert.True(t, res.Failed())
	assert.Nil(t, res.Estimator)
	assert.Len(t, res.Candidates, 2)
}

func TestSearchRefitFailure(t *testing.T) {
	family := stubFamily("a", Params{"quality": 0.5, "refit_rows": 30}, nil)

	res, err := Search(context.Background(), family, testData(30), testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, ErrRefitFailed)
	assert.Nil(t, res.Estimator)

	var failure *FitFailure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, -1, failure.Fold)
	assert.Contains(t, failure.Error(), "refit")
}

func TestSearchTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.FamilyTimeout = 20 * time.Millisecond

	family := stubFamily("slow", Params{"quality": 0.5, "sleep_ms": 2000}, nil)

	start := time.Now()

	res, err := Search(context.Background(), family, testData(30), cfg)
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, ErrFamilyTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearchTimeoutIgnoresQueueing(t *testing.T) {
	cfg := testConfig()
	cfg.NJobs = 1
	cfg.FamilyTimeout = 50 * time.Millisecond

	data := testData(30)

	f, err := newFolds(data, cfg.KFolds, cfg.RandomSeed)
	require.NoError(t, err)

	// Another family holds the only slot for longer than the timeout.
	b := newBudget(cfg.NJobs)
	require.NoError(t, b.sem.Acquire(context.Background(), 1))

	e := newExecutor("run", stubFamily("queued", Params{"quality": 0.5}, nil), 0, data, f, cfg, b)

	done := make(chan SearchResult, 1)
	go func() { done <- e.search(context.Background()) }()

	time.Sleep(150 * time.Millisecond)
	b.sem.Release(1)

	res := <-done
	require.NoError(t, res.Err)
	assert.InDelta(t, 0.5, res.Score.Mean, 1e-12)
	assert.NotNil(t, res.Estimator)
}

func TestFamilyClock(t *testing.T) {
	ctx, clock := newFamilyClock(context.Background(), 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, ctx.Err(), "clock runs before start")

	clock.start()
	clock.start()

	<-ctx.Done()
	assert.True(t, timedOut(ctx))

	clock.stop()
	assert.True(t, timedOut(ctx))

	ctx, clock = newFamilyClock(context.Background(), 0)
	clock.start()
	clock.stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, timedOut(ctx))
}

func TestSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Search(ctx, stubFamily("a", Params{"quality": 0.5}, nil), testData(30), testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.NotErrorIs(t, res.Err, ErrFamilyTimeout)
}

func TestSearchConfigurationErrors(t *testing.T) {
	cfg := testConfig()
	cfg.KFolds = 1

	var cfgErr *ConfigurationError

	_, err := Search(context.Background(), stubFamily("a", nil, nil), testData(30), cfg)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = Search(context.Background(), stubFamily("a", nil, Space{"bogus": Choice(1)}), testData(30), testConfig())
	assert.ErrorAs(t, err, &cfgErr)

	_, err = Search(context.Background(), stubFamily("a", nil, nil), Dataset{X: mat.NewDense(2, 1, nil), Y: []int{1}}, testConfig())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "data", cfgErr.Field)

	_, err = Search(context.Background(), stubFamily("a", nil, nil), testData(2), testConfig())
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "k_folds", cfgErr.Field)
}

func TestSearchProgress(t *testing.T) {
	ch := make(chan ProgressUpdate, 64)

	cfg := testConfig()
	cfg.ProgressChan = ch

	family := stubFamily("a", nil, Space{"quality": Choice(0.1, 0.3, 0.2)})

	_, err := Search(context.Background(), family, testData(30), cfg)
	require.NoError(t, err)

	close(ch)

	var updates []ProgressUpdate
	for u := range ch {
		updates = append(updates, u)
	}

	// Three candidates, one refit, one completion.
	require.Len(t, updates, 5)

	for i, u := range updates[:3] {
		assert.Equal(t, "Search", u.Phase)
		assert.Equal(t, i+1, u.CurrentCandidate)
		assert.Equal(t, 3, u.TotalCandidates)
		assert.Equal(t, "a", u.Family)
		assert.NotEmpty(t, u.RunID)
	}

	assert.Equal(t, "Refit", updates[3].Phase)

	done := updates[4]
	assert.Equal(t, "Done", done.Phase)
	assert.InDelta(t, 0.3, done.CurrentBestScore, 1e-12)
	assert.Equal(t, Params{"quality": 0.3}, done.CurrentBestParams)
}

func TestSearchProgressNeverBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressChan = make(chan ProgressUpdate)

	res, err := Search(context.Background(), stubFamily("a", nil, Space{"quality": Choice(0.1, 0.2)}), testData(30), cfg)
	require.NoError(t, err)
	assert.NoError(t, res.Err)
}

func TestSearchLogging(t *testing.T) {
	var buf bytes.Buffer

	cfg := testConfig()
	cfg.Verbose = 3
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	family := stubFamily("logged", nil, Space{"quality": Choice(0.1, 0.2), "fail": Choice(true, false)})

	_, err := Search(context.Background(), family, testData(30), cfg)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "searching family")
	assert.Contains(t, out, "candidate evaluated")
	assert.Contains(t, out, "fold fitted")
	assert.Contains(t, out, "fit failed")
	assert.Contains(t, out, "family=logged")

	buf.Reset()
	cfg.Verbose = 0

	_, err = Search(context.Background(), family, testData(30), cfg)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
