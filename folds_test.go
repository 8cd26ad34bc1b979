package automl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewFolds(t *testing.T) {
	data := testData(30)

	f, err := newFolds(data, 3, 0)
	require.NoError(t, err)
	require.Equal(t, 3, f.k)

	seen := make([]int, 30)

	for i, test := range f.test {
		assert.Len(t, test, 10)

		var ones int
		for _, j := range test {
			seen[j]++
			ones += data.Y[j]
		}

		// 15 samples per class spread over 3 folds.
		assert.Equal(t, 5, ones)

		rows, cols := f.train[i].X.Dims()
		assert.Equal(t, 20, rows)
		assert.Equal(t, 2, cols)
		assert.Len(t, f.train[i].Y, 20)

		rows, _ = f.eval[i].X.Dims()
		assert.Equal(t, 10, rows)

		// Held-out rows are copied from the source in index order.
		for r, j := range test {
			assert.Equal(t, data.X.At(j, 0), f.eval[i].X.At(r, 0))
			assert.Equal(t, data.Y[j], f.eval[i].Y[r])
		}
	}

	for j, n := range seen {
		assert.Equal(t, 1, n, "sample %d", j)
	}
}

func TestNewFoldsDeterministic(t *testing.T) {
	data := testData(25)

	a, err := newFolds(data, 4, 9)
	require.NoError(t, err)

	b, err := newFolds(data, 4, 9)
	require.NoError(t, err)

	assert.Equal(t, a.test, b.test)

	for _, test := range a.test {
		assert.True(t, len(test) == 6 || len(test) == 7)
	}
}

func TestNewFoldsTooFewSamples(t *testing.T) {
	_, err := newFolds(testData(2), 3, 0)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "k_folds", cfgErr.Field)
}

func TestNewFoldsLeavesSourceUntouched(t *testing.T) {
	data := testData(12)
	before := mat.DenseCopyOf(data.X)

	f, err := newFolds(data, 3, 1)
	require.NoError(t, err)

	f.train[0].X.(*mat.Dense).Set(0, 0, -1)

	assert.True(t, mat.Equal(before, data.X))
}
