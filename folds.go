package automl

import (
	"math/rand"
	"slices"
)

// folds is a k-fold partition of a dataset with the train and test
// matrices of every fold materialized once. It is read-only after
// construction and shared by every family and fold-fit of a run.
type folds struct {
	k     int
	test  [][]int
	train []Dataset
	eval  []Dataset
}

// newFolds partitions data into k disjoint folds. Indices are shuffled per
// class with seed and dealt round-robin, so fold sizes differ by at most one
// and every class is spread as evenly as its size allows.
func newFolds(data Dataset, k int, seed int64) (*folds, error) {
	n := len(data.Y)
	if n < k {
		return nil, configErrorf("k_folds", "%d folds requested for %d samples", k, n)
	}

	byClass := map[int][]int{}
	for i, y := range data.Y {
		byClass[y] = append(byClass[y], i)
	}

	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}

	slices.Sort(classes)

	rng := rand.New(rand.NewSource(seed))
	test := make([][]int, k)

	pos := 0
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		for _, i := range idx {
			test[pos%k] = append(test[pos%k], i)
			pos++
		}
	}

	f := &folds{
		k:     k,
		test:  test,
		train: make([]Dataset, k),
		eval:  make([]Dataset, k),
	}

	for i := range test {
		slices.Sort(test[i])

		inTest := make([]bool, n)
		for _, j := range test[i] {
			inTest[j] = true
		}

		trainIdx := make([]int, 0, n-len(test[i]))
		for j := 0; j < n; j++ {
			if !inTest[j] {
				trainIdx = append(trainIdx, j)
			}
		}

		f.train[i] = Dataset{X: takeRows(data.X, trainIdx), Y: takeLabels(data.Y, trainIdx)}
		f.eval[i] = Dataset{X: takeRows(data.X, test[i]), Y: takeLabels(data.Y, test[i])}
	}

	return f, nil
}
