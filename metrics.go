package automl

import (
	"fmt"
	"slices"
)

// Metric is a scoring metric together with its declared ordering.
type Metric struct {
	// Name is the identifier used in configuration files.
	Name string

	// Direction must be Maximize or Minimize.
	Direction Direction

	// Func scores predictions against the true labels.
	Func func(yTrue, yPred []int) float64
}

var (
	// Accuracy is the fraction of correct predictions.
	Accuracy = Metric{Name: "accuracy", Direction: Maximize, Func: accuracy}

	// BalancedAccuracy is the mean per-class recall over the classes of
	// yTrue.
	BalancedAccuracy = Metric{Name: "balanced_accuracy", Direction: Maximize, Func: balancedAccuracy}

	// F1Macro is the unweighted mean F1 score over the classes seen in
	// either yTrue or yPred.
	F1Macro = Metric{Name: "f1_macro", Direction: Maximize, Func: f1Macro}

	// ErrorRate is the fraction of wrong predictions.
	ErrorRate = Metric{Name: "error_rate", Direction: Minimize, Func: errorRate}
)

var metrics = []Metric{Accuracy, BalancedAccuracy, F1Macro, ErrorRate}

// MetricByName resolves a built-in metric.
func MetricByName(name string) (Metric, error) {
	for _, m := range metrics {
		if m.Name == name {
			return m, nil
		}
	}

	return Metric{}, configErrorf("scoring_metric", "unknown metric %q", name)
}

// Better reports whether score a ranks strictly ahead of score b.
func (m Metric) Better(a, b float64) bool {
	return m.Direction.Better(a, b)
}

func (m Metric) validate() error {
	if m.Func == nil {
		return configErrorf("scoring_metric", "metric %q has no scoring function", m.Name)
	}

	if m.Direction != Maximize && m.Direction != Minimize {
		return configErrorf("scoring_metric", "metric %q has no declared direction", m.Name)
	}

	return nil
}

func accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}

	var hits int

	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hits++
		}
	}

	return float64(hits) / float64(len(yTrue))
}

func errorRate(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}

	return 1 - accuracy(yTrue, yPred)
}

func balancedAccuracy(yTrue, yPred []int) float64 {
	support := map[int]int{}
	hits := map[int]int{}

	for i, y := range yTrue {
		support[y]++

		if yPred[i] == y {
			hits[y]++
		}
	}

	if len(support) == 0 {
		return 0
	}

	var sum float64
	for class, n := range support {
		sum += float64(hits[class]) / float64(n)
	}

	return sum / float64(len(support))
}

func f1Macro(yTrue, yPred []int) float64 {
	tp := map[int]int{}
	fp := map[int]int{}
	fn := map[int]int{}
	classes := map[int]struct{}{}

	for i := range yTrue {
		t, p := yTrue[i], yPred[i]
		classes[t] = struct{}{}
		classes[p] = struct{}{}

		if t == p {
			tp[t]++
			continue
		}

		fp[p]++
		fn[t]++
	}

	if len(classes) == 0 {
		return 0
	}

	labels := make([]int, 0, len(classes))
	for c := range classes {
		labels = append(labels, c)
	}

	slices.Sort(labels)

	var sum float64

	for _, c := range labels {
		denom := 2*tp[c] + fp[c] + fn[c]
		if denom > 0 {
			sum += 2 * float64(tp[c]) / float64(denom)
		}
	}

	return sum / float64(len(labels))
}

func (m Metric) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Direction)
}
