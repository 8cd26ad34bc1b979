package automl

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Kind tags the variant held by a Distribution.
type Kind int

const (
	// KindChoice is a finite set of candidate values.
	KindChoice Kind = iota + 1

	// KindIntRange is an inclusive integer range.
	KindIntRange

	// KindFloatRange is a continuous range sampled with a Rule.
	KindFloatRange

	// KindJoint is a finite set of sub-assignments whose values are only
	// valid together, e.g. penalty and solver combinations.
	KindJoint
)

// Rule is the sampling rule of a continuous range.
type Rule int

const (
	// RuleUniform samples uniformly in [Min, Max).
	RuleUniform Rule = iota

	// RuleLogUniform samples uniformly in log space. Min must be positive.
	RuleLogUniform
)

// Distribution describes the candidate values of one hyperparameter.
// Build one with Choice, IntRange, Uniform, LogUniform or Joint.
type Distribution struct {
	Kind   Kind
	Values []any
	Ints   ParameterRange[int]
	Floats ParameterRange[float64]
	Rule   Rule
	Combos []Params
}

// Space maps hyperparameter names to their distributions. For a Joint entry
// the key only names the group; the combo's own keys end up in the
// assignment.
type Space map[string]Distribution

//////
// Factory.
//////

// Choice returns a distribution that picks one of values uniformly.
func Choice(values ...any) Distribution {
	return Distribution{Kind: KindChoice, Values: values}
}

// IntRange returns a distribution over the integers in [min, max].
func IntRange(min, max int) Distribution {
	return Distribution{Kind: KindIntRange, Ints: ParameterRange[int]{Min: min, Max: max}}
}

// Uniform returns a continuous distribution over [min, max).
func Uniform(min, max float64) Distribution {
	return Distribution{Kind: KindFloatRange, Floats: ParameterRange[float64]{Min: min, Max: max}, Rule: RuleUniform}
}

// LogUniform returns a continuous distribution over [min, max) that is
// uniform in log space.
func LogUniform(min, max float64) Distribution {
	return Distribution{Kind: KindFloatRange, Floats: ParameterRange[float64]{Min: min, Max: max}, Rule: RuleLogUniform}
}

// Joint returns a distribution that picks one of combos uniformly and
// contributes all of its keys to the assignment.
func Joint(combos ...Params) Distribution {
	return Distribution{Kind: KindJoint, Combos: combos}
}

// Steps returns the values start, start+step, ... strictly below stop, for
// use with Choice. Float values are rounded to 12 decimals so that 0.15 does
// not turn into 0.15000000000000002.
func Steps[T constraints.Integer | constraints.Float](start, stop, step T) []any {
	if step <= 0 || stop <= start {
		return nil
	}

	n := int(math.Ceil(float64(stop-start) / float64(step)))

	values := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v := start + T(i)*step

		switch x := any(v).(type) {
		case float64:
			values = append(values, math.Round(x*1e12)/1e12)
		case float32:
			values = append(values, float32(math.Round(float64(x)*1e12)/1e12))
		default:
			values = append(values, v)
		}
	}

	return values
}

//////
// Methods.
//////

// Sample draws one value from d. A Joint distribution yields a Params.
func (d Distribution) Sample(rng *rand.Rand) any {
	switch d.Kind {
	case KindChoice:
		return d.Values[rng.Intn(len(d.Values))]
	case KindIntRange:
		return d.Ints.Min + rng.Intn(d.Ints.Max-d.Ints.Min+1)
	case KindFloatRange:
		min, max := d.Floats.Min, d.Floats.Max
		if d.Rule == RuleLogUniform {
			lo, hi := math.Log(min), math.Log(max)

			return math.Exp(lo + rng.Float64()*(hi-lo))
		}

		return min + rng.Float64()*(max-min)
	case KindJoint:
		return d.Combos[rng.Intn(len(d.Combos))].Clone()
	default:
		return nil
	}
}

// Discrete reports whether d has a finite number of values.
func (d Distribution) Discrete() bool {
	return d.Kind != KindFloatRange
}

func (d Distribution) cardinality() int {
	switch d.Kind {
	case KindChoice:
		return len(d.Values)
	case KindIntRange:
		return d.Ints.Max - d.Ints.Min + 1
	case KindJoint:
		return len(d.Combos)
	default:
		return 0
	}
}

func (d Distribution) clone() Distribution {
	d.Values = slices.Clone(d.Values)

	if d.Combos != nil {
		combos := make([]Params, len(d.Combos))
		for i, c := range d.Combos {
			combos[i] = c.Clone()
		}

		d.Combos = combos
	}

	return d
}

// at returns the i-th value of a discrete distribution.
func (d Distribution) at(i int) any {
	switch d.Kind {
	case KindChoice:
		return d.Values[i]
	case KindIntRange:
		return d.Ints.Min + i
	case KindJoint:
		return d.Combos[i].Clone()
	default:
		return nil
	}
}

func (d Distribution) validate() error {
	switch d.Kind {
	case KindChoice:
		if len(d.Values) == 0 {
			return fmt.Errorf("choice has no values")
		}
	case KindIntRange:
		if d.Ints.Min > d.Ints.Max {
			return fmt.Errorf("integer range min %d > max %d", d.Ints.Min, d.Ints.Max)
		}
	case KindFloatRange:
		if !(d.Floats.Min < d.Floats.Max) {
			return fmt.Errorf("continuous range min %v >= max %v", d.Floats.Min, d.Floats.Max)
		}

		if d.Rule == RuleLogUniform && d.Floats.Min <= 0 {
			return fmt.Errorf("log-uniform range needs a positive min, got %v", d.Floats.Min)
		}
	case KindJoint:
		if len(d.Combos) == 0 {
			return fmt.Errorf("joint has no combinations")
		}

		for i, c := range d.Combos {
			if len(c) == 0 {
				return fmt.Errorf("joint combination %d is empty", i)
			}
		}
	default:
		return fmt.Errorf("unknown distribution kind %d", d.Kind)
	}

	return nil
}

// Names returns the entry names of s in sorted order. Sampling always walks
// entries in this order.
func (s Space) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Empty reports whether s has no tunable parameters.
func (s Space) Empty() bool {
	return len(s) == 0
}

// Clone returns a deep copy of s. Choice values themselves are shared.
func (s Space) Clone() Space {
	if s == nil {
		return nil
	}

	out := make(Space, len(s))
	for name, d := range s {
		out[name] = d.clone()
	}

	return out
}

// GridSize returns the number of distinct assignments of s. ok is false when
// s holds a continuous entry or the size overflows an int.
func (s Space) GridSize() (size int, ok bool) {
	size = 1

	for _, d := range s {
		if !d.Discrete() {
			return 0, false
		}

		c := d.cardinality()
		if c > 0 && size > math.MaxInt/c {
			return 0, false
		}

		size *= c
	}

	return size, true
}

// Sample draws one assignment from s.
func (s Space) Sample(rng *rand.Rand) Params {
	p := make(Params, len(s))
	for _, name := range s.Names() {
		p.assign(name, s[name], s[name].Sample(rng))
	}

	return p
}

// point decodes a grid index into an assignment, first name varying slowest.
func (s Space) point(index int) Params {
	names := s.Names()
	p := make(Params, len(names))

	for i := len(names) - 1; i >= 0; i-- {
		d := s[names[i]]
		c := d.cardinality()
		p.assign(names[i], d, d.at(index%c))
		index /= c
	}

	return p
}

// Candidates returns the assignments a randomized search over s evaluates.
//
// Returns:
//   - a single empty assignment when s is empty
//   - when s is fully discrete, min(n, grid size) distinct assignments drawn
//     without replacement
//   - otherwise n independent draws (repeats are possible)
//
// The result only depends on s, n and seed.
func (s Space) Candidates(n int, seed int64) []Params {
	if s.Empty() {
		return []Params{{}}
	}

	rng := rand.New(rand.NewSource(seed))

	if size, ok := s.GridSize(); ok {
		if size <= n {
			out := make([]Params, 0, size)
			for _, i := range rng.Perm(size) {
				out = append(out, s.point(i))
			}

			return out
		}

		out := make([]Params, 0, n)
		seen := make(map[int]struct{}, n)

		for len(out) < n {
			i := rng.Intn(size)
			if _, dup := seen[i]; dup {
				continue
			}

			seen[i] = struct{}{}
			out = append(out, s.point(i))
		}

		return out
	}

	out := make([]Params, n)
	for i := range out {
		out[i] = s.Sample(rng)
	}

	return out
}

// Validate checks every distribution of s and that Joint keys do not shadow
// other entries.
func (s Space) Validate() error {
	for _, name := range s.Names() {
		d := s[name]
		if err := d.validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if d.Kind != KindJoint {
			continue
		}

		for _, combo := range d.Combos {
			for key := range combo {
				if _, clash := s[key]; clash {
					return fmt.Errorf("%s: joint key %q shadows another entry", name, key)
				}
			}
		}
	}

	return nil
}

func (p Params) assign(name string, d Distribution, v any) {
	if d.Kind == KindJoint {
		for k, x := range v.(Params) {
			p[k] = x
		}

		return
	}

	p[name] = v
}
