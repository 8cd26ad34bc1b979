package automl

import (
	"fmt"
	"math/rand"
	"slices"
)

// Family is the construction recipe of one learning algorithm: its stable
// name, the fixed arguments passed on every construction, and the space its
// hyperparameters are tuned over. An empty Space means the family is fit
// directly with its fixed arguments.
type Family struct {
	Name      string
	FixedArgs Params
	Space     Space
	New       Factory
}

// construct builds an unfitted estimator for one assignment.
func (f Family) construct(params Params) (Estimator, error) {
	est, err := f.New(f.FixedArgs.Merge(params))
	if err != nil {
		return nil, err
	}

	if est == nil {
		return nil, fmt.Errorf("factory returned a nil estimator")
	}

	return est, nil
}

// clone copies the maps of f so a registered family shares nothing with
// its caller.
func (f Family) clone() Family {
	f.FixedArgs = f.FixedArgs.Clone()
	f.Space = f.Space.Clone()

	return f
}

// validate reports every defect detectable without training data: invalid
// distributions, fixed arguments that collide with tunable ones, and
// parameter names the factory does not accept.
func (f Family) validate() error {
	if f.Name == "" {
		return configErrorf("family", "family has no name")
	}

	if f.New == nil {
		return configErrorf(f.Name, "family has no factory")
	}

	if err := f.Space.Validate(); err != nil {
		return &ConfigurationError{Field: f.Name, Reason: "invalid hyperparameter space", Err: err}
	}

	for _, probe := range f.probes() {
		for key := range probe {
			if _, fixed := f.FixedArgs[key]; fixed {
				return configErrorf(f.Name, "parameter %q is both fixed and tunable", key)
			}
		}

		if _, err := f.construct(probe); err != nil {
			reason := "factory rejects assignment " + probe.String()
			if f.Space.Empty() {
				reason = "no valid default construction"
			}

			return &ConfigurationError{Field: f.Name, Reason: reason, Err: err}
		}
	}

	return nil
}

// probes returns assignments that together mention every parameter name the
// space can produce: one seeded sample plus one variant per Joint combo.
func (f Family) probes() []Params {
	if f.Space.Empty() {
		return []Params{{}}
	}

	base := f.Space.Sample(rand.New(rand.NewSource(0)))
	probes := []Params{base}

	for _, name := range f.Space.Names() {
		d := f.Space[name]
		if d.Kind != KindJoint {
			continue
		}

		for _, combo := range d.Combos {
			probes = append(probes, base.Merge(combo))
		}
	}

	return probes
}

// Registry maps family names to construction recipes. Families are checked
// when registered, so a defective table fails at startup rather than in
// the middle of a search.
type Registry struct {
	order    []string
	families map[string]Family
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{families: make(map[string]Family)}
}

// Register validates f and appends it to the registry.
func (r *Registry) Register(f Family) error {
	if _, dup := r.families[f.Name]; dup {
		return configErrorf(f.Name, "family registered twice")
	}

	if err := f.validate(); err != nil {
		return err
	}

	f = f.clone()
	r.order = append(r.order, f.Name)
	r.families[f.Name] = f

	return nil
}

// Unregister removes the named family. It reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	if _, ok := r.families[name]; !ok {
		return false
	}

	delete(r.families, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })

	return true
}

// Portfolio returns an immutable snapshot of the registered families in
// registration order.
func (r *Registry) Portfolio() (*Portfolio, error) {
	if len(r.order) == 0 {
		return nil, configErrorf("portfolio", "no family registered")
	}

	families := make([]Family, len(r.order))
	for i, name := range r.order {
		families[i] = r.families[name]
	}

	return &Portfolio{families: families}, nil
}

// Portfolio is the ordered, read-only set of families a run evaluates.
type Portfolio struct {
	families []Family
}

// NewPortfolio registers families in order and returns the portfolio.
func NewPortfolio(families ...Family) (*Portfolio, error) {
	r := NewRegistry()
	for _, f := range families {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}

	return r.Portfolio()
}

// Families returns a copy of the families in declared order.
func (p *Portfolio) Families() []Family {
	families := make([]Family, len(p.families))
	for i, f := range p.families {
		families[i] = f.clone()
	}

	return families
}

// Names returns the family names in declared order.
func (p *Portfolio) Names() []string {
	names := make([]string, len(p.families))
	for i, f := range p.families {
		names[i] = f.Name
	}

	return names
}

// Len returns the number of families.
func (p *Portfolio) Len() int {
	return len(p.families)
}

// Lookup returns the named family.
func (p *Portfolio) Lookup(name string) (Family, bool) {
	for _, f := range p.families {
		if f.Name == name {
			return f.clone(), true
		}
	}

	return Family{}, false
}
