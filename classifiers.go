package automl

import "slices"

// Names of the built-in classifier families, in portfolio order.
const (
	GaussianNB         = "gaussian-nb"
	BernoulliNB        = "bernoulli-nb"
	MultinomialNB      = "multinomial-nb"
	ExtraTrees         = "extra-trees"
	KNeighbors         = "k-neighbors"
	LogisticRegression = "logistic-regression"
	SGD                = "sgd"
	LinearSVC          = "linear-svc"
	RandomForest       = "random-forest"
	GradientBoosting   = "gradient-boosting"
	XGBoost            = "xgboost"
	DecisionTree       = "decision-tree"
	MLP                = "mlp"
)

// FamilySpec is a declarative registry row: a family without its factory.
type FamilySpec struct {
	Name      string
	FixedArgs Params
	Space     Space
}

func seeded() Params {
	return Params{"random_state": 0}
}

func forestSpace() Space {
	return Space{
		"n_estimators":      Choice(Steps(100, 300, 100)...),
		"criterion":         Choice("gini", "entropy"),
		"max_features":      Choice(Steps(0.05, 1.01, 0.05)...),
		"min_samples_split": IntRange(2, 20),
		"min_samples_leaf":  IntRange(1, 20),
		"bootstrap":         Choice(true, false),
	}
}

// ClassifierSpecs returns the built-in classifier table. Every call returns
// fresh values, so callers may adjust them before binding.
func ClassifierSpecs() []FamilySpec {
	return []FamilySpec{
		{Name: GaussianNB},
		{
			Name: BernoulliNB,
			Space: Space{
				"alpha":     Choice(1e-3, 1e-2, 1e-1, 1.0, 10.0, 100.0),
				"fit_prior": Choice(true, false),
			},
		},
		{
			Name: MultinomialNB,
			Space: Space{
				"alpha":     Choice(1e-3, 1e-2, 1e-1, 1.0, 10.0),
				"fit_prior": Choice(true, false),
			},
		},
		{Name: ExtraTrees, FixedArgs: seeded(), Space: forestSpace()},
		{
			Name: KNeighbors,
			Space: Space{
				"n_neighbors": IntRange(1, 100),
				"weights":     Choice("uniform", "distance"),
				"p":           Choice(1, 2),
			},
		},
		{
			Name:      LogisticRegression,
			FixedArgs: seeded(),
			Space: Space{
				"C":        Choice(1e-2, 1e-1, 0.5, 1.0, 5.0, 10.0, 15.0, 20.0, 25.0),
				"max_iter": Choice(Steps(100, 300, 100)...),
				// The dual formulation only exists for l2.
				"penalty/dual": Joint(
					Params{"penalty": "l1", "dual": false},
					Params{"penalty": "l2", "dual": true},
					Params{"penalty": "l2", "dual": false},
				),
			},
		},
		{
			Name:      SGD,
			FixedArgs: seeded(),
			Space: Space{
				"loss":          Choice("log_loss", "hinge", "modified_huber", "squared_hinge", "perceptron"),
				"penalty":       Choice("elasticnet"),
				"alpha":         Choice(0.0, 0.01, 0.001),
				"learning_rate": Choice("invscaling", "constant"),
				"fit_intercept": Choice(true, false),
				"l1_ratio":      Choice(0.25, 0.0, 1.0, 0.75, 0.5),
				"eta0":          Choice(0.1, 1.0, 0.01),
				"power_t":       Choice(0.5, 0.0, 1.0, 0.1, 100.0, 10.0, 50.0),
			},
		},
		{
			Name:      LinearSVC,
			FixedArgs: seeded(),
			Space: Space{
				"tol": Choice(1e-5, 1e-4, 1e-3, 1e-2, 1e-1),
				"C":   Choice(1e-4, 1e-3, 1e-2, 1e-1, 0.5, 1.0, 5.0, 10.0, 15.0, 20.0, 25.0),
				// liblinear supports exactly these combinations.
				"penalty/loss/dual": Joint(
					Params{"penalty": "l2", "loss": "hinge", "dual": true},
					Params{"penalty": "l2", "loss": "squared_hinge", "dual": true},
					Params{"penalty": "l2", "loss": "squared_hinge", "dual": false},
					Params{"penalty": "l1", "loss": "squared_hinge", "dual": false},
				),
			},
		},
		{Name: RandomForest, FixedArgs: seeded(), Space: forestSpace()},
		{
			Name:      GradientBoosting,
			FixedArgs: seeded(),
			Space: Space{
				"n_estimators":      Choice(Steps(100, 300, 100)...),
				"learning_rate":     Choice(1e-3, 1e-2, 1e-1, 0.5, 1.0),
				"max_depth":         IntRange(1, 10),
				"min_samples_split": IntRange(2, 20),
				"min_samples_leaf":  IntRange(1, 20),
				"subsample":         Choice(Steps(0.05, 1.01, 0.05)...),
				"max_features":      Choice(Steps(0.05, 1.01, 0.05)...),
			},
		},
		{
			Name:      XGBoost,
			FixedArgs: seeded(),
			Space: Space{
				"n_estimators":     Choice(Steps(100, 300, 100)...),
				"max_depth":        IntRange(1, 10),
				"learning_rate":    Choice(1e-3, 1e-2, 1e-1, 0.5, 1.0),
				"subsample":        Choice(Steps(0.05, 1.01, 0.05)...),
				"min_child_weight": IntRange(1, 20),
			},
		},
		{
			Name:      DecisionTree,
			FixedArgs: seeded(),
			Space: Space{
				"criterion":         Choice("gini", "entropy"),
				"max_depth":         IntRange(1, 10),
				"min_samples_split": IntRange(2, 20),
				"min_samples_leaf":  IntRange(1, 20),
			},
		},
		{
			Name:      MLP,
			FixedArgs: seeded(),
			Space: Space{
				"max_iter":           Choice(Steps(100, 500, 100)...),
				"alpha":              LogUniform(1e-4, 1e-1),
				"learning_rate_init": Choice(1e-3, 1e-2, 1e-1, 0.5, 1.0),
			},
		},
	}
}

// ClassifierPortfolio binds the built-in classifier table to factories,
// keyed by family name. Families without a factory are left out; the
// remaining ones keep the table's order.
func ClassifierPortfolio(factories map[string]Factory) (*Portfolio, error) {
	specs := ClassifierSpecs()

	for name := range factories {
		known := slices.ContainsFunc(specs, func(s FamilySpec) bool { return s.Name == name })
		if !known {
			return nil, configErrorf(name, "factory given for unknown classifier family")
		}
	}

	r := NewRegistry()

	for _, spec := range specs {
		factory, ok := factories[spec.Name]
		if !ok {
			continue
		}

		err := r.Register(Family{
			Name:      spec.Name,
			FixedArgs: spec.FixedArgs,
			Space:     spec.Space,
			New:       factory,
		})
		if err != nil {
			return nil, err
		}
	}

	return r.Portfolio()
}
