// Package automl provides automated model selection for classification. Given
// a labeled training set it tunes every algorithm family of a fixed portfolio
// with randomized hyperparameter search under k-fold cross-validation, ranks
// the per-family results on a leaderboard and hands the best fitted model to
// the caller.
//
// # Features
//
// The package includes the following key features:
//
//   - Registry of search spaces: each algorithm family declares its fixed
//     construction arguments and a hyperparameter space made of tagged
//     distributions (Choice, IntRange, Uniform, LogUniform, Joint)
//   - Randomized search: NIter assignments are drawn per family with a fixed
//     seed; fully discrete spaces are sampled without replacement and capped
//     at their grid size
//   - Cross-validation: stratified, size-balanced folds computed once per run
//     and shared read-only by every family
//   - Bounded parallelism: every fold-fit acquires a slot of a single shared
//     budget of NJobs workers
//   - Failure isolation: a failed assignment is discarded, a failed family is
//     annotated on the leaderboard, only a fully failed portfolio is an error
//   - Deterministic selection: ties are broken by fit time, then by the
//     family's position in the portfolio; TieBreakOrder drops the fit time
//     so the outcome only depends on the seed
//   - Progress monitoring: structured logging through log/slog and optional
//     progress updates via channels
//
// # Estimators
//
// The learning algorithms themselves are external collaborators. Anything
// that satisfies the Estimator interface can be registered:
//
//	type Estimator interface {
//	    Fit(ctx context.Context, X mat.Matrix, y []int) error
//	    Predict(X mat.Matrix) ([]int, error)
//	}
//
// Factories receive the family's fixed arguments merged with the sampled
// assignment. DecodeParams decodes them into an options struct and rejects
// unknown names, which is how a misspelled hyperparameter is reported as a
// configuration error when the family is registered.
//
// The classifier sub-package ships reference implementations for a subset
// of the built-in portfolio.
//
// # Usage
//
//	portfolio, err := automl.ClassifierPortfolio(classifier.Factories())
//	if err != nil {
//	    return err
//	}
//
//	config := automl.DefaultConfig()
//	config.NIter = 20
//
//	selection, err := automl.Select(ctx, portfolio, automl.Dataset{X: X, Y: y}, config)
//	if errors.Is(err, automl.ErrAllCandidatesFailed) {
//	    // No family could be fitted.
//	}
//
//	predictions, err := selection.Model.Predict(Xnew)
//
// # Scheduling
//
// Families are searched one after the other by default; each family fans
// its candidate x fold fits out over up to NJobs workers. With
// ConcurrentFamilies every family search starts at once, and the shared
// budget still caps in-flight fold-fits at NJobs in total.
package automl
