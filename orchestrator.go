package automl

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/thalesfsp/automl")

// Selection is the outcome of a successful run.
type Selection struct {
	// RunID identifies the run in logs, traces and progress updates.
	RunID string

	// Model is the winning estimator, refitted on the full training data.
	// The caller owns it; nothing else in the package keeps a reference.
	Model Estimator

	// Best is the leaderboard entry of Model.
	Best Entry

	// Leaderboard ranks every family, failures included.
	Leaderboard *Leaderboard
}

// Run searches every family of portfolio on data and returns one result per
// family, in portfolio order. Family failures are recorded in the results;
// the returned error is either a *ConfigurationError, returned before any
// fit, or the context's error when ctx is cancelled.
//
// Scheduling: by default families are searched one after the other and each
// family spreads its fold-fits over up to cfg.NJobs workers. With
// cfg.ConcurrentFamilies all families start at once; a single budget of
// cfg.NJobs slots is shared by every fold-fit of every family, so the total
// number of concurrent fits never exceeds cfg.NJobs.
func Run(ctx context.Context, portfolio *Portfolio, data Dataset, cfg SearchConfig) ([]SearchResult, error) {
	return run(ctx, uuid.NewString(), portfolio, data, cfg)
}

// Select runs the portfolio and returns the best fitted model with the full
// leaderboard. It is the package's single entry point.
//
// Returns:
//   - *Selection: on success, the winner and the leaderboard
//   - error: a *ConfigurationError, the context's error, or an error
//     matching ErrAllCandidatesFailed when no family could be fitted; the
//     Selection is nil in every error case
func Select(ctx context.Context, portfolio *Portfolio, data Dataset, cfg SearchConfig) (*Selection, error) {
	runID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "automl.Run", trace.WithAttributes(
		attribute.String("automl.run_id", runID),
		attribute.Int("automl.families", portfolioLen(portfolio)),
	))
	defer span.End()

	results, err := run(ctx, runID, portfolio, data, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	lb := NewLeaderboard(results, cfg.Metric.Direction, cfg.TieBreak)

	best, err := lb.Best()
	if err != nil {
		failures := make([]error, 0, len(results))
		for _, r := range results {
			failures = append(failures, fmt.Errorf("%s: %w", r.Family, r.Err))
		}

		err = fmt.Errorf("%w: %w", err, errors.Join(failures...))

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	model := results[best.Order].Estimator

	// Only the caller keeps the winner; the losers are dropped with results.
	for i := range results {
		results[i].Estimator = nil
	}

	span.SetAttributes(
		attribute.String("automl.best_family", best.Family),
		attribute.Float64("automl.best_score", best.Score.Mean),
	)

	if cfg.Verbose >= 1 {
		cfg.logger().Info("model selected",
			"run_id", runID,
			"family", best.Family,
			"score", best.Score.Mean,
			"params", best.Params.String(),
			"failed_families", len(lb.Failures()),
		)
	}

	return &Selection{RunID: runID, Model: model, Best: best, Leaderboard: lb}, nil
}

func run(ctx context.Context, runID string, portfolio *Portfolio, data Dataset, cfg SearchConfig) ([]SearchResult, error) {
	if portfolio == nil || portfolio.Len() == 0 {
		return nil, configErrorf("portfolio", "portfolio is empty")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.validateFor(portfolio); err != nil {
		return nil, err
	}

	if err := data.Validate(); err != nil {
		return nil, err
	}

	f, err := newFolds(data, cfg.KFolds, cfg.RandomSeed)
	if err != nil {
		return nil, err
	}

	b := newBudget(cfg.NJobs)
	families := portfolio.Families()
	results := make([]SearchResult, len(families))

	if cfg.Verbose >= 1 {
		cfg.logger().Info("run started",
			"run_id", runID,
			"families", len(families),
			"k_folds", cfg.KFolds,
			"n_jobs", cfg.NJobs,
			"metric", cfg.Metric.String(),
			"concurrent_families", cfg.ConcurrentFamilies,
		)
	}

	if cfg.ConcurrentFamilies {
		var g errgroup.Group

		for i, family := range families {
			g.Go(func() error {
				results[i] = newExecutor(runID, family, i, data, f, cfg, b).search(ctx)

				return nil
			})
		}

		_ = g.Wait()
	} else {
		for i, family := range families {
			results[i] = newExecutor(runID, family, i, data, f, cfg, b).search(ctx)

			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func portfolioLen(p *Portfolio) int {
	if p == nil {
		return 0
	}

	return p.Len()
}
