package automl

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

//////
// Const, vars, types.
//////

// executor runs the randomized, cross-validated search of one family.
//
// Fields:
// - folds: the run's shared, read-only partition of data
// - budget: the run's shared worker budget; every fold-fit and the final
// refit hold one slot while they run
// - clock: the family's FamilyTimeout, armed by the first slot it holds
// - order: the family's position in the portfolio, copied into the result
type executor struct {
	runID  string
	family Family
	order  int
	data   Dataset
	folds  *folds
	cfg    SearchConfig
	budget *budget
	clock  *familyClock
	log    *slog.Logger
}

// foldOutcome is the result of one work unit: one assignment fitted on the
// training part of one fold and scored on its held-out part.
type foldOutcome struct {
	score   float64
	fitTime time.Duration
	err     error
}

//////
// Exported functionalities.
//////

// Search tunes a single family on data and refits the best assignment on
// all of it.
//
// Parameters:
// - ctx: cancels the search; pending fold-fits are not started
// - family: the family to tune; it is validated first
// - data: the training set, never modified
// - cfg: KFolds, NIter, NJobs, RandomSeed, Metric and TieBreak apply
//
// Returns:
//   - SearchResult: always populated; its Err field records a family
//     failure (ErrFamilyExhausted, ErrFamilyTimeout, ErrRefitFailed)
//   - error: a *ConfigurationError, returned before anything is fitted
//
// How it works:
//  1. Draws the candidate assignments from the family's space
//  2. Fans every (assignment, fold) pair out over the NJobs budget
//  3. Averages the fold scores of each assignment
//  4. Picks the best mean score; ties go to the lower fit time, then to
//     the earlier assignment
//  5. Refits the winner on the full data
func Search(ctx context.Context, family Family, data Dataset, cfg SearchConfig) (SearchResult, error) {
	if err := cfg.Validate(); err != nil {
		return SearchResult{}, err
	}

	if err := data.Validate(); err != nil {
		return SearchResult{}, err
	}

	if err := family.validate(); err != nil {
		return SearchResult{}, err
	}

	f, err := newFolds(data, cfg.KFolds, cfg.RandomSeed)
	if err != nil {
		return SearchResult{}, err
	}

	e := newExecutor(uuid.NewString(), family, 0, data, f, cfg, newBudget(cfg.NJobs))

	return e.search(ctx), nil
}

//////
// Methods.
//////

func newExecutor(runID string, family Family, order int, data Dataset, f *folds, cfg SearchConfig, b *budget) *executor {
	return &executor{
		runID:  runID,
		family: family,
		order:  order,
		data:   data,
		folds:  f,
		cfg:    cfg,
		budget: b,
		log:    cfg.logger().With("run_id", runID, "family", family.Name),
	}
}

// search never returns an error: whatever goes wrong below the family level
// ends up in the result.
func (e *executor) search(ctx context.Context) SearchResult {
	start := time.Now()
	res := SearchResult{Family: e.family.Name, Order: e.order}

	ctx, span := tracer.Start(ctx, "automl.Search", trace.WithAttributes(
		attribute.String("automl.run_id", e.runID),
		attribute.String("automl.family", e.family.Name),
	))
	defer span.End()

	searchCtx, clock := newFamilyClock(ctx, e.cfg.FamilyTimeout)
	defer clock.stop()

	e.clock = clock

	assignments := e.family.Space.Candidates(e.cfg.nIterFor(e.family.Name), e.cfg.RandomSeed)

	if e.cfg.Verbose >= 1 {
		e.log.Info("searching family", "candidates", len(assignments), "folds", e.folds.k)
	}

	res.Candidates = e.evaluate(searchCtx, assignments)
	span.SetAttributes(attribute.Int("automl.candidates", len(res.Candidates)))

	best := e.pick(res.Candidates)
	e.report(res.Candidates)

	if best < 0 || searchCtx.Err() != nil {
		return e.fail(span, res, e.failure(ctx, searchCtx, res.Candidates), start)
	}

	winner := res.Candidates[best]
	e.progress(ProgressUpdate{
		Phase:             "Refit",
		CurrentCandidate:  best + 1,
		TotalCandidates:   len(res.Candidates),
		CurrentParams:     winner.Params,
		CurrentBestParams: winner.Params,
		CurrentBestScore:  winner.Score.Mean,
		LastScore:         winner.Score.Mean,
	})

	var (
		est      Estimator
		refitErr error
	)

	if err := e.budget.do(searchCtx, func() {
		e.clock.start()
		est, refitErr = e.refit(searchCtx, winner.Params)
	}); err != nil {
		return e.fail(span, res, e.failure(ctx, searchCtx, res.Candidates), start)
	}

	if refitErr != nil {
		failure := &FitFailure{Family: e.family.Name, Params: winner.Params, Fold: -1, Err: refitErr}
		e.logFailure(failure)

		return e.fail(span, res, fmt.Errorf("%w: %w", ErrRefitFailed, failure), start)
	}

	res.Params = winner.Params
	res.Score = winner.Score
	res.FitTime = winner.FitTime
	res.Estimator = est
	res.Duration = time.Since(start)

	span.SetAttributes(attribute.Float64("automl.best_score", res.Score.Mean))

	if e.cfg.Verbose >= 1 {
		e.log.Info("family searched",
			"score", res.Score.Mean,
			"std", res.Score.StdDev,
			"params", res.Params.String(),
			"duration", res.Duration,
		)
	}

	e.progress(ProgressUpdate{
		Phase:             "Done",
		CurrentCandidate:  len(res.Candidates),
		TotalCandidates:   len(res.Candidates),
		CurrentParams:     res.Params,
		CurrentBestParams: res.Params,
		CurrentBestScore:  res.Score.Mean,
		LastScore:         res.Score.Mean,
	})

	return res
}

// evaluate fits and scores every assignment on every fold. Work units run
// concurrently, bounded by the shared budget; their outcomes are stored by
// (assignment, fold) index so completion order does not matter.
func (e *executor) evaluate(ctx context.Context, assignments []Params) []Candidate {
	k := e.folds.k

	outcomes := make([][]foldOutcome, len(assignments))
	for i := range outcomes {
		outcomes[i] = make([]foldOutcome, k)
	}

	var g errgroup.Group

	for i, params := range assignments {
		for fold := 0; fold < k; fold++ {
			g.Go(func() error {
				err := e.budget.do(ctx, func() {
					e.clock.start()
					outcomes[i][fold] = e.fitFold(ctx, params, fold)
				})
				if err != nil {
					outcomes[i][fold] = foldOutcome{err: err}
				}

				return err
			})
		}
	}

	// Cancellation is observed through ctx by the caller.
	_ = g.Wait()

	candidates := make([]Candidate, len(assignments))
	for i, params := range assignments {
		candidates[i] = e.aggregate(i, params, outcomes[i])
	}

	return candidates
}

func (e *executor) fitFold(ctx context.Context, params Params, fold int) foldOutcome {
	score, fitTime, err := e.fitAndScore(ctx, params, e.folds.train[fold], e.folds.eval[fold])
	if err != nil {
		if ctx.Err() == nil {
			e.logFailure(&FitFailure{Family: e.family.Name, Params: params, Fold: fold, Err: err})
		}

		return foldOutcome{err: err}
	}

	if e.cfg.Verbose >= 3 {
		e.log.Info("fold fitted", "params", params.String(), "fold", fold, "score", score, "fit_time", fitTime)
	}

	return foldOutcome{score: score, fitTime: fitTime}
}

func (e *executor) fitAndScore(ctx context.Context, params Params, train, eval Dataset) (score float64, fitTime time.Duration, err error) {
	defer recoverFit(&err)

	if err = ctx.Err(); err != nil {
		return 0, 0, err
	}

	est, err := e.family.construct(params)
	if err != nil {
		return 0, 0, fmt.Errorf("construct: %w", err)
	}

	start := time.Now()

	if err := est.Fit(ctx, train.X, train.Y); err != nil {
		return 0, 0, fmt.Errorf("fit: %w", err)
	}

	fitTime = time.Since(start)

	score, err = Score(est, eval.X, eval.Y, e.cfg.Metric)
	if err != nil {
		return 0, 0, fmt.Errorf("score: %w", err)
	}

	if !finite(score) {
		return 0, 0, fmt.Errorf("non-finite score %v", score)
	}

	return score, fitTime, nil
}

func (e *executor) refit(ctx context.Context, params Params) (est Estimator, err error) {
	defer recoverFit(&err)

	est, err = e.family.construct(params)
	if err != nil {
		return nil, fmt.Errorf("construct: %w", err)
	}

	if err := est.Fit(ctx, e.data.X, e.data.Y); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	return est, nil
}

// aggregate turns the fold outcomes of one assignment into a Candidate. A
// single failed fold discards the whole assignment.
func (e *executor) aggregate(index int, params Params, outcomes []foldOutcome) Candidate {
	c := Candidate{Index: index, Params: params}

	scores := make([]float64, len(outcomes))
	times := make([]time.Duration, len(outcomes))

	for fold, o := range outcomes {
		if o.err != nil {
			c.Err = &FitFailure{Family: e.family.Name, Params: params, Fold: fold, Err: o.err}

			return c
		}

		scores[fold], times[fold] = o.score, o.fitTime
	}

	c.Score = foldScore(scores)
	c.FitTime = meanDuration(times)

	return c
}

// pick returns the index of the best successful candidate, -1 if none.
func (e *executor) pick(candidates []Candidate) int {
	best := -1

	for i, c := range candidates {
		if c.Err != nil {
			continue
		}

		if best < 0 || e.prefer(c, candidates[best]) {
			best = i
		}
	}

	return best
}

// prefer reports whether a strictly beats b. Equal candidates keep their
// sampling order because pick walks them in that order.
func (e *executor) prefer(a, b Candidate) bool {
	if a.Score.Mean != b.Score.Mean {
		return e.cfg.Metric.Better(a.Score.Mean, b.Score.Mean)
	}

	return e.cfg.TieBreak == TieBreakFitTime && a.FitTime < b.FitTime
}

// failure builds the failure record of a family that produced no estimator.
func (e *executor) failure(parent, searchCtx context.Context, candidates []Candidate) error {
	if err := searchCtx.Err(); err != nil {
		if parent.Err() == nil && timedOut(searchCtx) {
			return fmt.Errorf("%w after %s", ErrFamilyTimeout, e.cfg.FamilyTimeout)
		}

		return err
	}

	var last error

	for _, c := range candidates {
		if c.Err != nil {
			last = c.Err
		}
	}

	return fmt.Errorf("%w: %d candidates, last: %w", ErrFamilyExhausted, len(candidates), last)
}

func (e *executor) fail(span trace.Span, res SearchResult, err error, start time.Time) SearchResult {
	res.Err = err
	res.Duration = time.Since(start)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if e.cfg.Verbose >= 1 {
		e.log.Warn("family failed", "err", err, "duration", res.Duration)
	}

	e.progress(ProgressUpdate{
		Phase:            "Done",
		CurrentCandidate: len(res.Candidates),
		TotalCandidates:  len(res.Candidates),
		CurrentBestScore: math.NaN(),
		LastScore:        math.NaN(),
	})

	return res
}

// report logs and publishes the candidates in sampling order.
func (e *executor) report(candidates []Candidate) {
	var (
		bestParams Params
		bestScore  = math.NaN()
		bestIndex  = -1
	)

	for i, c := range candidates {
		last := math.NaN()

		if c.Err == nil {
			last = c.Score.Mean

			if bestIndex < 0 || e.prefer(c, candidates[bestIndex]) {
				bestIndex, bestParams, bestScore = i, c.Params, c.Score.Mean
			}
		}

		if e.cfg.Verbose >= 2 {
			if c.Err != nil {
				e.log.Info("candidate failed", "candidate", i+1, "params", c.Params.String(), "err", c.Err)
			} else {
				e.log.Info("candidate evaluated",
					"candidate", i+1,
					"params", c.Params.String(),
					"score", c.Score.Mean,
					"std", c.Score.StdDev,
				)
			}
		}

		e.progress(ProgressUpdate{
			Phase:             "Search",
			CurrentCandidate:  i + 1,
			TotalCandidates:   len(candidates),
			CurrentParams:     c.Params,
			CurrentBestParams: bestParams,
			CurrentBestScore:  bestScore,
			LastScore:         last,
		})
	}
}

func (e *executor) logFailure(failure *FitFailure) {
	if e.cfg.Verbose >= 1 {
		e.log.Warn("fit failed", "params", failure.Params.String(), "fold", failure.Fold, "err", failure.Err)
	}
}

// progress sends u without blocking; the update is dropped if the channel
// is full.
func (e *executor) progress(u ProgressUpdate) {
	if e.cfg.ProgressChan == nil {
		return
	}

	u.RunID = e.runID
	u.Family = e.family.Name

	select {
	case e.cfg.ProgressChan <- u:
	default:
		// Skip update if channel is full.
	}
}
