package automl

import (
	"cmp"
	"slices"
	"time"
)

// Entry is one family's row on the leaderboard. It carries no estimator.
type Entry struct {
	// Rank is the 1-based position among successful families, 0 for a
	// failed one.
	Rank int

	// Family is the family name.
	Family string

	// Order is the family's position in the portfolio.
	Order int

	// Params is the best assignment found.
	Params Params

	// Score is the cross-validated score of Params.
	Score CVScore

	// FitTime is the mean fold fit time of Params.
	FitTime time.Duration

	// Duration is the wall-clock time of the family search.
	Duration time.Duration

	// Candidates is the number of assignments evaluated.
	Candidates int

	// Err is the family's failure record, nil on success.
	Err error
}

// Failed reports whether the family is annotated as failed.
func (e Entry) Failed() bool {
	return e.Err != nil
}

// Leaderboard ranks SearchResults. It is read-only once built.
type Leaderboard struct {
	direction Direction
	entries   []Entry
}

// NewLeaderboard ranks the successful results by score under direction.
// Exactly equal scores are ordered by tieBreak. Failed results follow the
// ranked ones in portfolio order.
func NewLeaderboard(results []SearchResult, direction Direction, tieBreak TieBreak) *Leaderboard {
	var ranked, failed []Entry

	for _, r := range results {
		e := Entry{
			Family:     r.Family,
			Order:      r.Order,
			Params:     r.Params.Clone(),
			Score:      r.Score,
			FitTime:    r.FitTime,
			Duration:   r.Duration,
			Candidates: len(r.Candidates),
			Err:        r.Err,
		}

		if r.Failed() {
			failed = append(failed, e)
		} else {
			ranked = append(ranked, e)
		}
	}

	slices.SortStableFunc(ranked, func(a, b Entry) int {
		if a.Score.Mean != b.Score.Mean {
			if direction.Better(a.Score.Mean, b.Score.Mean) {
				return -1
			}

			if direction.Better(b.Score.Mean, a.Score.Mean) {
				return 1
			}
		}

		if tieBreak == TieBreakFitTime && a.FitTime != b.FitTime {
			return cmp.Compare(a.FitTime, b.FitTime)
		}

		return cmp.Compare(a.Order, b.Order)
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	slices.SortStableFunc(failed, func(a, b Entry) int {
		return cmp.Compare(a.Order, b.Order)
	})

	return &Leaderboard{direction: direction, entries: append(ranked, failed...)}
}

// Direction returns the ordering the leaderboard was ranked with.
func (l *Leaderboard) Direction() Direction {
	return l.direction
}

// Entries returns every entry: ranked ones first, then failures.
func (l *Leaderboard) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Ranked returns the successful entries, best first.
func (l *Leaderboard) Ranked() []Entry {
	var out []Entry

	for _, e := range l.entries {
		if !e.Failed() {
			out = append(out, e)
		}
	}

	return out
}

// Failures returns the failed entries in portfolio order.
func (l *Leaderboard) Failures() []Entry {
	var out []Entry

	for _, e := range l.entries {
		if e.Failed() {
			out = append(out, e)
		}
	}

	return out
}

// Len returns the number of entries, failures included.
func (l *Leaderboard) Len() int {
	return len(l.entries)
}

// Best returns the top-ranked entry, or ErrAllCandidatesFailed when every
// family failed.
func (l *Leaderboard) Best() (Entry, error) {
	if len(l.entries) == 0 || l.entries[0].Failed() {
		return Entry{}, ErrAllCandidatesFailed
	}

	return l.entries[0], nil
}
