package simulate

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/internal/domain/aggregate"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/internal/domain/ranking"
	"github.com/okian/verdict/internal/domain/rubric"
	"github.com/okian/verdict/pkg/logger"
)

const scoreTolerance = 1e-6

// expectedRanking recomputes the ranking from the final submission of every
// pair.
func expectedRanking(ctx context.Context, dir directory.Directory, doc RubricDoc, subs []Submission) ([]model.RankingEntry, error) {
	criteria := make([]rubric.Criterion, 0, len(doc.Criteria))
	for _, c := range doc.Criteria {
		criteria = append(criteria, rubric.Criterion{Name: c.Name, Weight: c.Weight, MaxScore: c.MaxScore})
	}
	rb, err := rubric.New(criteria, rubric.WithScale(doc.Scale))
	if err != nil {
		return nil, fmt.Errorf("rebuild rubric: %w", err)
	}

	final := make(map[model.PairKey]model.Evaluation, len(subs))
	for _, s := range subs {
		e := model.Evaluation{EvaluatorID: s.EvaluatorID, TeamID: s.TeamID, Scores: s.Scores}
		final[e.Key()] = e
	}
	byTeam := make(map[string][]model.Evaluation)
	for _, e := range final {
		byTeam[e.TeamID] = append(byTeam[e.TeamID], e)
	}

	teams, err := dir.Teams(ctx)
	if err != nil {
		return nil, err
	}
	var candidates []ranking.Candidate
	for _, t := range teams {
		evals, ok := byTeam[t.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, ranking.Candidate{
			TeamID:       t.ID,
			TeamName:     t.Name,
			Score:        aggregate.TeamAverage(evals, rb),
			RegisteredAt: t.RegisteredAt,
		})
	}
	return ranking.Build(candidates), nil
}

// verifyRanking compares the published ranking with the expected one.
func verifyRanking(ctx context.Context, expected []model.RankingEntry, published []Entry, verbose bool) error {
	log := logger.Get()
	if len(expected) != len(published) {
		return fmt.Errorf("%w: %d entries published, %d expected", ErrMismatch, len(published), len(expected))
	}
	for i := range expected {
		want, got := expected[i], published[i]
		switch {
		case want.TeamID != got.TeamID:
			return fmt.Errorf("%w: position %d is %s, expected %s", ErrMismatch, i+1, got.TeamID, want.TeamID)
		case want.Rank != got.Rank:
			return fmt.Errorf("%w: %s ranked %d, expected %d", ErrMismatch, got.TeamID, got.Rank, want.Rank)
		case math.Abs(want.CompositeScore-got.CompositeScore) > scoreTolerance:
			return fmt.Errorf("%w: %s scored %.6f, expected %.6f", ErrMismatch, got.TeamID, got.CompositeScore, want.CompositeScore)
		}
	}

	top := len(published)
	if !verbose && top > 10 {
		top = 10
	}
	for _, e := range published[:top] {
		log.Info(ctx, "ranking",
			logger.Int("rank", e.Rank),
			logger.String("team", e.TeamID),
			logger.String("name", e.TeamName),
			logger.Float64("score", e.CompositeScore))
	}
	log.Info(ctx, "published ranking verified", logger.Int("entries", len(published)))
	return nil
}
