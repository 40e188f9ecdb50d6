package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/verdict/internal/domain/aggregate"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/internal/domain/ranking"
	"github.com/okian/verdict/pkg/logger"
	"github.com/okian/verdict/pkg/metrics"
)

// ReleaseResults publishes the final ranking. It succeeds at most once, and
// only when every team with assignments has received all of its evaluations.
func (s *Service) ReleaseResults(ctx context.Context, caller model.Caller) ([]model.RankingEntry, error) {
	const op = "service.release"
	start := time.Now()
	defer func() {
		metrics.RecordReleaseLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	entries, err := s.release(ctx, op, caller)
	if err != nil {
		metrics.RecordReleaseAttempt(fault.Label(err))
		s.logger.Warn(ctx, "release refused",
			logger.String("caller", caller.ID),
			logger.Strings("incomplete", fault.SubjectsOf(err)),
			logger.Error(err),
		)
		return nil, err
	}

	metrics.RecordReleaseAttempt("released")
	metrics.MarkReleased(len(entries))
	s.logger.Info(ctx, "results released",
		logger.String("caller", caller.ID),
		logger.Int("teams", len(entries)),
	)
	return entries, nil
}

func (s *Service) release(ctx context.Context, op string, caller model.Caller) ([]model.RankingEntry, error) {
	if err := s.ready(op); err != nil {
		return nil, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return nil, err
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	st, err := s.store.ReleaseState(ctx)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	if st.IsReleased() {
		return nil, fault.New(op, fault.ErrConflict, "already released")
	}

	var refused error
	released, err := s.store.Release(ctx, func(all []model.Evaluation) (model.ReleaseState, error) {
		entries, err := s.rank(ctx, op, all)
		if err != nil {
			refused = err
			return model.ReleaseState{}, err
		}
		return model.ReleaseState{
			Status:     model.Released,
			ReleasedAt: s.now(),
			ReleasedBy: caller.ID,
			Ranking:    entries,
		}, nil
	})
	if refused != nil {
		return nil, refused
	}
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return released.Ranking, nil
}

// rank checks global completion over all and builds the ranking from it.
func (s *Service) rank(ctx context.Context, op string, all []model.Evaluation) ([]model.RankingEntry, error) {
	ov, err := s.overviewOf(ctx, all)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	if !ov.Complete {
		if len(ov.Incomplete) == 0 {
			return nil, fault.New(op, fault.ErrState, "no team has assignments")
		}
		return nil, fault.New(op, fault.ErrState,
			fmt.Sprintf("%d team(s) incomplete", len(ov.Incomplete)), ov.Incomplete...)
	}
	candidates, err := s.candidates(ctx, ov, all)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return ranking.Build(candidates), nil
}

// candidates builds ranking input for every team that has assignments.
func (s *Service) candidates(ctx context.Context, ov Overview, all []model.Evaluation) ([]ranking.Candidate, error) {
	teams, err := s.directory.Teams(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}
	byTeam := groupByTeam(all)
	r := s.rubric.Load()

	out := make([]ranking.Candidate, 0, len(ov.Teams))
	for _, tc := range ov.Teams {
		if tc.Expected == 0 {
			continue
		}
		t := byID[tc.TeamID]
		kept, _, err := s.assignedOnly(ctx, t.ID, byTeam[t.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, ranking.Candidate{
			TeamID:       t.ID,
			TeamName:     t.Name,
			Score:        aggregate.TeamAverage(kept, r),
			RegisteredAt: t.RegisteredAt,
		})
	}
	return out, nil
}

// GetPublishedRanking returns the frozen ranking. Before release it fails
// with a state error.
func (s *Service) GetPublishedRanking(ctx context.Context) ([]model.RankingEntry, error) {
	const op = "service.published_ranking"
	if err := s.ready(op); err != nil {
		return nil, err
	}
	st, err := s.store.ReleaseState(ctx)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	if !st.IsReleased() {
		return nil, fault.New(op, fault.ErrState, "results not released")
	}
	if st.Ranking == nil {
		return []model.RankingEntry{}, nil
	}
	return st.Ranking, nil
}

// ReleaseState returns the raw release state.
func (s *Service) ReleaseState(ctx context.Context) (model.ReleaseState, error) {
	const op = "service.release_state"
	if err := s.ready(op); err != nil {
		return model.ReleaseState{}, err
	}
	st, err := s.store.ReleaseState(ctx)
	if err != nil {
		return model.ReleaseState{}, fault.Wrap(op, err)
	}
	return st, nil
}

// ChangeScale switches the composite reporting scale. It is refused once any
// evaluation exists, since stored composites would no longer be comparable.
func (s *Service) ChangeScale(ctx context.Context, caller model.Caller, scale float64) (float64, error) {
	const op = "service.change_scale"
	if err := s.ready(op); err != nil {
		return 0, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return 0, err
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	current := s.rubric.Load()
	next, err := current.Rescaled(scale)
	if err != nil {
		return 0, fault.Wrap(op, err)
	}
	if err := s.store.SetScale(ctx, scale); err != nil {
		if errors.Is(err, fault.ErrState) {
			s.logger.Info(ctx, "scale change refused", logger.Float64("scale", scale), logger.Error(err))
		}
		return 0, fault.Wrap(op, err)
	}
	s.rubric.Store(next)
	s.logger.Info(ctx, "rubric scale changed",
		logger.Float64("from", current.Scale()),
		logger.Float64("to", scale),
	)
	return scale, nil
}
