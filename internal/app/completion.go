package service

import (
	"context"
	"sort"
	"time"

	"github.com/okian/verdict/internal/domain/aggregate"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/pkg/metrics"
)

// Overview is the completion state of the whole assignment matrix.
type Overview struct {
	Teams         []model.TeamCompletion    `json:"teams"`
	Evaluators    []model.EvaluatorProgress `json:"evaluators,omitempty"`
	CompleteTeams int                       `json:"complete_teams"`
	Incomplete    []string                  `json:"incomplete"`
	// Complete is true iff at least one team has assignments and every team
	// with assignments has received all of them.
	Complete bool `json:"complete"`
}

// Status is the public view of the engine.
type Status struct {
	Released       bool   `json:"released"`
	ReleasedAt     string `json:"released_at,omitempty"`
	GlobalComplete bool   `json:"global_complete"`
	TeamsComplete  int    `json:"teams_complete"`
	TeamsAssigned  int    `json:"teams_assigned"`
}

// assignedOnly keeps the evaluations whose evaluator is currently assigned
// to teamID and reports the team's completion over them. Evaluations left
// behind by a withdrawn assignment count neither toward completion nor toward
// any score.
func (s *Service) assignedOnly(ctx context.Context, teamID string, evals []model.Evaluation) ([]model.Evaluation, model.TeamCompletion, error) {
	assignments, err := s.directory.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, model.TeamCompletion{}, err
	}
	assigned := make(map[string]struct{}, len(assignments))
	for _, a := range assignments {
		assigned[a.EvaluatorID] = struct{}{}
	}
	kept := make([]model.Evaluation, 0, len(evals))
	for _, e := range evals {
		if _, ok := assigned[e.EvaluatorID]; ok {
			kept = append(kept, e)
		}
	}
	return kept, model.NewTeamCompletion(teamID, len(kept), len(assigned)), nil
}

func (s *Service) teamCompletion(ctx context.Context, teamID string, evals []model.Evaluation) (model.TeamCompletion, error) {
	_, tc, err := s.assignedOnly(ctx, teamID, evals)
	return tc, err
}

// overview projects completion from the directory and one read of the store.
func (s *Service) overview(ctx context.Context) (Overview, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return Overview{}, err
	}
	return s.overviewOf(ctx, all)
}

func (s *Service) overviewOf(ctx context.Context, all []model.Evaluation) (Overview, error) {
	teams, err := s.directory.Teams(ctx)
	if err != nil {
		return Overview{}, err
	}
	byTeam := groupByTeam(all)

	ov := Overview{Teams: make([]model.TeamCompletion, 0, len(teams)), Incomplete: []string{}}
	assignedTeams, expected, submitted := 0, 0, 0
	for _, t := range teams {
		tc, err := s.teamCompletion(ctx, t.ID, byTeam[t.ID])
		if err != nil {
			return Overview{}, err
		}
		ov.Teams = append(ov.Teams, tc)
		if tc.Expected == 0 {
			continue
		}
		assignedTeams++
		expected += tc.Expected
		submitted += tc.Received
		if tc.IsComplete {
			ov.CompleteTeams++
		} else {
			ov.Incomplete = append(ov.Incomplete, t.ID)
		}
	}
	ov.Complete = assignedTeams > 0 && len(ov.Incomplete) == 0
	metrics.UpdateCompletion(len(teams), ov.CompleteTeams, expected, submitted)
	return ov, nil
}

func groupByTeam(evals []model.Evaluation) map[string][]model.Evaluation {
	out := make(map[string][]model.Evaluation)
	for _, e := range evals {
		out[e.TeamID] = append(out[e.TeamID], e)
	}
	return out
}

// TeamCompletion reports how many of a team's assigned evaluations arrived.
func (s *Service) TeamCompletion(ctx context.Context, caller model.Caller, teamID string) (model.TeamCompletion, error) {
	const op = "service.team_completion"
	if err := s.ready(op); err != nil {
		return model.TeamCompletion{}, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return model.TeamCompletion{}, err
	}
	if _, err := s.directory.Team(ctx, teamID); err != nil {
		return model.TeamCompletion{}, fault.Wrap(op, err)
	}
	evals, err := s.store.ListByTeam(ctx, teamID)
	if err != nil {
		return model.TeamCompletion{}, fault.Wrap(op, err)
	}
	tc, err := s.teamCompletion(ctx, teamID, evals)
	if err != nil {
		return model.TeamCompletion{}, fault.Wrap(op, err)
	}
	return tc, nil
}

// GlobalCompletion reports whether every assigned team is complete, together
// with the ids of the teams that are not.
func (s *Service) GlobalCompletion(ctx context.Context) (bool, []string, error) {
	const op = "service.global_completion"
	if err := s.ready(op); err != nil {
		return false, nil, err
	}
	ov, err := s.overview(ctx)
	if err != nil {
		return false, nil, fault.Wrap(op, err)
	}
	return ov.Complete, ov.Incomplete, nil
}

// CompletionOverview returns per-team completion and per-evaluator progress.
func (s *Service) CompletionOverview(ctx context.Context, caller model.Caller) (Overview, error) {
	const op = "service.completion_overview"
	if err := s.ready(op); err != nil {
		return Overview{}, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return Overview{}, err
	}
	ov, err := s.overview(ctx)
	if err != nil {
		return Overview{}, fault.Wrap(op, err)
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return Overview{}, fault.Wrap(op, err)
	}
	done := make(map[model.PairKey]struct{}, len(all))
	for _, e := range all {
		done[e.Key()] = struct{}{}
	}
	progress := map[string]*model.EvaluatorProgress{}
	order := []string{}
	for _, tc := range ov.Teams {
		assignments, err := s.directory.ListByTeam(ctx, tc.TeamID)
		if err != nil {
			return Overview{}, fault.Wrap(op, err)
		}
		for _, a := range assignments {
			p, ok := progress[a.EvaluatorID]
			if !ok {
				p = &model.EvaluatorProgress{EvaluatorID: a.EvaluatorID}
				progress[a.EvaluatorID] = p
				order = append(order, a.EvaluatorID)
			}
			p.Assigned++
			if _, ok := done[model.PairKey{EvaluatorID: a.EvaluatorID, TeamID: a.TeamID}]; ok {
				p.Completed++
			}
		}
	}
	sort.Strings(order)
	for _, id := range order {
		p := progress[id]
		p.Remaining = p.Assigned - p.Completed
		ov.Evaluators = append(ov.Evaluators, *p)
	}
	return ov, nil
}

// GetEvaluatorProgress reports an evaluator's assigned, completed and
// remaining counts.
func (s *Service) GetEvaluatorProgress(ctx context.Context, caller model.Caller, evaluatorID string) (model.EvaluatorProgress, error) {
	const op = "service.evaluator_progress"
	if err := s.ready(op); err != nil {
		return model.EvaluatorProgress{}, err
	}
	if err := requireSelfOrAdmin(op, caller, evaluatorID); err != nil {
		return model.EvaluatorProgress{}, err
	}
	if _, err := s.directory.Evaluator(ctx, evaluatorID); err != nil {
		return model.EvaluatorProgress{}, fault.Wrap(op, err)
	}
	assignments, err := s.directory.ListByEvaluator(ctx, evaluatorID)
	if err != nil {
		return model.EvaluatorProgress{}, fault.Wrap(op, err)
	}
	evals, err := s.store.ListByEvaluator(ctx, evaluatorID)
	if err != nil {
		return model.EvaluatorProgress{}, fault.Wrap(op, err)
	}
	stored := make(map[string]struct{}, len(evals))
	for _, e := range evals {
		stored[e.TeamID] = struct{}{}
	}
	p := model.EvaluatorProgress{EvaluatorID: evaluatorID, Assigned: len(assignments)}
	for _, a := range assignments {
		if _, ok := stored[a.TeamID]; ok {
			p.Completed++
		}
	}
	p.Remaining = p.Assigned - p.Completed
	return p, nil
}

// GetTeamResult aggregates a team's assigned evaluations on demand.
func (s *Service) GetTeamResult(ctx context.Context, caller model.Caller, teamID string) (model.TeamResult, error) {
	const op = "service.team_result"
	if err := s.ready(op); err != nil {
		return model.TeamResult{}, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return model.TeamResult{}, err
	}
	if _, err := s.directory.Team(ctx, teamID); err != nil {
		return model.TeamResult{}, fault.Wrap(op, err)
	}
	evals, err := s.store.ListByTeam(ctx, teamID)
	if err != nil {
		return model.TeamResult{}, fault.Wrap(op, err)
	}
	kept, tc, err := s.assignedOnly(ctx, teamID, evals)
	if err != nil {
		return model.TeamResult{}, fault.Wrap(op, err)
	}
	return aggregate.TeamResult(tc, kept, s.rubric.Load()), nil
}

// Status reports the release flag and global completion. It needs no role.
func (s *Service) Status(ctx context.Context) (Status, error) {
	const op = "service.status"
	if err := s.ready(op); err != nil {
		return Status{}, err
	}
	st, err := s.store.ReleaseState(ctx)
	if err != nil {
		return Status{}, fault.Wrap(op, err)
	}
	ov, err := s.overview(ctx)
	if err != nil {
		return Status{}, fault.Wrap(op, err)
	}
	out := Status{
		Released:       st.IsReleased(),
		GlobalComplete: ov.Complete,
		TeamsComplete:  ov.CompleteTeams,
		TeamsAssigned:  ov.CompleteTeams + len(ov.Incomplete),
	}
	if st.IsReleased() {
		out.ReleasedAt = st.ReleasedAt.Format(time.RFC3339Nano)
	}
	return out, nil
}
