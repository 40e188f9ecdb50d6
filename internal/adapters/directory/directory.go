// Package directory exposes the evaluator×team assignment matrix owned by an
// external collaborator. The engine only reads it.
package directory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
)

// Directory answers who must evaluate whom.
type Directory interface {
	// Teams returns every registered team ordered by registration.
	Teams(ctx context.Context) ([]model.Team, error)
	// Team returns a team or a fault.ErrNotFound error.
	Team(ctx context.Context, teamID string) (model.Team, error)
	// Evaluator returns an evaluator or a fault.ErrNotFound error.
	Evaluator(ctx context.Context, evaluatorID string) (model.Evaluator, error)
	// ListByTeam returns assignments owed to teamID.
	ListByTeam(ctx context.Context, teamID string) ([]model.Assignment, error)
	// ListByEvaluator returns assignments owed by evaluatorID.
	ListByEvaluator(ctx context.Context, evaluatorID string) ([]model.Assignment, error)
	// Assigned reports whether the pair exists.
	Assigned(ctx context.Context, evaluatorID, teamID string) (bool, error)
}

// Static is an immutable in-memory Directory.
type Static struct {
	teams       []model.Team
	teamByID    map[string]model.Team
	evaluators  map[string]model.Evaluator
	byTeam      map[string][]model.Assignment
	byEvaluator map[string][]model.Assignment
	pairs       map[model.PairKey]struct{}
}

var _ Directory = (*Static)(nil)

// NewStatic validates referential integrity and builds a Static directory.
// Duplicate assignments collapse into one.
func NewStatic(teams []model.Team, evaluators []model.Evaluator, assignments []model.Assignment) (*Static, error) {
	const op = "directory.new"
	d := &Static{
		teamByID:    make(map[string]model.Team, len(teams)),
		evaluators:  make(map[string]model.Evaluator, len(evaluators)),
		byTeam:      make(map[string][]model.Assignment),
		byEvaluator: make(map[string][]model.Assignment),
		pairs:       make(map[model.PairKey]struct{}, len(assignments)),
	}
	for _, t := range teams {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fault.New(op, fault.ErrValidation, "team id must not be empty")
		}
		if _, dup := d.teamByID[t.ID]; dup {
			return nil, fault.New(op, fault.ErrValidation, "duplicate team", t.ID)
		}
		d.teamByID[t.ID] = t
		d.teams = append(d.teams, t)
	}
	sort.SliceStable(d.teams, func(i, j int) bool {
		if !d.teams[i].RegisteredAt.Equal(d.teams[j].RegisteredAt) {
			return d.teams[i].RegisteredAt.Before(d.teams[j].RegisteredAt)
		}
		return d.teams[i].ID < d.teams[j].ID
	})
	for _, e := range evaluators {
		if strings.TrimSpace(e.ID) == "" {
			return nil, fault.New(op, fault.ErrValidation, "evaluator id must not be empty")
		}
		if _, dup := d.evaluators[e.ID]; dup {
			return nil, fault.New(op, fault.ErrValidation, "duplicate evaluator", e.ID)
		}
		if e.Kind == "" {
			e.Kind = model.EvaluatorInternal
		}
		if !e.Kind.Valid() {
			return nil, fault.New(op, fault.ErrValidation, fmt.Sprintf("unknown evaluator kind %q", e.Kind), e.ID)
		}
		d.evaluators[e.ID] = e
	}
	for _, a := range assignments {
		if _, ok := d.teamByID[a.TeamID]; !ok {
			return nil, fault.New(op, fault.ErrValidation, "assignment references unknown team", a.TeamID)
		}
		if _, ok := d.evaluators[a.EvaluatorID]; !ok {
			return nil, fault.New(op, fault.ErrValidation, "assignment references unknown evaluator", a.EvaluatorID)
		}
		key := model.PairKey{EvaluatorID: a.EvaluatorID, TeamID: a.TeamID}
		if _, dup := d.pairs[key]; dup {
			continue
		}
		a.Status = model.AssignmentAssigned
		d.pairs[key] = struct{}{}
		d.byTeam[a.TeamID] = append(d.byTeam[a.TeamID], a)
		d.byEvaluator[a.EvaluatorID] = append(d.byEvaluator[a.EvaluatorID], a)
	}
	return d, nil
}

// Teams implements Directory.
func (d *Static) Teams(_ context.Context) ([]model.Team, error) {
	out := make([]model.Team, len(d.teams))
	copy(out, d.teams)
	return out, nil
}

// Team implements Directory.
func (d *Static) Team(_ context.Context, teamID string) (model.Team, error) {
	t, ok := d.teamByID[teamID]
	if !ok {
		return model.Team{}, fault.New("directory.team", fault.ErrNotFound, "unknown team", teamID)
	}
	return t, nil
}

// Evaluator implements Directory.
func (d *Static) Evaluator(_ context.Context, evaluatorID string) (model.Evaluator, error) {
	e, ok := d.evaluators[evaluatorID]
	if !ok {
		return model.Evaluator{}, fault.New("directory.evaluator", fault.ErrNotFound, "unknown evaluator", evaluatorID)
	}
	return e, nil
}

// ListByTeam implements Directory.
func (d *Static) ListByTeam(_ context.Context, teamID string) ([]model.Assignment, error) {
	return append([]model.Assignment(nil), d.byTeam[teamID]...), nil
}

// ListByEvaluator implements Directory.
func (d *Static) ListByEvaluator(_ context.Context, evaluatorID string) ([]model.Assignment, error) {
	return append([]model.Assignment(nil), d.byEvaluator[evaluatorID]...), nil
}

// Assigned implements Directory.
func (d *Static) Assigned(_ context.Context, evaluatorID, teamID string) (bool, error) {
	_, ok := d.pairs[model.PairKey{EvaluatorID: evaluatorID, TeamID: teamID}]
	return ok, nil
}
