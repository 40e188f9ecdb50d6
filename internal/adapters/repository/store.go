// Package repository persists evaluations, the release state and the rubric
// scale. Two backends share one contract: an in-memory store and a SQL store.
package repository

import (
	"context"

	"github.com/okian/verdict/internal/domain/model"
)

// ReleaseBuilder derives the release state from a consistent view of the
// stored evaluations.
type ReleaseBuilder func(evals []model.Evaluation) (model.ReleaseState, error)

// Store provides read/write access to evaluations and the release state.
//
// Writes are linearisable with respect to Release: once Release returns, every
// later Upsert fails with fault.ErrConflict, and no Upsert that succeeded is
// missing from a snapshot read after it returned.
type Store interface {
	// Upsert stores e for its (evaluator, team) pair. A first submission keeps
	// e.ID and e.CreatedAt and gets Revision 1. A resubmission keeps the stored
	// ID and CreatedAt and bumps Revision. Fails with fault.ErrConflict once
	// results are released. Returns the stored evaluation and whether the pair
	// was new.
	Upsert(ctx context.Context, e model.Evaluation) (model.Evaluation, bool, error)

	// Get returns the evaluation for a pair or fault.ErrNotFound.
	Get(ctx context.Context, key model.PairKey) (model.Evaluation, error)

	// ListByTeam returns the team's evaluations ordered by evaluator id.
	ListByTeam(ctx context.Context, teamID string) ([]model.Evaluation, error)

	// ListByEvaluator returns the evaluator's evaluations ordered by team id.
	ListByEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error)

	// All returns every evaluation ordered by team then evaluator id.
	All(ctx context.Context) ([]model.Evaluation, error)

	// Count returns the number of stored evaluations.
	Count(ctx context.Context) (int, error)

	// ReleaseState returns the current release state.
	ReleaseState(ctx context.Context) (model.ReleaseState, error)

	// Release moves the state to released. build runs while writes are
	// blocked and receives every stored evaluation ordered as by All; the
	// state it returns is persisted. An error from build aborts the release
	// unchanged and is returned as is. Release fails with fault.ErrConflict
	// when results were already released.
	Release(ctx context.Context, build ReleaseBuilder) (model.ReleaseState, error)

	// Scale returns the persisted rubric scale, if one was set.
	Scale(ctx context.Context) (float64, bool, error)

	// SetScale persists the rubric scale. It fails with fault.ErrState when
	// any evaluation is stored.
	SetScale(ctx context.Context, scale float64) error

	// Close releases backend resources.
	Close() error
}
