package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/pkg/metrics"
)

const backendMemory = "memory"

// Snapshot is an immutable view of the memory store. Writers build a new
// snapshot and publish it atomically; readers never take a lock.
type Snapshot struct {
	byTeam      map[string]map[string]model.Evaluation // team -> evaluator -> evaluation
	byEvaluator map[string]map[string]model.Evaluation // evaluator -> team -> evaluation
	count       int
	release     model.ReleaseState
	scale       float64
	scaleSet    bool
}

// MemoryStore is an in-process Store. Writes are serialised by a mutex and
// copy only the inner maps they touch.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[Snapshot]
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.snapshot.Store(&Snapshot{
		byTeam:      map[string]map[string]model.Evaluation{},
		byEvaluator: map[string]map[string]model.Evaluation{},
		release:     model.ReleaseState{Status: model.NotReleased},
	})
	return s
}

func (s *MemoryStore) load() *Snapshot { return s.snapshot.Load() }

// Upsert implements Store.Upsert.
func (s *MemoryStore) Upsert(ctx context.Context, e model.Evaluation) (model.Evaluation, bool, error) {
	const op = "repository.memory.upsert"
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(backendMemory, "upsert", float64(time.Since(start).Microseconds())/1000)
	}()
	if err := ctx.Err(); err != nil {
		return model.Evaluation{}, false, wrapCtx(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	if cur.release.IsReleased() {
		return model.Evaluation{}, false, errReleased(op)
	}

	stored := e.Clone()
	created := true
	if prev, ok := cur.byTeam[e.TeamID][e.EvaluatorID]; ok {
		created = false
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		stored.Revision = prev.Revision + 1
	} else {
		stored.Revision = 1
	}

	next := *cur
	next.byTeam = withInner(cur.byTeam, e.TeamID, e.EvaluatorID, stored)
	next.byEvaluator = withInner(cur.byEvaluator, e.EvaluatorID, e.TeamID, stored)
	if created {
		next.count++
	}
	s.snapshot.Store(&next)

	metrics.UpdateStoredEvaluations(next.count)
	return stored.Clone(), created, nil
}

// withInner returns a copy of outer where outer[k1][k2] = v. Only the touched
// inner map is copied.
func withInner(outer map[string]map[string]model.Evaluation, k1, k2 string, v model.Evaluation) map[string]map[string]model.Evaluation {
	out := make(map[string]map[string]model.Evaluation, len(outer)+1)
	for k, m := range outer {
		out[k] = m
	}
	inner := make(map[string]model.Evaluation, len(outer[k1])+1)
	for k, m := range outer[k1] {
		inner[k] = m
	}
	inner[k2] = v
	out[k1] = inner
	return out
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, key model.PairKey) (model.Evaluation, error) {
	const op = "repository.memory.get"
	if err := ctx.Err(); err != nil {
		return model.Evaluation{}, wrapCtx(op, err)
	}
	e, ok := s.load().byTeam[key.TeamID][key.EvaluatorID]
	if !ok {
		return model.Evaluation{}, errNoEvaluation(op, key)
	}
	return e.Clone(), nil
}

// ListByTeam implements Store.ListByTeam.
func (s *MemoryStore) ListByTeam(ctx context.Context, teamID string) ([]model.Evaluation, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(backendMemory, "list_by_team", float64(time.Since(start).Microseconds())/1000)
	}()
	if err := ctx.Err(); err != nil {
		return nil, wrapCtx("repository.memory.list_by_team", err)
	}
	out := cloneValues(s.load().byTeam[teamID])
	sort.Slice(out, func(i, j int) bool { return out[i].EvaluatorID < out[j].EvaluatorID })
	return out, nil
}

// ListByEvaluator implements Store.ListByEvaluator.
func (s *MemoryStore) ListByEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapCtx("repository.memory.list_by_evaluator", err)
	}
	out := cloneValues(s.load().byEvaluator[evaluatorID])
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out, nil
}

// All implements Store.All.
func (s *MemoryStore) All(ctx context.Context) ([]model.Evaluation, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(backendMemory, "all", float64(time.Since(start).Microseconds())/1000)
	}()
	if err := ctx.Err(); err != nil {
		return nil, wrapCtx("repository.memory.all", err)
	}
	return allOf(s.load()), nil
}

func allOf(snap *Snapshot) []model.Evaluation {
	out := make([]model.Evaluation, 0, snap.count)
	for _, inner := range snap.byTeam {
		out = append(out, cloneValues(inner)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].EvaluatorID < out[j].EvaluatorID
	})
	return out
}

func cloneValues(m map[string]model.Evaluation) []model.Evaluation {
	out := make([]model.Evaluation, 0, len(m))
	for _, e := range m {
		out = append(out, e.Clone())
	}
	return out
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, wrapCtx("repository.memory.count", err)
	}
	return s.load().count, nil
}

// ReleaseState implements Store.ReleaseState.
func (s *MemoryStore) ReleaseState(ctx context.Context) (model.ReleaseState, error) {
	if err := ctx.Err(); err != nil {
		return model.ReleaseState{}, wrapCtx("repository.memory.release_state", err)
	}
	return cloneRelease(s.load().release), nil
}

// Release implements Store.Release.
func (s *MemoryStore) Release(ctx context.Context, build ReleaseBuilder) (model.ReleaseState, error) {
	const op = "repository.memory.release"
	if err := ctx.Err(); err != nil {
		return model.ReleaseState{}, wrapCtx(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	if cur.release.IsReleased() {
		return model.ReleaseState{}, errReleased(op)
	}
	state, err := build(allOf(cur))
	if err != nil {
		return model.ReleaseState{}, err
	}
	next := *cur
	next.release = cloneRelease(state)
	next.release.Status = model.Released
	s.snapshot.Store(&next)
	return cloneRelease(next.release), nil
}

func cloneRelease(s model.ReleaseState) model.ReleaseState {
	if s.Ranking != nil {
		s.Ranking = append([]model.RankingEntry(nil), s.Ranking...)
	}
	return s
}

// Scale implements Store.Scale.
func (s *MemoryStore) Scale(ctx context.Context) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, wrapCtx("repository.memory.scale", err)
	}
	snap := s.load()
	return snap.scale, snap.scaleSet, nil
}

// SetScale implements Store.SetScale.
func (s *MemoryStore) SetScale(ctx context.Context, scale float64) error {
	const op = "repository.memory.set_scale"
	if err := ctx.Err(); err != nil {
		return wrapCtx(op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	if cur.count > 0 {
		return errScaleLocked(op, cur.count)
	}
	next := *cur
	next.scale = scale
	next.scaleSet = true
	s.snapshot.Store(&next)
	return nil
}

// Close implements Store.Close.
func (s *MemoryStore) Close() error { return nil }
