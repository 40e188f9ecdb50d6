// Package service provides the evaluation engine that implements the
// operations required by the HTTP API.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/internal/adapters/repository"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/internal/domain/rubric"
	"github.com/okian/verdict/pkg/logger"
	"github.com/okian/verdict/pkg/metrics"
)

// Service is the evaluation aggregation and results-release engine.
//
// gate serialises the release transition and scale changes against
// submissions: submissions hold the read side so distinct pairs proceed in
// parallel, while release and scale changes hold the write side for their
// whole check-then-act sequence. Reads never take it.
type Service struct {
	mu   sync.RWMutex
	gate sync.RWMutex

	store     repository.Store
	directory directory.Directory
	rubric    atomic.Pointer[rubric.Rubric]
	initial   *rubric.Rubric

	now   func() time.Time
	newID func() string

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the evaluation store. Defaults to an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDirectory sets the assignment directory. Required.
func WithDirectory(d directory.Directory) Option {
	return func(s *Service) {
		if d != nil {
			s.directory = d
		}
	}
}

// WithRubric sets the scoring rubric. Required.
func WithRubric(r *rubric.Rubric) Option {
	return func(s *Service) {
		if r != nil {
			s.initial = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides evaluation id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New constructs a Service. Start must be called before use.
func New(opts ...Option) *Service {
	s := &Service{
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start checks dependencies and reconciles the rubric scale with the one
// persisted by the store.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.directory == nil {
		return ErrMissingDirectory
	}
	if s.initial == nil {
		return ErrMissingRubric
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
		s.logger.Info(ctx, "using memory store")
	}

	r, err := s.reconcileScale(ctx, s.initial)
	if err != nil {
		return err
	}
	s.rubric.Store(r)

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.Int("criteria", len(r.Criteria())),
		logger.Float64("scale", r.Scale()),
	)
	return nil
}

// reconcileScale prefers a persisted scale; otherwise it persists the
// configured one when the store is still empty.
func (s *Service) reconcileScale(ctx context.Context, r *rubric.Rubric) (*rubric.Rubric, error) {
	persisted, ok, err := s.store.Scale(ctx)
	if err != nil {
		return nil, fault.Wrap("service.start", err)
	}
	if ok {
		if persisted != r.Scale() {
			s.logger.Warn(ctx, "configured rubric scale differs from persisted scale, keeping persisted",
				logger.Float64("configured", r.Scale()),
				logger.Float64("persisted", persisted),
			)
		}
		return r.Rescaled(persisted)
	}
	if err := s.store.SetScale(ctx, r.Scale()); err != nil && !errors.Is(err, fault.ErrState) {
		return nil, fault.Wrap("service.start", err)
	}
	return r, nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "evaluation service stopped")
}

func (s *Service) ready(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return fault.New(op, fault.ErrState, "service not started")
	}
	return nil
}

// Rubric returns the active rubric.
func (s *Service) Rubric() *rubric.Rubric {
	return s.rubric.Load()
}

// SubmitEvaluation records or replaces the caller's evaluation of a team.
func (s *Service) SubmitEvaluation(ctx context.Context, caller model.Caller, evaluatorID, teamID string, scores map[string]float64, comments string) (model.Evaluation, error) {
	const op = "service.submit_evaluation"
	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	e, created, err := s.submit(ctx, op, caller, evaluatorID, teamID, scores, comments)
	if err != nil {
		metrics.RecordEvaluationRejected(fault.Label(err))
		s.logger.Info(ctx, "evaluation rejected",
			logger.String("evaluator", evaluatorID),
			logger.String("team", teamID),
			logger.Error(err),
		)
		return model.Evaluation{}, err
	}

	outcome := "updated"
	if created {
		outcome = "created"
	}
	metrics.RecordEvaluationSubmitted(outcome)
	metrics.RecordCompositeScore(e.CompositeScore)
	s.logger.Debug(ctx, "evaluation stored",
		logger.String("evaluator", evaluatorID),
		logger.String("team", teamID),
		logger.String("outcome", outcome),
		logger.Int("revision", e.Revision),
		logger.Float64("composite", e.CompositeScore),
	)
	return e, nil
}

func (s *Service) submit(ctx context.Context, op string, caller model.Caller, evaluatorID, teamID string, scores map[string]float64, comments string) (model.Evaluation, bool, error) {
	if err := s.ready(op); err != nil {
		return model.Evaluation{}, false, err
	}
	if caller.Role != model.RoleEvaluator || caller.ID != evaluatorID {
		return model.Evaluation{}, false, fault.New(op, fault.ErrPermission, "only the assigned evaluator may submit", evaluatorID)
	}

	assigned, err := s.directory.Assigned(ctx, evaluatorID, teamID)
	if err != nil {
		return model.Evaluation{}, false, fault.Wrap(op, err)
	}
	if !assigned {
		return model.Evaluation{}, false, fault.New(op, fault.ErrNotFound, "evaluator is not assigned to team", evaluatorID, teamID)
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	st, err := s.store.ReleaseState(ctx)
	if err != nil {
		return model.Evaluation{}, false, fault.Wrap(op, err)
	}
	if st.IsReleased() {
		return model.Evaluation{}, false, fault.New(op, fault.ErrConflict, "results already released")
	}

	r := s.rubric.Load()
	if err := r.Validate(scores); err != nil {
		return model.Evaluation{}, false, fault.Wrap(op, err)
	}

	now := s.now()
	e := model.Evaluation{
		ID:             s.newID(),
		EvaluatorID:    evaluatorID,
		TeamID:         teamID,
		Scores:         copyScores(scores),
		Comments:       comments,
		CompositeScore: r.Composite(scores),
		SubmittedAt:    now,
		CreatedAt:      now,
	}
	stored, created, err := s.store.Upsert(ctx, e)
	if err != nil {
		return model.Evaluation{}, false, fault.Wrap(op, err)
	}
	return stored, created, nil
}

func copyScores(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetEvaluation returns one stored evaluation. Evaluators may read their own;
// admins may read any.
func (s *Service) GetEvaluation(ctx context.Context, caller model.Caller, evaluatorID, teamID string) (model.Evaluation, error) {
	const op = "service.get_evaluation"
	if err := s.ready(op); err != nil {
		return model.Evaluation{}, err
	}
	if err := requireSelfOrAdmin(op, caller, evaluatorID); err != nil {
		return model.Evaluation{}, err
	}
	e, err := s.store.Get(ctx, model.PairKey{EvaluatorID: evaluatorID, TeamID: teamID})
	if err != nil {
		return model.Evaluation{}, fault.Wrap(op, err)
	}
	return e, nil
}

// ListTeamEvaluations returns every stored evaluation of a team.
func (s *Service) ListTeamEvaluations(ctx context.Context, caller model.Caller, teamID string) ([]model.Evaluation, error) {
	const op = "service.list_team_evaluations"
	if err := s.ready(op); err != nil {
		return nil, err
	}
	if err := requireAdmin(op, caller); err != nil {
		return nil, err
	}
	if _, err := s.directory.Team(ctx, teamID); err != nil {
		return nil, fault.Wrap(op, err)
	}
	evals, err := s.store.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, fault.Wrap(op, err)
	}
	return evals, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()
	metrics.UpdateSystemMemoryUsage(mem.HeapInuse)
	metrics.UpdateSystemGoroutineCount(goroutines)

	stats := map[string]any{
		"started":    started,
		"goroutines": goroutines,
		"heapInUse":  mem.HeapInuse,
	}
	if !started {
		return stats
	}

	if n, err := s.store.Count(ctx); err == nil {
		stats["evaluations"] = n
		metrics.UpdateStoredEvaluations(n)
	}
	if st, err := s.store.ReleaseState(ctx); err == nil {
		stats["released"] = st.IsReleased()
	}
	if ov, err := s.overview(ctx); err == nil {
		stats["teams"] = len(ov.Teams)
		stats["completeTeams"] = ov.CompleteTeams
		stats["globalComplete"] = ov.Complete
	}
	stats["rubricScale"] = s.rubric.Load().Scale()
	return stats
}

func requireAdmin(op string, caller model.Caller) error {
	if caller.Role != model.RoleAdmin {
		return fault.New(op, fault.ErrPermission, "admin role required")
	}
	return nil
}

func requireSelfOrAdmin(op string, caller model.Caller, evaluatorID string) error {
	if caller.Role == model.RoleAdmin {
		return nil
	}
	if caller.Role == model.RoleEvaluator && caller.ID == evaluatorID {
		return nil
	}
	return fault.New(op, fault.ErrPermission, "caller may not read this evaluator", evaluatorID)
}
