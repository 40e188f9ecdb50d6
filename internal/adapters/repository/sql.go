package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/okian/verdict/internal/adapters/sqldb"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/pkg/metrics"
)

const backendSQL = "sql"

const evaluationColumns = `id, evaluator_id, team_id, scores_json, comments, composite_score, submitted_at, created_at, revision`

const selectAll = `SELECT ` + evaluationColumns + ` FROM evaluations ORDER BY team_id, evaluator_id`

// SQLStore is a Store backed by database/sql. The schema comes from the
// sqldb migrations.
type SQLStore struct {
	db     *sql.DB
	driver sqldb.Driver
	owned  bool
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithOwnedDB makes Close also close the underlying *sql.DB.
func WithOwnedDB() SQLOption {
	return func(s *SQLStore) { s.owned = true }
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, driver sqldb.Driver, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, driver: driver}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockClause returns a row lock suffix where the dialect supports one. SQLite
// transactions already hold the database write lock.
func (s *SQLStore) lockClause(exclusive bool) string {
	if s.driver != sqldb.DriverPostgres {
		return ""
	}
	if exclusive {
		return " FOR UPDATE"
	}
	return " FOR SHARE"
}

func observeUpdate(op string, start time.Time) {
	metrics.RecordRepositoryUpdateLatency(backendSQL, op, float64(time.Since(start).Microseconds())/1000)
}

func observeQuery(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(backendSQL, op, float64(time.Since(start).Microseconds())/1000)
}

func storageErr(op string, err error) error {
	metrics.RecordErrorByComponent("repository", "storage")
	return fault.WrapKind(op, fault.ErrStorage, err)
}

// Upsert implements Store.Upsert.
func (s *SQLStore) Upsert(ctx context.Context, e model.Evaluation) (model.Evaluation, bool, error) {
	const op = "repository.sql.upsert"
	defer observeUpdate("upsert", time.Now())

	scores, err := json.Marshal(e.Scores)
	if err != nil {
		return model.Evaluation{}, false, fault.WrapKind(op, fault.ErrValidation, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Evaluation{}, false, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM release_state WHERE id = 1`+s.lockClause(false)).Scan(&status); err != nil {
		return model.Evaluation{}, false, storageErr(op, err)
	}
	if model.ReleaseStatus(status) == model.Released {
		return model.Evaluation{}, false, errReleased(op)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO evaluations (`+evaluationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (evaluator_id, team_id) DO UPDATE SET
			scores_json = EXCLUDED.scores_json,
			comments = EXCLUDED.comments,
			composite_score = EXCLUDED.composite_score,
			submitted_at = EXCLUDED.submitted_at,
			revision = evaluations.revision + 1`,
		e.ID, e.EvaluatorID, e.TeamID, string(scores), e.Comments, e.CompositeScore,
		e.SubmittedAt.UnixNano(), e.CreatedAt.UnixNano())
	if err != nil {
		return model.Evaluation{}, false, storageErr(op, err)
	}

	stored, err := scanEvaluation(tx.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE evaluator_id = $1 AND team_id = $2`,
		e.EvaluatorID, e.TeamID))
	if err != nil {
		return model.Evaluation{}, false, storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Evaluation{}, false, storageErr(op, err)
	}
	return stored, stored.Revision == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (model.Evaluation, error) {
	var (
		e           model.Evaluation
		scoresJSON  string
		submittedNs int64
		createdNs   int64
	)
	if err := row.Scan(&e.ID, &e.EvaluatorID, &e.TeamID, &scoresJSON, &e.Comments,
		&e.CompositeScore, &submittedNs, &createdNs, &e.Revision); err != nil {
		return model.Evaluation{}, err
	}
	if err := json.Unmarshal([]byte(scoresJSON), &e.Scores); err != nil {
		return model.Evaluation{}, err
	}
	e.SubmittedAt = time.Unix(0, submittedNs).UTC()
	e.CreatedAt = time.Unix(0, createdNs).UTC()
	return e, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLStore) queryEvaluations(ctx context.Context, op, query string, args ...any) ([]model.Evaluation, error) {
	return queryEvaluations(ctx, s.db, op, query, args...)
}

func queryEvaluations(ctx context.Context, q querier, op, query string, args ...any) ([]model.Evaluation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// Get implements Store.Get.
func (s *SQLStore) Get(ctx context.Context, key model.PairKey) (model.Evaluation, error) {
	const op = "repository.sql.get"
	defer observeQuery("get", time.Now())

	e, err := scanEvaluation(s.db.QueryRowContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations WHERE evaluator_id = $1 AND team_id = $2`,
		key.EvaluatorID, key.TeamID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Evaluation{}, errNoEvaluation(op, key)
	}
	if err != nil {
		return model.Evaluation{}, storageErr(op, err)
	}
	return e, nil
}

// ListByTeam implements Store.ListByTeam.
func (s *SQLStore) ListByTeam(ctx context.Context, teamID string) ([]model.Evaluation, error) {
	defer observeQuery("list_by_team", time.Now())
	return s.queryEvaluations(ctx, "repository.sql.list_by_team",
		`SELECT `+evaluationColumns+` FROM evaluations WHERE team_id = $1 ORDER BY evaluator_id`, teamID)
}

// ListByEvaluator implements Store.ListByEvaluator.
func (s *SQLStore) ListByEvaluator(ctx context.Context, evaluatorID string) ([]model.Evaluation, error) {
	defer observeQuery("list_by_evaluator", time.Now())
	return s.queryEvaluations(ctx, "repository.sql.list_by_evaluator",
		`SELECT `+evaluationColumns+` FROM evaluations WHERE evaluator_id = $1 ORDER BY team_id`, evaluatorID)
}

// All implements Store.All.
func (s *SQLStore) All(ctx context.Context) ([]model.Evaluation, error) {
	defer observeQuery("all", time.Now())
	return s.queryEvaluations(ctx, "repository.sql.all", selectAll)
}

// Count implements Store.Count.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&n); err != nil {
		return 0, storageErr("repository.sql.count", err)
	}
	return n, nil
}

// ReleaseState implements Store.ReleaseState.
func (s *SQLStore) ReleaseState(ctx context.Context) (model.ReleaseState, error) {
	const op = "repository.sql.release_state"
	defer observeQuery("release_state", time.Now())

	var (
		st          model.ReleaseState
		status      string
		releasedAt  sql.NullInt64
		rankingJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, released_at, released_by, ranking_json FROM release_state WHERE id = 1`).
		Scan(&status, &releasedAt, &st.ReleasedBy, &rankingJSON)
	if err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}
	st.Status = model.ReleaseStatus(status)
	if releasedAt.Valid {
		st.ReleasedAt = time.Unix(0, releasedAt.Int64).UTC()
	}
	if st.IsReleased() {
		if err := json.Unmarshal([]byte(rankingJSON), &st.Ranking); err != nil {
			return model.ReleaseState{}, storageErr(op, err)
		}
	}
	return st, nil
}

// Release implements Store.Release. The exclusive lock on the release row
// blocks upserts, which take it shared, so build sees the evaluations that
// are final at the moment of the flip, across every process sharing the
// database.
func (s *SQLStore) Release(ctx context.Context, build ReleaseBuilder) (model.ReleaseState, error) {
	const op = "repository.sql.release"
	defer observeUpdate("release", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx,
		`SELECT status FROM release_state WHERE id = 1`+s.lockClause(true)).Scan(&status); err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}
	if model.ReleaseStatus(status) == model.Released {
		return model.ReleaseState{}, errReleased(op)
	}

	evals, err := queryEvaluations(ctx, tx, op, selectAll)
	if err != nil {
		return model.ReleaseState{}, err
	}
	state, err := build(evals)
	if err != nil {
		return model.ReleaseState{}, err
	}
	ranking := state.Ranking
	if ranking == nil {
		ranking = []model.RankingEntry{}
	}
	rankingJSON, err := json.Marshal(ranking)
	if err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE release_state SET status = $1, released_at = $2, released_by = $3, ranking_json = $4
		 WHERE id = 1 AND status = $5`,
		string(model.Released), state.ReleasedAt.UnixNano(), state.ReleasedBy, string(rankingJSON), string(model.NotReleased))
	if err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return model.ReleaseState{}, errReleased(op)
	}
	if err := tx.Commit(); err != nil {
		return model.ReleaseState{}, storageErr(op, err)
	}

	out := cloneRelease(state)
	out.Status = model.Released
	out.Ranking = append([]model.RankingEntry(nil), ranking...)
	return out, nil
}

// Scale implements Store.Scale.
func (s *SQLStore) Scale(ctx context.Context) (float64, bool, error) {
	var scale float64
	err := s.db.QueryRowContext(ctx, `SELECT scale FROM rubric_setting WHERE id = 1`).Scan(&scale)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storageErr("repository.sql.scale", err)
	}
	return scale, true, nil
}

// SetScale implements Store.SetScale.
func (s *SQLStore) SetScale(ctx context.Context, scale float64) error {
	const op = "repository.sql.set_scale"
	defer observeUpdate("set_scale", time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&n); err != nil {
		return storageErr(op, err)
	}
	if n > 0 {
		return errScaleLocked(op, n)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rubric_setting (id, scale) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET scale = EXCLUDED.scale`, scale); err != nil {
		return storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// Close implements Store.Close.
func (s *SQLStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
