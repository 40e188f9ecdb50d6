package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/verdict/internal/adapters/repository"
	"github.com/okian/verdict/internal/adapters/sqldb"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type backend struct {
	name string
	open func(t *testing.T) repository.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(*testing.T) repository.Store { return repository.NewMemoryStore() }},
		{name: "sqlite", open: openSQLite},
	}
}

func openSQLite(t *testing.T) repository.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "verdict.db") + "?_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sqldb.OpenMigrated(context.Background(), sqldb.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := repository.NewSQLStore(db, sqldb.DriverSQLite, repository.WithOwnedDB())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func eval(evaluatorID, teamID string, score float64, at time.Time) model.Evaluation {
	return model.Evaluation{
		ID:             fmt.Sprintf("%s-%s-%d", evaluatorID, teamID, at.UnixNano()),
		EvaluatorID:    evaluatorID,
		TeamID:         teamID,
		Scores:         map[string]float64{"quality": score},
		CompositeScore: score,
		SubmittedAt:    at,
		CreatedAt:      at,
	}
}

func fixed(state model.ReleaseState) repository.ReleaseBuilder {
	return func([]model.Evaluation) (model.ReleaseState, error) { return state, nil }
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			Convey("Given an empty "+b.name+" store", t, func() {
				s := b.open(t)

				Convey("Then it holds nothing and is not released", func() {
					n, err := s.Count(ctx)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)
					st, err := s.ReleaseState(ctx)
					So(err, ShouldBeNil)
					So(st.Status, ShouldEqual, model.NotReleased)
					_, ok, err := s.Scale(ctx)
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
				})

				Convey("When an evaluation is inserted", func() {
					stored, created, err := s.Upsert(ctx, eval("e1", "A", 7, t0))
					So(err, ShouldBeNil)

					Convey("Then it is new at revision 1", func() {
						So(created, ShouldBeTrue)
						So(stored.Revision, ShouldEqual, 1)
						So(stored.SubmittedAt.Equal(t0), ShouldBeTrue)
					})

					Convey("And resubmitting the pair replaces it in place", func() {
						later := t0.Add(time.Minute)
						again, created, err := s.Upsert(ctx, eval("e1", "A", 9, later))
						So(err, ShouldBeNil)
						So(created, ShouldBeFalse)
						So(again.ID, ShouldEqual, stored.ID)
						So(again.CreatedAt.Equal(t0), ShouldBeTrue)
						So(again.SubmittedAt.Equal(later), ShouldBeTrue)
						So(again.Revision, ShouldEqual, 2)
						So(again.Scores["quality"], ShouldEqual, 9)

						n, _ := s.Count(ctx)
						So(n, ShouldEqual, 1)
					})

					Convey("And Get returns a copy", func() {
						got, err := s.Get(ctx, model.PairKey{EvaluatorID: "e1", TeamID: "A"})
						So(err, ShouldBeNil)
						got.Scores["quality"] = 0
						again, _ := s.Get(ctx, model.PairKey{EvaluatorID: "e1", TeamID: "A"})
						So(again.Scores["quality"], ShouldEqual, 7)
					})

					Convey("And the scale can no longer change", func() {
						err := s.SetScale(ctx, 10)
						So(errors.Is(err, fault.ErrState), ShouldBeTrue)
					})
				})

				Convey("When several pairs are stored", func() {
					for _, p := range [][2]string{{"e2", "A"}, {"e1", "A"}, {"e1", "B"}} {
						_, _, err := s.Upsert(ctx, eval(p[0], p[1], 5, t0))
						So(err, ShouldBeNil)
					}

					Convey("Then listings are filtered and ordered", func() {
						byTeam, err := s.ListByTeam(ctx, "A")
						So(err, ShouldBeNil)
						So(byTeam, ShouldHaveLength, 2)
						So(byTeam[0].EvaluatorID, ShouldEqual, "e1")

						byEval, err := s.ListByEvaluator(ctx, "e1")
						So(err, ShouldBeNil)
						So(byEval, ShouldHaveLength, 2)
						So(byEval[1].TeamID, ShouldEqual, "B")

						all, err := s.All(ctx)
						So(err, ShouldBeNil)
						So(all, ShouldHaveLength, 3)
						So(all[2].TeamID, ShouldEqual, "B")

						none, err := s.ListByTeam(ctx, "Z")
						So(err, ShouldBeNil)
						So(none, ShouldBeEmpty)
					})
				})

				Convey("When a missing pair is read", func() {
					_, err := s.Get(ctx, model.PairKey{EvaluatorID: "e9", TeamID: "A"})

					Convey("Then it is not found", func() {
						So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
					})
				})

				Convey("When the scale is set before any evaluation", func() {
					So(s.SetScale(ctx, 100), ShouldBeNil)

					Convey("Then it persists", func() {
						scale, ok, err := s.Scale(ctx)
						So(err, ShouldBeNil)
						So(ok, ShouldBeTrue)
						So(scale, ShouldEqual, 100)
					})
				})

				Convey("When results are released", func() {
					_, _, err := s.Upsert(ctx, eval("e1", "A", 8, t0))
					So(err, ShouldBeNil)
					ranking := []model.RankingEntry{{Rank: 1, TeamID: "A", CompositeScore: 8}}
					st, err := s.Release(ctx, fixed(model.ReleaseState{ReleasedAt: t0, ReleasedBy: "admin", Ranking: ranking}))
					So(err, ShouldBeNil)

					Convey("Then the state is released with the frozen ranking", func() {
						So(st.Status, ShouldEqual, model.Released)
						got, err := s.ReleaseState(ctx)
						So(err, ShouldBeNil)
						So(got.IsReleased(), ShouldBeTrue)
						So(got.ReleasedBy, ShouldEqual, "admin")
						So(got.ReleasedAt.Equal(t0), ShouldBeTrue)
						So(got.Ranking, ShouldResemble, ranking)
					})

					Convey("And a second release conflicts", func() {
						_, err := s.Release(ctx, fixed(model.ReleaseState{ReleasedAt: t0}))
						So(errors.Is(err, fault.ErrConflict), ShouldBeTrue)
					})

					Convey("And later writes conflict and change nothing", func() {
						_, _, err := s.Upsert(ctx, eval("e1", "A", 2, t0.Add(time.Hour)))
						So(errors.Is(err, fault.ErrConflict), ShouldBeTrue)
						_, _, err = s.Upsert(ctx, eval("e2", "A", 2, t0.Add(time.Hour)))
						So(errors.Is(err, fault.ErrConflict), ShouldBeTrue)
						n, _ := s.Count(ctx)
						So(n, ShouldEqual, 1)
						got, _ := s.Get(ctx, model.PairKey{EvaluatorID: "e1", TeamID: "A"})
						So(got.CompositeScore, ShouldEqual, 8)
					})
				})
			})
		})
	}
}

func TestStoreConcurrentRelease(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			Convey("Given concurrent release attempts on "+b.name, t, func() {
				s := b.open(t)
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					successes int
					conflicts int
				)
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := s.Release(ctx, fixed(model.ReleaseState{ReleasedAt: t0, ReleasedBy: fmt.Sprintf("admin-%d", i)}))
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							successes++
						case errors.Is(err, fault.ErrConflict):
							conflicts++
						}
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one succeeds and the rest conflict", func() {
					So(successes, ShouldEqual, 1)
					So(conflicts, ShouldEqual, 7)
				})
			})
		})
	}
}

func TestStoreReleaseBuilder(t *testing.T) {
	errIncomplete := errors.New("incomplete")
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			Convey("Given a store with evaluations on "+b.name, t, func() {
				s := b.open(t)
				for _, e := range []model.Evaluation{
					eval("e2", "B", 4, t0),
					eval("e1", "B", 6, t0),
					eval("e1", "A", 8, t0),
				} {
					_, _, err := s.Upsert(ctx, e)
					So(err, ShouldBeNil)
				}

				Convey("When the builder refuses", func() {
					_, err := s.Release(ctx, func([]model.Evaluation) (model.ReleaseState, error) {
						return model.ReleaseState{}, errIncomplete
					})

					Convey("Then its error is returned and nothing is released", func() {
						So(err, ShouldEqual, errIncomplete)
						st, err := s.ReleaseState(ctx)
						So(err, ShouldBeNil)
						So(st.IsReleased(), ShouldBeFalse)
						_, _, err = s.Upsert(ctx, eval("e2", "A", 5, t0))
						So(err, ShouldBeNil)
					})
				})

				Convey("When the builder ranks what it is given", func() {
					var seen []model.PairKey
					st, err := s.Release(ctx, func(evals []model.Evaluation) (model.ReleaseState, error) {
						for _, e := range evals {
							seen = append(seen, e.Key())
						}
						return model.ReleaseState{
							ReleasedAt: t0,
							Ranking:    []model.RankingEntry{{Rank: 1, TeamID: "A", CompositeScore: 8}},
						}, nil
					})

					Convey("Then it saw every evaluation in team then evaluator order", func() {
						So(err, ShouldBeNil)
						So(seen, ShouldResemble, []model.PairKey{
							{EvaluatorID: "e1", TeamID: "A"},
							{EvaluatorID: "e1", TeamID: "B"},
							{EvaluatorID: "e2", TeamID: "B"},
						})
						So(st.Status, ShouldEqual, model.Released)
						So(st.Ranking, ShouldHaveLength, 1)
					})
				})
			})
		})
	}
}

func TestMemoryStoreConcurrentUpsert(t *testing.T) {
	ctx := context.Background()

	Convey("Given many writers on distinct and shared pairs", t, func() {
		s := repository.NewMemoryStore()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, _ = s.Upsert(ctx, eval(fmt.Sprintf("e%d", i%10), "A", float64(i), t0))
			}(i)
		}
		wg.Wait()

		Convey("Then one record exists per pair with revisions summing to the writes", func() {
			n, _ := s.Count(ctx)
			So(n, ShouldEqual, 10)
			all, _ := s.All(ctx)
			total := 0
			for _, e := range all {
				total += e.Revision
			}
			So(total, ShouldEqual, 50)
		})
	})
}
