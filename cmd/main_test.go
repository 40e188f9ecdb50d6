package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/verdict/internal/adapters/directory"
	"github.com/okian/verdict/internal/adapters/http/api"
	"github.com/okian/verdict/internal/adapters/http/feed"
	"github.com/okian/verdict/internal/adapters/repository"
	service "github.com/okian/verdict/internal/app"
	"github.com/okian/verdict/internal/config"
	"github.com/okian/verdict/internal/domain/fault"
	"github.com/okian/verdict/internal/domain/model"
	"github.com/okian/verdict/pkg/logger"
)

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.JWTSecret = "main-test"
	return cfg
}

func TestOpenStore(t *testing.T) {
	convey.Convey("Given a config", t, func() {
		ctx := context.Background()
		cfg := testConfig()

		convey.Convey("When the driver is memory", func() {
			store, err := openStore(ctx, cfg)

			convey.Convey("Then a memory store is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				_, ok := store.(*repository.MemoryStore)
				convey.So(ok, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the driver is sqlite", func() {
			cfg.StorageDriver = "sqlite"
			cfg.StorageDSN = "file:" + filepath.Join(t.TempDir(), "verdict.db") + "?_pragma=busy_timeout(5000)"
			store, err := openStore(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			convey.Convey("Then the store is migrated and usable", func() {
				st, err := store.ReleaseState(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(st.Status, convey.ShouldEqual, model.NotReleased)
			})
		})

		convey.Convey("When the driver is unknown", func() {
			cfg.StorageDriver = "mongo"
			_, err := openStore(ctx, cfg)

			convey.Convey("Then opening fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestBuildRubric(t *testing.T) {
	convey.Convey("Given the default rubric config", t, func() {
		cfg := testConfig()
		cfg.RubricScale = 100

		convey.Convey("Then the rubric is built with the configured scale", func() {
			rb, err := buildRubric(cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rb.Criteria(), convey.ShouldHaveLength, 4)
			convey.So(rb.Scale(), convey.ShouldEqual, 100)
		})

		convey.Convey("Then a criterion without weight is rejected", func() {
			cfg.Rubric = []config.Criterion{{Name: "x", Weight: 0, MaxScore: 10}}
			_, err := buildRubric(cfg)
			convey.So(errors.Is(err, fault.ErrValidation), convey.ShouldBeTrue)
		})
	})
}

func TestBuildHandler(t *testing.T) {
	convey.Convey("Given a started service", t, func() {
		ctx := context.Background()
		cfg := testConfig()
		dir, err := directory.NewStatic(
			[]model.Team{{ID: "A", Name: "Alpha", RegisteredAt: time.Now()}},
			[]model.Evaluator{{ID: "e1"}},
			[]model.Assignment{{EvaluatorID: "e1", TeamID: "A"}},
		)
		convey.So(err, convey.ShouldBeNil)
		rb, err := buildRubric(cfg)
		convey.So(err, convey.ShouldBeNil)
		svc := service.New(service.WithDirectory(dir), service.WithRubric(rb))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		handler, cleanup, err := buildHandler(ctx, cfg, svc, logger.Nop())
		convey.So(err, convey.ShouldBeNil)
		defer cleanup()

		for _, path := range []string{"/v1/status", "/v1/rubric", "/openapi.yaml", "/api-docs", "/healthz", "/stats"} {
			convey.Convey("Then "+path+" is served", func() {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		}

		convey.Convey("Then the ranking is not yet published", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ranking", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusPreconditionFailed)
		})
	})

	convey.Convey("Given an unreachable redis", t, func() {
		cfg := testConfig()
		cfg.RedisAddr = "127.0.0.1:1"

		convey.Convey("Then building the handler fails", func() {
			_, _, err := buildHandler(context.Background(), cfg, service.New(), logger.Nop())
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

type countingSubscriber struct {
	mu   sync.Mutex
	sent int
}

func (c *countingSubscriber) Send([]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *countingSubscriber) Close() {}

func (c *countingSubscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func TestStartAnnouncements(t *testing.T) {
	convey.Convey("Given announcement workers started on a context that is then cancelled", t, func() {
		cfg := testConfig()
		hub := feed.NewHub()
		sub := &countingSubscriber{}
		hub.Register(sub)
		defer hub.Close()

		ctx, cancel := context.WithCancel(context.Background())
		q, pool := startAnnouncements(ctx, cfg, hub, logger.Nop())
		cancel()

		convey.Convey("When announcements are queued and the pool shuts down", func() {
			for i := 0; i < 20; i++ {
				convey.So(q.Publish(api.AnnounceEvaluationSubmitted, i), convey.ShouldBeNil)
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued announcement reached the subscriber", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(sub.count(), convey.ShouldEqual, 20)
			})
		})
	})
}
