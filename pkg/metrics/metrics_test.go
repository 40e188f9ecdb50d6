package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a custom registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered on that registry", func() {
				So(manager, ShouldNotBeNil)
				manager.storedEvaluations.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(families, ShouldNotBeEmpty)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metric names carry the namespace and subsystem", func() {
				manager.teamsTotal.Set(7)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_teams_total")
				So(testutil.ToFloat64(manager.teamsTotal), ShouldEqual, 7)
			})
		})

		Convey("When registering the same names twice on one registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording submissions", func() {
			before := testutil.ToFloat64(globalManager.evaluationsSubmitted.WithLabelValues("created"))
			RecordEvaluationSubmitted("created")
			RecordEvaluationSubmitted("created")

			Convey("Then the outcome counter advances", func() {
				after := testutil.ToFloat64(globalManager.evaluationsSubmitted.WithLabelValues("created"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording rejections and errors", func() {
			So(func() {
				RecordEvaluationRejected("validation error")
				RecordErrorByComponent("service", "conflict")
				RecordErrorByEndpoint("/v1/release", "POST", "state error")
			}, ShouldNotPanic)
		})

		Convey("When updating completion", func() {
			UpdateCompletion(4, 1, 9, 6)

			Convey("Then every completion gauge is set", func() {
				So(testutil.ToFloat64(globalManager.teamsTotal), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.teamsComplete), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.pairsExpected), ShouldEqual, 9)
				So(testutil.ToFloat64(globalManager.pairsSubmitted), ShouldEqual, 6)
			})
		})

		Convey("When marking results released", func() {
			MarkReleased(5)

			Convey("Then the release gauges reflect it", func() {
				So(testutil.ToFloat64(globalManager.resultsReleased), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.rankingSize), ShouldEqual, 5)
			})
		})

		Convey("When recording latencies and gauges with edge values", func() {
			So(func() {
				RecordSubmitLatency(0)
				RecordReleaseLatency(0)
				RecordCompositeScore(0)
				RecordCompositeScore(100)
				RecordHTTPRequest("/v1/ranking", "GET", "200")
				RecordHTTPRequestDuration("/v1/ranking", "GET", "200", 0)
				RecordRepositoryUpdateLatency("memory", "upsert", 0.01)
				RecordRepositoryQueryLatency("sql", "list_by_team", 1.5)
				RecordRateLimited("redis")
				RecordReleaseAttempt("released")
				UpdateStoredEvaluations(0)
				UpdateFeedSubscribers(0)
				RecordFeedMessage("evaluation_submitted")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
			}, ShouldNotPanic)
		})

		Convey("When tracking the announcement queue", func() {
			UpdateQueueCapacity(64)
			UpdateQueueSize(3)
			UpdateWorkerCount(2)
			before := testutil.ToFloat64(globalManager.queueDropped.WithLabelValues("queue_full"))
			RecordQueueDrop("queue_full")
			RecordQueueEnqueue()
			RecordQueueDeliveryLatency(0.5)

			Convey("Then the queue gauges and counters follow", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workersActive), ShouldEqual, 2)
				So(testutil.ToFloat64(globalManager.queueDropped.WithLabelValues("queue_full"))-before, ShouldEqual, 1)
			})
		})

		Convey("When fetching the registry", func() {
			Convey("Then it is the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
			})
		})
	})
}
