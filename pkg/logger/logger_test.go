package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given Init with defaults", t, func() {
		err := Init()
		So(err, ShouldBeNil)

		Convey("Then Get returns a usable logger", func() {
			So(Get(), ShouldNotBeNil)
			So(Sync(), ShouldBeNil)
			So(func() { Named("test").Info(context.Background(), "named message") }, ShouldNotPanic)
		})
	})

	Convey("Given Init with an unknown format", t, func() {
		err := Init(WithFormat("xml"))

		Convey("Then it fails", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given Init with an unknown level", t, func() {
		err := Init(WithLevel("loud"))

		Convey("Then it fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestLoggerJSON(t *testing.T) {
	ctx := context.Background()

	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithWriter(&buf), WithFormat(FormatJSON), WithLevel("debug")), ShouldBeNil)

		Convey("When logging with fields", func() {
			Get().With(String("component", "service")).Warn(ctx, "release refused",
				Int("incomplete", 2), Bool("released", false), Error(errors.New("boom")))

			Convey("Then the record carries every field and a source", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "release refused")
				So(rec["level"], ShouldEqual, "WARN")
				So(rec["component"], ShouldEqual, "service")
				So(rec["incomplete"], ShouldEqual, 2.0)
				So(rec["released"], ShouldEqual, false)
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised", func() {
			SetLevel(slog.LevelError)
			Get().Info(ctx, "hidden")

			Convey("Then lower records are dropped", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestStandaloneLogger(t *testing.T) {
	Convey("Given a standalone text logger", t, func() {
		var buf bytes.Buffer
		l, err := New(&buf, FormatText, slog.LevelInfo)
		So(err, ShouldBeNil)

		Convey("When logging below and at the level", func() {
			l.Debug(context.Background(), "quiet")
			l.Info(context.Background(), "loud", String("k", "v"))

			Convey("Then only the info record appears", func() {
				out := buf.String()
				So(strings.Contains(out, "quiet"), ShouldBeFalse)
				So(out, ShouldContainSubstring, "k=v")
			})
		})
	})

	Convey("Given the no-op logger", t, func() {
		Convey("Then logging never panics", func() {
			So(func() { Nop().Error(context.Background(), "ignored") }, ShouldNotPanic)
		})
	})
}
