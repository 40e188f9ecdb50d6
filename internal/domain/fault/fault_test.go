package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/verdict/internal/domain/fault"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFaultKinds(t *testing.T) {
	Convey("Given a fault error", t, func() {
		err := fault.New("release", fault.ErrState, "teams incomplete", "A", "B")

		Convey("Then errors.Is matches its kind only", func() {
			So(errors.Is(err, fault.ErrState), ShouldBeTrue)
			So(errors.Is(err, fault.ErrConflict), ShouldBeFalse)
			So(fault.KindOf(err), ShouldEqual, fault.ErrState)
		})

		Convey("Then the message carries op, kind and subjects", func() {
			So(err.Error(), ShouldEqual, "release: state error: teams incomplete [A, B]")
		})

		Convey("When wrapped with another op", func() {
			wrapped := fault.Wrap("api.release", err)

			Convey("Then kind and subjects survive", func() {
				So(errors.Is(wrapped, fault.ErrState), ShouldBeTrue)
				So(fault.SubjectsOf(wrapped), ShouldResemble, []string{"A", "B"})
				So(wrapped.Error(), ShouldStartWith, "api.release: release: state error")
			})
		})

		Convey("When wrapped through fmt.Errorf", func() {
			wrapped := fmt.Errorf("outer: %w", err)

			Convey("Then the kind is still visible", func() {
				So(fault.KindOf(wrapped), ShouldEqual, fault.ErrState)
			})
		})
	})

	Convey("Given an unclassified error", t, func() {
		cause := errors.New("disk on fire")

		Convey("When wrapped", func() {
			wrapped := fault.Wrap("store.upsert", cause)

			Convey("Then it becomes a storage error that still unwraps to the cause", func() {
				So(errors.Is(wrapped, fault.ErrStorage), ShouldBeTrue)
				So(errors.Is(wrapped, cause), ShouldBeTrue)
			})
		})

		Convey("Then wrapping nil yields nil", func() {
			So(fault.Wrap("noop", nil), ShouldBeNil)
			So(fault.KindOf(cause), ShouldBeNil)
		})
	})
}

func TestFaultLabel(t *testing.T) {
	Convey("Given errors of every kind", t, func() {
		Convey("Then labels are stable wire codes", func() {
			So(fault.Label(fault.New("op", fault.ErrValidation, "bad")), ShouldEqual, "validation_error")
			So(fault.Label(fault.New("op", fault.ErrState, "early")), ShouldEqual, "state_error")
			So(fault.Label(fault.New("op", fault.ErrPermission, "nope")), ShouldEqual, "permission_denied")
			So(fault.Label(errors.New("plain")), ShouldEqual, "internal_error")
		})
	})
}
