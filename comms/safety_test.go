package comms

import (
	"testing"
	"time"

	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSupervisor(t *testing.T) {
	Convey("Given a supervisor", t, func() {
		device := newMockDevice()
		s := NewSupervisor(device, nil)
		So(s.State(), ShouldEqual, SAFETY_OK)

		Convey("panel buttons request lifecycle transitions", func() {
			for _, b := range []GuiButton{BUTTON_INIT, BUTTON_ENTER_CYCLIC, BUTTON_STOP_CYCLIC, BUTTON_REINIT} {
				So(s.Press(b), ShouldBeNil)
			}
			So(device.transitions, ShouldResemble, []lifecycle.Transition{
				lifecycle.Configure, lifecycle.Activate, lifecycle.Deactivate, lifecycle.Cleanup,
			})
		})

		Convey("the emergency button stops the rig until reset", func() {
			So(s.Press(BUTTON_EMERGENCY), ShouldBeNil)
			So(device.emergency, ShouldBeTrue)
			So(s.State(), ShouldEqual, SAFETY_EMERGENCY_STOP)

			So(s.Press(BUTTON_RESET), ShouldBeNil)
			So(device.emergency, ShouldBeFalse)
			So(s.State(), ShouldEqual, SAFETY_OK)
		})

		Convey("a drive error latches", func() {
			s.Observe(engine.NewTelemetry(2))
			So(s.State(), ShouldEqual, SAFETY_OK)

			s.Observe(testTelemetry())
			So(s.State(), ShouldEqual, SAFETY_ERROR_IN_DRIVE)

			s.Observe(engine.NewTelemetry(2))
			So(s.State(), ShouldEqual, SAFETY_ERROR_IN_DRIVE)

			Convey("without masking an emergency stop", func() {
				So(s.Press(BUTTON_EMERGENCY), ShouldBeNil)
				s.Observe(testTelemetry())
				So(s.State(), ShouldEqual, SAFETY_EMERGENCY_STOP)
			})
		})

		Convey("frames are watched until done", func() {
			done := make(chan struct{})
			finished := make(chan struct{})
			go func() {
				s.Watch(device.frames, done)
				close(finished)
			}()

			device.frames <- testTelemetry()
			deadline := time.Now().Add(time.Second)
			for s.State() != SAFETY_ERROR_IN_DRIVE && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			So(s.State(), ShouldEqual, SAFETY_ERROR_IN_DRIVE)

			close(done)
			<-finished
		})

		Convey("unknown buttons are rejected", func() {
			So(s.Press("b_send"), ShouldNotBeNil)
		})

		Convey("states have names", func() {
			text, err := SAFETY_ERROR_IN_DRIVE.MarshalText()
			So(err, ShouldBeNil)
			So(string(text), ShouldEqual, "error in drive")
		})
	})
}
