package comms

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDevice struct {
	mu          sync.Mutex
	transitions []lifecycle.Transition
	triggerErr  error
	emergency   bool
	inhibit     bool
	in          input.State
	status      onboard.RigStatus
	frames      chan *engine.Telemetry
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		status: onboard.RigStatus{
			Lifecycle: lifecycle.Status{State: lifecycle.Active},
			Mode:      "cyclic_velocity",
			Drives:    []string{"left", "right"},
		},
		frames: make(chan *engine.Telemetry, 1),
	}
}

func (d *mockDevice) Trigger(t lifecycle.Transition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = append(d.transitions, t)
	return d.triggerErr
}

func (d *mockDevice) SetEmergency(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emergency = on
}

func (d *mockDevice) SetInhibit(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inhibit = on
}

func (d *mockDevice) ApplyInput(fn func(*input.State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.in)
}

func (d *mockDevice) Status() onboard.RigStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Emergency = d.emergency
	s.Inhibit = d.inhibit
	return s
}

func (d *mockDevice) Subscribe() (<-chan *engine.Telemetry, func()) {
	return d.frames, func() {}
}

func testTelemetry() *engine.Telemetry {
	t := engine.NewTelemetry(2)
	t.Tick = 42
	t.Phase = engine.PhaseRun
	t.States[0] = drive.OperationEnabled
	t.States[1] = drive.Fault
	t.Feedback[0].Position = 1000
	t.Feedback[0].StatusWord = 0x0627
	t.Feedback[1].ErrorCode = 0x7500
	t.Commands[0].TargetVelocity = 250
	t.Limit = true
	return t
}

func TestConductor(t *testing.T) {
	Convey("Given a conductor for a device", t, func() {
		device := newMockDevice()
		conductor := &Conductor{Device: device}

		Convey("lifecycle transitions are triggered by name", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "transition", Name: "activate"}), ShouldBeNil)
			So(device.transitions, ShouldResemble, []lifecycle.Transition{lifecycle.Activate})

			err := conductor.ProcessCommand(Cmd{Cmd: "transition", Name: "error"})
			So(err, ShouldNotBeNil)
			So(device.transitions, ShouldHaveLength, 1)
		})

		Convey("the safety switches are set", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "estop", Value: 1}), ShouldBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "inhibit", Value: 1}), ShouldBeNil)
			So(device.emergency, ShouldBeTrue)
			So(device.inhibit, ShouldBeTrue)

			So(conductor.ProcessCommand(Cmd{Cmd: "estop"}), ShouldBeNil)
			So(device.emergency, ShouldBeFalse)
		})

		Convey("joystick samples are decoded", func() {
			joy := &input.Joy{
				Axes:    []float64{0.5, -0.25, 0, 1, 0, 0, 0, -1},
				Buttons: []int{1, 0, 0, 0, 0, 1, 0, 0, 0},
			}
			So(conductor.ProcessCommand(Cmd{Cmd: "joy", Joy: joy}), ShouldBeNil)
			So(device.in.Axis(input.LeftX), ShouldEqual, 0.5)
			So(device.in.Axis(input.RightX), ShouldEqual, 1)
			So(device.in.Pressed(input.Green), ShouldBeTrue)
			So(device.in.Pressed(input.RightRB), ShouldBeTrue)
			So(device.in.Pressed(input.DpadUp), ShouldBeTrue)

			So(conductor.ProcessCommand(Cmd{Cmd: "joy"}), ShouldEqual, ERR_NO_JOY)
		})

		Convey("haptic samples need every axis", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "haptic", Values: []float64{1, 2}}), ShouldNotBeNil)
			So(conductor.ProcessCommand(Cmd{Cmd: "haptic", Values: []float64{0.1, 0.2, 0.3, 0, 0, 0, 1}}), ShouldBeNil)
			So(device.in.Axis(input.HapticX), ShouldEqual, 0.1)
		})

		Convey("single axes and buttons can be set", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "axis", Name: "left_y", Value: 3}), ShouldBeNil)
			So(device.in.Axis(input.LeftY), ShouldEqual, 1)
			So(conductor.ProcessCommand(Cmd{Cmd: "press", Name: "blue", Value: 1}), ShouldBeNil)
			So(device.in.Pressed(input.Blue), ShouldBeTrue)

			Convey("and released together", func() {
				So(conductor.ProcessCommand(Cmd{Cmd: "neutral"}), ShouldBeNil)
				So(device.in, ShouldResemble, input.State{})
			})

			So(conductor.ProcessCommand(Cmd{Cmd: "axis", Name: "sideways"}), ShouldNotBeNil)
		})

		Convey("panel buttons need a supervisor", func() {
			So(conductor.ProcessCommand(Cmd{Cmd: "button", Name: "init"}), ShouldNotBeNil)

			conductor.Supervisor = NewSupervisor(device, nil)
			So(conductor.ProcessCommand(Cmd{Cmd: "button", Name: "init"}), ShouldBeNil)
			So(device.transitions, ShouldResemble, []lifecycle.Transition{lifecycle.Configure})
		})

		Convey("unknown commands are rejected", func() {
			err := conductor.ProcessCommand(Cmd{Cmd: "set_height"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "set_height")
		})

		Convey("commands decode from the client format", func() {
			var cmd Cmd
			err := json.Unmarshal([]byte(`{"Cmd":"haptic","Values":[1,2,3,4,5,6,7]}`), &cmd)
			So(err, ShouldBeNil)
			So(cmd.Values, ShouldHaveLength, 7)
		})
	})
}

func TestStatePayload(t *testing.T) {
	Convey("Given the status of a running rig", t, func() {
		device := newMockDevice()
		status := device.Status()
		status.Telemetry = testTelemetry()

		p := NewStatePayload(status)

		So(p.Lifecycle, ShouldEqual, "active")
		So(p.Phase, ShouldEqual, "run")
		So(p.Tick, ShouldEqual, 42)
		So(p.Limit, ShouldBeTrue)
		So(p.Stats, ShouldNotBeNil)
		So(p.Drives[0].Name, ShouldEqual, "left")
		So(p.Drives[0].State, ShouldEqual, "operation enabled")
		So(p.Drives[0].Position, ShouldEqual, 1000)
		So(p.Drives[0].TargetVelocity, ShouldEqual, 250)
		So(p.Drives[1].State, ShouldEqual, "fault")
		So(p.Drives[1].ErrorCode, ShouldEqual, 0x7500)

		Convey("before the first tick only the lifecycle is reported", func() {
			status.Telemetry = nil
			p := NewStatePayload(status)
			So(p.Phase, ShouldEqual, "idle")
			So(p.Stats, ShouldBeNil)
			So(p.Drives, ShouldHaveLength, 2)
			So(p.Drives[1].Name, ShouldEqual, "right")
		})
	})
}
