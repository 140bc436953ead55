package input

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/yaml.v2"
)

func TestApplyJoy(t *testing.T) {
	Convey("Given a gamepad message", t, func() {
		var s State
		j := Joy{
			Axes:    []float64{0.5, -0.25, 0.9, 0.75, 1, 0, 1, -1},
			Buttons: []int{0, 1, 0, 0, 0, 1, 0, 0, 1},
		}
		s.ApplyJoy(j)

		Convey("the stick axes are taken from their indices", func() {
			So(s.Axis(LeftX), ShouldEqual, 0.5)
			So(s.Axis(LeftY), ShouldEqual, -0.25)
			So(s.Axis(RightX), ShouldEqual, 0.75)
			So(s.Axis(RightY), ShouldEqual, 1)
			So(s.Axis(AxisNone), ShouldEqual, 0)
		})

		Convey("the buttons are taken from their indices", func() {
			So(s.Pressed(Red), ShouldBeTrue)
			So(s.Pressed(RightRB), ShouldBeTrue)
			So(s.Pressed(Xbox), ShouldBeTrue)
			So(s.Pressed(Green), ShouldBeFalse)
			So(s.Pressed(LeftRB), ShouldBeFalse)
			So(s.Pressed(ButtonNone), ShouldBeFalse)
		})

		Convey("the d-pad axes become buttons", func() {
			So(s.Pressed(DpadRight), ShouldBeTrue)
			So(s.Pressed(DpadUp), ShouldBeTrue)
			So(s.Pressed(DpadLeft), ShouldBeFalse)
			So(s.Pressed(DpadDown), ShouldBeFalse)
		})

		Convey("a release clears the button", func() {
			j.Buttons[1] = 0
			j.Axes[6] = 0
			s.ApplyJoy(j)
			So(s.Pressed(Red), ShouldBeFalse)
			So(s.Pressed(DpadRight), ShouldBeFalse)
		})

		Convey("short messages are tolerated", func() {
			var short State
			short.ApplyJoy(Joy{Axes: []float64{0.1}, Buttons: []int{1}})
			So(short.Axis(LeftX), ShouldEqual, 0.1)
			So(short.Pressed(Green), ShouldBeTrue)
			So(short.Pressed(DpadUp), ShouldBeFalse)
		})
	})
}

func TestApplyHaptic(t *testing.T) {
	Convey("A haptic sample fills the haptic axes", t, func() {
		var s State
		So(s.ApplyHaptic([]float64{1, 2, 3, 4, 5, 6, 7}), ShouldBeNil)
		So(s.Axis(HapticX), ShouldEqual, 1)
		So(s.Axis(HapticGrip), ShouldEqual, 7)
		So(s.Axis(LeftX), ShouldEqual, 0)
	})

	Convey("A short haptic sample is rejected", t, func() {
		var s State
		So(s.ApplyHaptic([]float64{1, 2}), ShouldNotBeNil)
	})
}

func TestNames(t *testing.T) {
	Convey("Axes and buttons are parsed by name", t, func() {
		a, err := ParseAxis("Right_X")
		So(err, ShouldBeNil)
		So(a, ShouldEqual, RightX)

		_, err = ParseButton("turbo")
		So(err, ShouldNotBeNil)

		var binding struct {
			Axis   Axis   `yaml:"axis"`
			Button Button `yaml:"button"`
		}
		So(yaml.Unmarshal([]byte("axis: left_y\nbutton: xbox\n"), &binding), ShouldBeNil)
		So(binding.Axis, ShouldEqual, LeftY)
		So(binding.Button, ShouldEqual, Xbox)
	})
}

func TestCell(t *testing.T) {
	Convey("Given a cell with a 100ms stale limit", t, func() {
		now := time.Unix(1000, 0)
		c := NewCell(DEFAULT_STALE_AFTER)
		c.now = func() time.Time { return now }

		var out State

		Convey("an empty cell is neutral", func() {
			So(c.Load(&out), ShouldBeFalse)
			So(out, ShouldResemble, State{})
		})

		Convey("a fresh sample is returned", func() {
			var s State
			s.Axes[LeftX] = 0.5
			c.Store(s)
			now = now.Add(50 * time.Millisecond)

			So(c.Load(&out), ShouldBeTrue)
			So(out.Axis(LeftX), ShouldEqual, 0.5)

			Convey("and goes neutral once stale", func() {
				now = now.Add(51 * time.Millisecond)
				So(c.Load(&out), ShouldBeFalse)
				So(out.Axis(LeftX), ShouldEqual, 0)
			})
		})

		Convey("the latest sample wins", func() {
			for i := 0; i < 5; i++ {
				var s State
				s.Axes[RightX] = float64(i)
				c.Store(s)
			}
			c.Load(&out)
			So(out.Axis(RightX), ShouldEqual, 4)
		})

		Convey("updates keep the rest of the sample", func() {
			c.Update(func(s *State) { s.Axes[LeftY] = -1 })
			c.Update(func(s *State) { s.Press(Blue, true) })
			c.Load(&out)
			So(out.Axis(LeftY), ShouldEqual, -1)
			So(out.Pressed(Blue), ShouldBeTrue)
		})

		Convey("a disabled stale limit keeps old samples", func() {
			c.staleAfter = 0
			c.Store(State{Buttons: 1 << Green})
			now = now.Add(time.Hour)
			So(c.Load(&out), ShouldBeTrue)
			So(out.Pressed(Green), ShouldBeTrue)
		})
	})
}

func TestSafetyGate(t *testing.T) {
	Convey("The gate trips on either flag", t, func() {
		var g SafetyGate
		So(g.Tripped(), ShouldBeFalse)

		g.SetInhibit(true)
		So(g.Tripped(), ShouldBeTrue)
		So(g.Emergency(), ShouldBeFalse)

		g.SetInhibit(false)
		g.SetEmergency(true)
		So(g.Tripped(), ShouldBeTrue)
		So(g.Inhibited(), ShouldBeFalse)
	})
}
