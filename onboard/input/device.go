package input

import (
	"fmt"
	"strings"
	"time"
)

type Axis uint8

const (
	AxisNone Axis = iota
	LeftX
	LeftY
	RightX
	RightY
	HapticX
	HapticY
	HapticZ
	HapticRX
	HapticRY
	HapticRZ
	HapticGrip
	NUM_AXES
)

type Button uint8

const (
	ButtonNone Button = iota
	Green
	Red
	Blue
	Yellow
	LeftRB
	RightRB
	LeftStart
	RightStart
	Xbox
	DpadLeft
	DpadRight
	DpadUp
	DpadDown
	NUM_BUTTONS
)

var axisNames = map[string]Axis{
	"":            AxisNone,
	"none":        AxisNone,
	"left_x":      LeftX,
	"left_y":      LeftY,
	"right_x":     RightX,
	"right_y":     RightY,
	"haptic_x":    HapticX,
	"haptic_y":    HapticY,
	"haptic_z":    HapticZ,
	"haptic_rx":   HapticRX,
	"haptic_ry":   HapticRY,
	"haptic_rz":   HapticRZ,
	"haptic_grip": HapticGrip,
}

var buttonNames = map[string]Button{
	"":            ButtonNone,
	"none":        ButtonNone,
	"green":       Green,
	"red":         Red,
	"blue":        Blue,
	"yellow":      Yellow,
	"left_rb":     LeftRB,
	"right_rb":    RightRB,
	"left_start":  LeftStart,
	"right_start": RightStart,
	"xbox":        Xbox,
	"dpad_left":   DpadLeft,
	"dpad_right":  DpadRight,
	"dpad_up":     DpadUp,
	"dpad_down":   DpadDown,
}

func ParseAxis(name string) (Axis, error) {
	a, ok := axisNames[strings.ToLower(name)]
	if !ok {
		return AxisNone, fmt.Errorf("unknown axis %q", name)
	}
	return a, nil
}

func ParseButton(name string) (Button, error) {
	b, ok := buttonNames[strings.ToLower(name)]
	if !ok {
		return ButtonNone, fmt.Errorf("unknown button %q", name)
	}
	return b, nil
}

func (a *Axis) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseAxis(name)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (b *Button) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseButton(name)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// State is one sample of the teleoperation devices. It is a plain value so
// it can be copied out of a Cell without allocating.
type State struct {
	Axes    [NUM_AXES]float64
	Buttons uint32
	// monotonic time of the sample, zero for the neutral state
	Stamp time.Time
}

func (s *State) Axis(a Axis) float64 {
	if a == AxisNone {
		return 0
	}
	return s.Axes[a]
}

func (s *State) Pressed(b Button) bool {
	if b == ButtonNone {
		return false
	}
	return s.Buttons&(1<<b) != 0
}

func (s *State) Press(b Button, pressed bool) {
	if b == ButtonNone {
		return
	}
	if pressed {
		s.Buttons |= 1 << b
	} else {
		s.Buttons &^= 1 << b
	}
}

// joystick message layout
var (
	joyAxes    = [...]Axis{0: LeftX, 1: LeftY, 3: RightX, 4: RightY}
	joyButtons = [...]Button{Green, Red, Blue, Yellow, LeftRB, RightRB, LeftStart, RightStart, Xbox}
)

const (
	JOY_DPAD_HORIZONTAL = 6
	JOY_DPAD_VERTICAL   = 7
	HAPTIC_AXES         = 7
)

// Joy is a raw gamepad message.
type Joy struct {
	Axes    []float64 `json:"axes"`
	Buttons []int     `json:"buttons"`
}

// ApplyJoy updates s from a gamepad message. The D-pad axes are decoded
// into the four direction buttons.
func (s *State) ApplyJoy(j Joy) {
	for i, a := range joyAxes {
		if a != AxisNone && i < len(j.Axes) {
			s.Axes[a] = j.Axes[i]
		}
	}
	for i, b := range joyButtons {
		s.Press(b, i < len(j.Buttons) && j.Buttons[i] > 0)
	}

	var h, v float64
	if len(j.Axes) > JOY_DPAD_VERTICAL {
		h = j.Axes[JOY_DPAD_HORIZONTAL]
		v = j.Axes[JOY_DPAD_VERTICAL]
	}
	s.Press(DpadRight, h > 0)
	s.Press(DpadLeft, h < 0)
	s.Press(DpadDown, v > 0)
	s.Press(DpadUp, v < 0)
}

// ApplyHaptic updates the haptic axes from x, y, z, rx, ry, rz, grip.
func (s *State) ApplyHaptic(values []float64) error {
	if len(values) < HAPTIC_AXES {
		return fmt.Errorf("haptic sample has %d values, need %d", len(values), HAPTIC_AXES)
	}
	for i := 0; i < HAPTIC_AXES; i++ {
		s.Axes[HapticX+Axis(i)] = values[i]
	}
	return nil
}
