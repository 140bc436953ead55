package motion

import (
	"github.com/CodedInternet/goecat/onboard/input"
)

// Binding maps operator input onto one drive.
type Binding struct {
	Axis   input.Axis `yaml:"axis"`
	Invert bool       `yaml:"invert"`

	// rate and cyclic position modes: held buttons nudging the command
	Plus  input.Button `yaml:"plus"`
	Minus input.Button `yaml:"minus"`

	// position mode: buttons selecting an absolute target
	StepUp   input.Button `yaml:"step_up"`
	StepDown input.Button `yaml:"step_down"`
	JumpUp   input.Button `yaml:"jump_up"`
	JumpDown input.Button `yaml:"jump_down"`
}

// Params holds every scaling constant of a generator.
type Params struct {
	DeadZone float64 `yaml:"dead_zone"`
	// command at full deflection: velocity units, or per-mille of rated torque
	Gain float64 `yaml:"gain"`
	// command added while a Plus/Minus button is held in rate modes
	ButtonCommand float64 `yaml:"button_command"`
	// drive 0 is commanded as the difference of drives 0 and 1
	Differential bool `yaml:"differential"`

	StepSmallDeg float64 `yaml:"step_small_deg"`
	StepLargeDeg float64 `yaml:"step_large_deg"`
	// per tick share of the large step at full deflection in cyclic position
	CyclicDivisor float64 `yaml:"cyclic_divisor"`
	// per tick share of the small step while a button is held in cyclic position
	FineDivisor float64 `yaml:"fine_divisor"`

	Home     input.Button `yaml:"home"`
	Bindings []Binding    `yaml:"bindings"`
}

const (
	STEP_SMALL_DEG = 5
	STEP_LARGE_DEG = 30
	CYCLIC_DIVISOR = 50
	FINE_DIVISOR   = 100
)

// DefaultParams returns the stock tuning and gamepad layout for mode.
func DefaultParams(mode Mode) (p Params) {
	p = Params{
		StepSmallDeg:  STEP_SMALL_DEG,
		StepLargeDeg:  STEP_LARGE_DEG,
		CyclicDivisor: CYCLIC_DIVISOR,
		FineDivisor:   FINE_DIVISOR,
		Home:          input.Xbox,
	}

	switch mode {
	case Velocity:
		p.DeadZone = 0.1
		p.Gain = 250
		p.Bindings = []Binding{
			{Axis: input.RightX},
			{Axis: input.LeftX},
			{Axis: input.LeftY},
		}
	case CyclicVelocity:
		p.DeadZone = 0.05
		p.Gain = 250
		p.ButtonCommand = 100
		p.Differential = true
		p.Bindings = []Binding{
			{Axis: input.LeftY, Invert: true},
			{Axis: input.LeftX, Invert: true},
			{Plus: input.RightRB, Minus: input.LeftRB},
		}
	case CyclicTorque:
		p.DeadZone = 0.1
		p.Gain = 300
		p.Bindings = []Binding{
			{Axis: input.RightX},
			{Axis: input.LeftX},
			{Axis: input.LeftY},
		}
	case CyclicPosition:
		p.DeadZone = 0.05
		p.Bindings = []Binding{
			{Axis: input.LeftX},
			{Axis: input.RightX},
			{Plus: input.RightRB, Minus: input.LeftRB},
		}
	case Position:
		p.Bindings = []Binding{
			{StepUp: input.Blue, StepDown: input.Red, JumpUp: input.Green, JumpDown: input.Yellow},
			{StepUp: input.DpadRight, StepDown: input.DpadLeft, JumpUp: input.DpadDown, JumpDown: input.DpadUp},
			{StepUp: input.LeftRB, StepDown: input.RightRB, JumpUp: input.LeftStart, JumpDown: input.RightStart},
		}
	}

	return
}

func (p Params) binding(drive int) (b Binding, ok bool) {
	if drive < len(p.Bindings) {
		return p.Bindings[drive], true
	}
	return
}
