package motion

import (
	"math"

	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// Gate carries the safety conditions of the current tick.
type Gate struct {
	Emergency bool
	Inhibit   bool
}

func (g Gate) Tripped() bool {
	return g.Emergency || g.Inhibit
}

// Generator turns operator input into drive targets. Compute runs on the
// cyclic thread after the state machine has written its control words into
// cmd, and must not allocate.
type Generator interface {
	Mode() Mode
	// Reset aligns any held targets with the actual positions in rx.
	Reset(rx *fieldbus.ReceivedFrame)
	Compute(in *input.State, rx *fieldbus.ReceivedFrame, states []drive.State, gate Gate, cmd *fieldbus.CommandFrame)
}

var ERR_COUNTS_PER_REV = errors.New("counts per revolution must be positive")

// New builds the generator for mode. countsPerRev holds one entry per drive
// and is only used by the positional modes.
func New(mode Mode, p Params, countsPerRev []float64) (g Generator, err error) {
	if mode.Positional() {
		for i, cpr := range countsPerRev {
			if cpr <= 0 {
				return nil, errors.Wrapf(ERR_COUNTS_PER_REV, "drive %d", i)
			}
		}
	}

	switch mode {
	case Position:
		g = newPositionGenerator(p, countsPerRev)
	case CyclicPosition:
		g = newCyclicPositionGenerator(p, countsPerRev)
	case Velocity, CyclicVelocity, CyclicTorque:
		g = newRateGenerator(mode, p, len(countsPerRev))
	default:
		err = errors.Errorf("no generator for %s", mode)
	}
	return
}

// gated reports whether a drive in state may receive a nonzero command.
// Target reached (status bit 10) alone never opens the gate: a faulted drive
// may still report it and must keep receiving the fault reset.
func gated(state drive.State) bool {
	switch state {
	case drive.OperationEnabled, drive.SwitchedOn:
		return true
	}
	return false
}

// quickStop forces the quick stop control word unless the drive is faulted,
// where the state machine's fault reset stands.
func quickStop(state drive.State, c *fieldbus.DriveCommand) {
	if state != drive.Fault {
		c.ControlWord = drive.SM_QUICKSTOP
	}
}

// deflection reads the bound axis clamped to [-1, 1], zero on the closed
// dead zone.
func (p Params) deflection(in *input.State, b Binding) float64 {
	v := mgl64.Clamp(in.Axis(b.Axis), -1, 1)
	if b.Invert {
		v = -v
	}
	if math.Abs(v) <= p.DeadZone {
		return 0
	}
	return v
}

// degToCounts converts an angle into encoder counts.
func degToCounts(deg, countsPerRev float64) int32 {
	return int32(math.Round(mgl64.DegToRad(deg) / (2 * math.Pi) * countsPerRev))
}

func saturate32(v float64) int32 {
	return int32(mgl64.Clamp(math.Round(v), math.MinInt32, math.MaxInt32))
}

func saturate16(v float64) int16 {
	return int16(mgl64.Clamp(math.Round(v), math.MinInt16, math.MaxInt16))
}
