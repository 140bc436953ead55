package motion

import (
	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
)

// rateGenerator serves the velocity and torque modes.
type rateGenerator struct {
	mode   Mode
	p      Params
	values []float64
}

func newRateGenerator(mode Mode, p Params, drives int) *rateGenerator {
	return &rateGenerator{
		mode:   mode,
		p:      p,
		values: make([]float64, drives),
	}
}

func (g *rateGenerator) Mode() Mode {
	return g.mode
}

func (g *rateGenerator) Reset(rx *fieldbus.ReceivedFrame) {}

func (g *rateGenerator) Compute(in *input.State, rx *fieldbus.ReceivedFrame, states []drive.State, gate Gate, cmd *fieldbus.CommandFrame) {
	for i := range g.values {
		b, ok := g.p.binding(i)
		if !ok {
			g.values[i] = 0
			continue
		}

		v := g.p.deflection(in, b) * g.p.Gain
		if in.Pressed(b.Plus) {
			v += g.p.ButtonCommand
		}
		if in.Pressed(b.Minus) {
			v -= g.p.ButtonCommand
		}
		g.values[i] = v
	}

	if g.p.Differential && len(g.values) > 1 {
		g.values[0] -= g.values[1]
	}

	tripped := gate.Tripped()
	for i := range g.values {
		c := &cmd.Drives[i]
		c.TargetPosition = rx.Drives[i].Position

		if tripped || !gated(states[i]) {
			c.TargetVelocity = 0
			c.TargetTorque = 0
			continue
		}

		switch g.mode {
		case CyclicTorque:
			c.TargetVelocity = 0
			c.TargetTorque = saturate16(g.values[i])
			c.ControlWord = drive.SM_GO_ENABLE
		case CyclicVelocity:
			c.TargetVelocity = saturate32(g.values[i])
			c.TargetTorque = 0
			c.ControlWord = drive.SM_GO_ENABLE
		default:
			// profile velocity follows the state machine's control word
			c.TargetVelocity = saturate32(g.values[i])
			c.TargetTorque = 0
		}
	}
}
