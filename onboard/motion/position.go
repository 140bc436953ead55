package motion

import (
	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
)

// positionGenerator commands absolute profile position targets. A held
// button selects a target and sends EnableOperation; on release the state
// machine sends Run again and the rising edge of bit 4 latches the set-point.
type positionGenerator struct {
	p       Params
	targets []int32
	small   []int32
	large   []int32
}

func newPositionGenerator(p Params, countsPerRev []float64) *positionGenerator {
	g := &positionGenerator{
		p:       p,
		targets: make([]int32, len(countsPerRev)),
		small:   make([]int32, len(countsPerRev)),
		large:   make([]int32, len(countsPerRev)),
	}
	for i, cpr := range countsPerRev {
		g.small[i] = degToCounts(p.StepSmallDeg, cpr)
		g.large[i] = degToCounts(p.StepLargeDeg, cpr)
	}
	return g
}

func (g *positionGenerator) Mode() Mode {
	return Position
}

func (g *positionGenerator) Reset(rx *fieldbus.ReceivedFrame) {
	for i := range g.targets {
		g.targets[i] = rx.Drives[i].Position
	}
}

func (g *positionGenerator) Compute(in *input.State, rx *fieldbus.ReceivedFrame, states []drive.State, gate Gate, cmd *fieldbus.CommandFrame) {
	home := in.Pressed(g.p.Home)
	limit := rx.LimitTripped()

	for i := range g.targets {
		c := &cmd.Drives[i]
		c.TargetVelocity = 0
		c.TargetTorque = 0

		if gate.Tripped() {
			g.targets[i] = rx.Drives[i].Position
			c.TargetPosition = g.targets[i]
			quickStop(states[i], c)
			continue
		}

		if !gated(states[i]) {
			g.targets[i] = rx.Drives[i].Position
			c.TargetPosition = g.targets[i]
			continue
		}

		pressed := true
		b, _ := g.p.binding(i)
		switch {
		case home:
			g.targets[i] = 0
		case in.Pressed(b.StepUp):
			g.targets[i] = g.small[i]
		case in.Pressed(b.StepDown):
			g.targets[i] = -g.small[i]
		case in.Pressed(b.JumpUp):
			g.targets[i] = g.large[i]
		case in.Pressed(b.JumpDown):
			g.targets[i] = -g.large[i]
		default:
			pressed = false
		}

		c.TargetPosition = g.targets[i]
		if pressed {
			c.ControlWord = drive.SM_GO_ENABLE
		}

		// only moves away from the tripped switch are allowed
		if limit && g.targets[i] <= 0 {
			c.ControlWord = drive.SM_QUICKSTOP
		}
	}
}

// cyclicPositionGenerator integrates stick deflection into a position
// target every tick.
type cyclicPositionGenerator struct {
	p       Params
	targets []int32
	stride  []float64
	fine    []int32
}

func newCyclicPositionGenerator(p Params, countsPerRev []float64) *cyclicPositionGenerator {
	g := &cyclicPositionGenerator{
		p:       p,
		targets: make([]int32, len(countsPerRev)),
		stride:  make([]float64, len(countsPerRev)),
		fine:    make([]int32, len(countsPerRev)),
	}
	for i, cpr := range countsPerRev {
		g.stride[i] = float64(degToCounts(p.StepLargeDeg, cpr)) / p.CyclicDivisor
		g.fine[i] = saturate32(float64(degToCounts(p.StepSmallDeg, cpr)) / p.FineDivisor)
	}
	return g
}

func (g *cyclicPositionGenerator) Mode() Mode {
	return CyclicPosition
}

func (g *cyclicPositionGenerator) Reset(rx *fieldbus.ReceivedFrame) {
	for i := range g.targets {
		g.targets[i] = rx.Drives[i].Position
	}
}

func (g *cyclicPositionGenerator) Compute(in *input.State, rx *fieldbus.ReceivedFrame, states []drive.State, gate Gate, cmd *fieldbus.CommandFrame) {
	span := 1 - g.p.DeadZone

	for i := range g.targets {
		c := &cmd.Drives[i]
		c.TargetVelocity = 0
		c.TargetTorque = 0
		actual := rx.Drives[i].Position

		if gate.Tripped() {
			g.targets[i] = actual
			c.TargetPosition = actual
			quickStop(states[i], c)
			continue
		}

		if !gated(states[i]) {
			g.targets[i] = actual
			c.TargetPosition = actual
			continue
		}

		b, _ := g.p.binding(i)
		switch {
		case in.Pressed(b.Plus):
			g.targets[i] = actual + g.fine[i]
		case in.Pressed(b.Minus):
			g.targets[i] = actual - g.fine[i]
		case b.Axis != input.AxisNone:
			v := g.p.deflection(in, b)
			switch {
			case v > 0:
				g.targets[i] = actual + saturate32((v-g.p.DeadZone)/span*g.stride[i])
			case v < 0:
				g.targets[i] = actual + saturate32((v+g.p.DeadZone)/span*g.stride[i])
			}
			// inside the dead zone the previous target is held
		}

		c.TargetPosition = g.targets[i]
		c.ControlWord = drive.SM_GO_ENABLE
	}
}
