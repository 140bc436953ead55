package input

import "sync/atomic"

// SafetyGate carries the supervisory safety flags into the cyclic loop.
type SafetyGate struct {
	emergency atomic.Bool
	inhibit   atomic.Bool
}

func (g *SafetyGate) SetEmergency(on bool) {
	g.emergency.Store(on)
}

func (g *SafetyGate) SetInhibit(on bool) {
	g.inhibit.Store(on)
}

func (g *SafetyGate) Emergency() bool {
	return g.emergency.Load()
}

func (g *SafetyGate) Inhibited() bool {
	return g.inhibit.Load()
}

// Tripped is true while either flag is asserted.
func (g *SafetyGate) Tripped() bool {
	return g.emergency.Load() || g.inhibit.Load()
}
