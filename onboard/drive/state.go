package drive

import (
	"github.com/CodedInternet/goecat/onboard/fieldbus"
)

// State is the CiA 402 power state of one drive.
type State uint8

const (
	Unknown State = iota
	SwitchOnDisabled
	ReadyToSwitchOn
	SwitchedOn
	OperationEnabled
	QuickStopActive
	Fault
)

func (s State) String() string {
	switch s {
	case SwitchOnDisabled:
		return "switch on disabled"
	case ReadyToSwitchOn:
		return "ready to switch on"
	case SwitchedOn:
		return "switched on"
	case OperationEnabled:
		return "operation enabled"
	case QuickStopActive:
		return "quick stop active"
	case Fault:
		return "fault"
	}
	return "unknown"
}

// status word bits
const (
	BIT_READY_TO_SWITCH_ON = 0
	BIT_SWITCHED_ON        = 1
	BIT_OPERATION_ENABLED  = 2
	BIT_FAULT              = 3
	BIT_QUICK_STOP         = 5
	BIT_SWITCH_ON_DISABLED = 6
	BIT_TARGET_REACHED     = 10
)

func testBit(word uint16, bit uint) bool {
	return word&(1<<bit) != 0
}

// Decode maps a status word onto its power state.
func Decode(status uint16) State {
	if testBit(status, BIT_SWITCH_ON_DISABLED) {
		return SwitchOnDisabled
	}

	if testBit(status, BIT_QUICK_STOP) {
		switch {
		case testBit(status, BIT_OPERATION_ENABLED):
			return OperationEnabled
		case testBit(status, BIT_SWITCHED_ON):
			return SwitchedOn
		case testBit(status, BIT_READY_TO_SWITCH_ON):
			return ReadyToSwitchOn
		}
	}

	// EPOS4 reports fault reaction active here as well
	if testBit(status, BIT_FAULT) {
		return Fault
	}
	return QuickStopActive
}

func TargetReached(status uint16) bool {
	return testBit(status, BIT_TARGET_REACHED)
}

// Machine tracks the power state of every drive on the bus. States only
// change through Advance.
type Machine struct {
	states  []State
	faulted []bool
	edges   []bool
}

func NewMachine(drives int) *Machine {
	return &Machine{
		states:  make([]State, drives),
		faulted: make([]bool, drives),
		edges:   make([]bool, drives),
	}
}

// Advance decodes every status word in rx and writes the control word that
// moves each drive towards OperationEnabled into cmd. It returns the number
// of drives that entered Fault on this call.
func (m *Machine) Advance(rx *fieldbus.ReceivedFrame, cmd *fieldbus.CommandFrame) (newFaults int) {
	for i := range m.states {
		status := rx.Drives[i].StatusWord
		s := Decode(status)
		m.states[i] = s
		cmd.Drives[i].ControlWord = ControlWord(s, status)

		m.edges[i] = s == Fault && !m.faulted[i]
		if m.edges[i] {
			newFaults++
		}
		m.faulted[i] = s == Fault
	}
	return
}

func (m *Machine) State(drive int) State {
	return m.states[drive]
}

// States exposes the current states for read only use.
func (m *Machine) States() []State {
	return m.states
}

func (m *Machine) Faulted(drive int) bool {
	return m.faulted[drive]
}

// FaultEdge reports whether drive entered Fault on the last Advance.
func (m *Machine) FaultEdge(drive int) bool {
	return m.edges[drive]
}

func (m *Machine) EnabledCount() (n int) {
	for _, s := range m.states {
		if s == OperationEnabled {
			n++
		}
	}
	return
}

func (m *Machine) AllEnabled() bool {
	return m.EnabledCount() == len(m.states)
}

// CopyStates copies the current states into dst without allocating.
func (m *Machine) CopyStates(dst []State) {
	copy(dst, m.states)
}
