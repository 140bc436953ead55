package comms

import (
	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/engine"
)

type DrivePayload struct {
	Name           string `json:"name"`
	State          string `json:"state"`
	StatusWord     uint16 `json:"status_word"`
	ErrorCode      uint16 `json:"error_code"`
	Position       int32  `json:"position"`
	Velocity       int32  `json:"velocity"`
	Torque         int16  `json:"torque"`
	ControlWord    uint16 `json:"control_word"`
	TargetPosition int32  `json:"target_position"`
	TargetVelocity int32  `json:"target_velocity"`
	TargetTorque   int16  `json:"target_torque"`
}

// StatePayload is the telemetry message sent to operator clients.
type StatePayload struct {
	Lifecycle string         `json:"lifecycle"`
	LastError string         `json:"last_error,omitempty"`
	Mode      string         `json:"mode"`
	Tick      uint64         `json:"tick"`
	Phase     string         `json:"phase"`
	Drives    []DrivePayload `json:"drives"`
	Emergency bool           `json:"emergency"`
	Inhibit   bool           `json:"inhibit"`
	Limit     bool           `json:"limit"`
	AlStates  uint8          `json:"al_states"`
	Stats     *engine.Stats  `json:"stats,omitempty"`
}

func NewStatePayload(status onboard.RigStatus) (p StatePayload) {
	p = StatePayload{
		Lifecycle: string(status.Lifecycle.State),
		LastError: status.Lifecycle.LastError,
		Mode:      status.Mode,
		Phase:     engine.PhaseIdle.String(),
		Drives:    make([]DrivePayload, len(status.Drives)),
		Emergency: status.Emergency,
		Inhibit:   status.Inhibit,
	}
	for i, name := range status.Drives {
		p.Drives[i].Name = name
	}

	t := status.Telemetry
	if t == nil {
		return
	}

	p.Tick = t.Tick
	p.Phase = t.Phase.String()
	p.Emergency = p.Emergency || t.Emergency
	p.Limit = t.Limit
	p.AlStates = t.AlStates
	stats := t.Stats
	p.Stats = &stats

	for i := range p.Drives {
		if i >= len(t.Feedback) {
			break
		}
		d := &p.Drives[i]
		fb, cmd := t.Feedback[i], t.Commands[i]
		d.State = t.States[i].String()
		d.StatusWord = fb.StatusWord
		d.ErrorCode = fb.ErrorCode
		d.Position = fb.Position
		d.Velocity = fb.Velocity
		d.Torque = fb.Torque
		d.ControlWord = cmd.ControlWord
		d.TargetPosition = cmd.TargetPosition
		d.TargetVelocity = cmd.TargetVelocity
		d.TargetTorque = cmd.TargetTorque
	}
	return
}
