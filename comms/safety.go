package comms

import (
	"fmt"
	"sync"

	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/sirupsen/logrus"
)

type SafetyState uint16

const (
	SAFETY_OK SafetyState = iota
	SAFETY_EMERGENCY_STOP
	SAFETY_ERROR_IN_DRIVE
)

func (s SafetyState) String() string {
	switch s {
	case SAFETY_OK:
		return "ok"
	case SAFETY_EMERGENCY_STOP:
		return "emergency stop"
	case SAFETY_ERROR_IN_DRIVE:
		return "error in drive"
	}
	return fmt.Sprintf("safety(%d)", uint16(s))
}

func (s SafetyState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// GuiButton names the buttons of the operator panel.
type GuiButton string

const (
	BUTTON_INIT         GuiButton = "init"
	BUTTON_ENTER_CYCLIC GuiButton = "enter_cyclic"
	BUTTON_STOP_CYCLIC  GuiButton = "stop_cyclic"
	BUTTON_REINIT       GuiButton = "reinit"
	BUTTON_EMERGENCY    GuiButton = "emergency"
	BUTTON_RESET        GuiButton = "reset"
)

var buttonTransitions = map[GuiButton]lifecycle.Transition{
	BUTTON_INIT:         lifecycle.Configure,
	BUTTON_ENTER_CYCLIC: lifecycle.Activate,
	BUTTON_STOP_CYCLIC:  lifecycle.Deactivate,
	BUTTON_REINIT:       lifecycle.Cleanup,
}

// Supervisor turns panel buttons into lifecycle transitions and tracks the
// safety state of the rig. A drive error latches ErrorInDrive until reset.
type Supervisor struct {
	device onboard.Device
	log    logrus.FieldLogger

	mu    sync.Mutex
	state SafetyState
}

func NewSupervisor(device onboard.Device, log logrus.FieldLogger) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		device: device,
		log:    log.WithField("component", "safety"),
	}
}

func (s *Supervisor) State() SafetyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state SafetyState) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed {
		s.log.WithField("state", state).Warn("safety state changed")
	}
}

// Press handles one panel button.
func (s *Supervisor) Press(b GuiButton) error {
	if t, ok := buttonTransitions[b]; ok {
		return s.device.Trigger(t)
	}

	switch b {
	case BUTTON_EMERGENCY:
		s.device.SetEmergency(true)
		s.setState(SAFETY_EMERGENCY_STOP)
	case BUTTON_RESET:
		s.device.SetEmergency(false)
		s.setState(SAFETY_OK)
	default:
		return fmt.Errorf("unknown button %q", b)
	}
	return nil
}

// Observe checks one telemetry frame for drive errors.
func (s *Supervisor) Observe(t *engine.Telemetry) {
	for _, fb := range t.Feedback {
		if fb.ErrorCode == 0 {
			continue
		}
		s.mu.Lock()
		latched := s.state == SAFETY_OK
		if latched {
			s.state = SAFETY_ERROR_IN_DRIVE
		}
		s.mu.Unlock()

		if latched {
			s.log.WithField("error_code", fb.ErrorCode).Warn("error in drive")
		}
		return
	}
}

// Watch observes every frame until done is closed.
func (s *Supervisor) Watch(frames <-chan *engine.Telemetry, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case t := <-frames:
			s.Observe(t)
		}
	}
}
