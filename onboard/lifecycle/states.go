package lifecycle

import "time"

type State string

const (
	Unconfigured    State = "unconfigured"
	Configuring     State = "configuring"
	Inactive        State = "inactive"
	Activating      State = "activating"
	Active          State = "active"
	Deactivating    State = "deactivating"
	CleaningUp      State = "cleaning_up"
	ShuttingDown    State = "shutting_down"
	ErrorProcessing State = "error_processing"
	Finalized       State = "finalized"
)

// Transient states last only while a transition is being carried out.
func (s State) Transient() bool {
	switch s {
	case Configuring, Activating, Deactivating, CleaningUp, ShuttingDown, ErrorProcessing:
		return true
	}
	return false
}

type Transition string

const (
	Configure  Transition = "configure"
	Activate   Transition = "activate"
	Deactivate Transition = "deactivate"
	Cleanup    Transition = "cleanup"
	Shutdown   Transition = "shutdown"
	Error      Transition = "error"
)

// ParseTransition accepts the transition names used by the operator
// interfaces.
func ParseTransition(name string) (t Transition, ok bool) {
	switch t = Transition(name); t {
	case Configure, Activate, Deactivate, Cleanup, Shutdown:
		return t, true
	}
	return "", false
}

type transitionSpec struct {
	from    []State
	through State
}

var transitions = map[Transition]transitionSpec{
	Configure:  {[]State{Unconfigured}, Configuring},
	Activate:   {[]State{Inactive}, Activating},
	Deactivate: {[]State{Active}, Deactivating},
	Cleanup:    {[]State{Inactive}, CleaningUp},
	Shutdown:   {[]State{Unconfigured, Inactive, Active}, ShuttingDown},
	Error:      {[]State{Unconfigured, Inactive, Active}, ErrorProcessing},
}

func (t transitionSpec) allowed(s State) bool {
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

type Status struct {
	State           State     `json:"state"`
	LastTransition  string    `json:"last_transition,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}
