package errors

import "fmt"

// Configuration failure kinds reported by the fieldbus session.
const (
	MasterUnavailable    = "master unavailable"
	DomainCreationFailed = "domain creation failed"
	SlaveConfigFailed    = "slave configuration failed"
	SdoWriteFailed       = "sdo write failed"
	DcSyncFailed         = "dc sync configuration failed"
)

type ConfigError struct {
	Kind  string
	Slave int
	Cause error
}

func (err ConfigError) Error() string {
	if err.Cause == nil {
		return fmt.Sprintf("configuration error: %s (slave %d)", err.Kind, err.Slave)
	}
	return fmt.Sprintf("configuration error: %s (slave %d): %v", err.Kind, err.Slave, err.Cause)
}

func (err ConfigError) Unwrap() error {
	return err.Cause
}

type SlaveCountMismatch struct {
	Expected int
	Actual   int
}

func (err SlaveCountMismatch) Error() string {
	return fmt.Sprintf("slave count mismatch: configured %d, responding %d", err.Expected, err.Actual)
}

type PdoRegistrationFailed struct {
	Slave int
	Entry string
}

func (err PdoRegistrationFailed) Error() string {
	return fmt.Sprintf("pdo registration failed for %s on slave %d", err.Entry, err.Slave)
}

type RevisionRejected struct {
	Slave      int
	Revision   string
	Constraint string
}

func (err RevisionRejected) Error() string {
	return fmt.Sprintf("unable to use slave %d: revision %s does not satisfy %s", err.Slave, err.Revision, err.Constraint)
}

type ActivationRejected struct {
	Cause error
}

func (err ActivationRejected) Error() string {
	return fmt.Sprintf("master activation rejected: %v", err.Cause)
}

func (err ActivationRejected) Unwrap() error {
	return err.Cause
}

type OperationalTimeout struct {
	Iterations int
	AlStates   uint8
}

func (err OperationalTimeout) Error() string {
	return fmt.Sprintf("timed out after %d iterations waiting for OP (AL states 0x%02X)", err.Iterations, err.AlStates)
}

// LinkError is raised by the master state check while the loop is running.
type LinkError struct {
	LinkUp     bool
	Responding int
	Expected   int
}

func (err LinkError) Error() string {
	if !err.LinkUp {
		return "link is down"
	}
	return fmt.Sprintf("%d of %d slaves responding", err.Responding, err.Expected)
}

type DriveFault struct {
	Drive     int
	ErrorCode uint16
}

func (err DriveFault) Error() string {
	return fmt.Sprintf("drive %d in fault (error code 0x%04X)", err.Drive, err.ErrorCode)
}

type IllegalTransition struct {
	From       string
	Transition string
}

func (err IllegalTransition) Error() string {
	if len(err.From) == 0 {
		err.From = "UNKOWN"
	}
	return fmt.Sprintf("illegal transition; %s is not allowed from %s", err.Transition, err.From)
}

type TransitionInProgress struct {
	State      string
	Transition string
}

func (err TransitionInProgress) Error() string {
	return fmt.Sprintf("rejected %s; transition in progress (%s)", err.Transition, err.State)
}
