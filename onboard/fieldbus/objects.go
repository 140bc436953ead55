package fieldbus

import "fmt"

// Object addresses one entry in a slave's object dictionary.
type Object struct {
	Index    uint16
	Subindex uint8
}

func (o Object) String() string {
	return fmt.Sprintf("0x%04X:%02X", o.Index, o.Subindex)
}

// CiA 402 drive profile objects
var (
	OD_CONTROL_WORD            = Object{0x6040, 0x00}
	OD_STATUS_WORD             = Object{0x6041, 0x00}
	OD_OPERATION_MODE          = Object{0x6060, 0x00}
	OD_OPERATION_MODE_DISPLAY  = Object{0x6061, 0x00}
	OD_POSITION_ACTUAL_VAL     = Object{0x6064, 0x00}
	OD_MAX_FOLLOWING_ERROR     = Object{0x6065, 0x00}
	OD_VELOCITY_ACTUAL_VALUE   = Object{0x606C, 0x00}
	OD_TARGET_TORQUE           = Object{0x6071, 0x00}
	OD_TORQUE_ACTUAL_VALUE     = Object{0x6077, 0x00}
	OD_TARGET_POSITION         = Object{0x607A, 0x00}
	OD_MAX_PROFILE_VELOCITY    = Object{0x607F, 0x00}
	OD_PROFILE_VELOCITY        = Object{0x6081, 0x00}
	OD_PROFILE_ACCELERATION    = Object{0x6083, 0x00}
	OD_PROFILE_DECELERATION    = Object{0x6084, 0x00}
	OD_QUICK_STOP_DECELERATION = Object{0x6085, 0x00}
	OD_MOTION_PROFILE_TYPE     = Object{0x6086, 0x00}
	OD_TORQUE_OFFSET           = Object{0x60B2, 0x00}
	OD_INTERPOLATION_TIME      = Object{0x60C2, 0x01}
	OD_TARGET_VELOCITY         = Object{0x60FF, 0x00}
	OD_DIGITAL_INPUTS          = Object{0x60FD, 0x00}
	OD_DIGITAL_OUTPUTS         = Object{0x60FE, 0x01}
	OD_ERROR_CODE              = Object{0x603F, 0x00}

	// velocity loop gains, manufacturer specific
	OD_VELOCITY_P_GAIN = Object{0x2F01, 0x01}
	OD_VELOCITY_I_GAIN = Object{0x2F01, 0x02}

	OD_SOFTWARE_VERSION = Object{0x100A, 0x00}
)

// IO slave inputs (limit switches and the emergency switch)
var (
	OD_IO_EMERGENCY_SWITCH = Object{0x0006, 0x05}
	OD_IO_RIGHT_LIMIT      = Object{0x0006, 0x06}
	OD_IO_LEFT_LIMIT       = Object{0x0006, 0x07}
)

// OpMode is the value written to OD_OPERATION_MODE.
type OpMode int8

const (
	OpModeProfilePosition OpMode = 1
	OpModeProfileVelocity OpMode = 3
	OpModeCyclicPosition  OpMode = 8
	OpModeCyclicVelocity  OpMode = 9
	OpModeCyclicTorque    OpMode = 10
)

func (m OpMode) String() string {
	switch m {
	case OpModeProfilePosition:
		return "profile position"
	case OpModeProfileVelocity:
		return "profile velocity"
	case OpModeCyclicPosition:
		return "cyclic synchronous position"
	case OpModeCyclicVelocity:
		return "cyclic synchronous velocity"
	case OpModeCyclicTorque:
		return "cyclic synchronous torque"
	}
	return fmt.Sprintf("mode %d", int8(m))
}

// Application layer states as reported in MasterState.AlStates
const (
	AL_STATE_INIT   = 0x01
	AL_STATE_PREOP  = 0x02
	AL_STATE_SAFEOP = 0x04
	AL_STATE_OP     = 0x08
)
