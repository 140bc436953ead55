package fieldbus

// ProfileParams are the mailbox parameters written to every drive during
// configuration. Which of them are sent depends on the operation mode.
type ProfileParams struct {
	ProfileVelocity       uint32 `yaml:"profile_velocity"`
	MaxProfileVelocity    uint32 `yaml:"max_profile_velocity"`
	ProfileAcceleration   uint32 `yaml:"profile_acceleration"`
	ProfileDeceleration   uint32 `yaml:"profile_deceleration"`
	QuickStopDeceleration uint32 `yaml:"quick_stop_deceleration"`
	MaxFollowingError     uint32 `yaml:"max_following_error"`
	MotionProfileType     uint16 `yaml:"motion_profile_type"`
	InterpolationTime     uint8  `yaml:"interpolation_time"`
	VelocityPGain         uint32 `yaml:"velocity_p_gain"`
	VelocityIGain         uint32 `yaml:"velocity_i_gain"`
}

func DefaultProfile(mode OpMode) ProfileParams {
	switch mode {
	case OpModeProfilePosition:
		return ProfileParams{
			ProfileVelocity:       450,
			MaxProfileVelocity:    500,
			ProfileAcceleration:   1e4,
			ProfileDeceleration:   1e4,
			QuickStopDeceleration: 3e4,
			MaxFollowingError:     1e6,
		}
	case OpModeProfileVelocity:
		return ProfileParams{
			MaxProfileVelocity:    1000,
			ProfileAcceleration:   3e4,
			ProfileDeceleration:   3e4,
			QuickStopDeceleration: 3e4,
		}
	case OpModeCyclicPosition:
		return ProfileParams{
			ProfileVelocity:       50,
			MaxProfileVelocity:    100,
			ProfileAcceleration:   3e4,
			ProfileDeceleration:   3e4,
			QuickStopDeceleration: 3e4,
			MaxFollowingError:     1e6,
		}
	case OpModeCyclicVelocity:
		return ProfileParams{
			ProfileDeceleration:   3e4,
			QuickStopDeceleration: 3e4,
			VelocityPGain:         40000,
			VelocityIGain:         800000,
		}
	case OpModeCyclicTorque:
		return ProfileParams{
			ProfileDeceleration:   3e4,
			QuickStopDeceleration: 3e4,
		}
	}
	return ProfileParams{}
}

// Sdos lists the writes for mode, starting with the operation mode itself.
func (p ProfileParams) Sdos(mode OpMode) []SdoValue {
	sdos := []SdoValue{{OD_OPERATION_MODE, 8, uint32(uint8(mode))}}

	switch mode {
	case OpModeProfilePosition:
		sdos = append(sdos,
			SdoValue{OD_PROFILE_VELOCITY, 32, p.ProfileVelocity},
			SdoValue{OD_MAX_PROFILE_VELOCITY, 32, p.MaxProfileVelocity},
			SdoValue{OD_PROFILE_ACCELERATION, 32, p.ProfileAcceleration},
			SdoValue{OD_PROFILE_DECELERATION, 32, p.ProfileDeceleration},
			SdoValue{OD_QUICK_STOP_DECELERATION, 32, p.QuickStopDeceleration},
			SdoValue{OD_MAX_FOLLOWING_ERROR, 32, p.MaxFollowingError},
		)
	case OpModeProfileVelocity:
		sdos = append(sdos,
			SdoValue{OD_MOTION_PROFILE_TYPE, 16, uint32(p.MotionProfileType)},
			SdoValue{OD_MAX_PROFILE_VELOCITY, 32, p.MaxProfileVelocity},
			SdoValue{OD_PROFILE_DECELERATION, 32, p.ProfileDeceleration},
			SdoValue{OD_PROFILE_ACCELERATION, 32, p.ProfileAcceleration},
			SdoValue{OD_QUICK_STOP_DECELERATION, 32, p.QuickStopDeceleration},
		)
	case OpModeCyclicPosition:
		sdos = append(sdos,
			SdoValue{OD_PROFILE_VELOCITY, 32, p.ProfileVelocity},
			SdoValue{OD_MAX_PROFILE_VELOCITY, 32, p.MaxProfileVelocity},
			SdoValue{OD_PROFILE_ACCELERATION, 32, p.ProfileAcceleration},
			SdoValue{OD_PROFILE_DECELERATION, 32, p.ProfileDeceleration},
			SdoValue{OD_QUICK_STOP_DECELERATION, 32, p.QuickStopDeceleration},
			SdoValue{OD_MAX_FOLLOWING_ERROR, 32, p.MaxFollowingError},
			SdoValue{OD_INTERPOLATION_TIME, 8, uint32(p.InterpolationTime)},
		)
	case OpModeCyclicVelocity:
		sdos = append(sdos,
			SdoValue{OD_VELOCITY_P_GAIN, 32, p.VelocityPGain},
			SdoValue{OD_VELOCITY_I_GAIN, 32, p.VelocityIGain},
			SdoValue{OD_PROFILE_DECELERATION, 32, p.ProfileDeceleration},
			SdoValue{OD_QUICK_STOP_DECELERATION, 32, p.QuickStopDeceleration},
		)
	case OpModeCyclicTorque:
		sdos = append(sdos,
			SdoValue{OD_PROFILE_DECELERATION, 32, p.ProfileDeceleration},
			SdoValue{OD_QUICK_STOP_DECELERATION, 32, p.QuickStopDeceleration},
		)
	}

	return sdos
}

// drive PDO layout; RxPDO is written by the master, TxPDO by the drive
var (
	driveRxEntries = []PdoEntry{
		{OD_CONTROL_WORD, 16},
		{OD_TARGET_POSITION, 32},
		{OD_TARGET_VELOCITY, 32},
		{OD_TARGET_TORQUE, 16},
		{OD_TORQUE_OFFSET, 16},
		{OD_DIGITAL_OUTPUTS, 32},
	}
	driveTxEntries = []PdoEntry{
		{OD_STATUS_WORD, 16},
		{OD_POSITION_ACTUAL_VAL, 32},
		{OD_VELOCITY_ACTUAL_VALUE, 32},
		{OD_TORQUE_ACTUAL_VALUE, 16},
		{OD_ERROR_CODE, 16},
		{OD_DIGITAL_INPUTS, 32},
	}
	driveSyncs = []SyncManager{
		{Index: 0, Dir: DirOutput},
		{Index: 1, Dir: DirInput},
		{Index: 2, Dir: DirOutput, Pdos: []Pdo{{0x1600, driveRxEntries}}, Watchdog: true},
		{Index: 3, Dir: DirInput, Pdos: []Pdo{{0x1A00, driveTxEntries}}},
	}

	ioTxEntries = []PdoEntry{
		{OD_IO_EMERGENCY_SWITCH, 8},
		{OD_IO_RIGHT_LIMIT, 8},
		{OD_IO_LEFT_LIMIT, 8},
	}
	ioSyncs = []SyncManager{
		{Index: 0, Dir: DirOutput, Watchdog: true},
		{Index: 1, Dir: DirInput, Pdos: []Pdo{{0x1A00, ioTxEntries}}},
	}
)

// DC_ASSIGN_ACTIVATE enables SYNC0 on the drives
const DC_ASSIGN_ACTIVATE = 0x0300
