package drive

// control words
const (
	SM_GO_SWITCH_ON_DISABLE  = 0x0000
	SM_QUICKSTOP             = 0x0002
	SM_GO_READY_TO_SWITCH_ON = 0x0006
	SM_GO_SWITCH_ON          = 0x0007
	SM_GO_ENABLE             = 0x000F
	SM_RUN                   = 0x001F
	SM_RELATIVE_POS          = 0x005F
	SM_FULL_RESET            = 0x0080
)

// ControlWord returns the word that advances a drive in state s towards
// OperationEnabled, or keeps it running once it is there.
func ControlWord(s State, status uint16) uint16 {
	switch s {
	case Fault:
		return SM_FULL_RESET
	case SwitchOnDisabled:
		return SM_GO_READY_TO_SWITCH_ON
	case ReadyToSwitchOn:
		return SM_GO_SWITCH_ON
	case SwitchedOn:
		return SM_GO_ENABLE
	case OperationEnabled:
		if TargetReached(status) {
			return SM_RELATIVE_POS
		}
		return SM_RUN
	case QuickStopActive:
		return SM_GO_SWITCH_ON_DISABLE
	}
	return SM_GO_READY_TO_SWITCH_ON
}
