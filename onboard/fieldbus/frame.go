package fieldbus

type DriveFeedback struct {
	StatusWord    uint16
	Position      int32
	Velocity      int32
	Torque        int16
	ErrorCode     uint16
	DigitalInputs uint32
}

// ReceivedFrame is the decoded inbound process data of one tick.
type ReceivedFrame struct {
	Tick   uint64
	Drives []DriveFeedback

	// raw IO slave values; the switches are normally closed so 0 means tripped
	LeftLimit       uint8
	RightLimit      uint8
	EmergencySwitch uint8

	AlStates uint8
}

func NewReceivedFrame(drives int) *ReceivedFrame {
	return &ReceivedFrame{
		Drives:          make([]DriveFeedback, drives),
		LeftLimit:       1,
		RightLimit:      1,
		EmergencySwitch: 1,
	}
}

func (f *ReceivedFrame) LimitTripped() bool {
	return f.LeftLimit == 0 || f.RightLimit == 0
}

func (f *ReceivedFrame) EmergencyPressed() bool {
	return f.EmergencySwitch == 0
}

type DriveCommand struct {
	ControlWord    uint16
	TargetPosition int32
	TargetVelocity int32
	TargetTorque   int16
	DigitalOutputs uint32
}

// CommandFrame is the outbound process data of one tick.
type CommandFrame struct {
	Tick   uint64
	Drives []DriveCommand
}

func NewCommandFrame(drives int) *CommandFrame {
	return &CommandFrame{
		Drives: make([]DriveCommand, drives),
	}
}
