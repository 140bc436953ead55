package fieldbus

import (
	"encoding/binary"
)

// Decode reads the process data image into rx. It does not allocate.
func (s *Session) Decode(rx *ReceivedFrame) {
	img := s.image
	if img == nil {
		return
	}

	for i := range s.drives {
		o := &s.drives[i]
		d := &rx.Drives[i]
		d.StatusWord = binary.LittleEndian.Uint16(img[o.statusWord:])
		d.Position = int32(binary.LittleEndian.Uint32(img[o.actualPosition:]))
		d.Velocity = int32(binary.LittleEndian.Uint32(img[o.actualVelocity:]))
		d.Torque = int16(binary.LittleEndian.Uint16(img[o.actualTorque:]))
		d.ErrorCode = binary.LittleEndian.Uint16(img[o.errorCode:])
		d.DigitalInputs = binary.LittleEndian.Uint32(img[o.digitalInputs:])
	}

	if s.io != nil {
		rx.EmergencySwitch = img[s.io.emergency]
		rx.RightLimit = img[s.io.right]
		rx.LeftLimit = img[s.io.left]
	} else {
		rx.EmergencySwitch = 1
		rx.RightLimit = 1
		rx.LeftLimit = 1
	}

	rx.AlStates = s.lastState.AlStates
}

// Encode writes cmd into the process data image. It does not allocate.
func (s *Session) Encode(cmd *CommandFrame) {
	img := s.image
	if img == nil {
		return
	}

	for i := range s.drives {
		o := &s.drives[i]
		d := &cmd.Drives[i]
		binary.LittleEndian.PutUint16(img[o.controlWord:], d.ControlWord)
		binary.LittleEndian.PutUint32(img[o.targetPosition:], uint32(d.TargetPosition))
		binary.LittleEndian.PutUint32(img[o.targetVelocity:], uint32(d.TargetVelocity))
		binary.LittleEndian.PutUint16(img[o.targetTorque:], uint16(d.TargetTorque))
		binary.LittleEndian.PutUint16(img[o.torqueOffset:], 0)
		binary.LittleEndian.PutUint32(img[o.digitalOutputs:], d.DigitalOutputs)
	}
}
