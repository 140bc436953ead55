package motion

import (
	"fmt"
	"strings"

	"github.com/CodedInternet/goecat/onboard/fieldbus"
)

type Mode uint8

const (
	Position Mode = iota
	Velocity
	CyclicPosition
	CyclicVelocity
	CyclicTorque
)

var modeNames = map[Mode]string{
	Position:       "position",
	Velocity:       "velocity",
	CyclicPosition: "cyclic_position",
	CyclicVelocity: "cyclic_velocity",
	CyclicTorque:   "cyclic_torque",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

func ParseMode(name string) (Mode, error) {
	name = strings.ToLower(name)
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown motion mode %q", name)
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseMode(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// OpMode is the drive operation mode the generator needs.
func (m Mode) OpMode() fieldbus.OpMode {
	switch m {
	case Position:
		return fieldbus.OpModeProfilePosition
	case Velocity:
		return fieldbus.OpModeProfileVelocity
	case CyclicPosition:
		return fieldbus.OpModeCyclicPosition
	case CyclicTorque:
		return fieldbus.OpModeCyclicTorque
	}
	return fieldbus.OpModeCyclicVelocity
}

// Positional modes command target positions rather than rates.
func (m Mode) Positional() bool {
	return m == Position || m == CyclicPosition
}
