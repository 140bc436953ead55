package onboard

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/CodedInternet/goecat/onboard/motion"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	CONFIG_VERSION = 1
	DEFAULT_PERIOD = time.Millisecond
)

var (
	ERR_NO_DRIVES     = errors.New("at least one drive must be configured")
	ERR_BAD_PERIOD    = errors.New("period must be positive")
	ERR_COUNTS_NEEDED = errors.New("counts_per_rev is required for every drive in positional modes")
)

type DriveConfig struct {
	fieldbus.SlaveIdentity `yaml:",inline"`
	CountsPerRev           float64 `yaml:"counts_per_rev"`
}

type MonitorConfig struct {
	// ticks between link checks
	Every            uint64 `yaml:"every"`
	FailureThreshold int    `yaml:"failure_threshold"`
	// ticks between reference clock syncs
	ReferenceSyncEvery uint64 `yaml:"reference_sync_every"`
}

type InputConfig struct {
	// samples older than this are treated as neutral, 0 never expires them
	StaleAfter time.Duration `yaml:"stale_after"`
}

// PLCConfig points the status mirror at a Modbus TCP PLC. An empty address
// disables it.
type PLCConfig struct {
	Address  string        `yaml:"address"`
	SlaveID  byte          `yaml:"slave_id"`
	Register uint16        `yaml:"register"`
	Every    time.Duration `yaml:"every"`
}

type RigConfig struct {
	Version int           `yaml:"version"`
	Period  time.Duration `yaml:"period"`

	Drives []DriveConfig            `yaml:"drives"`
	IO     *fieldbus.SlaveIdentity `yaml:"io"`

	Mode    motion.Mode            `yaml:"mode"`
	Motion  motion.Params          `yaml:"motion"`
	Profile fieldbus.ProfileParams `yaml:"profile"`

	Firmware         string        `yaml:"firmware"`
	AllowDevFirmware bool          `yaml:"allow_dev_firmware"`
	Sync0Shift       time.Duration `yaml:"sync0_shift"`

	RT      engine.RTConfig `yaml:"rt"`
	Monitor MonitorConfig   `yaml:"monitor"`
	Input   InputConfig     `yaml:"input"`

	// 0 waits for the drives forever
	EnableTimeout time.Duration `yaml:"enable_timeout"`
	// bounds each activation, 0 runs until deactivated
	MeasureMinutes float64 `yaml:"measure_minutes"`
	ShutdownTicks  int     `yaml:"shutdown_ticks"`
	StatsWindow    uint64  `yaml:"stats_window"`

	PLC PLCConfig `yaml:"plc"`
}

// ParseRigConfig decodes a rig file. Motion and profile parameters left out
// of the file take the stock values of the selected mode.
func ParseRigConfig(data []byte) (config RigConfig, err error) {
	var header struct {
		Version int         `yaml:"version"`
		Mode    motion.Mode `yaml:"mode"`
	}
	if err = yaml.Unmarshal(data, &header); err != nil {
		return
	}

	switch header.Version {
	case CONFIG_VERSION:
		config = RigConfig{
			Period:  DEFAULT_PERIOD,
			Motion:  motion.DefaultParams(header.Mode),
			Profile: fieldbus.DefaultProfile(header.Mode.OpMode()),
			Monitor: MonitorConfig{
				Every:              engine.DEFAULT_MONITOR_EVERY,
				FailureThreshold:   engine.DEFAULT_FAILURE_THRESHOLD,
				ReferenceSyncEvery: 1,
			},
			Input:         InputConfig{StaleAfter: input.DEFAULT_STALE_AFTER},
			ShutdownTicks: engine.DEFAULT_SHUTDOWN_TICKS,
			StatsWindow:   engine.DEFAULT_STATS_WINDOW,
		}
		if err = yaml.Unmarshal(data, &config); err != nil {
			return
		}
	default:
		err = fmt.Errorf("unable to work with version %d", header.Version)
		return
	}

	err = config.Validate()
	return
}

func LoadRigConfig(path string) (config RigConfig, err error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return
	}
	config, err = ParseRigConfig(data)
	return config, errors.Wrap(err, path)
}

func (c RigConfig) Validate() error {
	if len(c.Drives) == 0 {
		return ERR_NO_DRIVES
	}
	if c.Period <= 0 {
		return ERR_BAD_PERIOD
	}
	if c.Mode.Positional() {
		for _, d := range c.Drives {
			if d.CountsPerRev <= 0 {
				return errors.Wrapf(ERR_COUNTS_NEEDED, "drive %q", d.Name)
			}
		}
	}
	// bindings beyond the configured drives are ignored
	for i, b := range c.Motion.Bindings {
		if b.Axis >= input.NUM_AXES {
			return fmt.Errorf("binding %d has an unknown axis", i)
		}
	}
	if c.Motion.DeadZone < 0 || c.Motion.DeadZone >= 1 {
		return fmt.Errorf("dead zone %v is outside [0, 1)", c.Motion.DeadZone)
	}
	return nil
}

func (c RigConfig) Identities() []fieldbus.SlaveIdentity {
	ids := make([]fieldbus.SlaveIdentity, len(c.Drives))
	for i, d := range c.Drives {
		ids[i] = d.SlaveIdentity
	}
	return ids
}

func (c RigConfig) CountsPerRev() []float64 {
	cpr := make([]float64, len(c.Drives))
	for i, d := range c.Drives {
		cpr[i] = d.CountsPerRev
	}
	return cpr
}

func (c RigConfig) Fieldbus() fieldbus.Config {
	return fieldbus.Config{
		Period:             c.Period,
		Drives:             c.Identities(),
		IO:                 c.IO,
		Mode:               c.Mode.OpMode(),
		Profile:            c.Profile,
		FirmwareConstraint: c.Firmware,
		AllowDevFirmware:   c.AllowDevFirmware,
		Sync0Shift:         c.Sync0Shift,
	}
}

func (c RigConfig) Engine() engine.Config {
	return engine.Config{
		Period:             c.Period,
		MonitorEvery:       c.Monitor.Every,
		FailureThreshold:   c.Monitor.FailureThreshold,
		ReferenceSyncEvery: c.Monitor.ReferenceSyncEvery,
		EnableTimeout:      c.EnableTimeout,
		ShutdownTicks:      c.ShutdownTicks,
		MeasureTime:        time.Duration(c.MeasureMinutes * float64(time.Minute)),
		StatsWindow:        c.StatsWindow,
		RT:                 c.RT,
	}
}

func (c RigConfig) Generator() (motion.Generator, error) {
	return motion.New(c.Mode, c.Motion, c.CountsPerRev())
}
