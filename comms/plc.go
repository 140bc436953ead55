package comms

import (
	"context"
	"time"

	"github.com/CodedInternet/goecat/onboard"
	"github.com/CodedInternet/goecat/onboard/engine"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// status block layout, one holding register per slot
const (
	PLC_SLOT_LIFECYCLE = 0
	PLC_SLOT_SAFETY    = 1
	PLC_SLOT_FLAGS     = 2
	PLC_SLOT_PHASE     = 3
	PLC_SLOT_DRIVES    = 4

	PLC_SLOTS_PER_DRIVE = 3 // state, status word, error code

	PLC_FLAG_EMERGENCY = 1 << 0
	PLC_FLAG_INHIBIT   = 1 << 1
	PLC_FLAG_LIMIT     = 1 << 2
	PLC_FLAG_INPUT     = 1 << 3

	DEFAULT_PLC_EVERY   = 100 * time.Millisecond
	DEFAULT_PLC_TIMEOUT = time.Second
)

// lifecycle codes follow the managed node numbering
var lifecycleCodes = map[lifecycle.State]uint16{
	lifecycle.Unconfigured:    1,
	lifecycle.Inactive:        2,
	lifecycle.Active:          3,
	lifecycle.Finalized:       4,
	lifecycle.Configuring:     10,
	lifecycle.CleaningUp:      11,
	lifecycle.ShuttingDown:    12,
	lifecycle.Activating:      13,
	lifecycle.Deactivating:    14,
	lifecycle.ErrorProcessing: 15,
}

type registerWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) (results []byte, err error)
}

// PLCMirror copies the rig status into a block of holding registers on a
// Modbus TCP PLC.
type PLCMirror struct {
	cfg        onboard.PLCConfig
	device     onboard.Device
	supervisor *Supervisor
	log        logrus.FieldLogger

	client  registerWriter
	handler *modbus.TCPClientHandler

	last []uint16
}

func NewPLCMirror(cfg onboard.PLCConfig, device onboard.Device, supervisor *Supervisor, log logrus.FieldLogger) (m *PLCMirror, err error) {
	if cfg.Address == "" {
		return nil, errors.New("plc address required")
	}

	handler := modbus.NewTCPClientHandler(cfg.Address)
	handler.SlaveId = cfg.SlaveID
	handler.Timeout = DEFAULT_PLC_TIMEOUT
	if err = handler.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connecting to plc at %s", cfg.Address)
	}

	m = newPLCMirror(cfg, device, supervisor, modbus.NewClient(handler), log)
	m.handler = handler
	return
}

func newPLCMirror(cfg onboard.PLCConfig, device onboard.Device, supervisor *Supervisor, client registerWriter, log logrus.FieldLogger) *PLCMirror {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Every <= 0 {
		cfg.Every = DEFAULT_PLC_EVERY
	}
	return &PLCMirror{
		cfg:        cfg,
		device:     device,
		supervisor: supervisor,
		client:     client,
		log:        log.WithField("component", "plc"),
	}
}

// EncodeStatus lays out the status block, three slots per drive after the header.
func EncodeStatus(status onboard.RigStatus, safety SafetyState) []uint16 {
	regs := make([]uint16, PLC_SLOT_DRIVES+PLC_SLOTS_PER_DRIVE*len(status.Drives))
	regs[PLC_SLOT_LIFECYCLE] = lifecycleCodes[status.Lifecycle.State]
	regs[PLC_SLOT_SAFETY] = uint16(safety)

	var flags uint16
	if status.Emergency {
		flags |= PLC_FLAG_EMERGENCY
	}
	if status.Inhibit {
		flags |= PLC_FLAG_INHIBIT
	}

	t := status.Telemetry
	if t != nil {
		if t.Emergency {
			flags |= PLC_FLAG_EMERGENCY
		}
		if t.Limit {
			flags |= PLC_FLAG_LIMIT
		}
		if t.InputFresh {
			flags |= PLC_FLAG_INPUT
		}
		regs[PLC_SLOT_PHASE] = uint16(t.Phase)

		for i := range status.Drives {
			if i >= len(t.Feedback) {
				break
			}
			slot := PLC_SLOT_DRIVES + i*PLC_SLOTS_PER_DRIVE
			regs[slot] = uint16(t.States[i])
			regs[slot+1] = t.Feedback[i].StatusWord
			regs[slot+2] = t.Feedback[i].ErrorCode
		}
	} else {
		regs[PLC_SLOT_PHASE] = uint16(engine.PhaseIdle)
	}
	regs[PLC_SLOT_FLAGS] = flags

	return regs
}

// WriteOnce writes the current status if it changed since the last write.
func (m *PLCMirror) WriteOnce() error {
	safety := SAFETY_OK
	if m.supervisor != nil {
		safety = m.supervisor.State()
	}
	regs := EncodeStatus(m.device.Status(), safety)

	if equalRegisters(regs, m.last) {
		return nil
	}

	if _, err := m.client.WriteMultipleRegisters(m.cfg.Register, uint16(len(regs)), packRegisters(regs)); err != nil {
		m.last = nil
		return err
	}
	m.last = regs
	return nil
}

// Run mirrors the status until ctx is done. Write failures are logged and
// retried on the next interval.
func (m *PLCMirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Every)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := m.WriteOnce()
		if err != nil && !failing {
			m.log.WithError(err).Warn("unable to update plc")
		} else if err == nil && failing {
			m.log.Info("plc updates resumed")
		}
		failing = err != nil
	}
}

func (m *PLCMirror) Close() error {
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

func equalRegisters(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// packRegisters encodes registers big-endian as sent on the wire.
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
