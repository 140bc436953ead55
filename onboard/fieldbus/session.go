package fieldbus

import (
	"bytes"
	"time"

	"github.com/Masterminds/semver"
	ecerr "github.com/CodedInternet/goecat/onboard/errors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// iterations allowed for the bus to reach OP after activation
	OPERATIONAL_ITERATIONS = 10000
	// master/domain state is logged every this many iterations while waiting
	OPERATIONAL_CHECK_EVERY = 1000

	DEV_FIRMWARE = "DEV"
)

var (
	ErrNotConfigured = errors.New("session is not configured")
)

type SlaveIdentity struct {
	Name        string `yaml:"name"`
	Alias       uint16 `yaml:"alias"`
	Position    uint16 `yaml:"position"`
	VendorID    uint32 `yaml:"vendor_id"`
	ProductCode uint32 `yaml:"product_code"`
}

type Config struct {
	Period time.Duration
	Drives []SlaveIdentity
	// optional IO slave carrying limit switches and the emergency switch
	IO      *SlaveIdentity
	Mode    OpMode
	Profile ProfileParams
	// semver constraint on the drive software version, empty accepts anything
	FirmwareConstraint string
	AllowDevFirmware   bool
	Sync0Shift         time.Duration
	// 0 means OPERATIONAL_ITERATIONS
	OperationalIterations int
}

func (c Config) slaveCount() int {
	if c.IO != nil {
		return len(c.Drives) + 1
	}
	return len(c.Drives)
}

type RegisteredEntry struct {
	PdoEntry
	Offset int
}

// SlaveConfig is the resolved configuration of one slave. It is immutable
// once Configure returns.
type SlaveConfig struct {
	SlaveIdentity
	Info     SlaveInfo
	Firmware string
	Handle   SlaveHandle
	Entries  []RegisteredEntry
}

type driveOffsets struct {
	controlWord, targetPosition, targetVelocity, targetTorque, torqueOffset, digitalOutputs int
	statusWord, actualPosition, actualVelocity, actualTorque, errorCode, digitalInputs       int
}

type ioOffsets struct {
	emergency, right, left int
}

// Session owns the master and domain for the lifetime of one configuration.
type Session struct {
	master Master
	cfg    Config
	log    logrus.FieldLogger

	Slaves []SlaveConfig
	drives []driveOffsets
	io     *ioOffsets
	image  []byte

	lastState  MasterState
	lastDomain DomainState

	requested bool
	activated bool

	sleep func(time.Duration)
	now   func() time.Time
}

func NewSession(master Master, cfg Config, log logrus.FieldLogger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.OperationalIterations == 0 {
		cfg.OperationalIterations = OPERATIONAL_ITERATIONS
	}

	return &Session{
		master: master,
		cfg:    cfg,
		log:    log.WithField("component", "fieldbus"),
		sleep:  time.Sleep,
		now:    time.Now,
	}
}

func (s *Session) Drives() int {
	return len(s.cfg.Drives)
}

func (s *Session) Period() time.Duration {
	return s.cfg.Period
}

func (s *Session) Mode() OpMode {
	return s.cfg.Mode
}

func (s *Session) Configured() bool {
	return s.requested
}

func (s *Session) Active() bool {
	return s.activated
}

// Configure brings the master and every slave to a state where the session
// can be activated. On failure the master is released again.
func (s *Session) Configure() (err error) {
	if s.requested {
		return nil
	}

	defer func() {
		if err != nil {
			s.Release()
		}
	}()

	if err = s.master.RequestMaster(); err != nil {
		return ecerr.ConfigError{Kind: ecerr.MasterUnavailable, Slave: -1, Cause: err}
	}
	s.requested = true

	if err = s.master.CreateDomain(); err != nil {
		return ecerr.ConfigError{Kind: ecerr.DomainCreationFailed, Slave: -1, Cause: err}
	}

	s.lastState = s.master.State()
	if s.lastState.SlavesResponding != s.cfg.slaveCount() {
		return ecerr.SlaveCountMismatch{Expected: s.cfg.slaveCount(), Actual: s.lastState.SlavesResponding}
	}

	s.Slaves = make([]SlaveConfig, 0, s.cfg.slaveCount())
	s.drives = make([]driveOffsets, len(s.cfg.Drives))
	for i, id := range s.cfg.Drives {
		sc, err := s.configureDrive(i, id)
		if err != nil {
			return err
		}
		s.Slaves = append(s.Slaves, sc)
	}

	if s.cfg.IO != nil {
		sc, err := s.configureIO(len(s.cfg.Drives), *s.cfg.IO)
		if err != nil {
			return err
		}
		s.Slaves = append(s.Slaves, sc)
	}

	s.log.WithFields(logrus.Fields{
		"slaves": len(s.Slaves),
		"mode":   s.cfg.Mode.String(),
	}).Info("fieldbus configured")

	return nil
}

func (s *Session) configureSlave(index int, id SlaveIdentity, syncs []SyncManager) (sc SlaveConfig, err error) {
	sc.SlaveIdentity = id

	sc.Info, err = s.master.SlaveInfo(int(id.Position))
	if err != nil {
		return sc, ecerr.ConfigError{Kind: ecerr.SlaveConfigFailed, Slave: index, Cause: err}
	}
	s.log.WithFields(logrus.Fields{
		"slave":    index,
		"name":     sc.Info.Name,
		"vendor":   sc.Info.VendorID,
		"product":  sc.Info.ProductCode,
		"revision": sc.Info.Revision,
	}).Info("found slave")

	sc.Handle, err = s.master.ConfigureSlave(id.Alias, id.Position, id.VendorID, id.ProductCode)
	if err != nil {
		return sc, ecerr.ConfigError{Kind: ecerr.SlaveConfigFailed, Slave: index, Cause: err}
	}

	if err = s.master.ConfigurePdos(sc.Handle, syncs); err != nil {
		return sc, ecerr.PdoRegistrationFailed{Slave: index, Entry: "sync manager assignment"}
	}

	return sc, nil
}

func (s *Session) configureDrive(index int, id SlaveIdentity) (sc SlaveConfig, err error) {
	sc, err = s.configureSlave(index, id, driveSyncs)
	if err != nil {
		return
	}

	if sc.Firmware, err = s.checkFirmware(index, int(id.Position)); err != nil {
		return
	}

	for _, sdo := range s.cfg.Profile.Sdos(s.cfg.Mode) {
		if err = s.master.SetSdo(sc.Handle, sdo); err != nil {
			return sc, ecerr.ConfigError{
				Kind:  ecerr.SdoWriteFailed,
				Slave: index,
				Cause: errors.Wrapf(err, "writing %s", sdo.Object),
			}
		}
	}

	offsets := make(map[Object]int, len(driveRxEntries)+len(driveTxEntries))
	for _, entries := range [][]PdoEntry{driveRxEntries, driveTxEntries} {
		for _, entry := range entries {
			off, err := s.register(index, sc.Handle, entry.Object)
			if err != nil {
				return sc, err
			}
			offsets[entry.Object] = off
			sc.Entries = append(sc.Entries, RegisteredEntry{entry, off})
		}
	}
	s.drives[index] = driveOffsets{
		controlWord:    offsets[OD_CONTROL_WORD],
		targetPosition: offsets[OD_TARGET_POSITION],
		targetVelocity: offsets[OD_TARGET_VELOCITY],
		targetTorque:   offsets[OD_TARGET_TORQUE],
		torqueOffset:   offsets[OD_TORQUE_OFFSET],
		digitalOutputs: offsets[OD_DIGITAL_OUTPUTS],
		statusWord:     offsets[OD_STATUS_WORD],
		actualPosition: offsets[OD_POSITION_ACTUAL_VAL],
		actualVelocity: offsets[OD_VELOCITY_ACTUAL_VALUE],
		actualTorque:   offsets[OD_TORQUE_ACTUAL_VALUE],
		errorCode:      offsets[OD_ERROR_CODE],
		digitalInputs:  offsets[OD_DIGITAL_INPUTS],
	}

	err = s.master.ConfigureDcSync(sc.Handle, DcSync{
		AssignActivate: DC_ASSIGN_ACTIVATE,
		Sync0Cycle:     s.cfg.Period,
		Sync0Shift:     s.cfg.Sync0Shift,
	})
	if err != nil {
		return sc, ecerr.ConfigError{Kind: ecerr.DcSyncFailed, Slave: index, Cause: err}
	}

	return sc, nil
}

func (s *Session) configureIO(index int, id SlaveIdentity) (sc SlaveConfig, err error) {
	sc, err = s.configureSlave(index, id, ioSyncs)
	if err != nil {
		return
	}

	var io ioOffsets
	for _, entry := range ioTxEntries {
		off, err := s.register(index, sc.Handle, entry.Object)
		if err != nil {
			return sc, err
		}
		sc.Entries = append(sc.Entries, RegisteredEntry{entry, off})
		switch entry.Object {
		case OD_IO_EMERGENCY_SWITCH:
			io.emergency = off
		case OD_IO_RIGHT_LIMIT:
			io.right = off
		case OD_IO_LEFT_LIMIT:
			io.left = off
		}
	}
	s.io = &io

	return sc, nil
}

func (s *Session) register(index int, h SlaveHandle, obj Object) (int, error) {
	off, err := s.master.RegisterPdoEntry(h, obj)
	if err != nil || off < 0 {
		return -1, ecerr.PdoRegistrationFailed{Slave: index, Entry: obj.String()}
	}
	return off, nil
}

// checkFirmware gates the drive software version against the configured
// constraint.
func (s *Session) checkFirmware(index, position int) (string, error) {
	if s.cfg.FirmwareConstraint == "" {
		return "", nil
	}

	raw, err := s.master.SdoUpload(position, OD_SOFTWARE_VERSION)
	if err != nil {
		return "", ecerr.ConfigError{Kind: ecerr.SlaveConfigFailed, Slave: index, Cause: errors.Wrap(err, "reading software version")}
	}
	version := string(bytes.TrimRight(raw, "\x00 "))

	rejected := ecerr.RevisionRejected{Slave: index, Revision: version, Constraint: s.cfg.FirmwareConstraint}

	if version == DEV_FIRMWARE {
		if s.cfg.AllowDevFirmware {
			s.log.WithField("slave", index).Warn("running development firmware")
			return version, nil
		}
		return version, rejected
	}

	semVer, err := semver.NewVersion(version)
	if err != nil {
		return version, rejected
	}

	constraint, err := semver.NewConstraint(s.cfg.FirmwareConstraint)
	if err != nil {
		return version, errors.Wrap(err, "bad firmware constraint")
	}

	if !constraint.Check(semVer) {
		return version, rejected
	}

	return version, nil
}

// Activate activates the master and waits for every slave to reach OP.
func (s *Session) Activate() error {
	if !s.requested {
		return ecerr.ActivationRejected{Cause: ErrNotConfigured}
	}
	if s.activated {
		return nil
	}

	if err := s.master.Activate(); err != nil {
		return ecerr.ActivationRejected{Cause: err}
	}
	s.activated = true

	image, err := s.master.DomainData()
	if err != nil || image == nil {
		s.Deactivate()
		if err == nil {
			err = errors.New("domain data unavailable")
		}
		return ecerr.ActivationRejected{Cause: err}
	}
	s.image = image

	return s.WaitForOperational()
}

// WaitForOperational runs plain exchange cycles until every slave reports
// OP, so mailbox traffic can progress. On timeout the session is released.
func (s *Session) WaitForOperational() error {
	var ms MasterState

	for i := 0; i < s.cfg.OperationalIterations; i++ {
		s.master.Receive()
		s.master.DomainProcess()
		s.sleep(s.cfg.Period)

		if i%OPERATIONAL_CHECK_EVERY == 0 {
			s.CheckMasterState()
			s.CheckDomainState()
		}

		now := s.now().UnixNano()
		s.master.SyncReferenceClock(now)
		s.master.SyncSlaveClocks()
		s.master.ApplicationTime(now)

		s.master.DomainQueue()
		s.master.Send()

		ms = s.master.State()
		if ms.AlStates == AL_STATE_OP {
			s.lastState = ms
			s.log.WithField("iterations", i+1).Info("all slaves operational")
			return nil
		}
	}

	s.log.WithField("al_states", ms.AlStates).Error("timed out waiting for operational mode")
	s.Release()

	return ecerr.OperationalTimeout{Iterations: s.cfg.OperationalIterations, AlStates: ms.AlStates}
}

// CheckMasterState logs changes of the master state and reports a LinkError
// while the link is down or slaves are missing.
func (s *Session) CheckMasterState() error {
	ms := s.master.State()
	last := s.lastState
	s.lastState = ms

	if ms.SlavesResponding != last.SlavesResponding {
		s.log.WithField("responding", ms.SlavesResponding).Info("slave count changed")
	}
	if ms.AlStates != last.AlStates {
		s.log.WithField("al_states", ms.AlStates).Info("AL states changed")
	}
	if ms.LinkUp != last.LinkUp {
		s.log.WithField("link_up", ms.LinkUp).Info("link changed")
	}

	if !ms.LinkUp {
		return ecerr.LinkError{LinkUp: false, Responding: ms.SlavesResponding, Expected: s.cfg.slaveCount()}
	}
	if ms.SlavesResponding < s.cfg.slaveCount() {
		return ecerr.LinkError{LinkUp: true, Responding: ms.SlavesResponding, Expected: s.cfg.slaveCount()}
	}

	return nil
}

func (s *Session) CheckDomainState() DomainState {
	ds := s.master.DomainState()
	if ds.WorkingCounter != s.lastDomain.WorkingCounter {
		s.log.WithField("wc", ds.WorkingCounter).Debug("domain working counter changed")
	}
	if ds.WcState != s.lastDomain.WcState {
		s.log.WithField("wc_state", ds.WcState).Info("domain state changed")
	}
	s.lastDomain = ds
	return ds
}

// Receive fetches and processes the inbound frame.
func (s *Session) Receive() {
	s.master.Receive()
	s.master.DomainProcess()
}

func (s *Session) ApplicationTime(ns int64) {
	s.master.ApplicationTime(ns)
}

// SyncClocks synchronises the slave clocks, and the reference clock too when
// reference is set.
func (s *Session) SyncClocks(ns int64, reference bool) {
	if reference {
		s.master.SyncReferenceClock(ns)
	}
	s.master.SyncSlaveClocks()
}

// Send queues the domain and sends the outbound frame.
func (s *Session) Send() {
	s.master.DomainQueue()
	s.master.Send()
}

// Deactivate stops cyclic exchange but keeps the master and slave
// configuration. Safe to call more than once.
func (s *Session) Deactivate() {
	if !s.activated {
		return
	}
	s.master.DeactivateSlaves()
	s.activated = false
	s.image = nil
	s.log.Info("fieldbus deactivated")
}

// Release deactivates and gives up the master. Safe to call more than once.
func (s *Session) Release() {
	s.Deactivate()
	if !s.requested {
		return
	}
	s.master.Deactivate()
	s.master.Release()
	s.requested = false
	s.Slaves = nil
	s.drives = nil
	s.io = nil
	s.lastState = MasterState{}
	s.lastDomain = DomainState{}
	s.log.Info("fieldbus released")
}
