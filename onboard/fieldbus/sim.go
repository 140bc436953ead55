package fieldbus

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

const (
	SIM_VENDOR_ID    = 0x0000009A
	SIM_PRODUCT_CODE = 0x00030924
	SIM_FIRMWARE     = "1.2.0"

	// exchange cycles between activation and every slave reporting OP
	SIM_OP_DELAY = 3
	// position step per cycle of the simulated profile generator
	SIM_PROFILE_STEP = 2000
)

// simulated DS402 status words
const (
	simSwitchOnDisabled = 0x0040
	simReadyToSwitchOn  = 0x0021
	simSwitchedOn       = 0x0023
	simOperationEnabled = 0x0027
	simQuickStopActive  = 0x0007
	simFault            = 0x0008
	simTargetReached    = 0x0400
)

var (
	ErrSimNotRequested = errors.New("sim: master not requested")
	ErrSimUnknownEntry = errors.New("sim: entry not mapped")
)

type simDrive struct {
	info      SlaveInfo
	firmware  string
	status    uint16
	mode      OpMode
	errorCode uint16
	hold      int

	position int32
	velocity int32
	torque   int16
	target   int32
	reached  bool

	lastControl uint16
}

type simEntry struct {
	slave  int
	object Object
	bits   uint8
	offset int
}

// SimulatedMaster is an in-process Master. Its drives follow the CiA 402
// power state machine in response to control words and integrate their
// targets every exchange cycle.
type SimulatedMaster struct {
	mu sync.Mutex

	drives []*simDrive
	ioInfo *SlaveInfo
	io     [3]uint8 // emergency, right, left

	requested bool
	domain    bool
	active    bool
	alStates  uint8
	cycles    int
	opDelay   int

	responding     int
	linkUp         bool
	failChecks     int
	neverOperation bool

	handles  []int
	bits     map[int]map[Object]uint8
	entries  []simEntry
	size     int
	image    []byte
	cmd      []DriveCommand
	failures map[string]error

	appTime int64
}

func NewSimulatedMaster(drives []SlaveIdentity, io *SlaveIdentity) *SimulatedMaster {
	m := &SimulatedMaster{
		opDelay:  SIM_OP_DELAY,
		linkUp:   true,
		io:       [3]uint8{1, 1, 1},
		bits:     make(map[int]map[Object]uint8),
		failures: make(map[string]error),
	}

	for i, id := range drives {
		m.drives = append(m.drives, &simDrive{
			info: SlaveInfo{
				Alias:       id.Alias,
				Position:    uint16(i),
				VendorID:    id.VendorID,
				ProductCode: id.ProductCode,
				Revision:    0x00010002,
				Name:        fmt.Sprintf("sim drive %d", i),
			},
			firmware: SIM_FIRMWARE,
			status:   simSwitchOnDisabled,
			mode:     OpModeCyclicVelocity,
		})
	}

	if io != nil {
		m.ioInfo = &SlaveInfo{
			Alias:       io.Alias,
			Position:    uint16(len(drives)),
			VendorID:    io.VendorID,
			ProductCode: io.ProductCode,
			Name:        "sim io",
		}
	}

	m.responding = m.slaveCount()

	return m
}

func (m *SimulatedMaster) slaveCount() int {
	if m.ioInfo != nil {
		return len(m.drives) + 1
	}
	return len(m.drives)
}

//---
// Scripting
//---

// Fail makes the named Master method return err until cleared with a nil err.
func (m *SimulatedMaster) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

func (m *SimulatedMaster) failure(method string) error {
	return m.failures[method]
}

// HoldDrive makes drive ignore control words for the next cycles.
func (m *SimulatedMaster) HoldDrive(drive, cycles int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drives[drive].hold = cycles
}

func (m *SimulatedMaster) InjectFault(drive int, code uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.drives[drive]
	d.status = simFault
	d.errorCode = code
	d.velocity = 0
	d.torque = 0
}

func (m *SimulatedMaster) SetLinkUp(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkUp = up
}

// FailStateChecks makes the next n state queries report the link as down.
func (m *SimulatedMaster) FailStateChecks(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failChecks = n
}

func (m *SimulatedMaster) SetResponding(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responding = n
}

func (m *SimulatedMaster) SetNeverOperational(never bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.neverOperation = never
}

func (m *SimulatedMaster) SetFirmware(drive int, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drives[drive].firmware = version
}

// SetIO sets the raw IO slave inputs. The switches are normally closed.
func (m *SimulatedMaster) SetIO(emergency, left, right uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.io = [3]uint8{emergency, right, left}
}

func (m *SimulatedMaster) DriveStatus(drive int) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drives[drive].status
}

func (m *SimulatedMaster) DrivePosition(drive int) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drives[drive].position
}

func (m *SimulatedMaster) DriveMode(drive int) OpMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drives[drive].mode
}

func (m *SimulatedMaster) Cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

func (m *SimulatedMaster) Requested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested
}

//---
// Master implementation
//---

func (m *SimulatedMaster) RequestMaster() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RequestMaster"); err != nil {
		return err
	}
	m.requested = true
	m.alStates = AL_STATE_PREOP
	return nil
}

func (m *SimulatedMaster) CreateDomain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateDomain"); err != nil {
		return err
	}
	if !m.requested {
		return ErrSimNotRequested
	}
	m.domain = true
	return nil
}

func (m *SimulatedMaster) SlaveInfo(position int) (SlaveInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if position < len(m.drives) {
		return m.drives[position].info, nil
	}
	if m.ioInfo != nil && position == len(m.drives) {
		return *m.ioInfo, nil
	}
	return SlaveInfo{}, fmt.Errorf("sim: no slave at position %d", position)
}

func (m *SimulatedMaster) SdoUpload(position int, obj Object) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if position >= len(m.drives) {
		return nil, fmt.Errorf("sim: no drive at position %d", position)
	}
	if obj != OD_SOFTWARE_VERSION {
		return nil, errors.Wrap(ErrSimUnknownEntry, obj.String())
	}
	return append([]byte(m.drives[position].firmware), 0), nil
}

func (m *SimulatedMaster) ConfigureSlave(alias, position uint16, vendorID, productCode uint32) (SlaveHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ConfigureSlave"); err != nil {
		return -1, err
	}
	if int(position) >= m.slaveCount() {
		return -1, fmt.Errorf("sim: no slave at position %d", position)
	}
	m.handles = append(m.handles, int(position))
	return SlaveHandle(len(m.handles) - 1), nil
}

func (m *SimulatedMaster) SetSdo(h SlaveHandle, v SdoValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("SetSdo"); err != nil {
		return err
	}
	slave := m.handles[h]
	if v.Object == OD_OPERATION_MODE && slave < len(m.drives) {
		m.drives[slave].mode = OpMode(int8(v.Value))
	}
	return nil
}

func (m *SimulatedMaster) ConfigurePdos(h SlaveHandle, syncs []SyncManager) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("ConfigurePdos"); err != nil {
		return err
	}
	bits := make(map[Object]uint8)
	for _, sm := range syncs {
		for _, pdo := range sm.Pdos {
			for _, entry := range pdo.Entries {
				bits[entry.Object] = entry.Bits
			}
		}
	}
	m.bits[int(h)] = bits
	return nil
}

func (m *SimulatedMaster) RegisterPdoEntry(h SlaveHandle, obj Object) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("RegisterPdoEntry"); err != nil {
		return -1, err
	}
	bits, ok := m.bits[int(h)][obj]
	if !ok {
		return -1, errors.Wrap(ErrSimUnknownEntry, obj.String())
	}
	off := m.size
	m.size += int(bits+7) / 8
	m.entries = append(m.entries, simEntry{m.handles[h], obj, bits, off})
	return off, nil
}

func (m *SimulatedMaster) ConfigureDcSync(h SlaveHandle, dc DcSync) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure("ConfigureDcSync")
}

func (m *SimulatedMaster) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("Activate"); err != nil {
		return err
	}
	if !m.requested || !m.domain {
		return ErrSimNotRequested
	}
	if m.image == nil {
		m.image = make([]byte, m.size)
	}
	m.active = true
	m.cycles = 0
	m.alStates = AL_STATE_SAFEOP
	return nil
}

func (m *SimulatedMaster) DomainData() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil, errors.New("sim: master not active")
	}
	return m.image, nil
}

func (m *SimulatedMaster) Receive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}

	for _, e := range m.entries {
		if e.slave >= len(m.drives) {
			m.writeIO(e)
			continue
		}
		d := m.drives[e.slave]
		buf := m.image[e.offset:]
		switch e.object {
		case OD_STATUS_WORD:
			status := d.status
			if d.status == simOperationEnabled && d.reached {
				status |= simTargetReached
			}
			binary.LittleEndian.PutUint16(buf, status)
		case OD_POSITION_ACTUAL_VAL:
			binary.LittleEndian.PutUint32(buf, uint32(d.position))
		case OD_VELOCITY_ACTUAL_VALUE:
			binary.LittleEndian.PutUint32(buf, uint32(d.velocity))
		case OD_TORQUE_ACTUAL_VALUE:
			binary.LittleEndian.PutUint16(buf, uint16(d.torque))
		case OD_ERROR_CODE:
			binary.LittleEndian.PutUint16(buf, d.errorCode)
		case OD_DIGITAL_INPUTS:
			binary.LittleEndian.PutUint32(buf, 0)
		}
	}
}

func (m *SimulatedMaster) writeIO(e simEntry) {
	switch e.object {
	case OD_IO_EMERGENCY_SWITCH:
		m.image[e.offset] = m.io[0]
	case OD_IO_RIGHT_LIMIT:
		m.image[e.offset] = m.io[1]
	case OD_IO_LEFT_LIMIT:
		m.image[e.offset] = m.io[2]
	}
}

func (m *SimulatedMaster) DomainProcess() {}

func (m *SimulatedMaster) DomainQueue() {}

// Send consumes the outbound image and advances every drive by one cycle.
func (m *SimulatedMaster) Send() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}

	m.cycles++
	if m.cycles >= m.opDelay && !m.neverOperation {
		m.alStates = AL_STATE_OP
	}
	if m.alStates != AL_STATE_OP {
		return
	}

	if len(m.cmd) != len(m.drives) {
		m.cmd = make([]DriveCommand, len(m.drives))
	}
	cmd := m.cmd
	for i := range cmd {
		cmd[i] = DriveCommand{}
	}
	for _, e := range m.entries {
		if e.slave >= len(m.drives) {
			continue
		}
		buf := m.image[e.offset:]
		c := &cmd[e.slave]
		switch e.object {
		case OD_CONTROL_WORD:
			c.ControlWord = binary.LittleEndian.Uint16(buf)
		case OD_TARGET_POSITION:
			c.TargetPosition = int32(binary.LittleEndian.Uint32(buf))
		case OD_TARGET_VELOCITY:
			c.TargetVelocity = int32(binary.LittleEndian.Uint32(buf))
		case OD_TARGET_TORQUE:
			c.TargetTorque = int16(binary.LittleEndian.Uint16(buf))
		}
	}

	for i, d := range m.drives {
		d.step(cmd[i])
	}
}

func (d *simDrive) step(c DriveCommand) {
	ctrl := c.ControlWord
	defer func() { d.lastControl = ctrl }()

	if d.hold > 0 {
		d.hold--
		return
	}

	switch d.status {
	case simFault:
		if ctrl&0x80 != 0 {
			d.status = simSwitchOnDisabled
			d.errorCode = 0
		}
	case simSwitchOnDisabled:
		if ctrl&0x87 == 0x06 {
			d.status = simReadyToSwitchOn
		}
	case simReadyToSwitchOn:
		switch {
		case ctrl&0x02 == 0:
			d.status = simSwitchOnDisabled
		case ctrl&0x87 == 0x07:
			d.status = simSwitchedOn
		}
	case simSwitchedOn:
		switch {
		case ctrl&0x02 == 0:
			d.status = simSwitchOnDisabled
		case ctrl&0x8F == 0x0F:
			d.status = simOperationEnabled
			d.target = d.position
		case ctrl&0x87 == 0x06:
			d.status = simReadyToSwitchOn
		}
	case simOperationEnabled:
		switch {
		case ctrl&0x02 == 0:
			d.status = simSwitchOnDisabled
		case ctrl&0x06 == 0x02:
			d.status = simQuickStopActive
		case ctrl&0x8F == 0x07:
			d.status = simSwitchedOn
		case ctrl&0x87 == 0x06:
			d.status = simReadyToSwitchOn
		}
	case simQuickStopActive:
		if ctrl&0x02 == 0 {
			d.status = simSwitchOnDisabled
		}
	}

	if d.status != simOperationEnabled {
		d.velocity = 0
		d.torque = 0
		return
	}

	switch d.mode {
	case OpModeProfilePosition:
		// new set-point on the rising edge of bit 4
		if ctrl&0x10 != 0 && d.lastControl&0x10 == 0 {
			d.target = c.TargetPosition
		}
		d.velocity = approach(&d.position, d.target, SIM_PROFILE_STEP)
		d.reached = d.position == d.target
	case OpModeCyclicPosition:
		d.velocity = c.TargetPosition - d.position
		d.position = c.TargetPosition
		d.reached = true
	case OpModeProfileVelocity, OpModeCyclicVelocity:
		d.velocity = c.TargetVelocity
		d.position += d.velocity
	case OpModeCyclicTorque:
		d.torque = c.TargetTorque
		d.velocity += int32(d.torque) / 100
		d.position += d.velocity
	}
}

func approach(pos *int32, target, step int32) int32 {
	delta := target - *pos
	if delta > step {
		delta = step
	} else if delta < -step {
		delta = -step
	}
	*pos += delta
	return delta
}

func (m *SimulatedMaster) State() MasterState {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := MasterState{
		SlavesResponding: m.responding,
		AlStates:         m.alStates,
		LinkUp:           m.linkUp,
	}
	if m.failChecks > 0 {
		m.failChecks--
		ms.LinkUp = false
	}
	if !ms.LinkUp {
		ms.SlavesResponding = 0
	}
	return ms
}

func (m *SimulatedMaster) DomainState() DomainState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active || m.alStates != AL_STATE_OP {
		return DomainState{WcState: WC_ZERO}
	}
	return DomainState{WorkingCounter: 3 * m.slaveCount(), WcState: WC_COMPLETE}
}

func (m *SimulatedMaster) ApplicationTime(ns int64) {
	m.mu.Lock()
	m.appTime = ns
	m.mu.Unlock()
}

func (m *SimulatedMaster) SyncReferenceClock(ns int64) {}

func (m *SimulatedMaster) SyncSlaveClocks() {}

func (m *SimulatedMaster) DeactivateSlaves() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	if m.requested {
		m.alStates = AL_STATE_PREOP
	}
	for _, d := range m.drives {
		if d.status != simFault {
			d.status = simSwitchOnDisabled
		}
		d.velocity = 0
		d.torque = 0
	}
}

func (m *SimulatedMaster) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.alStates = AL_STATE_INIT
}

func (m *SimulatedMaster) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = false
	m.domain = false
	m.active = false
	m.alStates = 0
	m.handles = nil
	m.bits = make(map[int]map[Object]uint8)
	m.entries = nil
	m.size = 0
	m.image = nil
}
