package fieldbus

import "time"

// SlaveHandle is returned by Master.ConfigureSlave and identifies the slave
// configuration in later calls.
type SlaveHandle int

type SlaveInfo struct {
	Alias       uint16
	Position    uint16
	VendorID    uint32
	ProductCode uint32
	Revision    uint32
	Name        string
}

type MasterState struct {
	SlavesResponding int
	AlStates         uint8
	LinkUp           bool
}

type WcState uint8

const (
	WC_ZERO WcState = iota
	WC_INCOMPLETE
	WC_COMPLETE
)

type DomainState struct {
	WorkingCounter int
	WcState        WcState
}

type SdoValue struct {
	Object Object
	Bits   uint8
	Value  uint32
}

type PdoEntry struct {
	Object Object
	Bits   uint8
}

type Pdo struct {
	Index   uint16
	Entries []PdoEntry
}

type SyncDirection uint8

const (
	DirOutput SyncDirection = iota
	DirInput
)

type SyncManager struct {
	Index    uint8
	Dir      SyncDirection
	Pdos     []Pdo
	Watchdog bool
}

type DcSync struct {
	AssignActivate uint16
	Sync0Cycle     time.Duration
	Sync0Shift     time.Duration
}

// Master is the fieldbus master driver. Every call is synchronous and is
// expected to return without waiting on the wire; callers treat failures as
// fatal and never retry them silently.
type Master interface {
	RequestMaster() error
	CreateDomain() error
	SlaveInfo(position int) (SlaveInfo, error)
	SdoUpload(position int, obj Object) ([]byte, error)
	ConfigureSlave(alias, position uint16, vendorID, productCode uint32) (SlaveHandle, error)
	SetSdo(h SlaveHandle, v SdoValue) error
	ConfigurePdos(h SlaveHandle, syncs []SyncManager) error
	// RegisterPdoEntry returns the byte offset of the entry in the domain
	// image, negative on failure.
	RegisterPdoEntry(h SlaveHandle, obj Object) (int, error)
	ConfigureDcSync(h SlaveHandle, dc DcSync) error
	Activate() error
	DomainData() ([]byte, error)

	Receive()
	DomainProcess()
	DomainQueue()
	Send()

	State() MasterState
	DomainState() DomainState

	ApplicationTime(ns int64)
	SyncReferenceClock(ns int64)
	SyncSlaveClocks()

	DeactivateSlaves()
	Deactivate()
	Release()
}
