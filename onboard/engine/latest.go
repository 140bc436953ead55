package engine

import (
	"sync"
	"sync/atomic"

	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
)

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseEnable
	PhaseRun
	PhaseShutdown
)

func (p Phase) String() string {
	switch p {
	case PhaseEnable:
		return "enable"
	case PhaseRun:
		return "run"
	case PhaseShutdown:
		return "shutdown"
	}
	return "idle"
}

// Telemetry is the published view of one tick.
type Telemetry struct {
	Tick      uint64
	Phase     Phase
	States    []drive.State
	Feedback  []fieldbus.DriveFeedback
	Commands  []fieldbus.DriveCommand
	AlStates  uint8
	Emergency bool
	Inhibit   bool
	Limit     bool
	// consecutive failed link checks
	LinkFailures int
	InputFresh   bool
	Stats        Stats
}

func NewTelemetry(drives int) *Telemetry {
	return &Telemetry{
		States:   make([]drive.State, drives),
		Feedback: make([]fieldbus.DriveFeedback, drives),
		Commands: make([]fieldbus.DriveCommand, drives),
	}
}

// CopyFrom copies src into t, reusing t's slices when they fit.
func (t *Telemetry) CopyFrom(src *Telemetry) {
	states, feedback, commands := t.States, t.Feedback, t.Commands
	*t = *src

	if len(states) != len(src.States) {
		states = make([]drive.State, len(src.States))
	}
	if len(feedback) != len(src.Feedback) {
		feedback = make([]fieldbus.DriveFeedback, len(src.Feedback))
	}
	if len(commands) != len(src.Commands) {
		commands = make([]fieldbus.DriveCommand, len(src.Commands))
	}
	copy(states, src.States)
	copy(feedback, src.Feedback)
	copy(commands, src.Commands)
	t.States, t.Feedback, t.Commands = states, feedback, commands
}

const latestDirty = 1 << 2

// Latest is a single-slot, keep-latest cell between the cyclic thread and
// its readers. The writer fills a back buffer and swaps it with the shared
// middle slot; a reader swaps the middle slot for its front buffer. Older
// samples are overwritten, never queued.
type Latest struct {
	bufs   [3]Telemetry
	middle atomic.Uint32

	// owned by the writer
	back uint32

	readMu sync.Mutex
	front  uint32

	notify chan struct{}
}

func NewLatest(drives int) *Latest {
	l := &Latest{
		back:   0,
		front:  2,
		notify: make(chan struct{}, 1),
	}
	for i := range l.bufs {
		l.bufs[i] = *NewTelemetry(drives)
	}
	l.middle.Store(1)
	return l
}

// Back is the buffer the writer fills before calling Publish.
func (l *Latest) Back() *Telemetry {
	return &l.bufs[l.back]
}

// Publish makes the back buffer visible to readers.
func (l *Latest) Publish() {
	prev := l.middle.Swap(l.back | latestDirty)
	l.back = prev &^ latestDirty

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Read copies the newest sample into dst and reports whether it is newer
// than the previous Read.
func (l *Latest) Read(dst *Telemetry) (fresh bool) {
	l.readMu.Lock()
	defer l.readMu.Unlock()

	if l.middle.Load()&latestDirty != 0 {
		prev := l.middle.Swap(l.front)
		l.front = prev &^ latestDirty
		fresh = true
	}
	dst.CopyFrom(&l.bufs[l.front])
	return
}

// Updates signals after every Publish. Signals coalesce.
func (l *Latest) Updates() <-chan struct{} {
	return l.notify
}
