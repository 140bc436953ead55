package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/CodedInternet/goecat/onboard/drive"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/CodedInternet/goecat/onboard/journal"
	"github.com/CodedInternet/goecat/onboard/motion"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_SHUTDOWN_TICKS = 1
	DEFAULT_STATS_WINDOW   = 1000
)

var (
	ErrEnableAborted = errors.New("enable phase aborted")
	ErrEnableTimeout = errors.New("drives did not reach operation enabled in time")
)

// Bus is the part of the fieldbus session the loop drives every tick.
type Bus interface {
	Drives() int
	Receive()
	Decode(rx *fieldbus.ReceivedFrame)
	Encode(cmd *fieldbus.CommandFrame)
	ApplicationTime(ns int64)
	SyncClocks(ns int64, reference bool)
	Send()
	CheckMasterState() error
	CheckDomainState() fieldbus.DomainState
}

type RTConfig struct {
	// SCHED_FIFO priority, 0 keeps the default scheduler
	Priority   int   `yaml:"priority"`
	CPUs       []int `yaml:"cpus"`
	LockMemory bool  `yaml:"lock_memory"`
}

type Config struct {
	Period time.Duration
	// link check interval in ticks and the consecutive failures tolerated
	MonitorEvery     uint64
	FailureThreshold int
	// reference clock sync interval in ticks
	ReferenceSyncEvery uint64
	// 0 waits for the drives forever
	EnableTimeout time.Duration
	ShutdownTicks int
	// stops the loop after this long, 0 runs until cancelled
	MeasureTime time.Duration
	StatsWindow uint64
	RT          RTConfig
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = time.Millisecond
	}
	if c.ReferenceSyncEvery == 0 {
		c.ReferenceSyncEvery = 1
	}
	if c.ShutdownTicks <= 0 {
		c.ShutdownTicks = DEFAULT_SHUTDOWN_TICKS
	}
	if c.StatsWindow == 0 {
		c.StatsWindow = DEFAULT_STATS_WINDOW
	}
	return c
}

// Deps are the collaborators shared with the rest of the rig. Any of them
// may be nil.
type Deps struct {
	Inputs *input.Cell
	Safety *input.SafetyGate
	Events journal.Notifier
	Latest *Latest
	Clock  Clock
	Log    logrus.FieldLogger
}

// Engine runs the cyclic exchange for one activation.
type Engine struct {
	bus     Bus
	gen     motion.Generator
	cfg     Config
	machine *drive.Machine
	monitor *linkMonitor
	timing  *timing

	inputs *input.Cell
	safety *input.SafetyGate
	events journal.Notifier
	latest *Latest
	clock  Clock
	log    logrus.FieldLogger

	drives   int
	rx       *fieldbus.ReceivedFrame
	cmd      *fieldbus.CommandFrame
	in       input.State
	ticks    uint64
	deadline int64
}

func New(bus Bus, gen motion.Generator, cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	n := bus.Drives()

	e := &Engine{
		bus:     bus,
		gen:     gen,
		cfg:     cfg,
		machine: drive.NewMachine(n),
		monitor: newLinkMonitor(cfg.MonitorEvery, cfg.FailureThreshold),
		timing:  newTiming(cfg.Period, cfg.StatsWindow),
		inputs:  deps.Inputs,
		safety:  deps.Safety,
		events:  deps.Events,
		latest:  deps.Latest,
		clock:   deps.Clock,
		drives:  n,
		rx:      fieldbus.NewReceivedFrame(n),
		cmd:     fieldbus.NewCommandFrame(n),
	}

	if e.safety == nil {
		e.safety = new(input.SafetyGate)
	}
	if e.latest == nil {
		e.latest = NewLatest(n)
	}
	if e.clock == nil {
		e.clock = SystemClock()
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	e.log = log.WithField("component", "engine")

	return e
}

func (e *Engine) Latest() *Latest {
	return e.latest
}

func (e *Engine) Machine() *drive.Machine {
	return e.machine
}

// Run enables every drive, runs the steady-state loop until ctx is done or
// the link is lost, and always finishes with the shutdown phase. It returns
// nil on a requested stop.
func (e *Engine) Run(ctx context.Context) (err error) {
	runtime.LockOSThread()
	if e.cfg.RT.Priority == 0 {
		defer runtime.UnlockOSThread()
	}
	// a SCHED_FIFO thread stays locked and exits with the calling goroutine

	if rtErr := setupRealtime(e.cfg.RT); rtErr != nil {
		e.log.WithError(rtErr).Warn("running without real-time settings")
	}

	if e.cfg.MeasureTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.MeasureTime)
		defer cancel()
	}
	done := ctx.Done()

	e.deadline = e.clock.Now()
	defer e.shutdown()

	e.log.WithFields(logrus.Fields{
		"drives": e.drives,
		"mode":   e.gen.Mode().String(),
		"period": e.cfg.Period,
	}).Info("enabling drives")
	e.notifyPhase(PhaseEnable)

	if err = e.enable(done); err != nil {
		return
	}

	e.log.WithField("tick", e.ticks).Info("all drives enabled")
	e.gen.Reset(e.rx)
	e.notifyPhase(PhaseRun)

	for {
		if err = e.tick(PhaseRun); err != nil {
			e.log.WithError(err).Error("link lost")
			return
		}
		if cancelled(done) {
			return nil
		}
	}
}

func (e *Engine) enable(done <-chan struct{}) error {
	start := e.clock.Now()

	for {
		if err := e.tick(PhaseEnable); err != nil {
			return err
		}
		if e.machine.EnabledCount() == e.drives {
			return nil
		}
		if cancelled(done) {
			return ErrEnableAborted
		}
		if e.cfg.EnableTimeout > 0 && time.Duration(e.clock.Now()-start) > e.cfg.EnableTimeout {
			return errors.Wrapf(ErrEnableTimeout, "%d of %d enabled", e.machine.EnabledCount(), e.drives)
		}
	}
}

func (e *Engine) shutdown() {
	e.notifyPhase(PhaseShutdown)
	for i := 0; i < e.cfg.ShutdownTicks; i++ {
		e.tick(PhaseShutdown)
	}
	e.log.WithField("stats", e.timing.snapshot()).Info("cyclic loop stopped")
}

func cancelled(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// tick performs one exchange cycle. It does not allocate or take locks
// unless a fault or link failure has to be reported.
func (e *Engine) tick(phase Phase) (escalate error) {
	e.deadline += int64(e.cfg.Period)
	e.clock.SleepUntil(e.deadline)
	start := e.clock.Now()

	e.bus.ApplicationTime(start)
	e.bus.Receive()
	e.bus.Decode(e.rx)
	e.rx.Tick = e.ticks
	e.cmd.Tick = e.ticks

	linkFault := false
	if e.monitor.due(e.ticks) {
		err := e.bus.CheckMasterState()
		e.bus.CheckDomainState()
		linkFault, escalate = e.monitor.observe(err)
		if err != nil {
			e.reportLinkFailure(err)
		}
		if escalate != nil {
			e.notify(journal.Event{Kind: journal.KIND_LINK_LOST, Tick: e.ticks, Info: escalate.Error()})
		}
	}

	if e.machine.Advance(e.rx, e.cmd) > 0 {
		e.reportFaults()
	}

	fresh := false
	if e.inputs != nil {
		fresh = e.inputs.Load(&e.in)
	}
	gate := motion.Gate{
		Emergency: e.safety.Emergency() || e.rx.EmergencyPressed() || linkFault,
		Inhibit:   e.safety.Inhibited(),
	}

	switch phase {
	case PhaseEnable:
		e.hold()
	case PhaseRun:
		e.gen.Compute(&e.in, e.rx, e.machine.States(), gate, e.cmd)
	case PhaseShutdown:
		e.stop()
	}

	e.bus.Encode(e.cmd)
	e.bus.SyncClocks(start, e.ticks%e.cfg.ReferenceSyncEvery == 0)
	e.bus.Send()

	e.timing.record(e.deadline, start, e.clock.Now())
	e.publish(phase, gate, fresh)
	e.ticks++

	return
}

// hold keeps every drive where it is while the state machine enables it.
func (e *Engine) hold() {
	for i := range e.cmd.Drives {
		c := &e.cmd.Drives[i]
		c.TargetPosition = e.rx.Drives[i].Position
		c.TargetVelocity = 0
		c.TargetTorque = 0
	}
}

func (e *Engine) stop() {
	for i := range e.cmd.Drives {
		c := &e.cmd.Drives[i]
		c.ControlWord = drive.SM_GO_SWITCH_ON_DISABLE
		c.TargetPosition = e.rx.Drives[i].Position
		c.TargetVelocity = 0
		c.TargetTorque = 0
	}
}

func (e *Engine) publish(phase Phase, gate motion.Gate, fresh bool) {
	t := e.latest.Back()
	t.Tick = e.ticks
	t.Phase = phase
	e.machine.CopyStates(t.States)
	copy(t.Feedback, e.rx.Drives)
	copy(t.Commands, e.cmd.Drives)
	t.AlStates = e.rx.AlStates
	t.Emergency = gate.Emergency
	t.Inhibit = gate.Inhibit
	t.Limit = e.rx.LimitTripped()
	t.LinkFailures = e.monitor.failures
	t.InputFresh = fresh
	t.Stats = e.timing.snapshot()
	e.latest.Publish()
}

func (e *Engine) notify(ev journal.Event) {
	if e.events != nil {
		e.events.Notify(ev)
	}
}

func (e *Engine) notifyPhase(p Phase) {
	e.notify(journal.Event{Kind: journal.KIND_PHASE, Tick: e.ticks, Info: p.String()})
}

func (e *Engine) reportFaults() {
	for i := 0; i < e.drives; i++ {
		if !e.machine.FaultEdge(i) {
			continue
		}
		code := e.rx.Drives[i].ErrorCode
		e.log.WithFields(logrus.Fields{
			"drive":      i,
			"error_code": code,
		}).Warn("drive fault")
		e.notify(journal.Event{Kind: journal.KIND_DRIVE_FAULT, Drive: i, Code: code, Tick: e.ticks})
	}
}

func (e *Engine) reportLinkFailure(err error) {
	e.log.WithError(err).WithField("failures", e.monitor.failures).Warn("link check failed")
	e.notify(journal.Event{Kind: journal.KIND_LINK_FAILURE, Tick: e.ticks, Info: err.Error()})
}
