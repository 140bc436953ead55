package onboard

import (
	"sync"
	"time"

	"github.com/CodedInternet/goecat/onboard/engine"
	ecerr "github.com/CodedInternet/goecat/onboard/errors"
	"github.com/CodedInternet/goecat/onboard/fieldbus"
	"github.com/CodedInternet/goecat/onboard/input"
	"github.com/CodedInternet/goecat/onboard/journal"
	"github.com/CodedInternet/goecat/onboard/lifecycle"
	"github.com/asdine/storm/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FRAMERATE is how often telemetry is pushed to subscribers.
const FRAMERATE = 30

var (
	ERR_NO_MASTER = errors.New("no fieldbus master available")
)

// Device is the operator-facing surface of a rig.
type Device interface {
	Trigger(t lifecycle.Transition) error
	SetEmergency(on bool)
	SetInhibit(on bool)
	ApplyInput(fn func(*input.State))
	Status() RigStatus
}

type RigStatus struct {
	Lifecycle lifecycle.Status `json:"lifecycle"`
	Mode      string           `json:"mode"`
	Drives    []string         `json:"drives"`
	Emergency bool             `json:"emergency"`
	Inhibit   bool             `json:"inhibit"`
	// nil until the loop has published once
	Telemetry *engine.Telemetry `json:"telemetry,omitempty"`
}

// Rig wires one fieldbus session to the lifecycle controller and to the
// state the operator interfaces share with the cyclic loop.
type Rig struct {
	Config    RigConfig
	Session   *fieldbus.Session
	Lifecycle *lifecycle.Controller
	Inputs    *input.Cell
	Safety    *input.SafetyGate
	Journal   *journal.Recorder

	latest *engine.Latest
	clock  engine.Clock
	log    logrus.FieldLogger

	mu   sync.Mutex
	subs map[chan *engine.Telemetry]struct{}

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRig builds a rig around master. db may be nil, in which case events are
// only logged.
func NewRig(config RigConfig, master fieldbus.Master, db *storm.DB, log logrus.FieldLogger) (r *Rig, err error) {
	if master == nil {
		return nil, ERR_NO_MASTER
	}
	if err = config.Validate(); err != nil {
		return
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r = &Rig{
		Config:  config,
		Session: fieldbus.NewSession(master, config.Fieldbus(), log),
		Inputs:  input.NewCell(config.Input.StaleAfter),
		Safety:  new(input.SafetyGate),
		latest:  engine.NewLatest(len(config.Drives)),
		log:     log.WithField("component", "rig"),
		subs:    make(map[chan *engine.Telemetry]struct{}),
		stop:    make(chan struct{}),
	}

	r.Journal, err = journal.NewRecorder(db, journal.DEFAULT_BUFFER, log)
	if err != nil {
		return nil, err
	}
	r.Lifecycle = lifecycle.NewController(r.Session, r.newRunner, r.Journal, log)

	go r.pump()
	return
}

func (r *Rig) newRunner() (lifecycle.Runner, error) {
	gen, err := r.Config.Generator()
	if err != nil {
		return nil, err
	}
	return engine.New(r.Session, gen, r.Config.Engine(), engine.Deps{
		Inputs: r.Inputs,
		Safety: r.Safety,
		Events: r.Journal,
		Latest: r.latest,
		Clock:  r.clock,
		Log:    r.log,
	}), nil
}

func (r *Rig) Trigger(t lifecycle.Transition) error {
	return r.Lifecycle.Trigger(t)
}

func (r *Rig) SetEmergency(on bool) {
	if r.Safety.Emergency() != on {
		r.log.WithField("emergency", on).Warn("emergency switch changed")
		r.Journal.Notify(journal.Event{Kind: journal.KIND_SAFETY, Info: onOff("emergency", on)})
	}
	r.Safety.SetEmergency(on)
}

func (r *Rig) SetInhibit(on bool) {
	if r.Safety.Inhibited() != on {
		r.log.WithField("inhibit", on).Info("motion inhibit changed")
		r.Journal.Notify(journal.Event{Kind: journal.KIND_SAFETY, Info: onOff("inhibit", on)})
	}
	r.Safety.SetInhibit(on)
}

func onOff(name string, on bool) string {
	if on {
		return name + " on"
	}
	return name + " off"
}

// ApplyInput updates the latest operator input sample.
func (r *Rig) ApplyInput(fn func(*input.State)) {
	r.Inputs.Update(fn)
}

// Telemetry copies the newest published tick into dst.
func (r *Rig) Telemetry(dst *engine.Telemetry) (fresh bool) {
	return r.latest.Read(dst)
}

func (r *Rig) Status() RigStatus {
	s := RigStatus{
		Lifecycle: r.Lifecycle.Status(),
		Mode:      r.Config.Mode.String(),
		Drives:    make([]string, len(r.Config.Drives)),
		Emergency: r.Safety.Emergency(),
		Inhibit:   r.Safety.Inhibited(),
	}
	for i, d := range r.Config.Drives {
		s.Drives[i] = d.Name
	}

	t := engine.NewTelemetry(len(r.Config.Drives))
	r.latest.Read(t)
	if t.Tick > 0 || t.Phase != engine.PhaseIdle {
		s.Telemetry = t
	}
	return s
}

// Subscribe returns a channel receiving telemetry at FRAMERATE. A slow
// subscriber only ever finds the newest frame waiting.
func (r *Rig) Subscribe() (<-chan *engine.Telemetry, func()) {
	ch := make(chan *engine.Telemetry, 1)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
		})
	}
}

func (r *Rig) pump() {
	ticker := time.NewTicker(time.Second / FRAMERATE)
	defer ticker.Stop()

	scratch := engine.NewTelemetry(len(r.Config.Drives))
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		if !r.latest.Read(scratch) {
			continue
		}
		r.broadcast(scratch)
	}
}

func (r *Rig) broadcast(t *engine.Telemetry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ch := range r.subs {
		frame := new(engine.Telemetry)
		frame.CopyFrom(t)
		// drop the unread frame so the newest one is kept
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close shuts the rig down and flushes the journal.
func (r *Rig) Close() {
	r.closeOnce.Do(func() {
		err := r.Lifecycle.Shutdown()
		if _, illegal := err.(ecerr.IllegalTransition); err != nil && !illegal {
			r.log.WithError(err).Warn("shutdown during close")
		}
		close(r.stop)
		r.Journal.Close()
	})
}
