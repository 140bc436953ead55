package lifecycle

import (
	"context"
	"sync"
	"time"

	ecerr "github.com/CodedInternet/goecat/onboard/errors"
	"github.com/CodedInternet/goecat/onboard/journal"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Session is the fieldbus session driven by the transitions.
type Session interface {
	Configure() error
	Activate() error
	Deactivate()
	Release()
}

// Runner is one run of the cyclic loop.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds the loop for a new activation.
type RunnerFactory func() (Runner, error)

type Observer func(Status)

// Controller serialises lifecycle transitions. The mutex only guards the
// state; the transitions themselves run outside it.
type Controller struct {
	session   Session
	newRunner RunnerFactory
	events    journal.Notifier
	log       logrus.FieldLogger

	mu        sync.Mutex
	status    Status
	observers []Observer

	cancel     context.CancelFunc
	done       chan struct{}
	generation uint64

	now func() time.Time
}

func NewController(session Session, newRunner RunnerFactory, events journal.Notifier, log logrus.FieldLogger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Controller{
		session:   session,
		newRunner: newRunner,
		events:    events,
		log:       log.WithField("component", "lifecycle"),
		now:       time.Now,
	}
	c.status = Status{State: Unconfigured, LastStateChange: c.now()}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.State
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Observe registers o for every state change.
func (c *Controller) Observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Trigger runs the named transition.
func (c *Controller) Trigger(t Transition) error {
	switch t {
	case Configure:
		return c.Configure()
	case Activate:
		return c.Activate()
	case Deactivate:
		return c.Deactivate()
	case Cleanup:
		return c.Cleanup()
	case Shutdown:
		return c.Shutdown()
	}
	return ecerr.IllegalTransition{From: string(c.State()), Transition: string(t)}
}

// Configure brings the bus up without starting the loop.
func (c *Controller) Configure() error {
	if err := c.begin(Configure); err != nil {
		return err
	}

	if err := c.session.Configure(); err != nil {
		c.finish(Configure, Unconfigured, err)
		return err
	}

	c.finish(Configure, Inactive, nil)
	return nil
}

// Activate brings every slave to OP and starts the cyclic loop.
func (c *Controller) Activate() error {
	if err := c.begin(Activate); err != nil {
		return err
	}

	if err := c.session.Activate(); err != nil {
		c.session.Deactivate()
		c.finish(Activate, Inactive, err)
		return err
	}

	runner, err := c.newRunner()
	if err != nil {
		c.session.Deactivate()
		c.finish(Activate, Inactive, err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	// started after the state is Active
	c.finish(Activate, Active, nil)
	go c.supervise(generation, runner, ctx, done)

	return nil
}

// Deactivate stops the loop and leaves the bus configured.
func (c *Controller) Deactivate() error {
	if err := c.begin(Deactivate); err != nil {
		return err
	}

	c.stopRunner()
	c.session.Deactivate()

	c.finish(Deactivate, Inactive, nil)
	return nil
}

// Cleanup releases the bus.
func (c *Controller) Cleanup() error {
	if err := c.begin(Cleanup); err != nil {
		return err
	}

	c.session.Release()

	c.finish(Cleanup, Unconfigured, nil)
	return nil
}

// Shutdown stops everything for good.
func (c *Controller) Shutdown() error {
	if err := c.begin(Shutdown); err != nil {
		return err
	}

	c.stopRunner()
	c.session.Release()

	c.finish(Shutdown, Finalized, nil)
	return nil
}

// Error tears everything down after a failure and returns to Unconfigured.
func (c *Controller) Error(cause error) error {
	if err := c.begin(Error); err != nil {
		return err
	}

	c.log.WithError(cause).Error("processing error")
	c.stopRunner()
	c.session.Release()

	c.finish(Error, Unconfigured, cause)
	return nil
}

// begin moves into the transient state of t or rejects the request without
// side effects.
func (c *Controller) begin(t Transition) error {
	spec := transitions[t]

	c.mu.Lock()
	from := c.status.State
	if from.Transient() {
		c.mu.Unlock()
		return ecerr.TransitionInProgress{State: string(from), Transition: string(t)}
	}
	if !spec.allowed(from) {
		c.mu.Unlock()
		return ecerr.IllegalTransition{From: string(from), Transition: string(t)}
	}
	status, observers := c.apply(t, spec.through, nil)
	c.mu.Unlock()

	c.announce(t, from, status, observers, nil)
	return nil
}

func (c *Controller) finish(t Transition, to State, err error) {
	if err != nil {
		c.log.WithError(err).WithField("transition", t).Warn("transition failed")
	}

	c.mu.Lock()
	from := c.status.State
	status, observers := c.apply(t, to, err)
	c.mu.Unlock()

	c.announce(t, from, status, observers, err)
}

// apply changes the state. The caller holds mu.
func (c *Controller) apply(t Transition, to State, err error) (Status, []Observer) {
	c.status.State = to
	c.status.LastTransition = string(t)
	c.status.LastStateChange = c.now()
	if err != nil {
		c.status.LastError = err.Error()
	} else if !to.Transient() && t != Error {
		c.status.LastError = ""
	}
	return c.status, c.observers
}

func (c *Controller) announce(t Transition, from State, status Status, observers []Observer, err error) {
	c.log.WithFields(logrus.Fields{
		"from":       from,
		"to":         status.State,
		"transition": t,
	}).Info("state changed")

	if c.events != nil {
		ev := journal.Event{Kind: journal.KIND_TRANSITION, From: string(from), To: string(status.State), Info: string(t)}
		if err != nil {
			ev.Info = errors.Wrap(err, string(t)).Error()
		}
		c.events.Notify(ev)
	}
	for _, o := range observers {
		o(status)
	}
}

// stopRunner cancels the loop and waits for it to finish its shutdown phase.
func (c *Controller) stopRunner() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Controller) supervise(generation uint64, runner Runner, ctx context.Context, done chan struct{}) {
	err := runner.Run(ctx)
	close(done)

	c.mu.Lock()
	current := generation == c.generation && c.status.State == Active
	c.mu.Unlock()
	if !current {
		return
	}

	// this goroutine may still hold the real-time thread
	if err != nil {
		go c.Error(err)
	} else {
		go c.Deactivate()
	}
}
