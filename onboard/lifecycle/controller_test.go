package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ecerr "github.com/CodedInternet/goecat/onboard/errors"
	"github.com/CodedInternet/goecat/onboard/journal"
	. "github.com/smartystreets/goconvey/convey"
)

type testSession struct {
	mu                                sync.Mutex
	configureErr, activateErr         error
	configured, active                bool
	configures, deactivates, releases int
	block                             chan struct{}
}

func (s *testSession) Configure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configures++
	if s.configureErr != nil {
		return s.configureErr
	}
	s.configured = true
	return nil
}

func (s *testSession) Activate() error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activateErr != nil {
		return s.activateErr
	}
	s.active = true
	return nil
}

func (s *testSession) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivates++
	s.active = false
}

func (s *testSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	s.active = false
	s.configured = false
}

func (s *testSession) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

func (s *testSession) snapshot() (configured, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured, s.active
}

// testRunner runs until cancelled or until fail delivers an error.
type testRunner struct {
	started chan struct{}
	fail    chan error
	stopped chan struct{}
}

func newTestRunner() *testRunner {
	return &testRunner{
		started: make(chan struct{}),
		fail:    make(chan error, 1),
		stopped: make(chan struct{}),
	}
}

func (r *testRunner) Run(ctx context.Context) error {
	close(r.started)
	defer close(r.stopped)
	select {
	case <-ctx.Done():
		return nil
	case err := <-r.fail:
		return err
	}
}

type testEvents struct {
	mu     sync.Mutex
	events []journal.Event
}

func (t *testEvents) Notify(e journal.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func waitFor(c *Controller, s State) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == s {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func createTestController() (*Controller, *testSession, *testRunner, *testEvents) {
	session := new(testSession)
	runner := newTestRunner()
	events := new(testEvents)
	c := NewController(session, func() (Runner, error) { return runner, nil }, events, nil)
	return c, session, runner, events
}

func TestControllerTransitions(t *testing.T) {
	Convey("Given an unconfigured controller", t, func() {
		c, session, runner, events := createTestController()
		So(c.State(), ShouldEqual, Unconfigured)

		Convey("configure leads to inactive", func() {
			So(c.Configure(), ShouldBeNil)
			So(c.State(), ShouldEqual, Inactive)

			Convey("activate starts the loop", func() {
				So(c.Activate(), ShouldBeNil)
				So(c.State(), ShouldEqual, Active)
				<-runner.started

				Convey("deactivate joins it and keeps the bus configured", func() {
					So(c.Deactivate(), ShouldBeNil)
					So(c.State(), ShouldEqual, Inactive)
					<-runner.stopped
					configured, active := session.snapshot()
					So(configured, ShouldBeTrue)
					So(active, ShouldBeFalse)

					Convey("and cleanup releases it", func() {
						So(c.Cleanup(), ShouldBeNil)
						So(c.State(), ShouldEqual, Unconfigured)
						So(session.releases, ShouldEqual, 1)
					})
				})

				Convey("shutdown finalizes", func() {
					So(c.Shutdown(), ShouldBeNil)
					So(c.State(), ShouldEqual, Finalized)
					<-runner.stopped

					Convey("and nothing is allowed afterwards", func() {
						So(c.Configure(), ShouldHaveSameTypeAs, ecerr.IllegalTransition{})
						So(c.Error(errors.New("late")), ShouldHaveSameTypeAs, ecerr.IllegalTransition{})
					})
				})

				Convey("activate again is illegal", func() {
					err := c.Activate()
					So(err, ShouldResemble, ecerr.IllegalTransition{From: "active", Transition: "activate"})
					So(c.State(), ShouldEqual, Active)
				})
			})

			Convey("shutdown from inactive finalizes", func() {
				So(c.Shutdown(), ShouldBeNil)
				So(c.State(), ShouldEqual, Finalized)
				So(session.releases, ShouldEqual, 1)
			})
		})

		Convey("illegal requests have no side effects", func() {
			So(c.Activate(), ShouldResemble, ecerr.IllegalTransition{From: "unconfigured", Transition: "activate"})
			So(c.Deactivate(), ShouldHaveSameTypeAs, ecerr.IllegalTransition{})
			So(c.Cleanup(), ShouldHaveSameTypeAs, ecerr.IllegalTransition{})
			So(c.State(), ShouldEqual, Unconfigured)
			So(session.configures, ShouldEqual, 0)
			So(events.events, ShouldBeEmpty)
		})

		Convey("a failed configure returns to unconfigured", func() {
			session.configureErr = ecerr.SlaveCountMismatch{Expected: 3, Actual: 2}
			err := c.Configure()
			So(err, ShouldResemble, session.configureErr)
			So(c.State(), ShouldEqual, Unconfigured)
			So(c.Status().LastError, ShouldContainSubstring, "slave count mismatch")
		})

		Convey("a failed activate returns to inactive with the session deactivated", func() {
			So(c.Configure(), ShouldBeNil)
			session.activateErr = ecerr.ActivationRejected{Cause: errors.New("busy")}
			So(c.Activate(), ShouldNotBeNil)
			So(c.State(), ShouldEqual, Inactive)
			So(session.deactivates, ShouldEqual, 1)
		})

		Convey("every transition is journalled", func() {
			So(c.Configure(), ShouldBeNil)
			So(events.events, ShouldHaveLength, 2)
			So(events.events[0].From, ShouldEqual, "unconfigured")
			So(events.events[0].To, ShouldEqual, "configuring")
			So(events.events[1].To, ShouldEqual, "inactive")
			So(events.events[1].Kind, ShouldEqual, journal.KIND_TRANSITION)
		})

		Convey("observers see every state", func() {
			var seen []State
			c.Observe(func(s Status) { seen = append(seen, s.State) })
			So(c.Configure(), ShouldBeNil)
			So(seen, ShouldResemble, []State{Configuring, Inactive})
		})
	})
}

func TestControllerConcurrency(t *testing.T) {
	Convey("Given a controller part way through activation", t, func() {
		c, session, _, _ := createTestController()
		So(c.Configure(), ShouldBeNil)
		session.block = make(chan struct{})

		result := make(chan error)
		go func() { result <- c.Activate() }()
		So(waitFor(c, Activating), ShouldBeTrue)

		Convey("other requests are rejected as in progress", func() {
			err := c.Deactivate()
			So(err, ShouldResemble, ecerr.TransitionInProgress{State: "activating", Transition: "deactivate"})
			So(c.Cleanup(), ShouldHaveSameTypeAs, ecerr.TransitionInProgress{})

			close(session.block)
			So(<-result, ShouldBeNil)
			So(c.State(), ShouldEqual, Active)
			So(c.Shutdown(), ShouldBeNil)
		})
	})
}

func TestControllerEscalation(t *testing.T) {
	Convey("Given an active controller", t, func() {
		c, session, runner, events := createTestController()
		So(c.Configure(), ShouldBeNil)
		So(c.Activate(), ShouldBeNil)
		<-runner.started

		Convey("a loop failure is processed as an error", func() {
			runner.fail <- ecerr.LinkError{LinkUp: false, Expected: 2}

			So(waitFor(c, Unconfigured), ShouldBeTrue)
			So(session.released(), ShouldEqual, 1)
			So(c.Status().LastError, ShouldEqual, "link is down")
			So(c.Status().LastTransition, ShouldEqual, "error")

			events.mu.Lock()
			last := events.events[len(events.events)-1]
			events.mu.Unlock()
			So(last.From, ShouldEqual, "error_processing")
			So(last.Info, ShouldContainSubstring, "link is down")
		})

		Convey("a loop that ends by itself deactivates", func() {
			runner.fail <- nil
			So(waitFor(c, Inactive), ShouldBeTrue)
			configured, _ := session.snapshot()
			So(configured, ShouldBeTrue)
		})

		Convey("a loop stopped by a deactivate is not escalated", func() {
			So(c.Deactivate(), ShouldBeNil)
			time.Sleep(10 * time.Millisecond)
			So(c.State(), ShouldEqual, Inactive)
			So(session.released(), ShouldEqual, 0)
		})
	})
}

func TestParseTransition(t *testing.T) {
	Convey("Operator transitions are parsed by name", t, func() {
		tr, ok := ParseTransition("activate")
		So(ok, ShouldBeTrue)
		So(tr, ShouldEqual, Activate)

		_, ok = ParseTransition("error")
		So(ok, ShouldBeFalse)
	})
}
