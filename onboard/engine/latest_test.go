package engine

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLatest(t *testing.T) {
	Convey("Given a telemetry cell", t, func() {
		l := NewLatest(2)
		dst := NewTelemetry(2)

		Convey("nothing is fresh before the first publish", func() {
			So(l.Read(dst), ShouldBeFalse)
		})

		Convey("only the newest sample is kept", func() {
			for tick := uint64(1); tick <= 3; tick++ {
				b := l.Back()
				b.Tick = tick
				b.Feedback[1].Position = int32(tick * 10)
				l.Publish()
			}

			So(l.Read(dst), ShouldBeTrue)
			So(dst.Tick, ShouldEqual, 3)
			So(dst.Feedback[1].Position, ShouldEqual, 30)

			Convey("and the notifications coalesce", func() {
				So(len(l.Updates()), ShouldEqual, 1)
			})

			Convey("and a second read returns the same sample", func() {
				So(l.Read(dst), ShouldBeFalse)
				So(dst.Tick, ShouldEqual, 3)
			})
		})

		Convey("the reader copy is independent of the writer", func() {
			l.Back().Tick = 1
			l.Publish()
			l.Read(dst)

			l.Back().Tick = 2
			l.Back().States[0] = 4
			So(dst.Tick, ShouldEqual, 1)
			So(dst.States[0], ShouldEqual, 0)
		})

		Convey("a reader and writer can run concurrently", func() {
			done := make(chan struct{})
			go func() {
				defer close(done)
				for tick := uint64(1); tick <= 10000; tick++ {
					b := l.Back()
					b.Tick = tick
					b.Feedback[0].Position = int32(tick)
					b.Feedback[1].Position = int32(tick)
					l.Publish()
				}
			}()

			torn := 0
			for running := true; running; {
				select {
				case <-done:
					running = false
				default:
				}
				l.Read(dst)
				if dst.Feedback[0].Position != int32(dst.Tick) || dst.Feedback[1].Position != int32(dst.Tick) {
					torn++
				}
			}
			So(torn, ShouldEqual, 0)
		})
	})

	Convey("Copying into a differently sized telemetry resizes it", t, func() {
		src := NewTelemetry(3)
		src.Commands[2].ControlWord = 0x1F
		dst := new(Telemetry)
		dst.CopyFrom(src)
		So(dst.Commands, ShouldHaveLength, 3)
		So(dst.Commands[2].ControlWord, ShouldEqual, 0x1F)
	})
}

func TestLinkMonitor(t *testing.T) {
	Convey("Given a monitor with the default threshold", t, func() {
		m := newLinkMonitor(0, 0)
		failure := errors.New("link down")

		So(m.due(0), ShouldBeTrue)
		So(m.due(999), ShouldBeFalse)
		So(m.due(2000), ShouldBeTrue)

		Convey("failures below the threshold only gate the tick", func() {
			for i := 0; i < DEFAULT_FAILURE_THRESHOLD-1; i++ {
				failing, escalate := m.observe(failure)
				So(failing, ShouldBeTrue)
				So(escalate, ShouldBeNil)
			}

			Convey("and the next one escalates", func() {
				_, escalate := m.observe(failure)
				So(escalate, ShouldNotBeNil)
			})

			Convey("unless a success resets the count", func() {
				failing, _ := m.observe(nil)
				So(failing, ShouldBeFalse)
				_, escalate := m.observe(failure)
				So(escalate, ShouldBeNil)
			})
		})
	})
}

func TestTiming(t *testing.T) {
	Convey("Given timing over a three tick window", t, func() {
		tm := newTiming(time.Millisecond, 3)
		ms := int64(time.Millisecond)

		tm.record(1*ms, 1*ms+10000, 1*ms+50000)
		tm.record(2*ms, 2*ms+30000, 2*ms+40000)

		Convey("the running window is reported until one completes", func() {
			s := tm.snapshot()
			So(s.Samples, ShouldEqual, 2)
			So(s.Latency.Min, ShouldEqual, 10*time.Microsecond)
			So(s.Latency.Max, ShouldEqual, 30*time.Microsecond)
			So(s.Exec.Min, ShouldEqual, 10*time.Microsecond)
			So(s.Exec.Max, ShouldEqual, 40*time.Microsecond)
			So(s.Period.Min, ShouldEqual, 1020*time.Microsecond)
			So(s.Jitter, ShouldEqual, 20*time.Microsecond)
		})

		Convey("a completed window is kept while the next fills", func() {
			tm.record(3*ms, 3*ms+5000, 3*ms+6000)
			tm.record(4*ms, 4*ms+2*ms, 4*ms+3*ms)

			s := tm.snapshot()
			So(s.Samples, ShouldEqual, 3)
			So(s.Latency.Min, ShouldEqual, 5*time.Microsecond)
			So(s.Overruns, ShouldEqual, 0)
			So(tm.current.Overruns, ShouldEqual, 1)
		})
	})
}
