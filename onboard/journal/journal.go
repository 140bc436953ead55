package journal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/sirupsen/logrus"
)

// event kinds
const (
	KIND_TRANSITION   = "transition"
	KIND_DRIVE_FAULT  = "drive_fault"
	KIND_LINK_FAILURE = "link_failure"
	KIND_LINK_LOST    = "link_lost"
	KIND_PHASE        = "phase"
	KIND_SAFETY       = "safety"
)

const DEFAULT_BUFFER = 256

type Event struct {
	ID    int       `storm:"increment" json:"id"`
	Time  time.Time `storm:"index" json:"time"`
	Kind  string    `storm:"index" json:"kind"`
	Drive int       `json:"drive"`
	Code  uint16    `json:"code,omitempty"`
	Tick  uint64    `json:"tick,omitempty"`
	From  string    `json:"from,omitempty"`
	To    string    `json:"to,omitempty"`
	Info  string    `json:"info,omitempty"`
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(e Event)
}

// Observer is told about every recorded event after it is stored.
type Observer func(e Event)

// Recorder persists events to storm from its own goroutine. Notify never
// blocks; when the buffer is full the event is dropped and counted.
type Recorder struct {
	db  *storm.DB
	log logrus.FieldLogger

	events  chan Event
	dropped uint64

	// events is never closed; run drains it once stop is closed
	closed atomic.Bool
	stop   chan struct{}

	mu        sync.Mutex
	observers []Observer

	done chan struct{}
	once sync.Once
	now  func() time.Time
}

func NewRecorder(db *storm.DB, buffer int, log logrus.FieldLogger) (r *Recorder, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if buffer <= 0 {
		buffer = DEFAULT_BUFFER
	}

	if db != nil {
		if err = db.Init(&Event{}); err != nil {
			return nil, err
		}
	}

	r = &Recorder{
		db:     db,
		log:    log.WithField("component", "journal"),
		events: make(chan Event, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go r.run()

	return
}

// Notify queues e without blocking. Events after Close are dropped.
func (r *Recorder) Notify(e Event) {
	if r.closed.Load() {
		atomic.AddUint64(&r.dropped, 1)
		return
	}
	select {
	case r.events <- e:
	default:
		atomic.AddUint64(&r.dropped, 1)
	}
}

// Dropped is the number of events lost to a full buffer.
func (r *Recorder) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

func (r *Recorder) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Close stores any queued events and stops the recorder.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.stop)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	for {
		select {
		case e := <-r.events:
			r.record(e)
		case <-r.stop:
			for {
				select {
				case e := <-r.events:
					r.record(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(e Event) {
	if e.Time.IsZero() {
		e.Time = r.now()
	}

	if r.db != nil {
		if err := r.db.Save(&e); err != nil {
			r.log.WithError(err).WithField("kind", e.Kind).Error("unable to store event")
		}
	}

	r.mu.Lock()
	observers := r.observers
	r.mu.Unlock()
	for _, o := range observers {
		o(e)
	}
}

// Recent returns up to limit stored events, newest first, optionally
// filtered by kind.
func Recent(db *storm.DB, kind string, limit int) (events []Event, err error) {
	var matchers []q.Matcher
	if kind != "" {
		matchers = append(matchers, q.Eq("Kind", kind))
	}

	query := db.Select(matchers...).OrderBy("ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	err = query.Find(&events)
	if err == storm.ErrNotFound {
		return []Event{}, nil
	}
	return
}
