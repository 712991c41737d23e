package debugexec

import (
	"sync"

	"github.com/petermattis/goid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("stage", "debugexec")

// Listener receives one event value per call; the concrete type is
// one of the event structs in events.go. A listener is not told which
// goroutine delivered the event — per spec.md §4.8/§5, buffered events
// are always flushed on
// the nominated "main" context, while SendNow events are delivered
// synchronously on whatever goroutine raised them.
type Listener func(event any)

// ListenerID identifies a subscription returned by Listen, for a
// later Unlisten call.
type ListenerID int

// Messenger is a typed publish/subscribe bus with buffered delivery,
// grounded on original_source's sdb::Messenger (private
// utl::buffered_messenger plus a submitTaskCb that marshals the flush
// onto the host's main thread). SendNow dispatches synchronously;
// SendBuffered appends to an internal queue and, the first time the
// queue goes from empty to non-empty, invokes submit so the host can
// schedule a Flush call on its own terms (a GUI event loop tick, a
// test's direct call, etc).
type Messenger struct {
	mu        sync.Mutex
	listeners map[ListenerID]Listener
	nextID    ListenerID
	buffer    []any
	submit    func(func())
	notified  bool

	mainMu   sync.Mutex
	mainGoID int64
	haveMain bool
}

// NewMessenger builds a Messenger that calls submit exactly once per
// buffered-event batch, with a Task that flushes the buffer. submit is
// typically "enqueue this closure on the UI thread"; tests pass a
// submit that runs the task immediately.
func NewMessenger(submit func(task func())) *Messenger {
	return &Messenger{
		listeners: make(map[ListenerID]Listener),
		submit:    submit,
	}
}

// Listen subscribes fn to every event SendNow/Flush delivers, and
// returns an id for Unlisten.
func (m *Messenger) Listen(fn Listener) ListenerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners[id] = fn
	return id
}

// Unlisten removes a subscription previously returned by Listen.
func (m *Messenger) Unlisten(id ListenerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// SendNow dispatches event synchronously, on the calling goroutine, to
// every current listener.
func (m *Messenger) SendNow(event any) {
	m.mu.Lock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(event)
	}
}

// SendBuffered appends event to the pending batch and, on the
// leading edge of empty-to-nonempty, asks submit to schedule a Flush.
func (m *Messenger) SendBuffered(event any) {
	m.mu.Lock()
	m.buffer = append(m.buffer, event)
	shouldNotify := !m.notified
	m.notified = true
	m.mu.Unlock()
	if shouldNotify && m.submit != nil {
		m.submit(m.Flush)
	}
}

// Flush delivers every buffered event, in arrival order, to the
// current listener set, then clears the buffer. Per spec.md §5,
// subscribers of a buffered event run on whatever goroutine calls
// Flush, which is expected to be the Messenger's nominated main
// thread; SetMainThread and Flush's assertMain check exist to catch a
// Flush called from elsewhere during development.
func (m *Messenger) Flush() {
	m.assertMain()
	m.mu.Lock()
	pending := m.buffer
	m.buffer = nil
	m.notified = false
	m.mu.Unlock()
	for _, event := range pending {
		m.SendNow(event)
	}
}

// SetMainThread records the calling goroutine as the one Flush is
// expected to always run on. Unset (the zero value) disables the
// assertion, which is the default so tests that flush from an
// arbitrary goroutine don't need to call this.
func (m *Messenger) SetMainThread() {
	m.mainMu.Lock()
	defer m.mainMu.Unlock()
	m.mainGoID = goid.Get()
	m.haveMain = true
}

func (m *Messenger) assertMain() {
	m.mainMu.Lock()
	defer m.mainMu.Unlock()
	if !m.haveMain {
		return
	}
	if id := goid.Get(); id != m.mainGoID {
		log.WithFields(logrus.Fields{"expected": m.mainGoID, "actual": id}).
			Warn("messenger flushed off the nominated main goroutine")
	}
}
