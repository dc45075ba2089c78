package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadyRunning is returned by Start when the controller is already up.
var ErrAlreadyRunning = errors.New("lifecycle: already running")

// Component is anything the machine brings up on start and tears down on
// stop: the primary endpoint, the activation listener, the resource monitor.
// Start must either fully succeed or leave nothing behind; Stop must not
// return until the component can no longer produce activity.
type Component interface {
	Name() string
	Start() error
	Stop(ctx context.Context) error
}

// Machine owns the lifecycle triple {state, armed deadline, running flag}.
//
// Two locks implement the single-writer discipline. mu guards the triple and
// is only ever held for short, non-blocking sections, so activity recording
// (Activate) stays cheap and can never deadlock against component teardown.
// opMu serializes the long transitions (Start, Stop, deadline expiry) end to
// end, so components are never started and stopped concurrently.
//
// The armed deadline is a generation-counted timer: every rearm or disarm
// bumps gen, and an expiry callback that observes a stale generation simply
// returns. That makes "reset the inactivity window" safe under concurrent
// activity without relying on timer cancellation being instantaneous.
type Machine struct {
	timeout time.Duration
	grace   time.Duration

	opMu sync.Mutex

	mu           sync.Mutex
	state        State
	running      bool
	episodeID    string
	lastActivity time.Time
	timer        *time.Timer
	gen          uint64

	components []Component
	observers  []Observer
}

// NewMachine creates a machine that deactivates and stops after timeout of
// inactivity, allowing in-flight work up to grace to drain on teardown.
func NewMachine(timeout, grace time.Duration) *Machine {
	return &Machine{
		timeout: timeout,
		grace:   grace,
		state:   Dormant,
	}
}

// Manage registers the components the machine starts and stops. Must be
// called before Start; components are started in the given order and
// stopped in reverse.
func (m *Machine) Manage(components ...Component) {
	m.components = append(m.components, components...)
}

// Subscribe registers an observer for lifecycle events. Must be called
// before Start.
func (m *Machine) Subscribe(o Observer) {
	m.observers = append(m.observers, o)
}

// Start brings every managed component up, arms the first inactivity
// deadline and emits an activated event. Only valid while stopped; a second
// Start returns ErrAlreadyRunning and changes nothing. If any component
// fails to start, the ones already started are torn down and the error is
// returned with nothing left listening.
func (m *Machine) Start() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.mu.Unlock()

	var started []Component
	for _, c := range m.components {
		if err := c.Start(); err != nil {
			m.stopComponents(started)
			return fmt.Errorf("starting %s: %w", c.Name(), err)
		}
		started = append(started, c)
	}

	m.mu.Lock()
	m.running = true
	m.state = Active
	m.episodeID = uuid.NewString()
	m.lastActivity = time.Now()
	m.rearmLocked()
	ev := Event{Name: EventActivated, EpisodeID: m.episodeID, Timestamp: time.Now()}
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Stop tears everything down: cancels the armed deadline, closes the
// listeners (draining accepted requests), stops the monitor and emits a
// stopped event. Safe from any state; stopping an already stopped machine
// is a logged no-op.
func (m *Machine) Stop() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		log.Printf("lifecycle: stop ignored, controller not running")
		return
	}
	m.running = false
	m.state = Dormant
	m.disarmLocked()
	episode := m.episodeID
	m.mu.Unlock()

	m.stopComponents(m.components)
	m.emit(Event{Name: EventStopped, EpisodeID: episode, Timestamp: time.Now()})
}

// Activate records activity. While active it slides the inactivity window
// forward; from dormant it transitions to active and emits a single
// activated event. Activity arriving while the controller is stopped or
// mid-teardown is dropped: with the listeners closed that can only be a
// connection that squeaked in as teardown began, and the caller is expected
// to retry. Only the wake signal revives a stopped controller.
func (m *Machine) Activate() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		log.Printf("lifecycle: activation ignored, controller not running")
		return
	}
	var ev *Event
	if m.state == Dormant {
		m.state = Active
		m.episodeID = uuid.NewString()
		ev = &Event{Name: EventActivated, EpisodeID: m.episodeID, Timestamp: time.Now()}
	}
	m.lastActivity = time.Now()
	m.rearmLocked()
	m.mu.Unlock()

	if ev != nil {
		m.emit(*ev)
	}
}

// Deactivate transitions active to dormant, cancelling the armed deadline
// and emitting a deactivated event. Already dormant is a no-op. Listeners
// stay up; use Stop for full teardown.
func (m *Machine) Deactivate() {
	m.mu.Lock()
	if !m.running || m.state != Active {
		m.mu.Unlock()
		return
	}
	m.state = Dormant
	m.disarmLocked()
	ev := Event{Name: EventDeactivated, EpisodeID: m.episodeID, Timestamp: time.Now()}
	m.mu.Unlock()

	m.emit(ev)
}

// Wake revives the controller: a full Start if it was stopped, otherwise
// plain activity. This is the signal bridge's entry point and the only path
// back from fully stopped.
func (m *Machine) Wake() {
	err := m.Start()
	switch {
	case err == nil:
		log.Printf("lifecycle: woken from stopped")
	case errors.Is(err, ErrAlreadyRunning):
		m.Activate()
	default:
		log.Printf("lifecycle: wake failed: %v", err)
	}
}

// Snapshot returns a consistent copy of the externally visible state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:          m.state,
		Running:        m.running,
		EpisodeID:      m.episodeID,
		LastActivityAt: m.lastActivity,
	}
}

// expire runs when the inactivity deadline fires. A stale generation means
// activity rearmed the deadline after this timer was scheduled, so the
// expiry lost the race and must do nothing. A winning expiry clears the
// running flag in the same critical section that checks the generation, so
// no late activation can interleave once teardown has been decided.
func (m *Machine) expire(gen uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if !m.running || gen != m.gen {
		m.mu.Unlock()
		return
	}
	log.Printf("lifecycle: no activity for %v, going dormant", m.timeout)
	m.running = false
	m.state = Dormant
	m.disarmLocked()
	episode := m.episodeID
	m.mu.Unlock()

	m.emit(Event{Name: EventDeactivated, EpisodeID: episode, Timestamp: time.Now()})
	m.stopComponents(m.components)
	m.emit(Event{Name: EventStopped, EpisodeID: episode, Timestamp: time.Now()})
}

// rearmLocked replaces the armed deadline with a fresh one. Caller must
// hold mu. At most one deadline is live: the generation bump invalidates
// any timer that already fired but has not run its callback yet.
func (m *Machine) rearmLocked() {
	m.gen++
	gen := m.gen
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() { m.expire(gen) })
}

// disarmLocked cancels the armed deadline, if any. Caller must hold mu.
func (m *Machine) disarmLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// stopComponents stops the given components in reverse start order, bounded
// by the grace period. Errors are logged, not returned: teardown proceeds
// regardless.
func (m *Machine) stopComponents(components []Component) {
	ctx, cancel := context.WithTimeout(context.Background(), m.grace)
	defer cancel()
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(ctx); err != nil {
			log.Printf("lifecycle: stopping %s: %v", components[i].Name(), err)
		}
	}
}

func (m *Machine) emit(ev Event) {
	for _, o := range m.observers {
		o.LifecycleEvent(ev)
	}
}
