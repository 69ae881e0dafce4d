package registry

import (
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// State of a server side subscription slot.
type State uint8

const (
	Unregistered State = iota
	Registering
	Active
	Unregistering
)

func (s State) String() string {
	switch s {
	case Registering:
		return "registering"
	case Active:
		return "active"
	case Unregistering:
		return "unregistering"
	default:
		return "unregistered"
	}
}

// Slot tracks the remote subscription shared by every registration with the
// same event name and filter shape.
type Slot struct {
	event    string
	filter   Filter
	state    State
	serverID string
	refs     int

	ready chan struct{}
	gone  chan struct{}
}

// Event is the event name the slot subscribes to.
func (s *Slot) Event() string { return s.event }

// Filter is the context set shared by every registration on the slot.
func (s *Slot) Filter() Filter { return s.filter }

// ServerID is the remote subscription id, if the remote end returned one.
// Only meaningful once the slot has become active.
func (s *Slot) ServerID() string { return s.serverID }

// Registration is one handler registered for an event.
type Registration[H any] struct {
	ID      string
	Event   string
	Filter  Filter
	Handler H

	slot *Slot
}

// Slot returns the slot the registration is attached to.
func (r *Registration[H]) Slot() *Slot { return r.slot }

// Lease is the outcome of Acquire.
//
//   - Owner: the caller must subscribe remotely, then call Activate or Abort.
//   - Slot set, not owner: wait on Wait, then call Attach.
//   - Slot nil: a previous slot is still unregistering; wait on Wait and
//     acquire again.
type Lease struct {
	Slot  *Slot
	Owner bool
	Wait  <-chan struct{}
}

// Action is the remote call needed after a registration is removed.
type Action uint8

const (
	// ActionNone means another registration still needs server side delivery.
	ActionNone Action = iota
	// ActionByID unsubscribes the slot's server subscription id.
	ActionByID
	// ActionByAttributes unsubscribes by event name and the slot's contexts.
	ActionByAttributes
)

// Removal describes what to do after Remove. When Slot is non-nil the
// caller must call Finish once the remote call, if any, is done.
type Removal struct {
	Action Action
	Slot   *Slot
}

type eventEntry[H any] struct {
	mu      sync.Mutex
	regs    *orderedmap.OrderedMap[string, *Registration[H]]
	slots   map[string]*Slot
	leaving map[string]*Slot
}

// Registry maps event names to their ordered registrations and remote
// subscription slots.
type Registry[H any] struct {
	events *haxmap.Map[string, *eventEntry[H]]
}

func New[H any]() *Registry[H] {
	return &Registry[H]{
		events: haxmap.New[string, *eventEntry[H]](),
	}
}

func (r *Registry[H]) entry(event string) *eventEntry[H] {
	e, _ := r.events.GetOrCompute(event, func() *eventEntry[H] {
		return &eventEntry[H]{
			regs:    orderedmap.New[string, *Registration[H]](),
			slots:   make(map[string]*Slot),
			leaving: make(map[string]*Slot),
		}
	})
	return e
}

func slotKey(f Filter) string {
	if f.SessionWide() {
		return "*"
	}
	return "=" + f.Key()
}

// Acquire finds or creates the slot for event and filter.
func (r *Registry[H]) Acquire(event string, filter Filter) Lease {
	e := r.entry(event)
	key := slotKey(filter)

	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.leaving[key]; ok {
		return Lease{Wait: old.gone}
	}
	if s, ok := e.slots[key]; ok {
		return Lease{Slot: s, Wait: s.ready}
	}

	s := &Slot{
		event:  event,
		filter: filter,
		state:  Registering,
		ready:  make(chan struct{}),
		gone:   make(chan struct{}),
	}
	e.slots[key] = s
	return Lease{Slot: s, Owner: true, Wait: s.ready}
}

// Activate marks an owned slot active and attaches the owner's handler.
func (r *Registry[H]) Activate(s *Slot, serverID string, handler H) *Registration[H] {
	e := r.entry(s.event)

	e.mu.Lock()
	defer e.mu.Unlock()

	s.serverID = serverID
	s.state = Active
	close(s.ready)
	return e.attach(s, handler)
}

// Abort drops an owned slot whose remote subscribe failed. Waiters are
// released and will acquire again.
func (r *Registry[H]) Abort(s *Slot) {
	e := r.entry(s.event)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.slots[slotKey(s.filter)] == s {
		delete(e.slots, slotKey(s.filter))
	}
	s.state = Unregistered
	close(s.ready)
	close(s.gone)
}

// Attach adds a handler to an active slot. It reports false when the slot
// is no longer active, in which case the caller acquires again.
func (r *Registry[H]) Attach(s *Slot, handler H) (*Registration[H], bool) {
	e := r.entry(s.event)

	e.mu.Lock()
	defer e.mu.Unlock()

	if s.state != Active {
		return nil, false
	}
	return e.attach(s, handler), true
}

func (e *eventEntry[H]) attach(s *Slot, handler H) *Registration[H] {
	reg := &Registration[H]{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Event:   s.event,
		Filter:  s.filter,
		Handler: handler,
		slot:    s,
	}
	s.refs++
	e.regs.Set(reg.ID, reg)
	return reg
}

// Remove detaches a registration. It reports false when the registration
// was already removed.
func (r *Registry[H]) Remove(reg *Registration[H]) (Removal, bool) {
	e := r.entry(reg.Event)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.regs.Delete(reg.ID); !ok {
		return Removal{}, false
	}

	s := reg.slot
	s.refs--
	if s.refs > 0 {
		return Removal{Action: ActionNone}, true
	}

	key := slotKey(s.filter)
	delete(e.slots, key)
	e.leaving[key] = s
	s.state = Unregistering

	action := ActionNone
	switch {
	case s.serverID != "":
		action = ActionByID
	case s.filter.SessionWide():
		// scoped registrations still rely on the session wide subscription;
		// a slot that is still registering has none yet
		if e.regs.Len() == 0 {
			action = ActionByAttributes
		}
	default:
		// only a session wide slot with live registrations covers this one,
		// an in-flight subscribe may still fail
		if wide, ok := e.slots[slotKey(Filter{})]; !ok || wide.refs == 0 {
			action = ActionByAttributes
		}
	}
	return Removal{Action: action, Slot: s}, true
}

// Finish completes the unregistration of a slot returned by Remove.
func (r *Registry[H]) Finish(s *Slot) {
	e := r.entry(s.event)

	e.mu.Lock()
	defer e.mu.Unlock()

	key := slotKey(s.filter)
	if e.leaving[key] == s {
		delete(e.leaving, key)
	}
	s.state = Unregistered
	close(s.gone)
}

// Snapshot copies the registrations for event in registration order.
func (r *Registry[H]) Snapshot(event string) []*Registration[H] {
	e, ok := r.events.Get(event)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Registration[H], 0, e.regs.Len())
	for pair := e.regs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of registrations for event.
func (r *Registry[H]) Len(event string) int {
	e, ok := r.events.Get(event)
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs.Len()
}

// State returns the state of the slot for event and filter.
func (r *Registry[H]) State(event string, filter Filter) State {
	e, ok := r.events.Get(event)
	if !ok {
		return Unregistered
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := slotKey(filter)
	if s, ok := e.slots[key]; ok {
		return s.state
	}
	if s, ok := e.leaving[key]; ok {
		return s.state
	}
	return Unregistered
}
