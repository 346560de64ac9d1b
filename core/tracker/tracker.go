// Package tracker implements edge detection on boolean fields of successive
// vehicle payloads. A Tracker is owned by a single subscription session and
// is not safe for concurrent use.
package tracker

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/vehrelay/core/model"
)

// State is the last known value of the watched field.
type State int

const (
	StateUnknown State = iota
	StateFalse
	StateTrue
)

func (s State) String() string {
	switch s {
	case StateFalse:
		return "false"
	case StateTrue:
		return "true"
	default:
		return "unknown"
	}
}

func stateOf(v bool) State {
	if v {
		return StateTrue
	}
	return StateFalse
}

// Policy decides what happens on the first observation of a session.
type Policy int

const (
	// Suppress never emits an event for the first observation.
	Suppress Policy = iota
	// UnknownIsFalse treats the missing baseline as false, so a first true
	// observation emits Activated.
	UnknownIsFalse
)

func (p Policy) String() string {
	if p == UnknownIsFalse {
		return "unknown_is_false"
	}
	return "suppress"
}

// ParsePolicy converts a configuration value into a Policy. The empty string
// selects Suppress.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "suppress":
		return Suppress, nil
	case "unknown_is_false":
		return UnknownIsFalse, nil
	default:
		return Suppress, fmt.Errorf("unknown first observation policy %q", s)
	}
}

// Kind is the type of derived event.
type Kind int

const (
	Activated Kind = iota + 1
	Deactivated
)

func (k Kind) String() string {
	switch k {
	case Activated:
		return "activated"
	case Deactivated:
		return "deactivated"
	default:
		return "none"
	}
}

// Event is emitted when the watched field changes from its last known value.
type Event struct {
	Kind  Kind
	Field string
	// Speed is the vehicle speed carried by the activating payload. It is
	// zero for Deactivated events.
	Speed float64
	Time  time.Time
}

// Field names a boolean payload field and how to read it.
type Field struct {
	Name string
	Get  func(model.Payload) bool
}

var (
	CruiseControl = Field{Name: "CruiseControl", Get: func(p model.Payload) bool { return p.CruiseControl }}
	ShareLocation = Field{Name: "ShareLocation", Get: func(p model.Payload) bool { return p.ShareLocation }}
)

// LookupField returns the watchable field with the given payload name.
func LookupField(name string) (Field, error) {
	for _, f := range []Field{CruiseControl, ShareLocation} {
		if strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}
	return Field{}, fmt.Errorf("field %q cannot be tracked", name)
}

// Tracker holds the last known value of one boolean field.
type Tracker struct {
	field  Field
	policy Policy
	state  State
	now    func() time.Time
}

// New creates a Tracker in the Unknown state.
func New(field Field, policy Policy) *Tracker {
	return &Tracker{field: field, policy: policy, now: time.Now}
}

// Field returns the name of the watched field.
func (t *Tracker) Field() string { return t.field.Name }

// State returns the last known value.
func (t *Tracker) State() State { return t.state }

// Reset forgets the last known value.
func (t *Tracker) Reset() { t.state = StateUnknown }

// Observe updates the state from p and returns the derived event, if any.
func (t *Tracker) Observe(p model.Payload) (Event, bool) {
	prev := t.state
	next := stateOf(t.field.Get(p))
	t.state = next

	if prev == StateUnknown {
		if t.policy != UnknownIsFalse {
			return Event{}, false
		}
		prev = StateFalse
	}
	switch {
	case prev == StateFalse && next == StateTrue:
		return Event{Kind: Activated, Field: t.field.Name, Speed: p.Speed, Time: t.now()}, true
	case prev == StateTrue && next == StateFalse:
		return Event{Kind: Deactivated, Field: t.field.Name, Time: t.now()}, true
	}
	return Event{}, false
}
